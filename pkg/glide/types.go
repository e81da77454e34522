package glide

// Mutation kinds accepted by mutateTables.
const (
	KindAddRow     = "add-row-to-table"
	KindSetColumns = "set-columns-in-row"
	KindDeleteRow  = "delete-row"
)

// RowIDColumn is the key Glide uses for the row identifier in query results.
const RowIDColumn = "$rowID"

// Row is a single Glide row keyed by column name.
type Row map[string]interface{}

// RowID returns the Glide row identifier, or "" when absent.
func (r Row) RowID() string {
	id, _ := r[RowIDColumn].(string)
	return id
}

// Mutation is one entry of a mutateTables request.
type Mutation struct {
	Kind         string                 `json:"kind"`
	TableName    string                 `json:"tableName"`
	ColumnValues map[string]interface{} `json:"columnValues,omitempty"`
	RowID        string                 `json:"rowID,omitempty"`
}

// MutationResult is the per-mutation response. RowID is set for added rows.
type MutationResult struct {
	RowID string `json:"rowID,omitempty"`
}

// AddRow builds an add-row-to-table mutation.
func AddRow(table string, values map[string]interface{}) Mutation {
	return Mutation{Kind: KindAddRow, TableName: table, ColumnValues: values}
}

// SetColumns builds a set-columns-in-row mutation.
func SetColumns(table, rowID string, values map[string]interface{}) Mutation {
	return Mutation{Kind: KindSetColumns, TableName: table, RowID: rowID, ColumnValues: values}
}

// DeleteRow builds a delete-row mutation.
func DeleteRow(table, rowID string) Mutation {
	return Mutation{Kind: KindDeleteRow, TableName: table, RowID: rowID}
}

type queryRequest struct {
	AppID   string  `json:"appID"`
	Queries []query `json:"queries"`
}

type query struct {
	TableName string `json:"tableName"`
	UTC       bool   `json:"utc"`
	StartAt   string `json:"startAt,omitempty"`
}

type queryResult struct {
	Rows []Row  `json:"rows"`
	Next string `json:"next,omitempty"`
}

type mutateRequest struct {
	AppID     string     `json:"appID"`
	Mutations []Mutation `json:"mutations"`
}
