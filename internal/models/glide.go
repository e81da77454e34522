package models

import (
	"database/sql/driver"
	"time"
)

// ColumnMapping maps local telegram_media columns to Glide column ids.
type ColumnMapping map[string]string

// Value implements driver.Valuer
func (m ColumnMapping) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return jsonValue(map[string]string(m))
}

// Scan implements sql.Scanner
func (m *ColumnMapping) Scan(src interface{}) error {
	out := map[string]string{}
	if err := jsonScan(src, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// GlideConfig describes one Glide mirror target.
type GlideConfig struct {
	ID                string        `db:"id" json:"id"`
	AppID             string        `db:"app_id" json:"app_id"`
	TableID           string        `db:"table_id" json:"table_id"`
	APIToken          string        `db:"api_token" json:"-"`
	SupabaseTableName string        `db:"supabase_table_name" json:"supabase_table_name"`
	ColumnMapping     ColumnMapping `db:"column_mapping" json:"column_mapping"`
	Active            bool          `db:"active" json:"active"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}
