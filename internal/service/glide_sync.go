package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"tgmedia/internal/constants"
	"tgmedia/internal/database"
	"tgmedia/internal/errors"
	"tgmedia/internal/metrics"
	"tgmedia/internal/models"
	"tgmedia/internal/tracing"
	"tgmedia/pkg/glide"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ReconcileResult compares local media rows with a Glide table
type ReconcileResult struct {
	LocalRows     int `json:"local_rows"`
	RemoteRows    int `json:"remote_rows"`
	Differing     int `json:"differing"`
	MissingRemote int `json:"missing_remote"`
	MissingLocal  int `json:"missing_local"`
}

type SyncResult struct {
	Added  int `json:"added"`
	Failed int `json:"failed"`
}

type PushResult struct {
	GroupsUpdated int `json:"groups_updated"`
	MediaSynced   int `json:"media_synced"`
	Failed        int `json:"failed"`
}

// GlideSync mirrors telegram_media rows into Glide tables
type GlideSync struct {
	configs   GlideConfigStore
	media     MediaStore
	groups    *GroupSync
	client    glide.API
	batchSize int
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

func NewGlideSync(configs GlideConfigStore, media MediaStore, groups *GroupSync, client glide.API,
	batchSize int, m *metrics.Metrics, logger *logrus.Logger) *GlideSync {
	if batchSize <= 0 {
		batchSize = constants.DefaultGlideBatchSize
	}
	return &GlideSync{
		configs:   configs,
		media:     media,
		groups:    groups,
		client:    client,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
	}
}

func (g *GlideSync) loadConfig(ctx context.Context, configID string) (*models.GlideConfig, error) {
	if configID == "" {
		return nil, errors.NewValidationError("config_id", "", "is required")
	}
	cfg, err := g.configs.GetGlideConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	if !cfg.Active {
		return nil, errors.NewValidationError("config_id", configID, "glide config is inactive")
	}
	if len(cfg.ColumnMapping) == 0 {
		return nil, errors.NewValidationError("column_mapping", configID, "is empty")
	}
	return cfg, nil
}

// Reconcile reports how the local rows and the Glide table differ. It writes nothing.
func (g *GlideSync) Reconcile(ctx context.Context, configID string) (ReconcileResult, error) {
	cfg, err := g.loadConfig(ctx, configID)
	if err != nil {
		return ReconcileResult{}, err
	}

	local, err := g.media.ListMedia(ctx, database.MediaFilter{})
	if err != nil {
		return ReconcileResult{}, err
	}
	remote, err := g.client.QueryTable(ctx, cfg.AppID, cfg.APIToken, cfg.TableID)
	if err != nil {
		return ReconcileResult{}, err
	}

	remoteByID := make(map[string]glide.Row, len(remote))
	for _, row := range remote {
		if id := row.RowID(); id != "" {
			remoteByID[id] = row
		}
	}

	res := ReconcileResult{LocalRows: len(local), RemoteRows: len(remote)}
	linked := make(map[string]bool, len(local))
	for _, rec := range local {
		rowID := ""
		if rec.TelegramMediaRowID != nil {
			rowID = *rec.TelegramMediaRowID
		}
		row, ok := remoteByID[rowID]
		if rowID == "" || !ok {
			res.MissingRemote++
			continue
		}
		linked[rowID] = true
		if rowDiffers(mappedValues(rec, cfg.ColumnMapping), row) {
			res.Differing++
		}
	}
	for id := range remoteByID {
		if !linked[id] {
			res.MissingLocal++
		}
	}

	g.logger.WithFields(logrus.Fields{
		LogFieldConfigID: configID,
		"local_rows":     res.LocalRows,
		"remote_rows":    res.RemoteRows,
		"differing":      res.Differing,
		"missing_remote": res.MissingRemote,
		"missing_local":  res.MissingLocal,
	}).Info("Glide reconcile completed")
	return res, nil
}

// SyncMissingRows adds every unlinked local row to Glide and stores the returned row ids.
func (g *GlideSync) SyncMissingRows(ctx context.Context, configID string) (SyncResult, error) {
	cfg, err := g.loadConfig(ctx, configID)
	if err != nil {
		return SyncResult{}, err
	}

	recs, err := g.media.ListMedia(ctx, database.MediaFilter{Unlinked: true})
	if err != nil {
		return SyncResult{}, err
	}

	var res SyncResult
	for _, batch := range chunkRecords(recs, g.batchSize) {
		added, err := g.pushBatch(ctx, cfg, batch)
		res.Added += added
		if err != nil {
			res.Failed += len(batch) - added
			g.logger.WithError(err).WithField(LogFieldConfigID, configID).Error("Failed to add rows to Glide")
		}
	}

	g.logger.WithFields(logrus.Fields{
		LogFieldConfigID: configID,
		"added":          res.Added,
		"failed":         res.Failed,
	}).Info("Glide missing row sync completed")
	return res, nil
}

// PushGroupUpdates resyncs every media group and then pushes all mapped rows.
func (g *GlideSync) PushGroupUpdates(ctx context.Context, configID string) (PushResult, error) {
	cfg, err := g.loadConfig(ctx, configID)
	if err != nil {
		return PushResult{}, err
	}

	var res PushResult
	groupIDs, err := g.media.ListMediaGroupIDs(ctx)
	if err != nil {
		return res, err
	}
	for _, id := range groupIDs {
		source, err := g.groups.SyncMediaGroupCaptions(ctx, id)
		if err != nil {
			g.logger.WithError(err).WithField(LogFieldMediaGroupID, id).Warn("Group sync failed during Glide push")
			continue
		}
		if source != nil {
			res.GroupsUpdated++
		}
	}

	recs, err := g.media.ListMedia(ctx, database.MediaFilter{})
	if err != nil {
		return res, err
	}
	for _, batch := range chunkRecords(recs, g.batchSize) {
		synced, err := g.pushBatch(ctx, cfg, batch)
		res.MediaSynced += synced
		if err != nil {
			res.Failed += len(batch) - synced
			g.logger.WithError(err).WithField(LogFieldConfigID, configID).Error("Failed to push rows to Glide")
		}
	}

	g.logger.WithFields(logrus.Fields{
		LogFieldConfigID: configID,
		"groups_updated": res.GroupsUpdated,
		"media_synced":   res.MediaSynced,
		"failed":         res.Failed,
	}).Info("Glide group push completed")
	return res, nil
}

// pushBatch sends one mutateTables request: set-columns for linked rows,
// add-row for the rest. Row ids returned for added rows are stored locally.
func (g *GlideSync) pushBatch(ctx context.Context, cfg *models.GlideConfig, batch []*models.MediaRecord) (n int, err error) {
	ctx, span := tracing.StartSpan(ctx, "glide.mutate", attribute.Int(LogFieldCount, len(batch)))
	start := time.Now()
	defer func() {
		g.metrics.ObserveStage("glide.mutate", time.Since(start))
		tracing.EndSpan(span, err)
	}()

	mutations := make([]glide.Mutation, len(batch))
	adds, sets := 0, 0
	for i, rec := range batch {
		values := mappedValues(rec, cfg.ColumnMapping)
		if rec.TelegramMediaRowID != nil && *rec.TelegramMediaRowID != "" {
			mutations[i] = glide.SetColumns(cfg.TableID, *rec.TelegramMediaRowID, values)
			sets++
		} else {
			mutations[i] = glide.AddRow(cfg.TableID, values)
			adds++
		}
	}

	results, err := g.client.MutateTables(ctx, cfg.AppID, cfg.APIToken, mutations)
	if err != nil {
		return 0, err
	}
	g.metrics.RecordGlideMutations(glide.KindAddRow, adds)
	g.metrics.RecordGlideMutations(glide.KindSetColumns, sets)

	var linkErr error
	for i, m := range mutations {
		if m.Kind != glide.KindAddRow || i >= len(results) || results[i].RowID == "" {
			continue
		}
		if err := g.media.SetMediaGlideRowID(ctx, batch[i].ID, results[i].RowID); err != nil && linkErr == nil {
			linkErr = fmt.Errorf("failed to store glide row id: %w", err)
		}
	}
	return len(batch), linkErr
}

func chunkRecords(recs []*models.MediaRecord, size int) [][]*models.MediaRecord {
	var out [][]*models.MediaRecord
	for start := 0; start < len(recs); start += size {
		end := start + size
		if end > len(recs) {
			end = len(recs)
		}
		out = append(out, recs[start:end])
	}
	return out
}

// mappedValues projects rec onto Glide column ids using the local column names as keys.
func mappedValues(rec *models.MediaRecord, mapping models.ColumnMapping) map[string]interface{} {
	columns := recordColumns(rec)
	out := make(map[string]interface{}, len(mapping))
	for local, remote := range mapping {
		if v, ok := columns[local]; ok {
			out[remote] = v
		}
	}
	return out
}

func recordColumns(rec *models.MediaRecord) map[string]interface{} {
	cols := map[string]interface{}{
		"id":                  rec.ID,
		"file_unique_id":      rec.FileUniqueID,
		"file_id":             rec.FileID,
		"file_type":           string(rec.FileType),
		"mime_type":           rec.MimeType,
		"file_size":           rec.FileSize,
		"public_url":          rec.PublicURL,
		"storage_path":        rec.StoragePath,
		"telegram_message_id": rec.TelegramMessageID,
		"chat_id":             rec.ChatID,
		"correlation_id":      rec.CorrelationID,
		"is_original_caption": rec.IsOriginalCaption,
		"processing_state":    string(rec.ProcessingState),
		"media_group_id":      derefString(rec.MediaGroupID),
		"caption":             derefString(rec.Caption),
		"product_name":        derefString(rec.ProductName),
		"product_code":        derefString(rec.ProductCode),
		"vendor_uid":          derefString(rec.VendorUID),
		"notes":               derefString(rec.Notes),
		"message_url":         derefString(rec.MessageURL),
		"created_at":          rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.Quantity != nil {
		cols["quantity"] = *rec.Quantity
	} else {
		cols["quantity"] = nil
	}
	if rec.PurchaseDate != nil {
		cols["purchase_date"] = rec.PurchaseDate.UTC().Format("2006-01-02")
	} else {
		cols["purchase_date"] = nil
	}
	return cols
}

func rowDiffers(local map[string]interface{}, remote glide.Row) bool {
	for col, v := range local {
		if normalizeValue(v) != normalizeValue(remote[col]) {
			return true
		}
	}
	return false
}

// normalizeValue compares JSON numbers from Glide with local integers.
func normalizeValue(v interface{}) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
	}
	return fmt.Sprint(v)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
