package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	apperrors "tgmedia/internal/errors"
	"tgmedia/internal/models"

	"github.com/google/uuid"
)

// InsertMedia inserts a telegram_media row. A row that already exists for
// the same file_unique_id is left untouched and inserted is false.
func (d *Database) InsertMedia(ctx context.Context, r *models.MediaRecord) (inserted bool, err error) {
	now := d.now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.ProcessingState == "" {
		r.ProcessingState = models.StatusPending
	}

	affected, err := d.exec(ctx, InsertMediaQuery,
		r.ID, r.FileUniqueID, r.FileID, r.FileType, r.MimeType, r.FileSize, r.PublicURL,
		r.StoragePath, r.TelegramMessageID, r.ChatID, r.MediaGroupID, r.Caption, r.IsOriginalCaption,
		r.OriginalMessageID, r.CorrelationID, r.ProductName, r.ProductCode, r.Quantity, r.VendorUID,
		dateOnly(r.PurchaseDate), r.Notes, r.AnalyzedContent, r.ProcessingState, r.ProcessingError, r.ProcessedAt,
		r.TelegramMediaRowID, r.MessageURL, r.MessageMediaData, r.CreatedAt.UTC(), r.UpdatedAt,
	)
	if err != nil {
		return false, dbError("insert media", err)
	}
	return affected == 1, nil
}

func (d *Database) GetMedia(ctx context.Context, id string) (*models.MediaRecord, error) {
	var rec models.MediaRecord
	if err := d.get(ctx, &rec, SelectMediaByIDQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("media", id)
		}
		return nil, dbError("select media", err)
	}
	return &rec, nil
}

// FindMediaByFileUniqueID returns nil without error when no row exists.
func (d *Database) FindMediaByFileUniqueID(ctx context.Context, fileUniqueID string) (*models.MediaRecord, error) {
	var rec models.MediaRecord
	if err := d.get(ctx, &rec, SelectMediaByFileUniqueIDQuery, fileUniqueID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError("select media", err)
	}
	return &rec, nil
}

// ListMediaByGroup returns the members of a media group, newest first.
func (d *Database) ListMediaByGroup(ctx context.Context, mediaGroupID string) ([]*models.MediaRecord, error) {
	var recs []*models.MediaRecord
	if err := d.selectAll(ctx, &recs, SelectMediaByGroupQuery, mediaGroupID); err != nil {
		return nil, dbError("select media group", err)
	}
	return recs, nil
}

func (d *Database) ListMediaByMessage(ctx context.Context, chatID, messageID int64) ([]*models.MediaRecord, error) {
	var recs []*models.MediaRecord
	if err := d.selectAll(ctx, &recs, SelectMediaByMessageQuery, chatID, messageID); err != nil {
		return nil, dbError("select message media", err)
	}
	return recs, nil
}

func (d *Database) ListMediaGroupIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := d.selectAll(ctx, &ids, SelectMediaGroupIDsQuery); err != nil {
		return nil, dbError("select media groups", err)
	}
	return ids, nil
}

// MediaFilter narrows ListMedia. Zero values mean no filter.
type MediaFilter struct {
	Search       string
	MediaGroupID string
	Unlinked     bool
	Limit        int
	Offset       int
}

// ListMedia returns media rows newest first. Search matches caption,
// product name, product code and vendor case-insensitively.
func (d *Database) ListMedia(ctx context.Context, f MediaFilter) ([]*models.MediaRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		where = append(where, `(LOWER(COALESCE(caption, '')) LIKE ? OR LOWER(COALESCE(product_name, '')) LIKE ?
			OR LOWER(COALESCE(product_code, '')) LIKE ? OR LOWER(COALESCE(vendor_uid, '')) LIKE ?)`)
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if f.MediaGroupID != "" {
		where = append(where, "media_group_id = ?")
		args = append(args, f.MediaGroupID)
	}
	if f.Unlinked {
		where = append(where, "(telegram_media_row_id IS NULL OR telegram_media_row_id = '')")
	}

	query := "SELECT " + mediaColumns + " FROM telegram_media"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	var recs []*models.MediaRecord
	if err := d.selectAll(ctx, &recs, query, args...); err != nil {
		return nil, dbError("list media", err)
	}
	return recs, nil
}

// UpdateMediaCaptionFields overwrites the caption and product columns of one row.
func (d *Database) UpdateMediaCaptionFields(ctx context.Context, id string, f models.CaptionFields, isOriginal bool, originalMessageID *int64) error {
	affected, err := d.exec(ctx, UpdateMediaCaptionFieldsQuery,
		f.Caption, f.ProductName, f.ProductCode, f.Quantity, f.VendorUID,
		dateOnly(f.PurchaseDate), f.Notes, f.AnalyzedContent, isOriginal,
		originalMessageID, d.now(), id,
	)
	if err != nil {
		return dbError("update media captions", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("media", id)
	}
	return nil
}

// MediaStatusUpdate mirrors a message status onto media rows sharing its correlation id.
type MediaStatusUpdate struct {
	State           models.ProcessingStatus
	ProcessingError *string
	ProcessedAt     *time.Time
}

// UpdateMediaStatusByCorrelation writes the status columns of every media row
// carrying correlationID and merges the status into each row's own payload
// meta block. The rest of the stored payload is left as is.
func (d *Database) UpdateMediaStatusByCorrelation(ctx context.Context, correlationID string, upd MediaStatusUpdate) (int64, error) {
	var recs []*models.MediaRecord
	if err := d.selectAll(ctx, &recs, SelectMediaByCorrelationQuery, correlationID); err != nil {
		return 0, dbError("select media by correlation", err)
	}

	now := d.now()
	var updated int64
	for _, rec := range recs {
		data := rec.MessageMediaData
		data.Meta.Status = upd.State
		data.Meta.Error = ""
		if upd.ProcessingError != nil {
			data.Meta.Error = *upd.ProcessingError
		}
		if upd.State == models.StatusProcessed && upd.ProcessedAt != nil {
			data.Meta.ProcessedAt = upd.ProcessedAt
		}
		data.Meta.UpdatedAt = now

		processedAt := rec.ProcessedAt
		if upd.ProcessedAt != nil {
			processedAt = upd.ProcessedAt
		}

		affected, err := d.exec(ctx, UpdateMediaStatusQuery,
			upd.State, upd.ProcessingError, processedAt, data, now, rec.ID,
		)
		if err != nil {
			return updated, dbError("update media status", err)
		}
		updated += affected
	}
	return updated, nil
}

func (d *Database) SetMediaGlideRowID(ctx context.Context, id, rowID string) error {
	if _, err := d.exec(ctx, UpdateMediaGlideRowIDQuery, rowID, d.now(), id); err != nil {
		return dbError("update glide row id", err)
	}
	return nil
}

func (d *Database) DeleteMedia(ctx context.Context, id string) error {
	affected, err := d.exec(ctx, DeleteMediaQuery, id)
	if err != nil {
		return dbError("delete media", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("media", id)
	}
	return nil
}

// dateOnly truncates to midnight UTC for DATE columns.
func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, day := t.UTC().Date()
	out := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return &out
}
