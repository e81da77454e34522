package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "tgmedia/internal/errors"
	"tgmedia/internal/models"

	"github.com/google/uuid"
)

// InsertQueueItem adds a row to unified_processing_queue. The raw driver
// error is kept in the chain so callers can recognise unique violations.
func (d *Database) InsertQueueItem(ctx context.Context, item *models.QueueItem) error {
	now := d.now()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.QueuePending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	_, err := d.exec(ctx, InsertQueueItemQuery,
		item.ID, item.QueueType, item.MessageID, item.ChatID, item.CorrelationID, item.MessageMediaData,
		item.Status, item.Priority, item.RetryCount, item.ErrorMessage, item.ProcessedAt, item.CreatedAt.UTC(), item.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return apperrors.NewConflictError("queue item", item.CorrelationID, err)
		}
		return dbError("insert queue item", err)
	}
	return nil
}

func (d *Database) GetQueueItem(ctx context.Context, id string) (*models.QueueItem, error) {
	var item models.QueueItem
	if err := d.get(ctx, &item, SelectQueueItemByIDQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("queue item", id)
		}
		return nil, dbError("select queue item", err)
	}
	return &item, nil
}

// ListProcessableQueueItems selects pending rows and errored rows that still
// have retries left, highest priority first, oldest first within a priority.
func (d *Database) ListProcessableQueueItems(ctx context.Context, maxRetries, limit int) ([]*models.QueueItem, error) {
	var items []*models.QueueItem
	err := d.selectAll(ctx, &items, SelectProcessableQueueItemsQuery,
		models.QueuePending, models.QueueError, maxRetries, limit,
	)
	if err != nil {
		return nil, dbError("select queue items", err)
	}
	return items, nil
}

// ClaimQueueItem moves a row from `from` to processing. It returns true only
// when this call performed the transition.
func (d *Database) ClaimQueueItem(ctx context.Context, id string, from models.QueueStatus) (bool, error) {
	affected, err := d.exec(ctx, ClaimQueueItemQuery, models.QueueProcessing, d.now(), id, from)
	if err != nil {
		return false, dbError("claim queue item", err)
	}
	return affected == 1, nil
}

// CompleteQueueItem marks a row completed. note is stored in error_message
// for skipped items so operators can see why nothing was processed.
func (d *Database) CompleteQueueItem(ctx context.Context, id string, note *string) error {
	now := d.now()
	if _, err := d.exec(ctx, CompleteQueueItemQuery, models.QueueCompleted, note, now, now, id); err != nil {
		return dbError("complete queue item", err)
	}
	return nil
}

func (d *Database) FailQueueItem(ctx context.Context, id, message string) error {
	if _, err := d.exec(ctx, FailQueueItemQuery, models.QueueError, message, d.now(), id); err != nil {
		return dbError("fail queue item", err)
	}
	return nil
}

// ResetStaleQueueClaims returns rows stuck in processing since before cutoff to pending.
func (d *Database) ResetStaleQueueClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	affected, err := d.exec(ctx, ResetStaleQueueClaimsQuery,
		models.QueuePending, d.now(), models.QueueProcessing, cutoff.UTC(),
	)
	if err != nil {
		return 0, dbError("reset stale claims", err)
	}
	return affected, nil
}

func (d *Database) PurgeCompletedQueueItems(ctx context.Context, cutoff time.Time) (int64, error) {
	affected, err := d.exec(ctx, PurgeCompletedQueueItemsQuery, models.QueueCompleted, cutoff.UTC())
	if err != nil {
		return 0, dbError("purge queue", err)
	}
	return affected, nil
}

// CountQueueItems returns row counts keyed by status.
func (d *Database) CountQueueItems(ctx context.Context) (map[models.QueueStatus]int, error) {
	var rows []struct {
		Status models.QueueStatus `db:"status"`
		Count  int                `db:"count"`
	}
	if err := d.selectAll(ctx, &rows, CountQueueItemsByStatusQuery); err != nil {
		return nil, dbError("count queue items", err)
	}
	counts := make(map[models.QueueStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
