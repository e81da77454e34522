package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "tgmedia/internal/errors"
	"tgmedia/internal/models"

	"github.com/google/uuid"
)

// UpsertMessage stores a message keyed by (chat_id, telegram_message_id).
// A redelivered or edited update refreshes the content columns and keeps the
// original id and correlation id. created reports whether a new row was inserted.
func (d *Database) UpsertMessage(ctx context.Context, msg *models.Message) (stored *models.Message, created bool, err error) {
	now := d.now()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = models.StatusPending
	}

	affected, err := d.exec(ctx, InsertMessageQuery,
		msg.ID, msg.TelegramMessageID, msg.ChatID, msg.ChatType, msg.ChatTitle, msg.MediaGroupID,
		msg.Caption, msg.MessageDate.UTC(), msg.Status, msg.ProcessingError, msg.RetryCount, msg.CorrelationID,
		msg.MessageURL, msg.ProcessedAt, msg.MessageMediaData, now, now,
	)
	if err != nil {
		return nil, false, dbError("insert message", err)
	}

	if affected == 0 {
		if _, err := d.exec(ctx, UpdateMessageContentQuery,
			msg.Caption, msg.MediaGroupID, msg.MessageURL, msg.MessageMediaData, now,
			msg.ChatID, msg.TelegramMessageID,
		); err != nil {
			return nil, false, dbError("update message", err)
		}
	}

	stored, err = d.GetMessageByTelegramID(ctx, msg.ChatID, msg.TelegramMessageID)
	if err != nil {
		return nil, false, err
	}
	return stored, affected == 1, nil
}

func (d *Database) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := d.get(ctx, &msg, SelectMessageByIDQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("message", id)
		}
		return nil, dbError("select message", err)
	}
	return &msg, nil
}

func (d *Database) GetMessageByTelegramID(ctx context.Context, chatID, messageID int64) (*models.Message, error) {
	var msg models.Message
	if err := d.get(ctx, &msg, SelectMessageByTelegramIDQuery, chatID, messageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("message", fmt.Sprintf("%d/%d", chatID, messageID))
		}
		return nil, dbError("select message", err)
	}
	return &msg, nil
}

// MessageStatusUpdate carries the flat status columns plus the merged payload.
type MessageStatusUpdate struct {
	Status          models.ProcessingStatus
	ProcessingError *string
	ProcessedAt     *time.Time
	Data            models.MessageMediaData
	IncrementRetry  bool
}

func (d *Database) UpdateMessageStatus(ctx context.Context, id string, upd MessageStatusUpdate) error {
	inc := 0
	if upd.IncrementRetry {
		inc = 1
	}
	affected, err := d.exec(ctx, UpdateMessageStatusQuery,
		upd.Status, upd.ProcessingError, upd.ProcessedAt, upd.Data, inc, d.now(), id,
	)
	if err != nil {
		return dbError("update message status", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("message", id)
	}
	return nil
}

// UpdateMessageCaptionByGroup mirrors a synced caption onto every message of a media group.
func (d *Database) UpdateMessageCaptionByGroup(ctx context.Context, mediaGroupID string, caption *string) (int64, error) {
	affected, err := d.exec(ctx, UpdateMessageCaptionByGroupQuery, caption, d.now(), mediaGroupID)
	if err != nil {
		return 0, dbError("update group captions", err)
	}
	return affected, nil
}
