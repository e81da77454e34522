package service

import (
	"context"
	"time"

	"tgmedia/internal/database"
	"tgmedia/internal/errors"
	"tgmedia/internal/models"
	"tgmedia/internal/validation"

	"github.com/sirupsen/logrus"
)

// StatusUpdater writes a message status into the flat columns and the
// payload meta block, then mirrors the status onto the media rows of the
// same correlation id. The two writes are independent.
type StatusUpdater struct {
	messages MessageStore
	media    MediaStore
	logger   *logrus.Logger
	now      func() time.Time
}

func NewStatusUpdater(messages MessageStore, media MediaStore, logger *logrus.Logger) *StatusUpdater {
	return &StatusUpdater{messages: messages, media: media, logger: logger, now: time.Now}
}

func (u *StatusUpdater) UpdateStatus(ctx context.Context, messageID string, status models.ProcessingStatus, errMsg *string) error {
	if err := validation.ValidateStatus(string(status)); err != nil {
		return err
	}

	msg, err := u.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	now := u.now().UTC()
	data := msg.MessageMediaData
	data.Meta.Status = status
	data.Meta.Error = ""
	if errMsg != nil {
		data.Meta.Error = *errMsg
	}
	data.Meta.UpdatedAt = now

	processedAt := msg.ProcessedAt
	if status == models.StatusProcessed {
		processedAt = &now
		data.Meta.ProcessedAt = &now
	}

	if err := u.messages.UpdateMessageStatus(ctx, msg.ID, database.MessageStatusUpdate{
		Status:          status,
		ProcessingError: errMsg,
		ProcessedAt:     processedAt,
		Data:            data,
		IncrementRetry:  status == models.StatusError,
	}); err != nil {
		return err
	}

	if msg.CorrelationID == "" {
		return nil
	}

	n, err := u.media.UpdateMediaStatusByCorrelation(ctx, msg.CorrelationID, database.MediaStatusUpdate{
		State:           status,
		ProcessingError: errMsg,
		ProcessedAt:     processedAt,
	})
	if err != nil {
		u.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldMessageID:     msg.ID,
			LogFieldCorrelationID: msg.CorrelationID,
			LogFieldStatus:        status,
		}).Warn("Message status written but media status update failed")
		return errors.NewPartialFailureError("status update", err).
			WithContext(LogFieldMessageID, msg.ID).
			WithContext(LogFieldCorrelationID, msg.CorrelationID)
	}

	u.logger.WithFields(logrus.Fields{
		LogFieldMessageID: msg.ID,
		LogFieldStatus:    status,
		LogFieldCount:     n,
	}).Debug("Status updated")
	return nil
}
