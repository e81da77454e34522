package service

import (
	"context"
	"fmt"

	"tgmedia/internal/errors"
	"tgmedia/internal/models"

	"github.com/sirupsen/logrus"
)

// GroupSync propagates the caption of one album member to the whole album
type GroupSync struct {
	media    MediaStore
	messages MessageStore
	logger   *logrus.Logger
}

func NewGroupSync(media MediaStore, messages MessageStore, logger *logrus.Logger) *GroupSync {
	return &GroupSync{media: media, messages: messages, logger: logger}
}

// SyncMediaGroupCaptions picks the newest member carrying caption or product
// data and overwrites every member with its field set. It returns the source
// member, or nil when no member has anything to propagate.
func (g *GroupSync) SyncMediaGroupCaptions(ctx context.Context, mediaGroupID string) (*models.MediaRecord, error) {
	if mediaGroupID == "" {
		return nil, errors.NewValidationError("media_group_id", "", "is required")
	}

	members, err := g.media.ListMediaByGroup(ctx, mediaGroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load media group: %w", err)
	}

	var source *models.MediaRecord
	for _, m := range members {
		if m.HasCaptionInfo() {
			source = m
			break
		}
	}
	if source == nil {
		g.logger.WithFields(logrus.Fields{
			LogFieldMediaGroupID: mediaGroupID,
			LogFieldCount:        len(members),
		}).Debug("Skipping group sync: no member has caption data")
		return nil, nil
	}

	return source, g.propagate(ctx, mediaGroupID, source, members)
}

// PropagateFrom overwrites every member of source's album with source's
// fields, whichever member is newest.
func (g *GroupSync) PropagateFrom(ctx context.Context, source *models.MediaRecord) error {
	if source == nil || source.MediaGroupID == nil || *source.MediaGroupID == "" {
		return errors.NewValidationError("media_group_id", "", "is required")
	}
	mediaGroupID := *source.MediaGroupID

	members, err := g.media.ListMediaByGroup(ctx, mediaGroupID)
	if err != nil {
		return fmt.Errorf("failed to load media group: %w", err)
	}
	return g.propagate(ctx, mediaGroupID, source, members)
}

func (g *GroupSync) propagate(ctx context.Context, mediaGroupID string, source *models.MediaRecord, members []*models.MediaRecord) error {
	fields := source.CaptionFields()
	originalMessageID := source.TelegramMessageID
	var failures []error
	for _, m := range members {
		if err := g.media.UpdateMediaCaptionFields(ctx, m.ID, fields, m.ID == source.ID, &originalMessageID); err != nil {
			failures = append(failures, err)
			g.logger.WithError(err).WithFields(logrus.Fields{
				LogFieldMediaGroupID: mediaGroupID,
				LogFieldMediaID:      m.ID,
			}).Error("Failed to sync group member caption")
		}
	}

	if _, err := g.messages.UpdateMessageCaptionByGroup(ctx, mediaGroupID, source.Caption); err != nil {
		failures = append(failures, err)
		g.logger.WithError(err).WithField(LogFieldMediaGroupID, mediaGroupID).Warn("Failed to mirror group caption onto messages")
	}

	if len(failures) > 0 {
		return errors.NewPartialFailureError("media group sync", failures[0]).
			WithContext(LogFieldMediaGroupID, mediaGroupID).
			WithContext("failed_updates", len(failures))
	}

	g.logger.WithFields(logrus.Fields{
		LogFieldMediaGroupID: mediaGroupID,
		LogFieldMediaID:      source.ID,
		LogFieldCount:        len(members),
	}).Info("Media group sync completed")
	return nil
}
