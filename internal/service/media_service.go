package service

import (
	"context"
	"fmt"

	"tgmedia/internal/database"
	"tgmedia/internal/models"
	"tgmedia/internal/validation"
	"tgmedia/pkg/glide"
	"tgmedia/pkg/telegram"

	"github.com/sirupsen/logrus"
)

// MediaFilter narrows ListMedia
type MediaFilter = database.MediaFilter

type DeleteOptions struct {
	DeleteFromTelegram bool
	DeleteFromGlide    bool
	DeleteFromStorage  bool
}

// ObjectRemover deletes stored media objects
type ObjectRemover interface {
	Remove(ctx context.Context, storagePath string) error
}

// DeleteResult reports the local delete. Warning carries the first external
// failure; local state is removed regardless.
type DeleteResult struct {
	Deleted bool   `json:"deleted"`
	Warning string `json:"warning,omitempty"`
}

type UpdateCaptionOptions struct {
	UpdateTelegram bool
}

type UpdateCaptionResult struct {
	Media   *models.MediaRecord `json:"media"`
	Warning string              `json:"warning,omitempty"`
}

// MediaService backs the dashboard operations on stored media
type MediaService struct {
	media         MediaStore
	configs       GlideConfigStore
	telegram      telegram.Client
	glide         glide.API
	objects       ObjectRemover
	groups        *GroupSync
	analyzer      *CaptionAnalyzer
	glideConfigID string
	logger        *logrus.Logger
}

func NewMediaService(media MediaStore, configs GlideConfigStore, tg telegram.Client, glideAPI glide.API, objects ObjectRemover,
	groups *GroupSync, analyzer *CaptionAnalyzer, glideConfigID string, logger *logrus.Logger) *MediaService {
	if analyzer == nil {
		analyzer = NewCaptionAnalyzer()
	}
	return &MediaService{
		media:         media,
		configs:       configs,
		telegram:      tg,
		glide:         glideAPI,
		objects:       objects,
		groups:        groups,
		analyzer:      analyzer,
		glideConfigID: glideConfigID,
		logger:        logger,
	}
}

func (s *MediaService) GetMedia(ctx context.Context, id string) (*models.MediaRecord, error) {
	if err := validation.ValidateID("id", id); err != nil {
		return nil, err
	}
	return s.media.GetMedia(ctx, id)
}

func (s *MediaService) ListMedia(ctx context.Context, f MediaFilter) ([]*models.MediaRecord, error) {
	if err := validation.ValidatePagination(f.Limit, f.Offset); err != nil {
		return nil, err
	}
	if f.Limit == 0 {
		f.Limit = validation.MaxListLimit
	}
	return s.media.ListMedia(ctx, f)
}

// DeleteMedia runs the requested external deletes, then always removes the local row.
func (s *MediaService) DeleteMedia(ctx context.Context, id string, opts DeleteOptions) (DeleteResult, error) {
	rec, err := s.GetMedia(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}

	log := LogWithContext(ctx, s.logger).WithField(LogFieldMediaID, id)
	var warning string
	warn := func(msg string, err error) {
		log.WithError(err).Warn(msg)
		if warning == "" {
			warning = fmt.Sprintf("%s: %v", msg, err)
		}
	}

	if opts.DeleteFromTelegram {
		if s.telegram == nil {
			warn("Telegram delete skipped", fmt.Errorf("telegram client not configured"))
		} else if err := s.telegram.DeleteMessage(ctx, rec.ChatID, int(rec.TelegramMessageID)); err != nil {
			warn("Telegram delete failed", err)
		}
	}

	if opts.DeleteFromGlide && rec.TelegramMediaRowID != nil && *rec.TelegramMediaRowID != "" {
		if err := s.deleteGlideRow(ctx, *rec.TelegramMediaRowID); err != nil {
			warn("Glide delete failed", err)
		}
	}

	if opts.DeleteFromStorage {
		if s.objects == nil {
			warn("Storage delete skipped", fmt.Errorf("object storage not configured"))
		} else if err := s.objects.Remove(ctx, rec.StoragePath); err != nil {
			warn("Storage delete failed", err)
		}
	}

	if err := s.media.DeleteMedia(ctx, id); err != nil {
		return DeleteResult{Warning: warning}, err
	}

	log.WithFields(logrus.Fields{
		"telegram": opts.DeleteFromTelegram,
		"glide":    opts.DeleteFromGlide,
		"storage":  opts.DeleteFromStorage,
	}).Info("Media deleted")
	return DeleteResult{Deleted: true, Warning: warning}, nil
}

func (s *MediaService) deleteGlideRow(ctx context.Context, rowID string) error {
	if s.glide == nil || s.configs == nil || s.glideConfigID == "" {
		return fmt.Errorf("glide target not configured")
	}
	cfg, err := s.configs.GetGlideConfig(ctx, s.glideConfigID)
	if err != nil {
		return err
	}
	_, err = s.glide.MutateTables(ctx, cfg.AppID, cfg.APIToken, []glide.Mutation{glide.DeleteRow(cfg.TableID, rowID)})
	return err
}

// UpdateCaption replaces the caption of one media row, re-analyses it and
// resyncs its album. A failed Telegram edit only produces a warning.
func (s *MediaService) UpdateCaption(ctx context.Context, id, caption string, opts UpdateCaptionOptions) (UpdateCaptionResult, error) {
	if err := validation.ValidateCaption(caption); err != nil {
		return UpdateCaptionResult{}, err
	}
	rec, err := s.GetMedia(ctx, id)
	if err != nil {
		return UpdateCaptionResult{}, err
	}

	rec.Caption = optionalString(caption)
	rec.ApplyAnalysis(s.analyzer.Analyze(caption))
	originalID := rec.TelegramMessageID
	if err := s.media.UpdateMediaCaptionFields(ctx, rec.ID, rec.CaptionFields(), caption != "", &originalID); err != nil {
		return UpdateCaptionResult{}, err
	}

	log := LogWithContext(ctx, s.logger).WithField(LogFieldMediaID, id)
	var result UpdateCaptionResult
	if opts.UpdateTelegram {
		if s.telegram == nil {
			result.Warning = "telegram client not configured"
		} else if err := s.telegram.EditCaption(ctx, rec.ChatID, int(rec.TelegramMessageID), caption); err != nil {
			log.WithError(err).Warn("Telegram caption edit failed")
			result.Warning = fmt.Sprintf("telegram caption edit failed: %v", err)
		}
	}

	if rec.MediaGroupID != nil && *rec.MediaGroupID != "" && s.groups != nil {
		if err := s.groups.PropagateFrom(ctx, rec); err != nil {
			log.WithError(err).Warn("Group caption sync failed after caption update")
			if result.Warning == "" {
				result.Warning = fmt.Sprintf("group sync failed: %v", err)
			}
		}
	}

	result.Media, err = s.media.GetMedia(ctx, id)
	if err != nil {
		return result, err
	}
	log.WithField(LogFieldCaption, SanitizeCaption(ctx, caption)).Info("Caption updated")
	return result, nil
}
