package service

import (
	"context"
	"time"

	"tgmedia/internal/errors"
	"tgmedia/internal/metrics"
	"tgmedia/internal/models"
	"tgmedia/internal/retry"
	"tgmedia/internal/tracing"
	"tgmedia/internal/validation"
	"tgmedia/pkg/storage"
	"tgmedia/pkg/telegram"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// MediaProcessor turns a validated payload into a stored object and a telegram_media row
type MediaProcessor struct {
	media    MediaStore
	telegram telegram.Client
	uploader MediaUploader
	analyzer *CaptionAnalyzer
	backoff  *retry.Backoff
	metrics  *metrics.Metrics
	logger   *logrus.Logger
}

func NewMediaProcessor(media MediaStore, tg telegram.Client, uploader MediaUploader, analyzer *CaptionAnalyzer,
	backoff *retry.Backoff, m *metrics.Metrics, logger *logrus.Logger) *MediaProcessor {
	if analyzer == nil {
		analyzer = NewCaptionAnalyzer()
	}
	if backoff == nil {
		backoff = retry.NewBackoff(retry.DefaultBackoffConfig())
	}
	return &MediaProcessor{
		media:    media,
		telegram: tg,
		uploader: uploader,
		analyzer: analyzer,
		backoff:  backoff,
		metrics:  m,
		logger:   logger,
	}
}

// ProcessMediaItem downloads, stores and records one attachment. A payload
// whose file_unique_id is already stored short-circuits to the existing row.
func (p *MediaProcessor) ProcessMediaItem(ctx context.Context, payload *models.MessageMediaData) models.ProcessResult {
	if err := validation.ValidateMediaPayload(payload); err != nil {
		return models.ProcessResult{Error: err}
	}
	media := payload.Media

	ctx, span := tracing.StartSpan(ctx, "media.process",
		attribute.String(LogFieldFileUniqueID, media.FileUniqueID),
		attribute.String(LogFieldFileType, string(media.FileType)),
	)
	start := time.Now()
	var spanErr error
	defer func() {
		p.metrics.ObserveStage("media.process", time.Since(start))
		tracing.EndSpan(span, spanErr)
	}()

	log := LogWithContext(ctx, p.logger).WithFields(logrus.Fields{
		LogFieldFileUniqueID:  media.FileUniqueID,
		LogFieldCorrelationID: payload.Meta.CorrelationID,
	})

	existing, err := p.media.FindMediaByFileUniqueID(ctx, media.FileUniqueID)
	if err != nil {
		spanErr = err
		return models.ProcessResult{Error: err}
	}
	if existing != nil {
		log.WithField(LogFieldMediaID, existing.ID).Debug("Skipping download: media already stored")
		p.metrics.RecordUpload(metrics.ResultDuplicate)
		return models.ProcessResult{Success: true, MediaID: existing.ID, Duplicate: true}
	}

	buf, err := retry.Do(ctx, p.retrier("telegram.download"), func() ([]byte, error) {
		return p.telegram.DownloadFile(ctx, media.FileID)
	})
	if err != nil {
		spanErr = err
		p.metrics.RecordUpload(metrics.ResultError)
		return models.ProcessResult{Error: err}
	}
	log.WithField(LogFieldSize, len(buf)).Debug("Downloaded media")

	upload, err := p.upload(ctx, buf, media)
	if err != nil {
		spanErr = err
		p.metrics.RecordUpload(metrics.ResultError)
		return models.ProcessResult{Error: err}
	}
	if upload.Reused {
		p.metrics.RecordUpload(metrics.ResultReused)
	} else {
		p.metrics.RecordUpload(metrics.ResultSuccess)
	}

	rec := p.buildRecord(payload, upload.PublicURL, upload.StoragePath)
	inserted, err := p.media.InsertMedia(ctx, rec)
	if err != nil {
		spanErr = err
		return models.ProcessResult{Error: err}
	}
	if !inserted {
		// Another writer stored the same file first
		winner, err := p.media.FindMediaByFileUniqueID(ctx, media.FileUniqueID)
		if err != nil {
			spanErr = err
			return models.ProcessResult{Error: err}
		}
		if winner == nil {
			spanErr = errors.New(errors.ErrCodeConflict, "media row vanished after conflicting insert")
			return models.ProcessResult{Error: spanErr}
		}
		return models.ProcessResult{Success: true, MediaID: winner.ID, Duplicate: true}
	}

	log.WithFields(logrus.Fields{
		LogFieldMediaID:     rec.ID,
		LogFieldStoragePath: rec.StoragePath,
	}).Info("Media processing completed")
	return models.ProcessResult{Success: true, MediaID: rec.ID}
}

func (p *MediaProcessor) upload(ctx context.Context, buf []byte, media *models.MediaFile) (res storage.UploadResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "storage.upload", attribute.Int(LogFieldSize, len(buf)))
	start := time.Now()
	defer func() {
		p.metrics.ObserveStage("storage.upload", time.Since(start))
		tracing.EndSpan(span, err)
	}()

	return retry.Do(ctx, p.retrier("storage.upload"), func() (storage.UploadResult, error) {
		return p.uploader.Upload(ctx, buf, media.FileUniqueID, media.FileType, media.MimeType)
	})
}

func (p *MediaProcessor) retrier(operation string) *retry.Backoff {
	return p.backoff.With(
		retry.WithLogger(p.logger, operation),
		retry.WithObserver(p.metrics.RetryObserver(operation)),
	)
}

func (p *MediaProcessor) buildRecord(payload *models.MessageMediaData, publicURL, storagePath string) *models.MediaRecord {
	now := time.Now().UTC()
	media := payload.Media
	msg := payload.Message

	analysis := p.analyzer.Analyze(msg.Caption)
	payload.Analysis = analysis
	payload.Meta.Status = models.StatusProcessed
	payload.Meta.ProcessedAt = &now
	payload.Meta.UpdatedAt = now

	rec := &models.MediaRecord{
		FileUniqueID:      media.FileUniqueID,
		FileID:            media.FileID,
		FileType:          media.FileType,
		MimeType:          media.MimeType,
		FileSize:          media.FileSize,
		PublicURL:         publicURL,
		StoragePath:       storagePath,
		TelegramMessageID: msg.MessageID,
		ChatID:            msg.ChatID,
		MediaGroupID:      optionalString(msg.MediaGroupID),
		Caption:           optionalString(msg.Caption),
		CorrelationID:     payload.Meta.CorrelationID,
		MessageURL:        optionalString(msg.MessageURL),
		ProcessingState:   models.StatusProcessed,
		ProcessedAt:       &now,
	}
	if msg.Caption != "" {
		rec.IsOriginalCaption = true
		original := msg.MessageID
		rec.OriginalMessageID = &original
		payload.Meta.IsOriginalCaption = true
		payload.Meta.OriginalMessageID = &original
	}
	rec.ApplyAnalysis(analysis)
	rec.MessageMediaData = *payload
	return rec
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
