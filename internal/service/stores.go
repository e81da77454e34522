package service

import (
	"context"
	"time"

	"tgmedia/internal/database"
	"tgmedia/internal/models"
	"tgmedia/pkg/storage"
)

// MessageStore defines the messages table operations used by the pipeline
type MessageStore interface {
	UpsertMessage(ctx context.Context, msg *models.Message) (*models.Message, bool, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetMessageByTelegramID(ctx context.Context, chatID, messageID int64) (*models.Message, error)
	UpdateMessageStatus(ctx context.Context, id string, upd database.MessageStatusUpdate) error
	UpdateMessageCaptionByGroup(ctx context.Context, mediaGroupID string, caption *string) (int64, error)
}

// MediaStore defines the telegram_media operations used by the pipeline
type MediaStore interface {
	InsertMedia(ctx context.Context, r *models.MediaRecord) (bool, error)
	GetMedia(ctx context.Context, id string) (*models.MediaRecord, error)
	FindMediaByFileUniqueID(ctx context.Context, fileUniqueID string) (*models.MediaRecord, error)
	ListMediaByGroup(ctx context.Context, mediaGroupID string) ([]*models.MediaRecord, error)
	ListMediaByMessage(ctx context.Context, chatID, messageID int64) ([]*models.MediaRecord, error)
	ListMediaGroupIDs(ctx context.Context) ([]string, error)
	ListMedia(ctx context.Context, f database.MediaFilter) ([]*models.MediaRecord, error)
	UpdateMediaCaptionFields(ctx context.Context, id string, f models.CaptionFields, isOriginal bool, originalMessageID *int64) error
	UpdateMediaStatusByCorrelation(ctx context.Context, correlationID string, upd database.MediaStatusUpdate) (int64, error)
	SetMediaGlideRowID(ctx context.Context, id, rowID string) error
	DeleteMedia(ctx context.Context, id string) error
}

// QueueStore defines the unified_processing_queue operations
type QueueStore interface {
	InsertQueueItem(ctx context.Context, item *models.QueueItem) error
	ListProcessableQueueItems(ctx context.Context, maxRetries, limit int) ([]*models.QueueItem, error)
	ClaimQueueItem(ctx context.Context, id string, from models.QueueStatus) (bool, error)
	CompleteQueueItem(ctx context.Context, id string, note *string) error
	FailQueueItem(ctx context.Context, id, message string) error
	ResetStaleQueueClaims(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeCompletedQueueItems(ctx context.Context, cutoff time.Time) (int64, error)
	CountQueueItems(ctx context.Context) (map[models.QueueStatus]int, error)
}

// GlideConfigStore loads Glide targets
type GlideConfigStore interface {
	GetGlideConfig(ctx context.Context, id string) (*models.GlideConfig, error)
}

// MediaUploader stores downloaded bytes and returns their public location
type MediaUploader interface {
	Upload(ctx context.Context, buf []byte, fileUniqueID string, fileType models.FileType, mimeType string) (storage.UploadResult, error)
}

var (
	_ MessageStore     = (*database.Database)(nil)
	_ MediaStore       = (*database.Database)(nil)
	_ QueueStore       = (*database.Database)(nil)
	_ GlideConfigStore = (*database.Database)(nil)
	_ MediaUploader    = (*storage.Uploader)(nil)
)
