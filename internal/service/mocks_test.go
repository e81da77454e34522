package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tgmedia/internal/database"
	"tgmedia/internal/models"
	"tgmedia/internal/retry"
	"tgmedia/pkg/glide"
	"tgmedia/pkg/storage"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock Telegram client
type mockTelegram struct {
	mock.Mock
}

func (m *mockTelegram) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	args := m.Called(ctx, fileID)
	var buf []byte
	if b := args.Get(0); b != nil {
		buf = b.([]byte)
	}
	return buf, args.Error(1)
}

func (m *mockTelegram) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	args := m.Called(ctx, chatID, messageID)
	return args.Error(0)
}

func (m *mockTelegram) EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error {
	args := m.Called(ctx, chatID, messageID, caption)
	return args.Error(0)
}

// Mock uploader
type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, buf []byte, fileUniqueID string, fileType models.FileType, mimeType string) (storage.UploadResult, error) {
	args := m.Called(ctx, buf, fileUniqueID, fileType, mimeType)
	return args.Get(0).(storage.UploadResult), args.Error(1)
}

// Mock object remover
type mockObjects struct {
	mock.Mock
}

func (m *mockObjects) Remove(ctx context.Context, storagePath string) error {
	return m.Called(ctx, storagePath).Error(0)
}

// Mock Glide API
type mockGlide struct {
	mock.Mock
}

func (m *mockGlide) QueryTable(ctx context.Context, appID, token, tableID string) ([]glide.Row, error) {
	args := m.Called(ctx, appID, token, tableID)
	var rows []glide.Row
	if r := args.Get(0); r != nil {
		rows = r.([]glide.Row)
	}
	return rows, args.Error(1)
}

func (m *mockGlide) MutateTables(ctx context.Context, appID, token string, mutations []glide.Mutation) ([]glide.MutationResult, error) {
	args := m.Called(ctx, appID, token, mutations)
	var results []glide.MutationResult
	if r := args.Get(0); r != nil {
		results = r.([]glide.MutationResult)
	}
	return results, args.Error(1)
}

const testEncryptionSecret = "test-encryption-secret-0123456789"

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.Open(context.Background(), models.DatabaseConfig{
		Driver:        "sqlite3",
		Path:          filepath.Join(t.TempDir(), "service.db"),
		AutoMigrate:   true,
		EncryptTokens: true,
		EncryptionKey: testEncryptionSecret,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

// sleepRecorder captures retry delays without waiting.
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func noSleepBackoff() *retry.Backoff {
	return retry.NewBackoff(retry.DefaultBackoffConfig(), retry.WithSleep(func(context.Context, time.Duration) error { return nil }))
}

func strPtr(s string) *string { return &s }

func photoPayload(msgID int64, fileUniqueID, caption, groupID string) models.MessageMediaData {
	return models.MessageMediaData{
		Message: models.MessageInfo{
			MessageID:    msgID,
			ChatID:       -1001234567890,
			ChatType:     "channel",
			MediaGroupID: groupID,
			Caption:      caption,
			Date:         time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		},
		Media: &models.MediaFile{
			FileID:       "file-" + fileUniqueID,
			FileUniqueID: fileUniqueID,
			FileType:     models.FileTypePhoto,
			MimeType:     "image/jpeg",
		},
	}
}

func uploadResult(fileUniqueID string) storage.UploadResult {
	return storage.UploadResult{
		PublicURL:   "https://cdn.example/storage/v1/object/public/telegram-media/" + fileUniqueID + ".jpg",
		StoragePath: fileUniqueID + ".jpg",
	}
}
