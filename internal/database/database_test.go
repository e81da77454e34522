package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	apperrors "tgmedia/internal/errors"
	"tgmedia/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(context.Background(), models.DatabaseConfig{
		Driver:        "sqlite3",
		Path:          filepath.Join(t.TempDir(), "test.db"),
		AutoMigrate:   true,
		EncryptTokens: true,
		EncryptionKey: testSecret,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func newTestMessage(chatID, msgID int64) *models.Message {
	return &models.Message{
		TelegramMessageID: msgID,
		ChatID:            chatID,
		ChatType:          "channel",
		ChatTitle:         "Inventory",
		Caption:           strPtr("Blue Widget #ABC101524"),
		MessageDate:       time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		MessageMediaData: models.MessageMediaData{
			Message: models.MessageInfo{MessageID: msgID, ChatID: chatID},
			Media:   &models.MediaFile{FileID: "f", FileUniqueID: "u", FileType: models.FileTypePhoto},
		},
	}
}

func newTestMedia(fileUniqueID string, groupID *string, createdAt time.Time) *models.MediaRecord {
	return &models.MediaRecord{
		FileUniqueID:      fileUniqueID,
		FileID:            "file-" + fileUniqueID,
		FileType:          models.FileTypePhoto,
		MimeType:          "image/jpeg",
		PublicURL:         "https://cdn.example/" + fileUniqueID + ".jpg",
		StoragePath:       fileUniqueID + ".jpg",
		TelegramMessageID: 10,
		ChatID:            -1001,
		MediaGroupID:      groupID,
		CorrelationID:     "corr-" + fileUniqueID,
		CreatedAt:         createdAt,
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), models.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)

	_, err = Open(context.Background(), models.DatabaseConfig{Driver: "postgres"})
	assert.Error(t, err)

	_, err = Open(context.Background(), models.DatabaseConfig{Driver: "sqlite3", Path: "../../etc/x.db"})
	assert.Error(t, err)
}

func TestUpsertMessage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, created, err := db.UpsertMessage(ctx, newTestMessage(-1001, 42))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.StatusPending, first.Status)
	assert.NotEmpty(t, first.CorrelationID)
	assert.Equal(t, int64(42), first.MessageMediaData.Message.MessageID)

	edited := newTestMessage(-1001, 42)
	edited.Caption = strPtr("Red Widget")
	second, created, err := db.UpsertMessage(ctx, edited)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CorrelationID, second.CorrelationID)
	assert.Equal(t, "Red Widget", *second.Caption)
}

func TestUpdateMessageStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	msg, _, err := db.UpsertMessage(ctx, newTestMessage(-1001, 1))
	require.NoError(t, err)

	now := time.Now().UTC()
	data := msg.MessageMediaData
	data.Meta.Status = models.StatusProcessed
	require.NoError(t, db.UpdateMessageStatus(ctx, msg.ID, MessageStatusUpdate{
		Status:         models.StatusProcessed,
		ProcessedAt:    &now,
		Data:           data,
		IncrementRetry: true,
	}))

	got, err := db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.ProcessedAt)
	assert.Equal(t, models.StatusProcessed, got.MessageMediaData.Meta.Status)

	err = db.UpdateMessageStatus(ctx, "missing", MessageStatusUpdate{Status: models.StatusError})
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestInsertMedia_DeduplicatesOnFileUniqueID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := newTestMedia("AQADx1", nil, time.Time{})
	qty := 3
	purchase := time.Date(2024, 10, 15, 13, 30, 0, 0, time.UTC)
	rec.Quantity = &qty
	rec.PurchaseDate = &purchase
	rec.AnalyzedContent = &models.Analysis{ProductName: "Widget", Method: "rules"}

	inserted, err := db.InsertMedia(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := newTestMedia("AQADx1", nil, time.Time{})
	inserted, err = db.InsertMedia(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := db.FindMediaByFileUniqueID(ctx, "AQADx1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rec.ID, found.ID)
	assert.Equal(t, 3, *found.Quantity)
	require.NotNil(t, found.PurchaseDate)
	assert.Equal(t, "2024-10-15", found.PurchaseDate.Format("2006-01-02"))
	require.NotNil(t, found.AnalyzedContent)
	assert.Equal(t, "Widget", found.AnalyzedContent.ProductName)

	missing, err := db.FindMediaByFileUniqueID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListMediaByGroup_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	group := strPtr("album-1")
	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		_, err := db.InsertMedia(ctx, newTestMedia(id, group, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	_, err := db.InsertMedia(ctx, newTestMedia("other", strPtr("album-2"), base))
	require.NoError(t, err)

	recs, err := db.ListMediaByGroup(ctx, "album-1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "new", recs[0].FileUniqueID)
	assert.Equal(t, "old", recs[2].FileUniqueID)

	ids, err := db.ListMediaGroupIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"album-1", "album-2"}, ids)
}

func TestUpdateMediaCaptionFieldsAndDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := newTestMedia("cap1", nil, time.Time{})
	_, err := db.InsertMedia(ctx, rec)
	require.NoError(t, err)

	orig := int64(77)
	require.NoError(t, db.UpdateMediaCaptionFields(ctx, rec.ID, models.CaptionFields{
		Caption:     strPtr("Lamp"),
		ProductName: strPtr("Lamp"),
	}, false, &orig))

	got, err := db.GetMedia(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lamp", *got.Caption)
	assert.False(t, got.IsOriginalCaption)
	assert.Equal(t, int64(77), *got.OriginalMessageID)
	assert.Nil(t, got.ProductCode)

	require.NoError(t, db.SetMediaGlideRowID(ctx, rec.ID, "row-9"))
	got, err = db.GetMedia(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "row-9", *got.TelegramMediaRowID)

	require.NoError(t, db.DeleteMedia(ctx, rec.ID))
	_, err = db.GetMedia(ctx, rec.ID)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(db.DeleteMedia(ctx, rec.ID)))
}

func TestListMedia_Filters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := newTestMedia("a", nil, time.Time{})
	a.Caption = strPtr("Vintage Lamp")
	b := newTestMedia("b", strPtr("g"), time.Time{})
	b.ProductCode = strPtr("XYZ1")
	for _, r := range []*models.MediaRecord{a, b} {
		_, err := db.InsertMedia(ctx, r)
		require.NoError(t, err)
	}
	require.NoError(t, db.SetMediaGlideRowID(ctx, b.ID, "row-1"))

	recs, err := db.ListMedia(ctx, MediaFilter{Search: "lamp"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].FileUniqueID)

	recs, err = db.ListMedia(ctx, MediaFilter{Search: "xyz"})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	recs, err = db.ListMedia(ctx, MediaFilter{Unlinked: true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].FileUniqueID)

	recs, err = db.ListMedia(ctx, MediaFilter{MediaGroupID: "g", Limit: 10})
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestUpdateMediaStatusByCorrelation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := newTestMedia("s1", nil, time.Time{})
	rec.MessageMediaData = models.MessageMediaData{
		Analysis: &models.Analysis{ProductName: "Lamp", ProductCode: "ABC101524"},
		Meta:     models.Meta{CorrelationID: rec.CorrelationID, IsOriginalCaption: true},
	}
	_, err := db.InsertMedia(ctx, rec)
	require.NoError(t, err)

	n, err := db.UpdateMediaStatusByCorrelation(ctx, rec.CorrelationID, MediaStatusUpdate{
		State:           models.StatusError,
		ProcessingError: strPtr("boom"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.GetMedia(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.ProcessingState)
	assert.Equal(t, "boom", *got.ProcessingError)
	assert.Equal(t, models.StatusError, got.MessageMediaData.Meta.Status)
	assert.Equal(t, "boom", got.MessageMediaData.Meta.Error)
	assert.Nil(t, got.MessageMediaData.Meta.ProcessedAt)

	processedAt := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	_, err = db.UpdateMediaStatusByCorrelation(ctx, rec.CorrelationID, MediaStatusUpdate{
		State:       models.StatusProcessed,
		ProcessedAt: &processedAt,
	})
	require.NoError(t, err)

	got, err = db.GetMedia(ctx, rec.ID)
	require.NoError(t, err)
	meta := got.MessageMediaData.Meta
	assert.Equal(t, models.StatusProcessed, meta.Status)
	assert.Empty(t, meta.Error)
	require.NotNil(t, meta.ProcessedAt)
	assert.True(t, processedAt.Equal(*meta.ProcessedAt))
	assert.Equal(t, rec.CorrelationID, meta.CorrelationID)
	assert.True(t, meta.IsOriginalCaption)
	require.NotNil(t, got.MessageMediaData.Analysis)
	assert.Equal(t, "ABC101524", got.MessageMediaData.Analysis.ProductCode)

	n, err = db.UpdateMediaStatusByCorrelation(ctx, "unknown", MediaStatusUpdate{State: models.StatusError})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func newTestQueueItem(msgID int64, correlationID string, priority int) *models.QueueItem {
	return &models.QueueItem{
		QueueType:     models.QueueTypeMedia,
		MessageID:     msgID,
		ChatID:        -1001,
		CorrelationID: correlationID,
		Priority:      priority,
	}
}

func TestInsertQueueItem_Conflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertQueueItem(ctx, newTestQueueItem(1, "c1", 1)))
	err := db.InsertQueueItem(ctx, newTestQueueItem(1, "c1", 1))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.GetCode(err))
	assert.True(t, IsUniqueViolation(err))

	require.NoError(t, db.InsertQueueItem(ctx, newTestQueueItem(1, "c2", 1)))
}

func TestQueueLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	low := newTestQueueItem(1, "low", 1)
	low.CreatedAt = time.Now().UTC().Add(-time.Hour)
	high := newTestQueueItem(2, "high", 2)
	retried := newTestQueueItem(3, "retried", 1)
	exhausted := newTestQueueItem(4, "exhausted", 1)
	for _, it := range []*models.QueueItem{low, high, retried, exhausted} {
		require.NoError(t, db.InsertQueueItem(ctx, it))
	}

	require.NoError(t, db.FailQueueItem(ctx, retried.ID, "first failure"))
	for i := 0; i < 3; i++ {
		require.NoError(t, db.FailQueueItem(ctx, exhausted.ID, "again"))
	}

	items, err := db.ListProcessableQueueItems(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, high.ID, items[0].ID)
	assert.Equal(t, low.ID, items[1].ID)

	ok, err := db.ClaimQueueItem(ctx, high.ID, models.QueuePending)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.ClaimQueueItem(ctx, high.ID, models.QueuePending)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	ok, err = db.ClaimQueueItem(ctx, retried.ID, models.QueueError)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, db.CompleteQueueItem(ctx, high.ID, nil))
	got, err := db.GetQueueItem(ctx, high.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueCompleted, got.Status)
	assert.NotNil(t, got.ProcessedAt)

	counts, err := db.CountQueueItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.QueueCompleted])
	assert.Equal(t, 1, counts[models.QueueProcessing])

	reset, err := db.ResetStaleQueueClaims(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	purged, err := db.PurgeCompletedQueueItems(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = db.GetQueueItem(ctx, high.ID)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestGlideConfig_TokenEncryptedAtRest(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	cfg := &models.GlideConfig{
		AppID:         "app-1",
		TableID:       "native-table-1",
		APIToken:      "glide-secret-token",
		ColumnMapping: models.ColumnMapping{"caption": "Name"},
		Active:        true,
	}
	require.NoError(t, db.CreateGlideConfig(ctx, cfg))

	var raw string
	require.NoError(t, db.get(ctx, &raw, "SELECT api_token FROM glide_config WHERE id = ?", cfg.ID))
	assert.NotContains(t, raw, "glide-secret-token")

	got, err := db.GetGlideConfig(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "glide-secret-token", got.APIToken)
	assert.Equal(t, "Name", got.ColumnMapping["caption"])
	assert.Equal(t, "telegram_media", got.SupabaseTableName)

	inactive := &models.GlideConfig{AppID: "a", TableID: "t", APIToken: "x"}
	require.NoError(t, db.CreateGlideConfig(ctx, inactive))

	active, err := db.ListActiveGlideConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, cfg.ID, active[0].ID)

	_, err = db.GetGlideConfig(ctx, "missing")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}
