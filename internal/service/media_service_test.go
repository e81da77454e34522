package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"tgmedia/internal/database"
	apperrors "tgmedia/internal/errors"
	"tgmedia/internal/models"
	"tgmedia/pkg/glide"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mediaServiceHarness struct {
	db      *database.Database
	tg      *mockTelegram
	glide   *mockGlide
	objects *mockObjects
	svc     *MediaService
	cfg     *models.GlideConfig
}

func newMediaServiceHarness(t *testing.T) *mediaServiceHarness {
	t.Helper()
	db := setupTestDB(t)
	cfg := &models.GlideConfig{
		AppID:         "app-1",
		TableID:       "native-table-1",
		APIToken:      "glide-token",
		ColumnMapping: models.ColumnMapping{"caption": "Caption"},
		Active:        true,
	}
	require.NoError(t, db.CreateGlideConfig(context.Background(), cfg))

	tg := &mockTelegram{}
	gl := &mockGlide{}
	objects := &mockObjects{}
	logger := quietLogger()
	svc := NewMediaService(db, db, tg, gl, objects, NewGroupSync(db, db, logger), NewCaptionAnalyzer(), cfg.ID, logger)
	return &mediaServiceHarness{db: db, tg: tg, glide: gl, objects: objects, svc: svc, cfg: cfg}
}

func (h *mediaServiceHarness) insert(t *testing.T, uniq string, rowID *string, groupID *string) *models.MediaRecord {
	t.Helper()
	rec := &models.MediaRecord{
		FileUniqueID:       uniq,
		FileID:             "file-" + uniq,
		FileType:           models.FileTypePhoto,
		TelegramMessageID:  300,
		ChatID:             -1001234567890,
		MediaGroupID:       groupID,
		CorrelationID:      "corr-" + uniq,
		StoragePath:        uniq + ".jpg",
		TelegramMediaRowID: rowID,
	}
	_, err := h.db.InsertMedia(context.Background(), rec)
	require.NoError(t, err)
	return rec
}

func TestDeleteMedia_LocalOnlyMakesNoExternalCalls(t *testing.T) {
	h := newMediaServiceHarness(t)
	rec := h.insert(t, "del1", strPtr("row-1"), nil)

	res, err := h.svc.DeleteMedia(context.Background(), rec.ID, DeleteOptions{})
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Empty(t, res.Warning)

	h.tg.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything, mock.Anything)
	h.glide.AssertNotCalled(t, "MutateTables", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.objects.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)

	_, err = h.db.GetMedia(context.Background(), rec.ID)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
}

func TestDeleteMedia_ExternalFailureStillDeletesLocally(t *testing.T) {
	h := newMediaServiceHarness(t)
	rec := h.insert(t, "del2", strPtr("row-2"), nil)

	h.tg.On("DeleteMessage", mock.Anything, int64(-1001234567890), 300).Return(errors.New("message can't be deleted")).Once()
	h.glide.On("MutateTables", mock.Anything, "app-1", "glide-token",
		[]glide.Mutation{glide.DeleteRow("native-table-1", "row-2")}).Return(nil, nil).Once()

	res, err := h.svc.DeleteMedia(context.Background(), rec.ID, DeleteOptions{DeleteFromTelegram: true, DeleteFromGlide: true})
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Contains(t, res.Warning, "Telegram delete failed")

	h.tg.AssertExpectations(t)
	h.glide.AssertExpectations(t)
	_, err = h.db.GetMedia(context.Background(), rec.ID)
	assert.Error(t, err)
}

func TestDeleteMedia_RemovesStorageObject(t *testing.T) {
	h := newMediaServiceHarness(t)
	ctx := context.Background()
	rec := h.insert(t, "del3", nil, nil)
	h.objects.On("Remove", mock.Anything, "del3.jpg").Return(nil).Once()

	res, err := h.svc.DeleteMedia(ctx, rec.ID, DeleteOptions{DeleteFromStorage: true})
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Empty(t, res.Warning)
	h.objects.AssertExpectations(t)

	failing := h.insert(t, "del4", nil, nil)
	h.objects.On("Remove", mock.Anything, "del4.jpg").Return(errors.New("access denied")).Once()

	res, err = h.svc.DeleteMedia(ctx, failing.ID, DeleteOptions{DeleteFromStorage: true})
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.Contains(t, res.Warning, "Storage delete failed")
	_, err = h.db.GetMedia(ctx, failing.ID)
	assert.Error(t, err)
}

func TestDeleteMedia_InvalidID(t *testing.T) {
	h := newMediaServiceHarness(t)
	_, err := h.svc.DeleteMedia(context.Background(), "not-a-uuid", DeleteOptions{})
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetCode(err))
}

func TestUpdateCaption_ReanalyzesAndSyncsGroup(t *testing.T) {
	h := newMediaServiceHarness(t)
	ctx := context.Background()
	a := h.insert(t, "cap-a", nil, strPtr("grp"))
	b := h.insert(t, "cap-b", nil, strPtr("grp"))

	h.tg.On("EditCaption", mock.Anything, int64(-1001234567890), 300, "Sofa #ZZ010125 x2").Return(nil).Once()

	res, err := h.svc.UpdateCaption(ctx, a.ID, "Sofa #ZZ010125 x2", UpdateCaptionOptions{UpdateTelegram: true})
	require.NoError(t, err)
	assert.Empty(t, res.Warning)
	require.NotNil(t, res.Media.ProductName)
	assert.Equal(t, "Sofa", *res.Media.ProductName)
	require.NotNil(t, res.Media.Quantity)
	assert.Equal(t, 2, *res.Media.Quantity)
	require.NotNil(t, res.Media.PurchaseDate)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), res.Media.PurchaseDate.UTC())

	other, err := h.db.GetMedia(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, other.Caption)
	assert.Equal(t, "Sofa #ZZ010125 x2", *other.Caption)
	assert.False(t, other.IsOriginalCaption)
	h.tg.AssertExpectations(t)
}

func TestUpdateCaption_TelegramFailureIsWarning(t *testing.T) {
	h := newMediaServiceHarness(t)
	rec := h.insert(t, "cap-c", nil, nil)

	h.tg.On("EditCaption", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("forbidden")).Once()

	res, err := h.svc.UpdateCaption(context.Background(), rec.ID, "Table", UpdateCaptionOptions{UpdateTelegram: true})
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "forbidden")
	require.NotNil(t, res.Media.Caption)
	assert.Equal(t, "Table", *res.Media.Caption)
}

func TestListMedia(t *testing.T) {
	h := newMediaServiceHarness(t)
	h.insert(t, "l1", nil, strPtr("grp-l"))
	h.insert(t, "l2", nil, nil)

	all, err := h.svc.ListMedia(context.Background(), MediaFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	grouped, err := h.svc.ListMedia(context.Background(), MediaFilter{MediaGroupID: "grp-l"})
	require.NoError(t, err)
	require.Len(t, grouped, 1)
	assert.Equal(t, "l1", grouped[0].FileUniqueID)

	_, err = h.svc.ListMedia(context.Background(), MediaFilter{Limit: 10000})
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetCode(err))
}
