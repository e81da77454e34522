package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "tgmedia/internal/errors"
	"tgmedia/internal/metrics"
	"tgmedia/internal/models"
	"tgmedia/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-secret"

type mockWebhook struct{ mock.Mock }

func (m *mockWebhook) HandleUpdate(ctx context.Context, update tgbotapi.Update) (service.WebhookResult, error) {
	args := m.Called(ctx, update)
	return args.Get(0).(service.WebhookResult), args.Error(1)
}

type mockQueue struct{ mock.Mock }

func (m *mockQueue) DrainPending(ctx context.Context, limit int) (service.DrainResult, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).(service.DrainResult), args.Error(1)
}

type mockStatus struct{ mock.Mock }

func (m *mockStatus) UpdateStatus(ctx context.Context, messageID string, status models.ProcessingStatus, errMsg *string) error {
	return m.Called(ctx, messageID, status, errMsg).Error(0)
}

type mockGroups struct{ mock.Mock }

func (m *mockGroups) SyncMediaGroupCaptions(ctx context.Context, groupID string) (*models.MediaRecord, error) {
	args := m.Called(ctx, groupID)
	if r := args.Get(0); r != nil {
		return r.(*models.MediaRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockMedia struct{ mock.Mock }

func (m *mockMedia) GetMedia(ctx context.Context, id string) (*models.MediaRecord, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*models.MediaRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMedia) ListMedia(ctx context.Context, f service.MediaFilter) ([]*models.MediaRecord, error) {
	args := m.Called(ctx, f)
	if r := args.Get(0); r != nil {
		return r.([]*models.MediaRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMedia) DeleteMedia(ctx context.Context, id string, opts service.DeleteOptions) (service.DeleteResult, error) {
	args := m.Called(ctx, id, opts)
	return args.Get(0).(service.DeleteResult), args.Error(1)
}

func (m *mockMedia) UpdateCaption(ctx context.Context, id, caption string, opts service.UpdateCaptionOptions) (service.UpdateCaptionResult, error) {
	args := m.Called(ctx, id, caption, opts)
	return args.Get(0).(service.UpdateCaptionResult), args.Error(1)
}

type mockGlideJobs struct{ mock.Mock }

func (m *mockGlideJobs) Reconcile(ctx context.Context, configID string) (service.ReconcileResult, error) {
	args := m.Called(ctx, configID)
	return args.Get(0).(service.ReconcileResult), args.Error(1)
}

func (m *mockGlideJobs) SyncMissingRows(ctx context.Context, configID string) (service.SyncResult, error) {
	args := m.Called(ctx, configID)
	return args.Get(0).(service.SyncResult), args.Error(1)
}

func (m *mockGlideJobs) PushGroupUpdates(ctx context.Context, configID string) (service.PushResult, error) {
	args := m.Called(ctx, configID)
	return args.Get(0).(service.PushResult), args.Error(1)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type serverHarness struct {
	server  *Server
	webhook *mockWebhook
	queue   *mockQueue
	status  *mockStatus
	groups  *mockGroups
	media   *mockMedia
	glide   *mockGlideJobs
}

func newServerHarness(t *testing.T, db pinger) *serverHarness {
	return newServerHarnessWithConfig(t, db, models.ServerConfig{Port: 0, WebhookMaxBytes: 1 << 16})
}

func newServerHarnessWithConfig(t *testing.T, db pinger, serverCfg models.ServerConfig) *serverHarness {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &models.Config{
		Server:   serverCfg,
		Telegram: models.TelegramConfig{WebhookSecret: testSecret},
	}
	h := &serverHarness{
		webhook: new(mockWebhook),
		queue:   new(mockQueue),
		status:  new(mockStatus),
		groups:  new(mockGroups),
		media:   new(mockMedia),
		glide:   new(mockGlideJobs),
	}
	h.server = NewServer(cfg, Services{
		Webhook:      h.webhook,
		Queue:        h.queue,
		Status:       h.status,
		Groups:       h.groups,
		Media:        h.media,
		Glide:        h.glide,
		DB:           db,
		BreakerState: func() string { return "closed" },
	}, metrics.New(), logger, false, false)
	return h
}

func (h *serverHarness) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.server.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestServer_HandleHealth(t *testing.T) {
	h := newServerHarness(t, fakePinger{})
	w := h.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "closed", body["glide_circuit"])
}

func TestServer_HandleHealth_DatabaseDown(t *testing.T) {
	h := newServerHarness(t, fakePinger{err: errors.New("closed")})
	w := h.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unreachable", decodeBody(t, w)["database"])
}

func TestServer_Metrics(t *testing.T) {
	h := newServerHarness(t, nil)
	h.do(http.MethodGet, "/health", "", nil)

	w := h.do(http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tgmedia_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestServer_TelegramWebhook_SecretMismatch(t *testing.T) {
	h := newServerHarness(t, nil)

	w := h.do(http.MethodPost, "/webhook/telegram", `{"update_id":1}`,
		map[string]string{"X-Telegram-Bot-Api-Secret-Token": "wrong"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, string(apperrors.ErrCodeAuthentication), decodeBody(t, w)["error"].(map[string]interface{})["code"])
	h.webhook.AssertNotCalled(t, "HandleUpdate", mock.Anything, mock.Anything)
}

func TestServer_TelegramWebhook_MissingSecret(t *testing.T) {
	h := newServerHarness(t, nil)

	w := h.do(http.MethodPost, "/webhook/telegram", `{"update_id":1}`, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_TelegramWebhook_Accepted(t *testing.T) {
	h := newServerHarness(t, nil)
	h.webhook.On("HandleUpdate", mock.Anything, mock.MatchedBy(func(u tgbotapi.Update) bool {
		return u.UpdateID == 42 && u.ChannelPost != nil && u.ChannelPost.MessageID == 7
	})).Return(service.WebhookResult{MessageID: "m-1", HasMedia: true, Enqueued: true}, nil)

	body := `{"update_id":42,"channel_post":{"message_id":7,"date":1700000000,"chat":{"id":-1001,"type":"channel"},"caption":"Blue #ABC061524"}}`
	w := h.do(http.MethodPost, "/webhook/telegram", body,
		map[string]string{"X-Telegram-Bot-Api-Secret-Token": testSecret})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["enqueued"])
	h.webhook.AssertExpectations(t)
}

func TestServer_TelegramWebhook_MalformedAndFailingUpdatesAre200(t *testing.T) {
	h := newServerHarness(t, nil)
	headers := map[string]string{"X-Telegram-Bot-Api-Secret-Token": testSecret}

	w := h.do(http.MethodPost, "/webhook/telegram", `{not json`, headers)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["ignored"])
	h.webhook.AssertNotCalled(t, "HandleUpdate", mock.Anything, mock.Anything)

	h.webhook.On("HandleUpdate", mock.Anything, mock.Anything).
		Return(service.WebhookResult{}, apperrors.NewDatabaseError("upsert", errors.New("locked"))).Once()
	w = h.do(http.MethodPost, "/webhook/telegram", `{"update_id":5}`, headers)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_QueueDrain(t *testing.T) {
	h := newServerHarness(t, nil)
	h.queue.On("DrainPending", mock.Anything, 10).Return(service.DrainResult{Processed: 2, Claimed: 2}, nil)

	w := h.do(http.MethodPost, "/api/v1/queue/drain?limit=10", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeBody(t, w)["processed"])

	w = h.do(http.MethodPost, "/api/v1/queue/drain?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/v1/queue/drain?limit=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	h.queue.AssertNumberOfCalls(t, "DrainPending", 1)
}

func TestServer_UpdateStatus(t *testing.T) {
	h := newServerHarness(t, nil)
	id := "7d2c7c9e-1f0e-4d55-9a55-1c5b0a1e2f3d"
	h.status.On("UpdateStatus", mock.Anything, id, models.StatusError, mock.MatchedBy(func(s *string) bool {
		return s != nil && *s == "boom"
	})).Return(nil)

	w := h.do(http.MethodPost, "/api/v1/messages/"+id+"/status", `{"status":"error","error":"boom"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/api/v1/messages/not-a-uuid/status", `{"status":"error"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/v1/messages/"+id+"/status", `{"status":"error","extra":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	h.status.AssertNumberOfCalls(t, "UpdateStatus", 1)
}

func TestServer_UpdateStatus_PartialFailure(t *testing.T) {
	h := newServerHarness(t, nil)
	id := "7d2c7c9e-1f0e-4d55-9a55-1c5b0a1e2f3d"
	h.status.On("UpdateStatus", mock.Anything, id, models.StatusProcessed, (*string)(nil)).
		Return(apperrors.NewPartialFailureError("status update", errors.New("media row")))

	w := h.do(http.MethodPost, "/api/v1/messages/"+id+"/status", `{"status":"processed"}`, nil)

	assert.Equal(t, http.StatusMultiStatus, w.Code)
}

func TestServer_GroupSync(t *testing.T) {
	h := newServerHarness(t, nil)
	h.groups.On("SyncMediaGroupCaptions", mock.Anything, "g-1").Return(&models.MediaRecord{ID: "src"}, nil)
	h.groups.On("SyncMediaGroupCaptions", mock.Anything, "g-empty").Return(nil, nil)

	w := h.do(http.MethodPost, "/api/v1/media-groups/g-1/sync", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["synced"])

	w = h.do(http.MethodPost, "/api/v1/media-groups/g-empty/sync", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["synced"])
}

func TestServer_ListMedia(t *testing.T) {
	h := newServerHarness(t, nil)
	h.media.On("ListMedia", mock.Anything, service.MediaFilter{Search: "blue", MediaGroupID: "g-1", Limit: 5, Offset: 10}).
		Return([]*models.MediaRecord{{ID: "a"}, {ID: "b"}}, nil)

	w := h.do(http.MethodGet, "/api/v1/media?search=blue&group=g-1&limit=5&offset=10", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeBody(t, w)["count"])

	w = h.do(http.MethodGet, "/api/v1/media?offset=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_APIRateLimit(t *testing.T) {
	h := newServerHarnessWithConfig(t, fakePinger{}, models.ServerConfig{
		WebhookMaxBytes:      1 << 16,
		APIRequestsPerSecond: 1,
		APIBurst:             1,
	})
	h.media.On("ListMedia", mock.Anything, service.MediaFilter{}).Return([]*models.MediaRecord{}, nil)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/v1/media", "", nil).Code)

	w := h.do(http.MethodGet, "/api/v1/media", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	w = h.do(http.MethodGet, "/api/v1/media", "", map[string]string{"X-Forwarded-For": "198.51.100.23"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "untrusted X-Forwarded-For must not open a new bucket")

	// /health is outside the limited subrouter
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health", "", nil).Code)
}

func TestServer_GetMedia_NotFound(t *testing.T) {
	h := newServerHarness(t, nil)
	h.media.On("GetMedia", mock.Anything, "missing").Return(nil, apperrors.NewNotFoundError("media", "missing"))

	w := h.do(http.MethodGet, "/api/v1/media/missing", "", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_DeleteMedia_Flags(t *testing.T) {
	h := newServerHarness(t, nil)
	h.media.On("DeleteMedia", mock.Anything, "m-1", service.DeleteOptions{}).
		Return(service.DeleteResult{Deleted: true}, nil)
	h.media.On("DeleteMedia", mock.Anything, "m-2", service.DeleteOptions{DeleteFromTelegram: true, DeleteFromGlide: true}).
		Return(service.DeleteResult{Deleted: true, Warning: "telegram delete failed"}, nil)
	h.media.On("DeleteMedia", mock.Anything, "m-4", service.DeleteOptions{DeleteFromStorage: true}).
		Return(service.DeleteResult{Deleted: true}, nil)

	w := h.do(http.MethodDelete, "/api/v1/media/m-1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodDelete, "/api/v1/media/m-2?telegram=true&glide=1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "telegram delete failed", decodeBody(t, w)["warning"])

	w = h.do(http.MethodDelete, "/api/v1/media/m-4?storage=true", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodDelete, "/api/v1/media/m-3?telegram=maybe", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = h.do(http.MethodDelete, "/api/v1/media/m-3?storage=maybe", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	h.media.AssertNumberOfCalls(t, "DeleteMedia", 3)
}

func TestServer_UpdateCaption(t *testing.T) {
	h := newServerHarness(t, nil)
	caption := "Red #XYZ010124"
	h.media.On("UpdateCaption", mock.Anything, "m-1", caption, service.UpdateCaptionOptions{UpdateTelegram: true}).
		Return(service.UpdateCaptionResult{Media: &models.MediaRecord{ID: "m-1"}}, nil)

	w := h.do(http.MethodPatch, "/api/v1/media/m-1/caption", `{"caption":"Red #XYZ010124","update_telegram":true}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	h.media.AssertExpectations(t)
}

func TestServer_GlideJobs(t *testing.T) {
	h := newServerHarness(t, nil)
	h.glide.On("Reconcile", mock.Anything, "cfg-1").Return(service.ReconcileResult{LocalRows: 3, RemoteRows: 2}, nil)
	h.glide.On("SyncMissingRows", mock.Anything, "cfg-1").Return(service.SyncResult{Added: 1}, nil)
	h.glide.On("PushGroupUpdates", mock.Anything, "cfg-off").
		Return(service.PushResult{}, apperrors.NewValidationError("config_id", "cfg-off", "glide config is inactive"))

	w := h.do(http.MethodPost, "/api/v1/glide/cfg-1/reconcile", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decodeBody(t, w)["local_rows"])

	w = h.do(http.MethodPost, "/api/v1/glide/cfg-1/sync-missing", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decodeBody(t, w)["added"])

	w = h.do(http.MethodPost, "/api/v1/glide/cfg-off/push", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_GlideJobs_NotConfigured(t *testing.T) {
	h := newServerHarness(t, nil)
	h.server.svc.Glide = nil

	w := h.do(http.MethodPost, "/api/v1/glide/cfg-1/reconcile", "", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
