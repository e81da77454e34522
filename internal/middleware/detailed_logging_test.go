package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetailedLoggingMiddleware_MasksSecretHeader(t *testing.T) {
	logger, buf := newTestLogger()
	cfg := DefaultDetailedLoggingConfig()
	cfg.LogRequestBody = true

	var body string
	handler := DetailedLoggingMiddleware(logger, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		body = string(b)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(`{"update_id":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "very-secret-token")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	logs := buf.String()
	assert.Equal(t, `{"update_id":1}`, body, "body must be restored for the handler")
	assert.Contains(t, logs, "Detailed request logging")
	assert.Contains(t, logs, maskedValue)
	assert.NotContains(t, logs, "very-secret-token")
}

func TestDetailedLoggingMiddleware_SkipsPaths(t *testing.T) {
	logger, buf := newTestLogger()
	handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Empty(t, buf.String())
}

func TestDetailedLoggingMiddleware_ResponseCapture(t *testing.T) {
	logger, buf := newTestLogger()
	cfg := DefaultDetailedLoggingConfig()
	cfg.LogResponseBody = true
	cfg.MaxBodySize = 4

	handler := DetailedLoggingMiddleware(logger, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("too long for the limit"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/media", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "too long for the limit", rec.Body.String())
	assert.Contains(t, buf.String(), "***TRUNCATED***")
	assert.Contains(t, buf.String(), `"status_code":202`)
}

func TestIsSensitiveHeader(t *testing.T) {
	sensitive := DefaultDetailedLoggingConfig().SensitiveHeaders
	assert.True(t, isSensitiveHeader("Authorization", sensitive))
	assert.True(t, isSensitiveHeader("X-Telegram-Bot-Api-Secret-Token", sensitive))
	assert.False(t, isSensitiveHeader("Content-Type", sensitive))
}
