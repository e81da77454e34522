package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tgmedia/internal/errors"
	"tgmedia/internal/tracing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"processed": 2})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"processed":2}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/media/x", nil)
	req = req.WithContext(tracing.WithRequestID(req.Context(), "req_1"))
	rec := httptest.NewRecorder()

	WriteError(rec, req, errors.NewNotFoundError("media", "x"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body errors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req_1", body.RequestID)
	assert.Equal(t, errors.ErrCodeNotFound, body.Error.Code)
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Caption string `json:"caption"`
	}

	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"caption":"hi"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "hi", dst.Caption)

	req = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"caption":"hi","extra":1}`))
	err := DecodeJSON(req, &dst)
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(err))

	req = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`not json`))
	assert.Error(t, DecodeJSON(req, &dst))
}
