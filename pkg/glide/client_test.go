package glide

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "tgmedia/internal/errors"
	"tgmedia/internal/retry"
	"tgmedia/pkg/circuitbreaker"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Config{
		BaseURL:           server.URL,
		Timeout:           time.Second,
		RequestsPerSecond: 1000,
		MaxFailures:       3,
		ResetTimeout:      time.Minute,
		Backoff:           retry.NewBackoff(retry.DefaultBackoffConfig(), retry.WithSleep(noSleep)),
	}, quietLogger())
}

func TestQueryTable_FollowsNext(t *testing.T) {
	var requests []queryRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/queryTables", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		if req.Queries[0].StartAt == "" {
			_, _ = w.Write([]byte(`[{"rows":[{"$rowID":"r1","Name":"A"}],"next":"page2"}]`))
			return
		}
		_, _ = w.Write([]byte(`[{"rows":[{"$rowID":"r2","Name":"B"}]}]`))
	})

	rows, err := client.QueryTable(context.Background(), "app", "tok", "native-table-1")
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "r1", rows[0].RowID())
	assert.Equal(t, "B", rows[1]["Name"])
	require.Len(t, requests, 2)
	assert.Equal(t, "app", requests[0].AppID)
	assert.Equal(t, "native-table-1", requests[0].Queries[0].TableName)
	assert.Equal(t, "page2", requests[1].Queries[0].StartAt)
}

func TestMutateTables(t *testing.T) {
	var got mutateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mutateTables", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`[{"rowID":"new-1"},{},{}]`))
	})

	results, err := client.MutateTables(context.Background(), "app", "tok", []Mutation{
		AddRow("t", map[string]interface{}{"Name": "A"}),
		SetColumns("t", "r1", map[string]interface{}{"Name": "B"}),
		DeleteRow("t", "r2"),
	})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "new-1", results[0].RowID)
	require.Len(t, got.Mutations, 3)
	assert.Equal(t, KindAddRow, got.Mutations[0].Kind)
	assert.Equal(t, KindSetColumns, got.Mutations[1].Kind)
	assert.Equal(t, "r1", got.Mutations[1].RowID)
	assert.Equal(t, KindDeleteRow, got.Mutations[2].Kind)
	assert.Nil(t, got.Mutations[2].ColumnValues)
}

func TestMutateTables_ResultCountMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := client.MutateTables(context.Background(), "app", "tok", []Mutation{DeleteRow("t", "r")})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeGlideAPI, apperrors.GetCode(err))
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"rows":[]}]`))
	})

	_, err := client.QueryTable(context.Background(), "app", "tok", "t")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, circuitbreaker.StateClosed, client.Breaker().GetState())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"bad token"}`))
	})

	for i := 0; i < 5; i++ {
		_, err := client.QueryTable(context.Background(), "app", "tok", "t")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad token")
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
	assert.Equal(t, circuitbreaker.StateClosed, client.Breaker().GetState())
}

func TestClient_CircuitOpensOnPersistentFailure(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.QueryTable(context.Background(), "app", "tok", "t")
	require.Error(t, err)
	assert.True(t, circuitbreaker.IsCircuitBreakerError(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	_, err = client.QueryTable(context.Background(), "app", "tok", "t")
	assert.True(t, circuitbreaker.IsCircuitBreakerError(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
