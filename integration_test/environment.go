package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tgmedia/internal/database"
	"tgmedia/internal/metrics"
	"tgmedia/internal/models"
	"tgmedia/internal/retry"
	"tgmedia/internal/service"
	"tgmedia/pkg/glide"
	"tgmedia/pkg/storage"
	"tgmedia/pkg/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	testBotToken      = "123456:integration-token"
	testBucket        = "telegram-media"
	testPublicBaseURL = "https://cdn.test/storage/v1/object/public"
	testEncryptionKey = "integration-encryption-secret-0123"
)

// TestEnvironment wires the real pipeline services against SQLite, an
// in-memory object store and fake Bot API and Glide servers.
type TestEnvironment struct {
	t       *testing.T
	ctx     context.Context
	logger  *logrus.Logger
	metrics *metrics.Metrics

	DB       *database.Database
	BotAPI   *fakeBotAPI
	Store    *memoryStore
	GlideAPI *fakeGlideAPI

	Webhook       *service.WebhookService
	Queue         *service.QueueManager
	Groups        *service.GroupSync
	Status        *service.StatusUpdater
	Media         *service.MediaService
	GlideSync     *service.GlideSync
	GlideConfigID string
}

// NewTestEnvironment builds an isolated environment; resources are released
// through t.Cleanup.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	ctx := context.Background()

	db, err := database.Open(ctx, models.DatabaseConfig{
		Driver:        "sqlite3",
		Path:          filepath.Join(t.TempDir(), "integration.db"),
		AutoMigrate:   true,
		EncryptTokens: true,
		EncryptionKey: testEncryptionKey,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	botAPI := newFakeBotAPI(t)
	glideAPI := newFakeGlideAPI(t)
	store := newMemoryStore()

	backoff := retry.NewBackoff(retry.DefaultBackoffConfig(),
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }))

	tgClient, err := telegram.NewClient(telegram.Config{
		Token:        testBotToken,
		APIEndpoint:  botAPI.server.URL + "/bot%s/%s",
		FileEndpoint: botAPI.server.URL + "/file/bot%s/%s",
		Timeout:      5 * time.Second,
	})
	require.NoError(t, err)

	glideClient := glide.NewClient(glide.Config{
		BaseURL:           glideAPI.server.URL,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		MaxFailures:       5,
		ResetTimeout:      time.Minute,
		Backoff:           backoff,
	}, logger)

	glideCfg := &models.GlideConfig{
		AppID:    "app-integration",
		TableID:  "native-table-media",
		APIToken: "glide-integration-token", // #nosec G101 - test credential
		ColumnMapping: models.ColumnMapping{
			"caption":      "Caption",
			"public_url":   "Image",
			"product_code": "Code",
		},
		Active: true,
	}
	require.NoError(t, db.CreateGlideConfig(ctx, glideCfg))

	m := metrics.New()
	uploader := storage.NewUploader(store, testBucket, "", logger)
	analyzer := service.NewCaptionAnalyzer()
	groups := service.NewGroupSync(db, db, logger)
	status := service.NewStatusUpdater(db, db, logger)
	processor := service.NewMediaProcessor(db, tgClient, uploader, analyzer, backoff, m, logger)
	queue := service.NewQueueManager(db, db, processor, status, groups, backoff, models.QueueConfig{BatchSize: 50, MaxRetries: 3}, m, logger)

	return &TestEnvironment{
		t:             t,
		ctx:           ctx,
		logger:        logger,
		metrics:       m,
		DB:            db,
		BotAPI:        botAPI,
		Store:         store,
		GlideAPI:      glideAPI,
		Webhook:       service.NewWebhookService(db, db, queue, groups, analyzer, "", logger),
		Queue:         queue,
		Groups:        groups,
		Status:        status,
		Media:         service.NewMediaService(db, db, tgClient, glideClient, uploader, groups, analyzer, glideCfg.ID, logger),
		GlideSync:     service.NewGlideSync(db, db, groups, glideClient, 10, m, logger),
		GlideConfigID: glideCfg.ID,
	}
}

// Deliver feeds one update through the webhook service.
func (e *TestEnvironment) Deliver(update tgbotapi.Update) service.WebhookResult {
	e.t.Helper()
	res, err := e.Webhook.HandleUpdate(e.ctx, update)
	require.NoError(e.t, err)
	return res
}

// Drain processes every pending queue item.
func (e *TestEnvironment) Drain() service.DrainResult {
	e.t.Helper()
	res, err := e.Queue.DrainPending(e.ctx, 0)
	require.NoError(e.t, err)
	return res
}

// MediaInGroup returns the stored rows of an album.
func (e *TestEnvironment) MediaInGroup(groupID string) []*models.MediaRecord {
	e.t.Helper()
	rows, err := e.DB.ListMediaByGroup(e.ctx, groupID)
	require.NoError(e.t, err)
	return rows
}

// fakeBotAPI serves getMe, getFile and file downloads for registered files.
type fakeBotAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	files     map[string][]byte
	downloads map[string]int
	deleted   []int
}

func newFakeBotAPI(t *testing.T) *fakeBotAPI {
	f := &fakeBotAPI{
		files:     make(map[string][]byte),
		downloads: make(map[string]int),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// AddFile registers the bytes returned for fileID.
func (f *fakeBotAPI) AddFile(fileID string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[fileID] = data
}

// Downloads reports how often fileID was fetched.
func (f *fakeBotAPI) Downloads(fileID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[fileID]
}

// Deleted returns the message ids passed to deleteMessage.
func (f *fakeBotAPI) Deleted() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.deleted...)
}

func (f *fakeBotAPI) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if strings.HasPrefix(r.URL.Path, "/file/") {
		fileID := strings.TrimSuffix(filepath.Base(r.URL.Path), ".jpg")
		data, ok := f.files[fileID]
		if !ok {
			http.NotFound(w, r)
			return
		}
		f.downloads[fileID]++
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(data)
		return
	}

	_ = r.ParseForm()
	switch method := filepath.Base(r.URL.Path); method {
	case "getMe":
		writeBotResult(w, map[string]interface{}{
			"id": 42, "is_bot": true, "first_name": "Media", "username": "tgmedia_test_bot",
		})
	case "getFile":
		fileID := r.FormValue("file_id")
		data, ok := f.files[fileID]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: invalid file_id"}`))
			return
		}
		writeBotResult(w, map[string]interface{}{
			"file_id":        fileID,
			"file_unique_id": "u-" + fileID,
			"file_size":      len(data),
			"file_path":      "photos/" + fileID + ".jpg",
		})
	case "deleteMessage":
		var id int
		_, _ = fmt.Sscanf(r.FormValue("message_id"), "%d", &id)
		f.deleted = append(f.deleted, id)
		writeBotResult(w, true)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func writeBotResult(w http.ResponseWriter, result interface{}) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "result": result})
}

// fakeGlideAPI records mutateTables calls and assigns row ids to added rows.
type fakeGlideAPI struct {
	server *httptest.Server

	mu        sync.Mutex
	mutations []glide.Mutation
	nextRow   int
}

func newFakeGlideAPI(t *testing.T) *fakeGlideAPI {
	f := &fakeGlideAPI{}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// Mutations returns a copy of every mutation received.
func (f *fakeGlideAPI) Mutations() []glide.Mutation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]glide.Mutation(nil), f.mutations...)
}

func (f *fakeGlideAPI) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/mutateTables" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var req struct {
		AppID     string           `json:"appID"`
		Mutations []glide.Mutation `json:"mutations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	results := make([]glide.MutationResult, len(req.Mutations))
	for i, m := range req.Mutations {
		if m.Kind == glide.KindAddRow {
			f.nextRow++
			results[i].RowID = fmt.Sprintf("row-%d", f.nextRow)
		}
	}
	f.mutations = append(f.mutations, req.Mutations...)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(results)
}

// memoryStore is an ObjectStore kept in a map.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (s *memoryStore) Upload(_ context.Context, bucket, key string, body []byte, opts storage.UploadOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := bucket + "/" + key
	if _, exists := s.objects[path]; exists && !opts.Upsert {
		return storage.ErrObjectExists
	}
	s.objects[path] = append([]byte(nil), body...)
	s.uploads++
	return nil
}

func (s *memoryStore) PublicURL(bucket, key string) string {
	return testPublicBaseURL + "/" + bucket + "/" + key
}

func (s *memoryStore) List(_ context.Context, bucket string, opts storage.ListOptions) ([]storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Object
	prefix := bucket + "/" + opts.Search
	for path, body := range s.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, storage.Object{Name: strings.TrimPrefix(path, bucket+"/"), Size: int64(len(body))})
		}
	}
	return out, nil
}

func (s *memoryStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucket+"/"+key)
	return nil
}

// Has reports whether key is stored in bucket.
func (s *memoryStore) Has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[bucket+"/"+key]
	return ok
}

// Uploads reports how many objects were written.
func (s *memoryStore) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}
