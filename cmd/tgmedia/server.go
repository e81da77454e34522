package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"tgmedia/internal/errors"
	"tgmedia/internal/httputil"
	"tgmedia/internal/metrics"
	"tgmedia/internal/middleware"
	"tgmedia/internal/models"
	"tgmedia/internal/security"
	"tgmedia/internal/service"
	"tgmedia/internal/validation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type webhookHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) (service.WebhookResult, error)
}

type queueDrainer interface {
	DrainPending(ctx context.Context, limit int) (service.DrainResult, error)
}

type statusUpdater interface {
	UpdateStatus(ctx context.Context, messageID string, status models.ProcessingStatus, errMsg *string) error
}

type groupSyncer interface {
	SyncMediaGroupCaptions(ctx context.Context, mediaGroupID string) (*models.MediaRecord, error)
}

type mediaAdmin interface {
	GetMedia(ctx context.Context, id string) (*models.MediaRecord, error)
	ListMedia(ctx context.Context, f service.MediaFilter) ([]*models.MediaRecord, error)
	DeleteMedia(ctx context.Context, id string, opts service.DeleteOptions) (service.DeleteResult, error)
	UpdateCaption(ctx context.Context, id, caption string, opts service.UpdateCaptionOptions) (service.UpdateCaptionResult, error)
}

type glideJobs interface {
	Reconcile(ctx context.Context, configID string) (service.ReconcileResult, error)
	SyncMissingRows(ctx context.Context, configID string) (service.SyncResult, error)
	PushGroupUpdates(ctx context.Context, configID string) (service.PushResult, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the handlers' collaborators
type Services struct {
	Webhook webhookHandler
	Queue   queueDrainer
	Status  statusUpdater
	Groups  groupSyncer
	Media   mediaAdmin
	Glide   glideJobs
	DB      pinger
	// BreakerState reports the Glide circuit breaker; nil when Glide is not configured
	BreakerState func() string
}

type Server struct {
	router        *mux.Router
	logger        *logrus.Logger
	metrics       *metrics.Metrics
	svc           Services
	serverCfg     models.ServerConfig
	webhookSecret string
	requireSecret bool
	verbose       bool
	server        *http.Server
}

func NewServer(cfg *models.Config, svc Services, m *metrics.Metrics, logger *logrus.Logger, requireSecret, verbose bool) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		logger:        logger,
		metrics:       m,
		svc:           svc,
		serverCfg:     cfg.Server,
		webhookSecret: cfg.Telegram.WebhookSecret,
		requireSecret: requireSecret,
		verbose:       verbose,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, s.metrics))
	if s.verbose {
		s.router.Use(mux.MiddlewareFunc(middleware.DetailedLoggingMiddleware(s.logger, middleware.DefaultDetailedLoggingConfig())))
	}

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	s.router.Handle("/webhook/telegram",
		middleware.WebhookObservabilityMiddleware(s.logger, "telegram")(s.handleTelegramWebhook()),
	).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	if s.serverCfg.APIRequestsPerSecond > 0 {
		resolver, err := httputil.NewClientIPResolver(s.serverCfg.TrustedProxies)
		if err != nil {
			s.logger.WithError(err).Warn("Ignoring invalid trusted proxies; rate limiting on peer address")
		}
		limiter := middleware.NewRateLimiter(s.serverCfg.APIRequestsPerSecond, s.serverCfg.APIBurst, s.logger,
			middleware.WithClientIPResolver(resolver))
		api.Use(limiter.Middleware())
	}
	api.HandleFunc("/queue/drain", s.handleQueueDrain()).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id}/status", s.handleUpdateStatus()).Methods(http.MethodPost)
	api.HandleFunc("/media-groups/{id}/sync", s.handleGroupSync()).Methods(http.MethodPost)
	api.HandleFunc("/media", s.handleListMedia()).Methods(http.MethodGet)
	api.HandleFunc("/media/{id}", s.handleGetMedia()).Methods(http.MethodGet)
	api.HandleFunc("/media/{id}/caption", s.handleUpdateCaption()).Methods(http.MethodPatch)
	api.HandleFunc("/media/{id}", s.handleDeleteMedia()).Methods(http.MethodDelete)
	api.HandleFunc("/glide/{configID}/reconcile", s.handleGlideReconcile()).Methods(http.MethodPost)
	api.HandleFunc("/glide/{configID}/sync-missing", s.handleGlideSyncMissing()).Methods(http.MethodPost)
	api.HandleFunc("/glide/{configID}/push", s.handleGlidePush()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.serverCfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.serverCfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.serverCfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.serverCfg.IdleTimeoutSec) * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return context.WithValue(context.Background(), service.VerboseContextKey, s.verbose)
		},
	}

	s.logger.Infof("Starting server on port %d", s.serverCfg.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok", "database": "ok"}

		if s.svc.DB != nil {
			if err := s.svc.DB.Ping(r.Context()); err != nil {
				s.logger.WithError(err).Warn("Health check: database unreachable")
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body["database"] = "unreachable"
			}
		}
		if s.svc.BreakerState != nil {
			body["glide_circuit"] = s.svc.BreakerState()
		}

		httputil.WriteJSON(w, status, body)
	}
}

// handleTelegramWebhook answers 200 for every update it could authenticate so
// Telegram does not redeliver malformed or failing updates forever.
func (s *Server) handleTelegramWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := security.VerifySecretToken(r, s.webhookSecret, s.requireSecret); err != nil {
			s.logger.WithError(err).Warn("Rejected Telegram webhook")
			httputil.WriteError(w, r, errors.NewAuthError(err.Error()))
			return
		}

		if err := validation.ValidateHTTPRequestSize(r, s.serverCfg.WebhookMaxBytes); err != nil {
			s.logger.WithError(err).Warn("Dropping oversized Telegram update")
			httputil.WriteJSON(w, http.StatusOK, service.WebhookResult{Ignored: true})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.serverCfg.WebhookMaxBytes)

		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			s.logger.WithError(err).Warn("Dropping undecodable Telegram update")
			httputil.WriteJSON(w, http.StatusOK, service.WebhookResult{Ignored: true})
			return
		}

		result, err := s.svc.Webhook.HandleUpdate(r.Context(), update)
		if err != nil {
			errors.FromLogrus(s.logger).LogRetryableError(err, "Failed to handle Telegram update",
				logrus.Fields{"update_id": update.UpdateID})
			httputil.WriteJSON(w, http.StatusOK, service.WebhookResult{Ignored: true})
			return
		}

		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleQueueDrain() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				httputil.WriteError(w, r, errors.NewValidationError("limit", v, "must be an integer"))
				return
			}
			if err := validation.ValidateNumericRange(n, "limit", 1, validation.MaxListLimit); err != nil {
				httputil.WriteError(w, r, err)
				return
			}
			limit = n
		}

		result, err := s.svc.Queue.DrainPending(r.Context(), limit)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

type statusRequest struct {
	Status string  `json:"status"`
	Error  *string `json:"error"`
}

func (s *Server) handleUpdateStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := validation.ValidateID("id", id); err != nil {
			httputil.WriteError(w, r, err)
			return
		}

		var req statusRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, r, err)
			return
		}

		if err := s.svc.Status.UpdateStatus(r.Context(), id, models.ProcessingStatus(req.Status), req.Error); err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"message_id": id, "status": req.Status})
	}
}

func (s *Server) handleGroupSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := mux.Vars(r)["id"]

		source, err := s.svc.Groups.SyncMediaGroupCaptions(r.Context(), groupID)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}

		resp := map[string]interface{}{"media_group_id": groupID, "synced": source != nil}
		if source != nil {
			resp["source"] = source
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleListMedia() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := service.MediaFilter{
			Search:       q.Get("search"),
			MediaGroupID: q.Get("group"),
		}

		var err error
		if filter.Limit, err = intParam(q.Get("limit")); err != nil {
			httputil.WriteError(w, r, errors.NewValidationError("limit", q.Get("limit"), "must be an integer"))
			return
		}
		if filter.Offset, err = intParam(q.Get("offset")); err != nil {
			httputil.WriteError(w, r, errors.NewValidationError("offset", q.Get("offset"), "must be an integer"))
			return
		}

		records, err := s.svc.Media.ListMedia(r.Context(), filter)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		if records == nil {
			records = []*models.MediaRecord{}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"media": records, "count": len(records)})
	}
}

func (s *Server) handleGetMedia() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := s.svc.Media.GetMedia(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, record)
	}
}

type captionRequest struct {
	Caption        string `json:"caption"`
	UpdateTelegram bool   `json:"update_telegram"`
}

func (s *Server) handleUpdateCaption() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req captionRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, r, err)
			return
		}

		result, err := s.svc.Media.UpdateCaption(r.Context(), mux.Vars(r)["id"], req.Caption,
			service.UpdateCaptionOptions{UpdateTelegram: req.UpdateTelegram})
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleDeleteMedia() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := service.DeleteOptions{}

		var err error
		if opts.DeleteFromTelegram, err = boolParam(q.Get("telegram")); err != nil {
			httputil.WriteError(w, r, errors.NewValidationError("telegram", q.Get("telegram"), "must be a boolean"))
			return
		}
		if opts.DeleteFromGlide, err = boolParam(q.Get("glide")); err != nil {
			httputil.WriteError(w, r, errors.NewValidationError("glide", q.Get("glide"), "must be a boolean"))
			return
		}
		if opts.DeleteFromStorage, err = boolParam(q.Get("storage")); err != nil {
			httputil.WriteError(w, r, errors.NewValidationError("storage", q.Get("storage"), "must be a boolean"))
			return
		}

		result, err := s.svc.Media.DeleteMedia(r.Context(), mux.Vars(r)["id"], opts)
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleGlideReconcile() http.HandlerFunc {
	return s.glideJob(func(ctx context.Context, id string) (interface{}, error) {
		return s.svc.Glide.Reconcile(ctx, id)
	})
}

func (s *Server) handleGlideSyncMissing() http.HandlerFunc {
	return s.glideJob(func(ctx context.Context, id string) (interface{}, error) {
		return s.svc.Glide.SyncMissingRows(ctx, id)
	})
}

func (s *Server) handleGlidePush() http.HandlerFunc {
	return s.glideJob(func(ctx context.Context, id string) (interface{}, error) {
		return s.svc.Glide.PushGroupUpdates(ctx, id)
	})
}

func (s *Server) glideJob(run func(ctx context.Context, configID string) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.svc.Glide == nil {
			httputil.WriteError(w, r, errors.New(errors.ErrCodeMissingConfig, "glide sync is not configured"))
			return
		}
		result, err := run(r.Context(), mux.Vars(r)["configID"])
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func boolParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
