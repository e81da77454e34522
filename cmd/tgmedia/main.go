package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tgmedia/internal/config"
	"tgmedia/internal/database"
	"tgmedia/internal/metrics"
	"tgmedia/internal/models"
	"tgmedia/internal/privacy"
	"tgmedia/internal/retry"
	"tgmedia/internal/service"
	"tgmedia/internal/tracing"
	"tgmedia/pkg/circuitbreaker"
	"tgmedia/pkg/glide"
	"tgmedia/pkg/storage"
	"tgmedia/pkg/telegram"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes captions and chat ids)")
	configPath = flag.String("config", "", "Path to a JSON or YAML configuration file; empty uses the environment only")
	envFile    = flag.String("env-file", ".env", "Optional dotenv file loaded before the configuration")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("tgmedia %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting tgmedia")

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
			logger.WithError(err).Warn("Failed to load env file")
		}
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogLevel(logger, cfg.LogLevel, *verbose)

	if *configPath != "" {
		watcher := config.NewConfigWatcher(*configPath, logger)
		watcher.OnConfigChange(func(newCfg *models.Config) {
			applyLogLevel(logger, newCfg.LogLevel, *verbose)
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
		}()
	}

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	m := metrics.New()

	backoffCfg := config.BackoffConfig(cfg.Retry)
	backoff := retry.NewBackoff(backoffCfg, retry.WithLogger(logger, "default"))

	dbBackoffCfg := backoffCfg
	dbBackoffCfg.MaxRetries = cfg.Database.RetryAttempts
	dbBackoffCfg.Jitter = true
	var db *database.Database
	err = retry.NewBackoff(dbBackoffCfg, retry.WithLogger(logger, "database.open")).Retry(ctx, func() error {
		var openErr error
		db, openErr = database.Open(ctx, cfg.Database)
		return openErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	tgClient, err := telegram.NewClient(telegram.Config{
		Token:           cfg.Telegram.BotToken,
		APIEndpoint:     cfg.Telegram.APIEndpoint,
		FileEndpoint:    cfg.Telegram.FileEndpoint,
		Timeout:         time.Duration(cfg.Telegram.TimeoutSec) * time.Second,
		DownloadTimeout: time.Duration(cfg.Telegram.DownloadTimeout) * time.Second,
		MaxDownloadMB:   cfg.Telegram.MaxDownloadMB,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram client (token %s): %w", privacy.MaskToken(cfg.Telegram.BotToken), err)
	}
	logger.WithField("bot", tgClient.Username()).Info("Telegram client ready")

	store, err := storage.NewS3Store(storage.S3Config{
		Endpoint:        cfg.Storage.Endpoint,
		Region:          cfg.Storage.Region,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UsePathStyle:    cfg.Storage.UsePathStyle,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
		Timeout:         time.Duration(cfg.Storage.TimeoutSec) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}
	uploader := storage.NewUploader(store, cfg.Storage.Bucket, cfg.Storage.CacheControl, logger)

	glideClient := glide.NewClient(glide.Config{
		BaseURL:           cfg.Glide.BaseURL,
		Timeout:           time.Duration(cfg.Glide.TimeoutSec) * time.Second,
		RequestsPerSecond: cfg.Glide.RequestsPerSecond,
		MaxFailures:       uint32(cfg.Glide.CircuitMaxFailures), // #nosec G115 - validated positive default
		ResetTimeout:      time.Duration(cfg.Glide.CircuitResetSec) * time.Second,
		Backoff:           backoff,
		OnBreakerStateChange: func(name string, _, to circuitbreaker.State) {
			m.SetBreakerState(name, int(to))
		},
	}, logger)

	glideConfigID := resolveGlideConfigID(ctx, db, cfg.Glide.DefaultConfigID, logger)

	analyzer := service.NewCaptionAnalyzer()
	groups := service.NewGroupSync(db, db, logger)
	status := service.NewStatusUpdater(db, db, logger)
	processor := service.NewMediaProcessor(db, tgClient, uploader, analyzer, backoff, m, logger)
	queue := service.NewQueueManager(db, db, processor, status, groups, backoff, cfg.Queue, m, logger)
	webhook := service.NewWebhookService(db, db, queue, groups, analyzer, cfg.Telegram.ChannelUsername, logger)
	media := service.NewMediaService(db, db, tgClient, glideClient, uploader, groups, analyzer, glideConfigID, logger)
	glideSync := service.NewGlideSync(db, db, groups, glideClient, cfg.Glide.BatchSize, m, logger)

	if cfg.Queue.SchedulerEnabled {
		var pusher service.GlidePusher
		if cfg.Glide.PushAfterProcess && glideConfigID != "" {
			pusher = glideSync
		}
		scheduler := service.NewScheduler(queue, cfg.Queue, pusher, glideConfigID, logger)
		go scheduler.Start(context.WithValue(ctx, service.VerboseContextKey, *verbose))
		defer scheduler.Stop()
	} else {
		logger.Info("Queue scheduler disabled; drain through POST /api/v1/queue/drain")
	}

	server := NewServer(cfg, Services{
		Webhook: webhook,
		Queue:   queue,
		Status:  status,
		Groups:  groups,
		Media:   media,
		Glide:   glideSync,
		DB:      db,
		BreakerState: func() string {
			return glideClient.Breaker().GetState().String()
		},
	}, m, logger, config.IsProduction(), *verbose)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// applyLogLevel sets the configured level; -verbose always wins.
func applyLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

type activeConfigLister interface {
	ListActiveGlideConfigs(ctx context.Context) ([]*models.GlideConfig, error)
}

// resolveGlideConfigID returns the configured default, or the only active
// glide_config row when exactly one exists.
func resolveGlideConfigID(ctx context.Context, db activeConfigLister, configured string, logger *logrus.Logger) string {
	if configured != "" {
		return configured
	}
	configs, err := db.ListActiveGlideConfigs(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to list Glide configs")
		return ""
	}
	if len(configs) != 1 {
		logger.WithField(service.LogFieldCount, len(configs)).Info("No default Glide config selected")
		return ""
	}
	return configs[0].ID
}
