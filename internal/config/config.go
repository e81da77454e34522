package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tgmedia/internal/constants"
	"tgmedia/internal/httputil"
	"tgmedia/internal/models"
	"tgmedia/internal/retry"
	"tgmedia/internal/security"
	"tgmedia/internal/validation"
	pkgconstants "tgmedia/pkg/constants"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingBotToken      = models.ConfigError{Message: "missing Telegram bot token (set TELEGRAM_BOT_TOKEN)"}
	ErrMissingDBPath        = models.ConfigError{Message: "missing database path"}
	ErrMissingDBURL         = models.ConfigError{Message: "missing database URL (set DATABASE_URL)"}
	ErrMissingBucket        = models.ConfigError{Message: "missing storage bucket"}
	ErrMissingPublicBaseURL = models.ConfigError{Message: "missing storage public base URL"}
	ErrMissingStorageCreds  = models.ConfigError{Message: "missing storage credentials (set STORAGE_ACCESS_KEY_ID and STORAGE_SECRET_ACCESS_KEY)"}
)

// LoadConfig reads a JSON or YAML file (chosen by extension), applies
// environment overrides and defaults, then validates the result. An empty
// path builds the configuration from defaults and the environment alone.
func LoadConfig(path string) (*models.Config, error) {
	var config models.Config

	if path != "" {
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}

		file, err := os.ReadFile(path) // #nosec G304 - Path validated above
		if err != nil {
			return nil, err
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yml", ".yaml":
			err = yaml.Unmarshal(file, &config)
		default:
			err = json.Unmarshal(file, &config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnvironmentOverrides(&config)
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	s := &c.Server
	setIntDefault(&s.Port, constants.DefaultServerPort)
	setIntDefault(&s.ReadTimeoutSec, constants.DefaultServerReadTimeoutSec)
	setIntDefault(&s.WriteTimeoutSec, constants.DefaultServerWriteTimeoutSec)
	setIntDefault(&s.IdleTimeoutSec, constants.DefaultServerIdleTimeoutSec)
	setIntDefault(&s.ShutdownTimeoutSec, constants.DefaultGracefulShutdownSec)
	if s.WebhookMaxBytes <= 0 {
		s.WebhookMaxBytes = constants.DefaultWebhookMaxBodyBytes
	}
	if s.APIRequestsPerSecond <= 0 {
		s.APIRequestsPerSecond = constants.DefaultAPIRequestsPerSecond
	}
	setIntDefault(&s.APIBurst, constants.DefaultAPIBurst)

	tg := &c.Telegram
	setIntDefault(&tg.TimeoutSec, pkgconstants.DefaultTelegramTimeoutSec)
	setIntDefault(&tg.DownloadTimeout, pkgconstants.DefaultMediaDownloadTimeoutSec)
	setIntDefault(&tg.MaxDownloadMB, pkgconstants.TelegramMaxDownloadMB)

	db := &c.Database
	if db.Driver == "" {
		if db.URL != "" {
			db.Driver = "postgres"
		} else {
			db.Driver = constants.DefaultDatabaseDriver
		}
	}
	setIntDefault(&db.MaxOpenConns, constants.DefaultDatabaseMaxOpenConns)
	setIntDefault(&db.MaxIdleConns, constants.DefaultDatabaseMaxIdleConns)
	setIntDefault(&db.RetryAttempts, constants.DefaultDatabaseRetryAttempts)

	st := &c.Storage
	if st.Bucket == "" {
		st.Bucket = constants.DefaultStorageBucket
	}
	if st.Region == "" {
		st.Region = constants.DefaultStorageRegion
	}
	if st.CacheControl == "" {
		st.CacheControl = constants.DefaultStorageCacheControl
	}
	setIntDefault(&st.TimeoutSec, constants.DefaultStorageTimeoutSec)

	g := &c.Glide
	if g.BaseURL == "" {
		g.BaseURL = pkgconstants.GlideAPIBaseURL
	}
	setIntDefault(&g.TimeoutSec, pkgconstants.DefaultGlideTimeoutSec)
	setIntDefault(&g.BatchSize, constants.DefaultGlideBatchSize)
	if g.RequestsPerSecond <= 0 {
		g.RequestsPerSecond = constants.DefaultGlideRequestsPerSec
	}
	setIntDefault(&g.CircuitMaxFailures, constants.DefaultGlideCircuitFailures)
	setIntDefault(&g.CircuitResetSec, constants.DefaultGlideCircuitResetSec)

	q := &c.Queue
	setIntDefault(&q.BatchSize, constants.DefaultQueueBatchSize)
	setIntDefault(&q.MaxRetries, constants.DefaultQueueMaxRetries)
	setIntDefault(&q.DrainIntervalSec, constants.DefaultQueueDrainIntervalSec)
	setIntDefault(&q.StaleClaimMinutes, constants.DefaultQueueStaleClaimMinutes)
	setIntDefault(&q.RetentionDays, constants.DefaultQueueRetentionDays)

	r := &c.Retry
	setIntDefault(&r.InitialBackoffMs, constants.DefaultRetryInitialMs)
	setIntDefault(&r.MaxBackoffMs, constants.DefaultRetryMaxMs)
	if r.MaxRetries == 0 {
		r.MaxRetries = constants.DefaultRetryMaxRetries
	}
	if r.Multiplier < 1 {
		r.Multiplier = constants.DefaultRetryMultiplier
	}

	tr := &c.Tracing
	if tr.ServiceName == "" {
		tr.ServiceName = "tgmedia"
	}
	if tr.Environment == "" {
		tr.Environment = "development"
	}
	if tr.SampleRate <= 0 {
		tr.SampleRate = 1.0
	}
}

func setIntDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func validate(c *models.Config) error {
	if c.Telegram.BotToken == "" {
		return ErrMissingBotToken
	}

	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return ErrMissingDBPath
		}
	case "postgres":
		if c.Database.URL == "" {
			return ErrMissingDBURL
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("unsupported database driver: %s", c.Database.Driver)}
	}

	if _, err := httputil.NewClientIPResolver(c.Server.TrustedProxies); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid server.trusted_proxies: %v", err)}
	}

	if c.Storage.Bucket == "" {
		return ErrMissingBucket
	}
	if c.Storage.PublicBaseURL == "" {
		return ErrMissingPublicBaseURL
	}
	if _, err := url.ParseRequestURI(c.Storage.PublicBaseURL); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid storage public base URL: %v", err)}
	}
	if c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
		return ErrMissingStorageCreds
	}

	if c.Database.EncryptTokens && c.Database.EncryptionKey == "" {
		return models.ConfigError{Message: "TGMEDIA_ENCRYPTION_SECRET is required when token encryption is enabled"}
	}

	if err := validation.ValidateConnectionPool(c.Database.MaxOpenConns, c.Database.MaxIdleConns); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if err := validation.ValidateRetentionDays(c.Queue.RetentionDays); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	if c.Retry.MaxRetries < 0 {
		return models.ConfigError{Message: "retry.max_retries must not be negative"}
	}
	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		return models.ConfigError{Message: "retry.max_backoff_ms must be >= retry.initial_backoff_ms"}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	// Secrets are only ever read from the environment
	c.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.Telegram.WebhookSecret = os.Getenv("TELEGRAM_WEBHOOK_SECRET")
	c.Database.URL = os.Getenv("DATABASE_URL")
	c.Database.EncryptionKey = os.Getenv("TGMEDIA_ENCRYPTION_SECRET")
	c.Storage.AccessKeyID = os.Getenv("STORAGE_ACCESS_KEY_ID")
	c.Storage.SecretAccessKey = os.Getenv("STORAGE_SECRET_ACCESS_KEY")

	if v := os.Getenv("TGMEDIA_ENABLE_ENCRYPTION"); v != "" {
		c.Database.EncryptTokens = v == "true"
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("TELEGRAM_CHANNEL_USERNAME"); v != "" {
		c.Telegram.ChannelUsername = v
	}
	if v := os.Getenv("STORAGE_ENDPOINT"); v != "" {
		c.Storage.Endpoint = v
	}
	if v := os.Getenv("STORAGE_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("STORAGE_REGION"); v != "" {
		c.Storage.Region = v
	}
	if v := os.Getenv("STORAGE_PUBLIC_BASE_URL"); v != "" {
		c.Storage.PublicBaseURL = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.OTLPEndpoint = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		c.Server.TrustedProxies = strings.Split(v, ",")
	}
}

// IsProduction reports whether TGMEDIA_ENV selects production mode.
func IsProduction() bool {
	return os.Getenv("TGMEDIA_ENV") == "production"
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if IsProduction() {
		if c.Telegram.WebhookSecret == "" {
			return models.ConfigError{Message: "Telegram webhook secret is required in production (set TELEGRAM_WEBHOOK_SECRET environment variable)"}
		}
		if len(c.Telegram.WebhookSecret) < 16 {
			return models.ConfigError{Message: "Telegram webhook secret must be at least 16 characters long"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Telegram.WebhookSecret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: Telegram webhook secret not set. Set TELEGRAM_WEBHOOK_SECRET environment variable for security.\n")
	}

	return nil
}

// BackoffConfig converts the retry section into a retry.BackoffConfig.
func BackoffConfig(r models.RetryConfig) retry.BackoffConfig {
	return retry.BackoffConfig{
		InitialDelay: time.Duration(r.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(r.MaxBackoffMs) * time.Millisecond,
		Multiplier:   r.Multiplier,
		MaxRetries:   r.MaxRetries,
		Jitter:       r.Jitter,
	}
}
