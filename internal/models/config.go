package models

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Glide    GlideSettings  `json:"glide" yaml:"glide"`
	Queue    QueueConfig    `json:"queue" yaml:"queue"`
	Retry    RetryConfig    `json:"retry" yaml:"retry"`
	Tracing  TracingConfig  `json:"tracing" yaml:"tracing"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port                 int     `json:"port" yaml:"port"`
	ReadTimeoutSec       int     `json:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec      int     `json:"write_timeout_sec" yaml:"write_timeout_sec"`
	IdleTimeoutSec       int     `json:"idle_timeout_sec" yaml:"idle_timeout_sec"`
	ShutdownTimeoutSec   int     `json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
	WebhookMaxBytes      int64   `json:"webhook_max_bytes" yaml:"webhook_max_bytes"`
	APIRequestsPerSecond float64 `json:"api_requests_per_second" yaml:"api_requests_per_second"`
	APIBurst             int     `json:"api_burst" yaml:"api_burst"`
	// TrustedProxies lists proxy IPs or CIDRs whose forwarding headers are honored
	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies"`
}

// TelegramConfig holds Telegram Bot API settings. Secrets are populated from the environment only.
type TelegramConfig struct {
	APIEndpoint     string `json:"api_endpoint" yaml:"api_endpoint"`
	FileEndpoint    string `json:"file_endpoint" yaml:"file_endpoint"`
	TimeoutSec      int    `json:"timeout_sec" yaml:"timeout_sec"`
	DownloadTimeout int    `json:"download_timeout_sec" yaml:"download_timeout_sec"`
	MaxDownloadMB   int    `json:"max_download_mb" yaml:"max_download_mb"`
	ChannelUsername string `json:"channel_username" yaml:"channel_username"`
	BotToken        string `json:"-" yaml:"-"`
	WebhookSecret   string `json:"-" yaml:"-"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Driver          string `json:"driver" yaml:"driver"`
	Path            string `json:"path" yaml:"path"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	AutoMigrate     bool   `json:"auto_migrate" yaml:"auto_migrate"`
	URL             string `json:"-" yaml:"-"`
	EncryptionKey   string `json:"-" yaml:"-"`
	EncryptTokens   bool   `json:"encrypt_tokens" yaml:"encrypt_tokens"`
	RetryAttempts   int    `json:"retry_attempts" yaml:"retry_attempts"`
	ConnMaxLifetime int    `json:"conn_max_lifetime_sec" yaml:"conn_max_lifetime_sec"`
}

// StorageConfig describes the S3-compatible bucket that holds media objects
type StorageConfig struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	Region          string `json:"region" yaml:"region"`
	Bucket          string `json:"bucket" yaml:"bucket"`
	PublicBaseURL   string `json:"public_base_url" yaml:"public_base_url"`
	CacheControl    string `json:"cache_control" yaml:"cache_control"`
	UsePathStyle    bool   `json:"use_path_style" yaml:"use_path_style"`
	TimeoutSec      int    `json:"timeout_sec" yaml:"timeout_sec"`
	AccessKeyID     string `json:"-" yaml:"-"`
	SecretAccessKey string `json:"-" yaml:"-"`
}

// GlideSettings holds client-wide Glide API settings. Per-table targets live in glide_config rows.
type GlideSettings struct {
	BaseURL            string  `json:"base_url" yaml:"base_url"`
	TimeoutSec         int     `json:"timeout_sec" yaml:"timeout_sec"`
	BatchSize          int     `json:"batch_size" yaml:"batch_size"`
	RequestsPerSecond  float64 `json:"requests_per_second" yaml:"requests_per_second"`
	CircuitMaxFailures int     `json:"circuit_max_failures" yaml:"circuit_max_failures"`
	CircuitResetSec    int     `json:"circuit_reset_sec" yaml:"circuit_reset_sec"`
	PushAfterProcess   bool    `json:"push_after_process" yaml:"push_after_process"`
	DefaultConfigID    string  `json:"default_config_id" yaml:"default_config_id"`
}

// QueueConfig controls draining of unified_processing_queue
type QueueConfig struct {
	BatchSize         int  `json:"batch_size" yaml:"batch_size"`
	MaxRetries        int  `json:"max_retries" yaml:"max_retries"`
	DrainIntervalSec  int  `json:"drain_interval_sec" yaml:"drain_interval_sec"`
	StaleClaimMinutes int  `json:"stale_claim_minutes" yaml:"stale_claim_minutes"`
	RetentionDays     int  `json:"retention_days" yaml:"retention_days"`
	SchedulerEnabled  bool `json:"scheduler_enabled" yaml:"scheduler_enabled"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int     `json:"initial_backoff_ms" yaml:"initial_backoff_ms"`
	MaxBackoffMs     int     `json:"max_backoff_ms" yaml:"max_backoff_ms"`
	MaxRetries       int     `json:"max_retries" yaml:"max_retries"`
	Multiplier       float64 `json:"multiplier" yaml:"multiplier"`
	Jitter           bool    `json:"jitter" yaml:"jitter"`
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
	UseConsole     bool    `json:"use_console" yaml:"use_console"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
