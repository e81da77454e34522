package constants

// Default server values
const (
	DefaultServerPort            = 8080
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 30
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultWebhookMaxBodyBytes   = 1 << 20
	DefaultAPIRequestsPerSecond  = 10.0
	DefaultAPIBurst              = 20
)

// Default retry values for external calls
const (
	DefaultRetryInitialMs  = 1000
	DefaultRetryMaxMs      = 5000
	DefaultRetryMaxRetries = 3
	DefaultRetryMultiplier = 2.0
)

// Default queue values
const (
	DefaultQueueBatchSize         = 25
	DefaultQueueMaxRetries        = 3
	DefaultQueueDrainIntervalSec  = 30
	DefaultQueueStaleClaimMinutes = 15
	DefaultQueueRetentionDays     = 14
	PriorityMediaGroup            = 2
	PriorityDefault               = 1
)

// Default storage values
const (
	DefaultStorageBucket       = "telegram-media"
	DefaultStorageRegion       = "us-east-1"
	DefaultStorageCacheControl = "3600"
	DefaultStorageTimeoutSec   = 60
)

// Default database values
const (
	DefaultDatabaseDriver        = "sqlite3"
	DefaultDatabaseMaxOpenConns  = 10
	DefaultDatabaseMaxIdleConns  = 5
	DefaultDatabaseRetryAttempts = 3
)

// Default Glide values
const (
	DefaultGlideBatchSize       = 100
	DefaultGlideRequestsPerSec  = 5
	DefaultGlideCircuitFailures = 5
	DefaultGlideCircuitResetSec = 30
)

// Privacy settings
const (
	DefaultChatIDMaskLength  = 4
	DefaultCaptionLogLength  = 24
	DefaultTokenVisibleChars = 4
)
