package constants

// Default timeout values used by client packages
const (
	DefaultHTTPTimeoutSec          = 30
	DefaultTelegramTimeoutSec      = 30
	DefaultMediaDownloadTimeoutSec = 60
	DefaultGlideTimeoutSec         = 30
)

// Size limits used by client packages
const (
	BytesPerMegabyte        = 1024 * 1024
	TelegramMaxDownloadMB   = 20
	MaxErrorBodyBytes       = 4096
	GlideMaxMutationsPerReq = 500
)

// External endpoints
const (
	GlideAPIBaseURL      = "https://api.glideapp.io/api/function"
	TelegramPublicLink   = "https://t.me"
	TelegramChannelIDPfx = "-100"
)
