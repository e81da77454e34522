package service

// Standard field names used across the pipeline. Use these exact names so
// log queries work the same for every component.
const (
	// Pipeline identifiers
	LogFieldCorrelationID = "correlation_id"
	LogFieldMessageID     = "message_id"
	LogFieldTelegramMsgID = "telegram_message_id"
	LogFieldChatID        = "chat_id"
	LogFieldMediaID       = "media_id"
	LogFieldMediaGroupID  = "media_group_id"
	LogFieldFileUniqueID  = "file_unique_id"
	LogFieldQueueItemID   = "queue_item_id"
	LogFieldQueueType     = "queue_type"
	LogFieldConfigID      = "glide_config_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"
	LogFieldStatus    = "status"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldRoute      = "route"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"

	// File and media
	LogFieldStoragePath = "storage_path"
	LogFieldFileType    = "file_type"
	LogFieldCaption     = "caption"

	// Error and debugging
	LogFieldErrorCode  = "error_code"
	LogFieldRetryCount = "retry_count"
	LogFieldAttempt    = "attempt"
)

// Log levels:
//
// DEBUG: per-item flow details (claim, download size, reused objects).
// INFO: batch summaries, start/stop, configuration loaded.
// WARN: retries, duplicates worth noting, partial failures, external
// deletes that failed while the local delete went ahead.
// ERROR: a queue item or request failed.
//
// Message patterns: "Starting [operation]", "[Operation] completed",
// "Failed to [operation]", "Skipping [operation]: [reason]".
