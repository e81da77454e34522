package database

// Column lists shared by selects
const (
	messageColumns = `id, telegram_message_id, chat_id, chat_type, chat_title, media_group_id,
		caption, message_date, status, processing_error, retry_count, correlation_id,
		message_url, processed_at, message_media_data, created_at, updated_at`

	mediaColumns = `id, file_unique_id, file_id, file_type, mime_type, file_size, public_url,
		storage_path, telegram_message_id, chat_id, media_group_id, caption, is_original_caption,
		original_message_id, correlation_id, product_name, product_code, quantity, vendor_uid,
		purchase_date, notes, analyzed_content, processing_state, processing_error, processed_at,
		telegram_media_row_id, message_url, message_media_data, created_at, updated_at`

	queueColumns = `id, queue_type, message_id, chat_id, correlation_id, message_media_data,
		status, priority, retry_count, error_message, processed_at, created_at, updated_at`

	glideConfigColumns = `id, app_id, table_id, api_token, supabase_table_name, column_mapping,
		active, created_at, updated_at`
)

// Message queries
const (
	InsertMessageQuery = `
		INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id, telegram_message_id) DO NOTHING
	`

	UpdateMessageContentQuery = `
		UPDATE messages
		SET caption = ?, media_group_id = ?, message_url = ?, message_media_data = ?, updated_at = ?
		WHERE chat_id = ? AND telegram_message_id = ?
	`

	SelectMessageByIDQuery = `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`

	SelectMessageByTelegramIDQuery = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE chat_id = ? AND telegram_message_id = ?
	`

	UpdateMessageStatusQuery = `
		UPDATE messages
		SET status = ?, processing_error = ?, processed_at = ?, message_media_data = ?,
		    retry_count = retry_count + ?, updated_at = ?
		WHERE id = ?
	`

	UpdateMessageCaptionByGroupQuery = `
		UPDATE messages
		SET caption = ?, updated_at = ?
		WHERE media_group_id = ?
	`
)

// Media queries
const (
	InsertMediaQuery = `
		INSERT INTO telegram_media (` + mediaColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_unique_id) DO NOTHING
	`

	SelectMediaByIDQuery = `SELECT ` + mediaColumns + ` FROM telegram_media WHERE id = ?`

	SelectMediaByFileUniqueIDQuery = `SELECT ` + mediaColumns + ` FROM telegram_media WHERE file_unique_id = ?`

	SelectMediaByGroupQuery = `
		SELECT ` + mediaColumns + `
		FROM telegram_media
		WHERE media_group_id = ?
		ORDER BY created_at DESC, id DESC
	`

	SelectMediaByMessageQuery = `
		SELECT ` + mediaColumns + `
		FROM telegram_media
		WHERE chat_id = ? AND telegram_message_id = ?
	`

	SelectMediaGroupIDsQuery = `
		SELECT DISTINCT media_group_id
		FROM telegram_media
		WHERE media_group_id IS NOT NULL AND media_group_id <> ''
		ORDER BY media_group_id
	`

	UpdateMediaCaptionFieldsQuery = `
		UPDATE telegram_media
		SET caption = ?, product_name = ?, product_code = ?, quantity = ?, vendor_uid = ?,
		    purchase_date = ?, notes = ?, analyzed_content = ?, is_original_caption = ?,
		    original_message_id = ?, updated_at = ?
		WHERE id = ?
	`

	SelectMediaByCorrelationQuery = `SELECT ` + mediaColumns + ` FROM telegram_media WHERE correlation_id = ?`

	UpdateMediaStatusQuery = `
		UPDATE telegram_media
		SET processing_state = ?, processing_error = ?, processed_at = ?, message_media_data = ?, updated_at = ?
		WHERE id = ?
	`

	UpdateMediaGlideRowIDQuery = `
		UPDATE telegram_media
		SET telegram_media_row_id = ?, updated_at = ?
		WHERE id = ?
	`

	DeleteMediaQuery = `DELETE FROM telegram_media WHERE id = ?`
)

// Queue queries
const (
	InsertQueueItemQuery = `
		INSERT INTO unified_processing_queue (` + queueColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	SelectQueueItemByIDQuery = `SELECT ` + queueColumns + ` FROM unified_processing_queue WHERE id = ?`

	SelectProcessableQueueItemsQuery = `
		SELECT ` + queueColumns + `
		FROM unified_processing_queue
		WHERE status = ? OR (status = ? AND retry_count < ?)
		ORDER BY priority DESC, created_at ASC
		LIMIT ?
	`

	// ClaimQueueItemQuery is a compare-and-swap on status; callers must check rows affected.
	ClaimQueueItemQuery = `
		UPDATE unified_processing_queue
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	CompleteQueueItemQuery = `
		UPDATE unified_processing_queue
		SET status = ?, error_message = ?, processed_at = ?, updated_at = ?
		WHERE id = ?
	`

	FailQueueItemQuery = `
		UPDATE unified_processing_queue
		SET status = ?, error_message = ?, retry_count = retry_count + 1, updated_at = ?
		WHERE id = ?
	`

	ResetStaleQueueClaimsQuery = `
		UPDATE unified_processing_queue
		SET status = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?
	`

	PurgeCompletedQueueItemsQuery = `
		DELETE FROM unified_processing_queue
		WHERE status = ? AND updated_at < ?
	`

	CountQueueItemsByStatusQuery = `
		SELECT status, COUNT(*) AS count
		FROM unified_processing_queue
		GROUP BY status
	`
)

// Glide config queries
const (
	InsertGlideConfigQuery = `
		INSERT INTO glide_config (` + glideConfigColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	SelectGlideConfigByIDQuery = `SELECT ` + glideConfigColumns + ` FROM glide_config WHERE id = ?`

	SelectActiveGlideConfigsQuery = `
		SELECT ` + glideConfigColumns + `
		FROM glide_config
		WHERE active = ?
		ORDER BY created_at
	`
)
