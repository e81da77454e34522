package models

import (
	"time"
)

// QueueType tags what kind of work a queue row represents.
type QueueType string

const (
	QueueTypeMedia      QueueType = "media"
	QueueTypeWebhook    QueueType = "webhook"
	QueueTypeMediaGroup QueueType = "media_group"
)

// QueueStatus is the state of a unified_processing_queue row.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueError      QueueStatus = "error"
)

// QueueItem is a unified_processing_queue row.
type QueueItem struct {
	ID               string           `db:"id" json:"id"`
	QueueType        QueueType        `db:"queue_type" json:"queue_type"`
	MessageID        int64            `db:"message_id" json:"message_id"`
	ChatID           int64            `db:"chat_id" json:"chat_id"`
	CorrelationID    string           `db:"correlation_id" json:"correlation_id"`
	MessageMediaData MessageMediaData `db:"message_media_data" json:"message_media_data"`
	Status           QueueStatus      `db:"status" json:"status"`
	Priority         int              `db:"priority" json:"priority"`
	RetryCount       int              `db:"retry_count" json:"retry_count"`
	ErrorMessage     *string          `db:"error_message" json:"error_message,omitempty"`
	ProcessedAt      *time.Time       `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}
