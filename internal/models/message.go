package models

import (
	"time"
)

// ProcessingStatus is the lifecycle state of a message or media row.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusProcessed  ProcessingStatus = "processed"
	StatusCompleted  ProcessingStatus = "completed"
	StatusError      ProcessingStatus = "error"
)

// Valid reports whether s is a known status.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Message is one Telegram update as stored in the messages table.
type Message struct {
	ID                string           `db:"id" json:"id"`
	TelegramMessageID int64            `db:"telegram_message_id" json:"telegram_message_id"`
	ChatID            int64            `db:"chat_id" json:"chat_id"`
	ChatType          string           `db:"chat_type" json:"chat_type"`
	ChatTitle         string           `db:"chat_title" json:"chat_title"`
	MediaGroupID      *string          `db:"media_group_id" json:"media_group_id,omitempty"`
	Caption           *string          `db:"caption" json:"caption,omitempty"`
	MessageDate       time.Time        `db:"message_date" json:"message_date"`
	Status            ProcessingStatus `db:"status" json:"status"`
	ProcessingError   *string          `db:"processing_error" json:"processing_error,omitempty"`
	RetryCount        int              `db:"retry_count" json:"retry_count"`
	CorrelationID     string           `db:"correlation_id" json:"correlation_id"`
	MessageURL        *string          `db:"message_url" json:"message_url,omitempty"`
	ProcessedAt       *time.Time       `db:"processed_at" json:"processed_at,omitempty"`
	MessageMediaData  MessageMediaData `db:"message_media_data" json:"message_media_data"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// HasMediaGroup reports whether the message belongs to an album.
func (m *Message) HasMediaGroup() bool {
	return m.MediaGroupID != nil && *m.MediaGroupID != ""
}
