package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MessageMediaData is the structured payload stored in message_media_data
// columns. It is built once from the webhook update and validated at intake.
type MessageMediaData struct {
	Message      MessageInfo     `json:"message"`
	Sender       SenderInfo      `json:"sender"`
	Analysis     *Analysis       `json:"analysis,omitempty"`
	Meta         Meta            `json:"meta"`
	Media        *MediaFile      `json:"media,omitempty"`
	TelegramData json.RawMessage `json:"telegram_data,omitempty"`
}

// MessageInfo carries the message-level attributes of the update.
type MessageInfo struct {
	MessageID    int64     `json:"message_id"`
	ChatID       int64     `json:"chat_id"`
	ChatType     string    `json:"chat_type,omitempty"`
	ChatTitle    string    `json:"chat_title,omitempty"`
	MediaGroupID string    `json:"media_group_id,omitempty"`
	Caption      string    `json:"caption,omitempty"`
	Date         time.Time `json:"date"`
	EditDate     time.Time `json:"edit_date,omitempty"`
	MessageURL   string    `json:"message_url,omitempty"`
}

// SenderInfo describes who posted the message.
type SenderInfo struct {
	UserID    int64  `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	ChatTitle string `json:"chat_title,omitempty"`
	IsChannel bool   `json:"is_channel,omitempty"`
}

// Analysis holds product fields parsed from a caption.
type Analysis struct {
	ProductName  string     `json:"product_name,omitempty"`
	ProductCode  string     `json:"product_code,omitempty"`
	VendorUID    string     `json:"vendor_uid,omitempty"`
	PurchaseDate *time.Time `json:"purchase_date,omitempty"`
	Quantity     *int       `json:"quantity,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Method       string     `json:"method,omitempty"`
	AnalyzedAt   time.Time  `json:"analyzed_at"`
}

// Meta is the processing bookkeeping block.
type Meta struct {
	Status            ProcessingStatus `json:"status,omitempty"`
	Error             string           `json:"error,omitempty"`
	ProcessedAt       *time.Time       `json:"processed_at,omitempty"`
	CorrelationID     string           `json:"correlation_id,omitempty"`
	IsOriginalCaption bool             `json:"is_original_caption"`
	OriginalMessageID *int64           `json:"original_message_id,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at,omitempty"`
}

// HasMedia reports whether the payload points at a downloadable attachment.
func (d *MessageMediaData) HasMedia() bool {
	return d.Media != nil && d.Media.FileID != ""
}

// Value implements driver.Valuer
func (d MessageMediaData) Value() (driver.Value, error) {
	return jsonValue(d)
}

// Scan implements sql.Scanner
func (d *MessageMediaData) Scan(src interface{}) error {
	*d = MessageMediaData{}
	return jsonScan(src, d)
}

// Value implements driver.Valuer
func (a Analysis) Value() (driver.Value, error) {
	return jsonValue(a)
}

// Scan implements sql.Scanner
func (a *Analysis) Scan(src interface{}) error {
	*a = Analysis{}
	return jsonScan(src, a)
}

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src interface{}, dest interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}
