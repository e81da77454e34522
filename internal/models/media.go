package models

import (
	"time"
)

// FileType is the Telegram attachment kind.
type FileType string

const (
	FileTypePhoto    FileType = "photo"
	FileTypeVideo    FileType = "video"
	FileTypeDocument FileType = "document"
)

// Valid reports whether t is a supported attachment kind.
func (t FileType) Valid() bool {
	switch t {
	case FileTypePhoto, FileTypeVideo, FileTypeDocument:
		return true
	}
	return false
}

// MediaFile is the raw Telegram attachment descriptor. FileID may expire;
// FileUniqueID is stable across bots and re-sends.
type MediaFile struct {
	FileID       string   `json:"file_id"`
	FileUniqueID string   `json:"file_unique_id"`
	FileType     FileType `json:"file_type"`
	MimeType     string   `json:"mime_type,omitempty"`
	FileSize     int64    `json:"file_size,omitempty"`
	FileName     string   `json:"file_name,omitempty"`
	Width        int      `json:"width,omitempty"`
	Height       int      `json:"height,omitempty"`
	Duration     int      `json:"duration,omitempty"`
}

// MediaRecord is a telegram_media row.
type MediaRecord struct {
	ID                 string           `db:"id" json:"id"`
	FileUniqueID       string           `db:"file_unique_id" json:"file_unique_id"`
	FileID             string           `db:"file_id" json:"file_id"`
	FileType           FileType         `db:"file_type" json:"file_type"`
	MimeType           string           `db:"mime_type" json:"mime_type"`
	FileSize           int64            `db:"file_size" json:"file_size"`
	PublicURL          string           `db:"public_url" json:"public_url"`
	StoragePath        string           `db:"storage_path" json:"storage_path"`
	TelegramMessageID  int64            `db:"telegram_message_id" json:"telegram_message_id"`
	ChatID             int64            `db:"chat_id" json:"chat_id"`
	MediaGroupID       *string          `db:"media_group_id" json:"media_group_id,omitempty"`
	Caption            *string          `db:"caption" json:"caption,omitempty"`
	IsOriginalCaption  bool             `db:"is_original_caption" json:"is_original_caption"`
	OriginalMessageID  *int64           `db:"original_message_id" json:"original_message_id,omitempty"`
	CorrelationID      string           `db:"correlation_id" json:"correlation_id"`
	ProductName        *string          `db:"product_name" json:"product_name,omitempty"`
	ProductCode        *string          `db:"product_code" json:"product_code,omitempty"`
	Quantity           *int             `db:"quantity" json:"quantity,omitempty"`
	VendorUID          *string          `db:"vendor_uid" json:"vendor_uid,omitempty"`
	PurchaseDate       *time.Time       `db:"purchase_date" json:"purchase_date,omitempty"`
	Notes              *string          `db:"notes" json:"notes,omitempty"`
	AnalyzedContent    *Analysis        `db:"analyzed_content" json:"analyzed_content,omitempty"`
	ProcessingState    ProcessingStatus `db:"processing_state" json:"processing_state"`
	ProcessingError    *string          `db:"processing_error" json:"processing_error,omitempty"`
	ProcessedAt        *time.Time       `db:"processed_at" json:"processed_at,omitempty"`
	TelegramMediaRowID *string          `db:"telegram_media_row_id" json:"telegram_media_row_id,omitempty"`
	MessageURL         *string          `db:"message_url" json:"message_url,omitempty"`
	MessageMediaData   MessageMediaData `db:"message_media_data" json:"message_media_data"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// HasCaptionInfo reports whether the record carries any caption or product
// field that group sync can propagate.
func (r *MediaRecord) HasCaptionInfo() bool {
	return r.Caption != nil ||
		r.ProductName != nil ||
		r.ProductCode != nil ||
		r.AnalyzedContent != nil ||
		r.VendorUID != nil ||
		r.PurchaseDate != nil ||
		r.Notes != nil
}

// CaptionFields is the field set group sync copies from the source member.
type CaptionFields struct {
	Caption         *string
	ProductName     *string
	ProductCode     *string
	Quantity        *int
	VendorUID       *string
	PurchaseDate    *time.Time
	Notes           *string
	AnalyzedContent *Analysis
}

// CaptionFields extracts the propagatable fields.
func (r *MediaRecord) CaptionFields() CaptionFields {
	return CaptionFields{
		Caption:         r.Caption,
		ProductName:     r.ProductName,
		ProductCode:     r.ProductCode,
		Quantity:        r.Quantity,
		VendorUID:       r.VendorUID,
		PurchaseDate:    r.PurchaseDate,
		Notes:           r.Notes,
		AnalyzedContent: r.AnalyzedContent,
	}
}

// ApplyAnalysis flattens a caption analysis onto the record's product columns.
func (r *MediaRecord) ApplyAnalysis(a *Analysis) {
	r.AnalyzedContent = a
	if a == nil {
		r.ProductName, r.ProductCode, r.VendorUID, r.Notes = nil, nil, nil, nil
		r.Quantity, r.PurchaseDate = nil, nil
		return
	}
	r.ProductName = nonEmpty(a.ProductName)
	r.ProductCode = nonEmpty(a.ProductCode)
	r.VendorUID = nonEmpty(a.VendorUID)
	r.Notes = nonEmpty(a.Notes)
	r.Quantity = a.Quantity
	r.PurchaseDate = a.PurchaseDate
}

// ProcessResult is the outcome of processing one media payload.
type ProcessResult struct {
	Success   bool   `json:"success"`
	MediaID   string `json:"media_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     error  `json:"-"`
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
