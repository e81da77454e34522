package validation

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"tgmedia/internal/errors"
	"tgmedia/internal/models"

	"github.com/google/uuid"
)

// MaxCaptionLength is Telegram's limit for media captions
const MaxCaptionLength = 1024

// MaxListLimit caps page sizes of list endpoints
const MaxListLimit = 500

// ValidateMediaFile checks the fields required to download and store an attachment
func ValidateMediaFile(m *models.MediaFile) error {
	if m == nil {
		return errors.NewValidationError("media", "", "is required")
	}
	if m.FileID == "" {
		return errors.NewValidationError("file_id", "", "is required")
	}
	if m.FileUniqueID == "" {
		return errors.NewValidationError("file_unique_id", "", "is required")
	}
	// object names keep only ASCII letters and digits of the id
	if !hasASCIIAlphanumeric(m.FileUniqueID) {
		return errors.NewValidationError("file_unique_id", m.FileUniqueID, "must contain an ASCII letter or digit")
	}
	if m.FileType == "" {
		return errors.NewValidationError("file_type", "", "is required")
	}
	if !m.FileType.Valid() {
		return errors.NewValidationError("file_type", string(m.FileType), "must be one of photo, video, document")
	}
	if m.FileSize < 0 {
		return errors.NewValidationError("file_size", fmt.Sprint(m.FileSize), "cannot be negative")
	}
	return nil
}

func hasASCIIAlphanumeric(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return true
		}
	}
	return false
}

// ValidateMediaPayload validates a payload at the ingestion boundary
func ValidateMediaPayload(p *models.MessageMediaData) error {
	if p == nil {
		return errors.NewValidationError("message_media_data", "", "is required")
	}
	if p.Message.MessageID <= 0 {
		return errors.NewValidationError("message_id", fmt.Sprint(p.Message.MessageID), "must be positive")
	}
	if p.Message.ChatID == 0 {
		return errors.NewValidationError("chat_id", "0", "is required")
	}
	if err := ValidateCaption(p.Message.Caption); err != nil {
		return err
	}
	return ValidateMediaFile(p.Media)
}

// ValidateCaption enforces Telegram's caption limit and UTF-8 encoding
func ValidateCaption(caption string) error {
	if !utf8.ValidString(caption) {
		return errors.NewValidationError("caption", "", "must be valid UTF-8")
	}
	if n := utf8.RuneCountInString(caption); n > MaxCaptionLength {
		return errors.NewValidationError("caption", "",
			fmt.Sprintf("too long: %d characters (max %d)", n, MaxCaptionLength))
	}
	return nil
}

// ValidateStatus checks a processing status supplied by a client
func ValidateStatus(status string) error {
	if !models.ProcessingStatus(status).Valid() {
		return errors.NewValidationError("status", status, "unknown status")
	}
	return nil
}

// ValidateID checks that id is a UUID
func ValidateID(field, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.NewValidationError(field, id, "must be a UUID")
	}
	return nil
}

// ValidatePagination validates list paging parameters
func ValidatePagination(limit, offset int) error {
	if err := ValidateNumericRange(limit, "limit", 0, MaxListLimit); err != nil {
		return err
	}
	if offset < 0 {
		return errors.NewValidationError("offset", fmt.Sprint(offset), "cannot be negative")
	}
	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeValidationFailed,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}
	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.NewValidationError(fieldName, fmt.Sprint(value), fmt.Sprintf("too small (min %d)", min))
	}
	if value > max {
		return errors.NewValidationError(fieldName, fmt.Sprint(value), fmt.Sprintf("too large (max %d)", max))
	}
	return nil
}

// ValidateConnectionPool validates database connection pool settings
func ValidateConnectionPool(maxOpen, maxIdle int) error {
	if maxOpen < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "max open connections must be at least 1")
	}
	if maxOpen > 1000 {
		return errors.New(errors.ErrCodeInvalidConfig, "max open connections too large (max 1000)")
	}
	if maxIdle < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "max idle connections cannot be negative")
	}
	if maxIdle > maxOpen {
		return errors.New(errors.ErrCodeInvalidConfig, "max idle connections cannot exceed max open connections")
	}
	return nil
}

// ValidateRetentionDays validates the queue retention period
func ValidateRetentionDays(days int) error {
	if days < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "retention days must be at least 1")
	}
	if days > 3650 {
		return errors.New(errors.ErrCodeInvalidConfig, "retention days too large (max 3650)")
	}
	return nil
}
