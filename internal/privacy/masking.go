package privacy

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"tgmedia/internal/constants"
)

// MaskChatID masks a Telegram chat ID keeping the sign and the last digits
// Example: -1001234567890 -> "-*********7890"
func MaskChatID(chatID int64) string {
	s := strconv.FormatInt(chatID, 10)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	return sign + maskString(s, constants.DefaultChatIDMaskLength)
}

// MaskToken hides everything but the last few characters of a secret.
// Bot tokens keep their numeric bot id prefix: "123456:ABC...xyz" -> "123456:****wxyz"
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if i := strings.Index(token, ":"); i > 0 && isNumeric(token[:i]) {
		return token[:i+1] + maskString(token[i+1:], constants.DefaultTokenVisibleChars)
	}
	return maskString(token, constants.DefaultTokenVisibleChars)
}

// TruncateCaption shortens a caption for logging, on a rune boundary
func TruncateCaption(caption string) string {
	limit := constants.DefaultCaptionLogLength
	if utf8.RuneCountInString(caption) <= limit {
		return caption
	}
	runes := []rune(caption)
	return string(runes[:limit]) + "..."
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		switch k {
		case "chat_id", "chatId":
			switch id := v.(type) {
			case int64:
				masked[k] = MaskChatID(id)
			case string:
				masked[k] = maskString(id, constants.DefaultChatIDMaskLength)
			default:
				masked[k] = v
			}
		case "token", "bot_token", "api_token", "secret", "authorization":
			if s, ok := v.(string); ok {
				masked[k] = MaskToken(s)
			} else {
				masked[k] = "***MASKED***"
			}
		case "caption", "body":
			if s, ok := v.(string); ok {
				masked[k] = TruncateCaption(s)
			} else {
				masked[k] = v
			}
		default:
			masked[k] = v
		}
	}

	return masked
}
