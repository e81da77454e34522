package privacy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskChatID(t *testing.T) {
	tests := []struct {
		name   string
		chatID int64
		want   string
	}{
		{"channel", -1001234567890, "-*********7890"},
		{"user", 123456789, "*****6789"},
		{"short", 42, "**"},
		{"negative short", -7, "-*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskChatID(tt.chatID))
		})
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"empty", "", ""},
		{"bot token", "123456:ABCdefGHIjkl", "123456:********Ijkl"},
		{"opaque token", "glide-secret-token", strings.Repeat("*", 14) + "oken"},
		{"short", "abc", "***"},
		{"non numeric prefix", "abc:defghijk", strings.Repeat("*", 8) + "hijk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskToken(tt.token))
		})
	}
}

func TestTruncateCaption(t *testing.T) {
	assert.Equal(t, "short", TruncateCaption("short"))

	long := strings.Repeat("я", 30)
	got := TruncateCaption(long)
	assert.Equal(t, strings.Repeat("я", 24)+"...", got)
}

func TestMaskSensitiveFields(t *testing.T) {
	assert.Nil(t, MaskSensitiveFields(nil))

	fields := map[string]interface{}{
		"chat_id":        int64(-1001234567890),
		"chatId":         "987654321",
		"api_token":      "glide-secret-token",
		"secret":         42,
		"caption":        strings.Repeat("a", 40),
		"correlation_id": "c-1",
	}

	masked := MaskSensitiveFields(fields)

	assert.Equal(t, "-*********7890", masked["chat_id"])
	assert.Equal(t, "*****4321", masked["chatId"])
	assert.Equal(t, strings.Repeat("*", 14)+"oken", masked["api_token"])
	assert.Equal(t, "***MASKED***", masked["secret"])
	assert.Equal(t, strings.Repeat("a", 24)+"...", masked["caption"])
	assert.Equal(t, "c-1", masked["correlation_id"])
	assert.Equal(t, int64(-1001234567890), fields["chat_id"], "input must not be modified")
}
