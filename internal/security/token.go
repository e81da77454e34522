package security

import (
	"crypto/subtle"
	"fmt"
	"net/http"
)

// TelegramSecretHeader carries the secret_token registered with setWebhook.
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// VerifySecretToken checks the Telegram webhook secret header in constant
// time. An empty expected secret disables the check unless required is set.
func VerifySecretToken(r *http.Request, expected string, required bool) error {
	if expected == "" {
		if required {
			return fmt.Errorf("webhook secret is required in production mode")
		}
		return nil
	}

	got := r.Header.Get(TelegramSecretHeader)
	if got == "" {
		return fmt.Errorf("missing header: %s", TelegramSecretHeader)
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
		return fmt.Errorf("secret token mismatch")
	}
	return nil
}
