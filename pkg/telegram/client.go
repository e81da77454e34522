package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "tgmedia/internal/errors"
	"tgmedia/pkg/constants"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client is the subset of the Bot API used by the pipeline.
type Client interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error
}

// Config configures a BotClient.
type Config struct {
	Token           string
	APIEndpoint     string // format string with token and method, defaults to tgbotapi.APIEndpoint
	FileEndpoint    string // format string with token and file path, defaults to tgbotapi.FileEndpoint
	Timeout         time.Duration
	DownloadTimeout time.Duration
	MaxDownloadMB   int
}

// BotClient talks to the Telegram Bot API through tgbotapi.
type BotClient struct {
	bot          *tgbotapi.BotAPI
	fileEndpoint string
	download     *http.Client
	maxBytes     int64
}

// NewClient creates a Bot API client. It verifies the token with getMe.
func NewClient(cfg Config) (*BotClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = tgbotapi.FileEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultTelegramTimeoutSec * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = constants.DefaultMediaDownloadTimeoutSec * time.Second
	}
	if cfg.MaxDownloadMB <= 0 {
		cfg.MaxDownloadMB = constants.TelegramMaxDownloadMB
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, apperrors.NewAPIError("telegram", "getMe", statusOf(err), err)
	}

	return &BotClient{
		bot:          bot,
		fileEndpoint: cfg.FileEndpoint,
		download:     &http.Client{Timeout: cfg.DownloadTimeout},
		maxBytes:     int64(cfg.MaxDownloadMB) * constants.BytesPerMegabyte,
	}, nil
}

// Username returns the bot's username as reported by getMe.
func (c *BotClient) Username() string {
	return c.bot.Self.UserName
}

// DownloadFile resolves fileID with getFile and fetches its bytes.
func (c *BotClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	if fileID == "" {
		return nil, apperrors.NewValidationError("file_id", fileID, "is required")
	}

	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, apperrors.NewAPIError("telegram", "getFile", statusOf(err), err)
	}
	if file.FilePath == "" {
		return nil, apperrors.NewAPIError("telegram", "getFile", 0, fmt.Errorf("no file_path returned for %s", fileID))
	}
	if file.FileSize > 0 && int64(file.FileSize) > c.maxBytes {
		return nil, apperrors.NewValidationError("file_size", strconv.Itoa(file.FileSize), "exceeds download limit")
	}

	url := fmt.Sprintf(c.fileEndpoint, c.bot.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, apperrors.NewAPIError("telegram", "file", 0, redactToken(err, c.bot.Token))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxErrorBodyBytes))
		return nil, apperrors.NewAPIError("telegram", "file", resp.StatusCode,
			fmt.Errorf("download failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, apperrors.NewAPIError("telegram", "file", 0, fmt.Errorf("failed to read file body: %w", err))
	}
	if int64(len(data)) > c.maxBytes {
		return nil, apperrors.NewValidationError("file_size", strconv.Itoa(len(data)), "exceeds download limit")
	}
	return data, nil
}

// DeleteMessage removes a message from a chat or channel.
func (c *BotClient) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if _, err := c.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return apperrors.NewAPIError("telegram", "deleteMessage", statusOf(err), err).
			WithContext("message_id", messageID)
	}
	return nil
}

// EditCaption replaces the caption of a media message. An unchanged caption is not an error.
func (c *BotClient) EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error {
	_, err := c.bot.Request(tgbotapi.NewEditMessageCaption(chatID, messageID, caption))
	if err != nil {
		if isNotModified(err) {
			return nil
		}
		return apperrors.NewAPIError("telegram", "editMessageCaption", statusOf(err), err).
			WithContext("message_id", messageID)
	}
	return nil
}

func statusOf(err error) int {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code
	}
	return 0
}

func isNotModified(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && strings.Contains(tgErr.Message, "message is not modified")
}

// redactToken strips the bot token from transport errors, which embed the request URL.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, "<redacted>"))
}

// MessageURL builds the public t.me link for a channel post. Public channels
// use their username; private ones use the /c/ form with the -100 prefix removed.
func MessageURL(chatID int64, username string, messageID int) string {
	if username != "" {
		return fmt.Sprintf("%s/%s/%d", constants.TelegramPublicLink, strings.TrimPrefix(username, "@"), messageID)
	}
	id := strconv.FormatInt(chatID, 10)
	if !strings.HasPrefix(id, constants.TelegramChannelIDPfx) {
		return ""
	}
	return fmt.Sprintf("%s/c/%s/%d", constants.TelegramPublicLink, strings.TrimPrefix(id, constants.TelegramChannelIDPfx), messageID)
}
