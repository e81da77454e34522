package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tgmedia/internal/models"
	"tgmedia/internal/tracing"
	"tgmedia/internal/validation"
	"tgmedia/pkg/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// WebhookResult describes what HandleUpdate did with an update
type WebhookResult struct {
	MessageID     string `json:"message_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	QueueItemID   string `json:"queue_item_id,omitempty"`
	HasMedia      bool   `json:"has_media"`
	Enqueued      bool   `json:"enqueued"`
	Duplicate     bool   `json:"duplicate"`
	Edited        bool   `json:"edited"`
	Reanalyzed    int    `json:"reanalyzed,omitempty"`
	Ignored       bool   `json:"ignored"`
}

// WebhookService turns Telegram updates into messages rows and queue items
type WebhookService struct {
	messages        MessageStore
	media           MediaStore
	queue           *QueueManager
	groups          *GroupSync
	analyzer        *CaptionAnalyzer
	channelUsername string
	logger          *logrus.Logger
}

func NewWebhookService(messages MessageStore, media MediaStore, queue *QueueManager, groups *GroupSync,
	analyzer *CaptionAnalyzer, channelUsername string, logger *logrus.Logger) *WebhookService {
	if analyzer == nil {
		analyzer = NewCaptionAnalyzer()
	}
	return &WebhookService{
		messages:        messages,
		media:           media,
		queue:           queue,
		groups:          groups,
		analyzer:        analyzer,
		channelUsername: channelUsername,
		logger:          logger,
	}
}

// HandleUpdate stores the message carried by update and queues it. Updates
// without a message or channel post are ignored.
func (s *WebhookService) HandleUpdate(ctx context.Context, update tgbotapi.Update) (WebhookResult, error) {
	msg, edited := updateMessage(update)
	if msg == nil || msg.Chat == nil {
		s.logger.WithField("update_id", update.UpdateID).Debug("Skipping update: no message")
		return WebhookResult{Ignored: true}, nil
	}

	ctx, span := tracing.StartSpan(ctx, "webhook.update",
		attribute.Int("update_id", update.UpdateID),
		attribute.Bool("edited", edited),
	)
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()

	data := buildMediaData(msg, s.messageURL(msg))
	if data.HasMedia() {
		if err := validation.ValidateMediaPayload(&data); err != nil {
			spanErr = err
			return WebhookResult{}, err
		}
	}

	record := &models.Message{
		TelegramMessageID: int64(msg.MessageID),
		ChatID:            msg.Chat.ID,
		ChatType:          msg.Chat.Type,
		ChatTitle:         msg.Chat.Title,
		MediaGroupID:      optionalString(msg.MediaGroupID),
		Caption:           optionalString(messageText(msg)),
		MessageDate:       msg.Time().UTC(),
		Status:            models.StatusPending,
		MessageURL:        optionalString(data.Message.MessageURL),
		MessageMediaData:  data,
	}
	stored, created, err := s.messages.UpsertMessage(ctx, record)
	if err != nil {
		spanErr = err
		return WebhookResult{}, fmt.Errorf("failed to store message: %w", err)
	}

	ctx = tracing.WithCorrelationID(ctx, stored.CorrelationID)
	result := WebhookResult{
		MessageID:     stored.ID,
		CorrelationID: stored.CorrelationID,
		HasMedia:      data.HasMedia(),
		Edited:        edited,
	}
	log := LogWithContext(ctx, s.logger).WithFields(logrus.Fields{
		LogFieldChatID:        SanitizeChatID(ctx, stored.ChatID),
		LogFieldTelegramMsgID: stored.TelegramMessageID,
		"created":             created,
		"edited":              edited,
	})

	if edited && !created {
		n, err := s.reanalyze(ctx, stored)
		if err != nil {
			log.WithError(err).Warn("Failed to refresh analysis for edited message")
		}
		result.Reanalyzed = n
		if n > 0 {
			log.WithField(LogFieldCount, n).Info("Edited message re-analyzed")
			return result, nil
		}
	}

	queueType := models.QueueTypeWebhook
	if result.HasMedia {
		queueType = models.QueueTypeMedia
	}
	enq, err := s.queue.Enqueue(ctx, stored, stored.CorrelationID, queueType)
	if err != nil {
		spanErr = err
		return result, fmt.Errorf("failed to enqueue message: %w", err)
	}
	result.Enqueued = !enq.Duplicate
	result.Duplicate = enq.Duplicate
	if enq.Item != nil {
		result.QueueItemID = enq.Item.ID
	}

	log.WithFields(logrus.Fields{
		LogFieldQueueType: queueType,
		"duplicate":       enq.Duplicate,
	}).Info("Webhook update accepted")
	return result, nil
}

// reanalyze refreshes caption fields of media already stored for msg and
// re-syncs its album.
func (s *WebhookService) reanalyze(ctx context.Context, msg *models.Message) (int, error) {
	rows, err := s.media.ListMediaByMessage(ctx, msg.ChatID, msg.TelegramMessageID)
	if err != nil || len(rows) == 0 {
		return 0, err
	}

	caption := ""
	if msg.Caption != nil {
		caption = *msg.Caption
	}
	analysis := s.analyzer.Analyze(caption)
	originalID := msg.TelegramMessageID

	updated := 0
	for _, row := range rows {
		row.Caption = optionalString(caption)
		row.ApplyAnalysis(analysis)
		if err := s.media.UpdateMediaCaptionFields(ctx, row.ID, row.CaptionFields(), caption != "", &originalID); err != nil {
			return updated, err
		}
		updated++
	}

	if msg.HasMediaGroup() && s.groups != nil {
		if err := s.groups.PropagateFrom(ctx, rows[0]); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

func (s *WebhookService) messageURL(msg *tgbotapi.Message) string {
	username := msg.Chat.UserName
	if username == "" && msg.Chat.IsChannel() {
		username = s.channelUsername
	}
	return telegram.MessageURL(msg.Chat.ID, username, msg.MessageID)
}

func updateMessage(update tgbotapi.Update) (*tgbotapi.Message, bool) {
	switch {
	case update.Message != nil:
		return update.Message, false
	case update.ChannelPost != nil:
		return update.ChannelPost, false
	case update.EditedMessage != nil:
		return update.EditedMessage, true
	case update.EditedChannelPost != nil:
		return update.EditedChannelPost, true
	}
	return nil, false
}

func messageText(msg *tgbotapi.Message) string {
	if msg.Caption != "" {
		return msg.Caption
	}
	if msg.Photo == nil && msg.Video == nil && msg.Document == nil {
		return msg.Text
	}
	return ""
}

func buildMediaData(msg *tgbotapi.Message, messageURL string) models.MessageMediaData {
	data := models.MessageMediaData{
		Message: models.MessageInfo{
			MessageID:    int64(msg.MessageID),
			ChatID:       msg.Chat.ID,
			ChatType:     msg.Chat.Type,
			ChatTitle:    msg.Chat.Title,
			MediaGroupID: msg.MediaGroupID,
			Caption:      messageText(msg),
			Date:         msg.Time().UTC(),
			MessageURL:   messageURL,
		},
		Meta: models.Meta{Status: models.StatusPending},
	}
	if msg.EditDate != 0 {
		data.Message.EditDate = time.Unix(int64(msg.EditDate), 0).UTC()
	}

	switch {
	case msg.From != nil:
		data.Sender = models.SenderInfo{
			UserID:    msg.From.ID,
			Username:  msg.From.UserName,
			FirstName: msg.From.FirstName,
			LastName:  msg.From.LastName,
		}
	case msg.SenderChat != nil:
		data.Sender = models.SenderInfo{
			UserID:    msg.SenderChat.ID,
			Username:  msg.SenderChat.UserName,
			ChatTitle: msg.SenderChat.Title,
			IsChannel: true,
		}
	case msg.Chat.IsChannel():
		data.Sender = models.SenderInfo{
			UserID:    msg.Chat.ID,
			Username:  msg.Chat.UserName,
			ChatTitle: msg.Chat.Title,
			IsChannel: true,
		}
	}

	data.Media = mediaFile(msg)
	if raw, err := json.Marshal(msg); err == nil {
		data.TelegramData = raw
	}
	return data
}

// mediaFile picks the attachment of msg; for photos the largest size wins.
func mediaFile(msg *tgbotapi.Message) *models.MediaFile {
	switch {
	case len(msg.Photo) > 0:
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height ||
				(p.Width*p.Height == best.Width*best.Height && p.FileSize > best.FileSize) {
				best = p
			}
		}
		return &models.MediaFile{
			FileID:       best.FileID,
			FileUniqueID: best.FileUniqueID,
			FileType:     models.FileTypePhoto,
			MimeType:     "image/jpeg",
			FileSize:     int64(best.FileSize),
			Width:        best.Width,
			Height:       best.Height,
		}
	case msg.Video != nil:
		v := msg.Video
		return &models.MediaFile{
			FileID:       v.FileID,
			FileUniqueID: v.FileUniqueID,
			FileType:     models.FileTypeVideo,
			MimeType:     v.MimeType,
			FileSize:     int64(v.FileSize),
			FileName:     v.FileName,
			Width:        v.Width,
			Height:       v.Height,
			Duration:     v.Duration,
		}
	case msg.Document != nil:
		d := msg.Document
		return &models.MediaFile{
			FileID:       d.FileID,
			FileUniqueID: d.FileUniqueID,
			FileType:     models.FileTypeDocument,
			MimeType:     d.MimeType,
			FileSize:     int64(d.FileSize),
			FileName:     d.FileName,
		}
	}
	return nil
}
