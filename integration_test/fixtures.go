package integration_test

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	testChatID       int64 = -1001987654321
	testChannelTitle       = "Inventory Drops"
	testChannelUser        = "inventory_drops"
)

var baseDate = time.Date(2026, 10, 12, 8, 30, 0, 0, time.UTC)

// photoPost describes one channel post carrying a photo.
type photoPost struct {
	MessageID    int
	FileID       string
	FileUniqueID string
	Caption      string
	MediaGroupID string
}

func testChannel() *tgbotapi.Chat {
	return &tgbotapi.Chat{
		ID:       testChatID,
		Type:     "channel",
		Title:    testChannelTitle,
		UserName: testChannelUser,
	}
}

func (p photoPost) message() *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID:    p.MessageID,
		Chat:         testChannel(),
		SenderChat:   testChannel(),
		Date:         int(baseDate.Add(time.Duration(p.MessageID) * time.Second).Unix()),
		MediaGroupID: p.MediaGroupID,
		Caption:      p.Caption,
		Photo: []tgbotapi.PhotoSize{
			{FileID: p.FileID + "-thumb", FileUniqueID: p.FileUniqueID + "-thumb", Width: 90, Height: 90, FileSize: 512},
			{FileID: p.FileID, FileUniqueID: p.FileUniqueID, Width: 1280, Height: 960, FileSize: 4096},
		},
	}
}

// channelPost wraps p in a channel_post update.
func channelPost(updateID int, p photoPost) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: updateID, ChannelPost: p.message()}
}

// editedChannelPost wraps p in an edited_channel_post update.
func editedChannelPost(updateID int, p photoPost) tgbotapi.Update {
	msg := p.message()
	msg.EditDate = int(baseDate.Add(time.Hour).Unix())
	return tgbotapi.Update{UpdateID: updateID, EditedChannelPost: msg}
}

// textPost is a channel post without media.
func textPost(updateID, messageID int, text string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: updateID, ChannelPost: &tgbotapi.Message{
		MessageID:  messageID,
		Chat:       testChannel(),
		SenderChat: testChannel(),
		Date:       int(baseDate.Unix()),
		Text:       text,
	}}
}

// album returns count posts sharing groupID; only the first is captioned.
func album(groupID string, firstMessageID, count int, caption string) []photoPost {
	posts := make([]photoPost, count)
	for i := range posts {
		id := firstMessageID + i
		posts[i] = photoPost{
			MessageID:    id,
			FileID:       groupID + "-file-" + string(rune('a'+i)),
			FileUniqueID: groupID + "-uniq-" + string(rune('a'+i)),
			MediaGroupID: groupID,
		}
	}
	posts[0].Caption = caption
	return posts
}

// jpegBytes returns a small JPEG-looking payload.
func jpegBytes(tag string) []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte(tag)...)
}
