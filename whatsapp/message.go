package whatsapp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"whatsapp-relay/persistence"
	"whatsapp-relay/utils"
)

// Chat is a resolved conversation, either a contact or a group
type Chat struct {
	ID      string
	Name    string
	IsGroup bool
	jid     types.JID
}

// Message is a WhatsApp message as seen by the relay
type Message struct {
	ID        string
	ChatID    string
	From      string
	Body      string
	Timestamp time.Time
	FromMe    bool

	QuotedID          string
	QuotedParticipant string
	QuotedBody        string
}

// HasQuotedMsg reports whether the message replies to another one
func (m *Message) HasQuotedMsg() bool {
	return m.QuotedID != ""
}

// Media is a file ready to be uploaded and sent
type Media struct {
	Data     []byte
	MimeType string
	FileName string
}

// MediaFromFilePath loads a local file and sniffs its mime type
func MediaFromFilePath(path string) (*Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading media file: %w", err)
	}
	return &Media{
		Data:     data,
		MimeType: mimetype.Detect(data).String(),
		FileName: filepath.Base(path),
	}, nil
}

func mediaTypeFor(mime string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mime, "video/"):
		return whatsmeow.MediaVideo
	case strings.HasPrefix(mime, "audio/"):
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

// messageBody returns the text of a message; media messages yield their caption
func messageBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	}
	return ""
}

func contextInfo(msg *waE2E.Message) *waE2E.ContextInfo {
	if msg == nil {
		return nil
	}
	switch {
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetContextInfo()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetContextInfo()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetContextInfo()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetContextInfo()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetContextInfo()
	case msg.GetStickerMessage() != nil:
		return msg.GetStickerMessage().GetContextInfo()
	}
	return nil
}

// messageFromEvent converts a whatsmeow message event. Received messages come
// from their chat (the group for group messages); our own come from us.
func messageFromEvent(v *events.Message) *Message {
	chatID := utils.FromJID(v.Info.Chat)
	from := chatID
	if v.Info.IsFromMe {
		from = utils.FromJID(v.Info.Sender)
	}

	msg := &Message{
		ID:        v.Info.ID,
		ChatID:    chatID,
		From:      from,
		Body:      messageBody(v.Message),
		Timestamp: v.Info.Timestamp,
		FromMe:    v.Info.IsFromMe,
	}

	if ci := contextInfo(v.Message); ci != nil && ci.GetStanzaID() != "" {
		msg.QuotedID = ci.GetStanzaID()
		if p := ci.GetParticipant(); p != "" {
			msg.QuotedParticipant = p
			if jid, err := types.ParseJID(p); err == nil {
				msg.QuotedParticipant = utils.FromJID(jid)
			}
		}
		msg.QuotedBody = messageBody(ci.GetQuotedMessage())
	}
	return msg
}

func toStored(m *Message) *persistence.StoredMessage {
	return &persistence.StoredMessage{
		ID:        m.ID,
		ChatID:    m.ChatID,
		From:      m.From,
		Body:      m.Body,
		Timestamp: m.Timestamp,
		FromMe:    m.FromMe,
	}
}

func fromStored(s *persistence.StoredMessage) *Message {
	return &Message{
		ID:        s.ID,
		ChatID:    s.ChatID,
		From:      s.From,
		Body:      s.Body,
		Timestamp: s.Timestamp,
		FromMe:    s.FromMe,
	}
}
