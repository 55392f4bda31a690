package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"whatsapp-relay/models"
	"whatsapp-relay/persistence"
	"whatsapp-relay/utils"
)

var (
	ErrChatNotFound     = errors.New("chat not found")
	ErrNotReady         = errors.New("whatsapp client is not logged in")
	ErrNoQuotedMessage  = errors.New("message has no quoted message")
	errQuotedMsgMissing = errors.New("quoted message not available")
)

// Client wraps a whatsmeow client and exposes the chat operations used by the relay
type Client struct {
	*whatsmeow.Client

	history *persistence.History
	log     zerolog.Logger

	mu      sync.RWMutex
	handler EventHandler
	ctx     context.Context
}

// NewClient crea un nuovo client WhatsApp sul primo dispositivo del session store
func NewClient(dbStore *sqlstore.Container, history *persistence.History, log zerolog.Logger) (*Client, error) {
	deviceStore, err := dbStore.GetFirstDevice()
	if err != nil {
		return nil, fmt.Errorf("loading device: %w", err)
	}

	wmLog := waLog.Zerolog(log.With().Str("component", "whatsmeow").Logger())
	c := &Client{
		Client:  whatsmeow.NewClient(deviceStore, wmLog),
		history: history,
		log:     log.With().Str("component", "whatsapp").Logger(),
		ctx:     context.Background(),
	}
	c.AddEventHandler(c.handleEvent)
	return c, nil
}

// SetEventHandler registers the receiver of session and message events.
// It must be called before Start.
func (c *Client) SetEventHandler(h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *Client) eventHandler() EventHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler
}

// Start connects to WhatsApp, going through QR pairing when the device is not
// registered yet.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	if c.Store.ID == nil {
		return c.pair(ctx)
	}

	c.log.Info().Str("jid", c.Store.ID.String()).Msg("Already registered, connecting")
	if err := c.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	return nil
}

func (c *Client) pair(ctx context.Context) error {
	qrChan, err := c.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := c.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	go c.pumpQR(ctx, qrChan)
	return nil
}

func (c *Client) pumpQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			c.log.Info().Msg("📱 QR code received, open /qrcode-wpp to scan it")
			if h := c.eventHandler(); h != nil {
				h.HandleQR(evt.Code)
			}
		case whatsmeow.QRChannelSuccess.Event:
			c.log.Info().Msg("✅ QR code scanned, device paired")
		case whatsmeow.QRChannelTimeout.Event:
			c.log.Warn().Msg("QR code timed out, restarting pairing")
			c.restartPairing(ctx)
			return
		default:
			c.log.Warn().Str("event", evt.Event).Err(evt.Error).Msg("QR channel event")
		}
	}
}

func (c *Client) restartPairing(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c.Disconnect()
	if err := c.pair(ctx); err != nil {
		c.log.Error().Err(err).Msg("❌ Could not restart pairing")
	}
}

func (c *Client) handleEvent(evt interface{}) {
	h := c.eventHandler()
	if h == nil {
		return
	}

	switch v := evt.(type) {
	case *events.PairSuccess:
		c.log.Info().Str("jid", v.ID.String()).Msg("Device paired")
		h.HandleAuthenticated()

	case *events.Connected:
		c.log.Info().Msg("Connected to WhatsApp")
		h.HandleAuthenticated()
		h.HandleReady()

	case *events.Disconnected:
		h.HandleDisconnected("connection lost")

	case *events.StreamReplaced:
		h.HandleDisconnected("stream replaced by another client")

	case *events.LoggedOut:
		h.HandleDisconnected("logged out: " + v.Reason.String())
		c.mu.RLock()
		ctx := c.ctx
		c.mu.RUnlock()
		go c.restartPairing(ctx)

	case *events.Message:
		msg := messageFromEvent(v)
		c.store(msg)
		h.HandleMessageCreate(msg)
		if !msg.FromMe {
			h.HandleMessage(msg)
		}

	case *events.HistorySync:
		c.storeHistorySync(v)
	}
}

func (c *Client) storeHistorySync(v *events.HistorySync) {
	stored := 0
	for _, conv := range v.Data.GetConversations() {
		chatJID, err := types.ParseJID(conv.GetID())
		if err != nil {
			continue
		}
		for _, hm := range conv.GetMessages() {
			evt, err := c.ParseWebMessage(chatJID, hm.GetMessage())
			if err != nil {
				continue
			}
			c.store(messageFromEvent(evt))
			stored++
		}
	}
	c.log.Debug().Int("messages", stored).Msg("History sync stored")
}

func (c *Client) store(msg *Message) {
	if c.history == nil || msg.ID == "" {
		return
	}
	if err := c.history.Save(toStored(msg)); err != nil {
		c.log.Warn().Err(err).Str("id", msg.ID).Msg("Could not store message in history")
	}
}

func (c *Client) ownID() string {
	if c.Client == nil || c.Store == nil || c.Store.ID == nil {
		return ""
	}
	return utils.FromJID(*c.Store.ID)
}

// GetState reports the connection state in WhatsApp Web terms
func (c *Client) GetState() models.ConnectionState {
	switch {
	case c.Store.ID == nil && c.IsConnected():
		return models.StatePairing
	case c.Store.ID == nil:
		return models.StateUnpaired
	case c.IsConnected() && c.IsLoggedIn():
		return models.StateConnected
	case c.IsConnected():
		return models.StateOpening
	default:
		return models.StateDisconnected
	}
}

// GetChatByID resolves a chat identifier: groups must be joined, contacts
// must be registered on WhatsApp.
func (c *Client) GetChatByID(ctx context.Context, id string) (*Chat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	jid, err := utils.ToJID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChatNotFound, err)
	}
	if !c.IsLoggedIn() {
		return nil, ErrNotReady
	}

	switch jid.Server {
	case types.GroupServer:
		info, err := c.GetGroupInfo(jid)
		if errors.Is(err, whatsmeow.ErrGroupNotFound) || errors.Is(err, whatsmeow.ErrNotInGroup) {
			return nil, ErrChatNotFound
		} else if err != nil {
			return nil, fmt.Errorf("fetching group info: %w", err)
		}
		return &Chat{ID: utils.FromJID(jid), Name: info.Name, IsGroup: true, jid: jid}, nil

	case types.DefaultUserServer:
		resp, err := c.IsOnWhatsApp([]string{"+" + jid.User})
		if err != nil {
			return nil, fmt.Errorf("checking number: %w", err)
		}
		if len(resp) == 0 || !resp[0].IsIn {
			return nil, ErrChatNotFound
		}
		return &Chat{ID: utils.FromJID(resp[0].JID), Name: c.contactName(resp[0].JID), jid: resp[0].JID}, nil
	}
	return nil, ErrChatNotFound
}

func (c *Client) contactName(jid types.JID) string {
	contactInfo, err := c.Store.Contacts.GetContact(jid)
	if err != nil || contactInfo.PushName == "" {
		return jid.User
	}
	return contactInfo.PushName
}

// FetchMessages returns up to limit of the latest messages of a chat, oldest first
func (c *Client) FetchMessages(ctx context.Context, chat *Chat, limit int) ([]*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.history == nil {
		return nil, nil
	}
	stored, err := c.history.Recent(chat.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	out := make([]*Message, 0, len(stored))
	for i := range stored {
		out = append(out, fromStored(&stored[i]))
	}
	return out, nil
}

// SendMessage sends a plain text message to a chat identifier
func (c *Client) SendMessage(ctx context.Context, chatID string, text string) error {
	jid, err := utils.ToJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	resp, err := c.Client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	c.recordSent(jid, resp, text)
	return nil
}

// SendMedia uploads the media and sends it with a caption
func (c *Client) SendMedia(ctx context.Context, chatID string, media *Media, caption string) error {
	jid, err := utils.ToJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	mediaType := mediaTypeFor(media.MimeType)
	uploaded, err := c.Upload(ctx, media.Data, mediaType)
	if err != nil {
		return fmt.Errorf("uploading media: %w", err)
	}

	resp, err := c.Client.SendMessage(ctx, jid, buildMediaMessage(mediaType, uploaded, media, caption))
	if err != nil {
		return fmt.Errorf("sending media: %w", err)
	}
	c.recordSent(jid, resp, caption)
	return nil
}

func buildMediaMessage(mediaType whatsmeow.MediaType, up whatsmeow.UploadResponse, media *Media, caption string) *waE2E.Message {
	switch mediaType {
	case whatsmeow.MediaImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	case whatsmeow.MediaVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	case whatsmeow.MediaAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	default:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       proto.String(caption),
			Title:         proto.String(media.FileName),
			FileName:      proto.String(media.FileName),
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	}
}

// recordSent stores our own outgoing message and emits it as message_create,
// since whatsmeow does not echo messages sent by this device.
func (c *Client) recordSent(to types.JID, resp whatsmeow.SendResponse, body string) {
	ts := resp.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := &Message{
		ID:        resp.ID,
		ChatID:    utils.FromJID(to),
		From:      c.ownID(),
		Body:      body,
		Timestamp: ts,
		FromMe:    true,
	}
	c.store(msg)
	if h := c.eventHandler(); h != nil {
		h.HandleMessageCreate(msg)
	}
}

// GetQuotedMessage returns the message msg replies to. The local history is
// consulted first; the copy embedded in the reply is used as a fallback.
func (c *Client) GetQuotedMessage(ctx context.Context, msg *Message) (*Message, error) {
	if !msg.HasQuotedMsg() {
		return nil, ErrNoQuotedMessage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.history != nil {
		stored, err := c.history.Get(msg.QuotedID)
		if err == nil {
			return fromStored(stored), nil
		}
		if !errors.Is(err, persistence.ErrMessageNotFound) {
			return nil, fmt.Errorf("loading quoted message %s: %w", msg.QuotedID, err)
		}
	}

	if msg.QuotedBody == "" {
		return nil, fmt.Errorf("%w: %s", errQuotedMsgMissing, msg.QuotedID)
	}
	from := msg.ChatID
	if own := c.ownID(); own != "" && msg.QuotedParticipant == own {
		from = own
	}
	return &Message{
		ID:     msg.QuotedID,
		ChatID: msg.ChatID,
		From:   from,
		Body:   msg.QuotedBody,
		FromMe: from != msg.ChatID,
	}, nil
}
