package handlers

import (
	"context"
	"sync"

	"whatsapp-relay/models"
	"whatsapp-relay/whatsapp"
)

type sentMessage struct {
	ChatID  string
	Text    string
	Media   *whatsapp.Media
	Caption string
}

// fakeClient is an in-memory WhatsAppClient
type fakeClient struct {
	mu sync.Mutex

	state     models.ConnectionState
	chats     map[string]*whatsapp.Chat
	history   map[string][]*whatsapp.Message
	quoted    map[string]*whatsapp.Message
	chatErr   error
	fetchErr  error
	sendErr   error
	sent      []sentMessage
	lastLimit int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		state:   models.StateConnected,
		chats:   make(map[string]*whatsapp.Chat),
		history: make(map[string][]*whatsapp.Message),
		quoted:  make(map[string]*whatsapp.Message),
	}
}

func (f *fakeClient) addChat(id string) *whatsapp.Chat {
	chat := &whatsapp.Chat{ID: id, Name: id}
	f.chats[id] = chat
	return chat
}

func (f *fakeClient) GetState() models.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeClient) GetChatByID(ctx context.Context, id string) (*whatsapp.Chat, error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	chat, ok := f.chats[id]
	if !ok {
		return nil, whatsapp.ErrChatNotFound
	}
	return chat, nil
}

func (f *fakeClient) FetchMessages(ctx context.Context, chat *whatsapp.Chat, limit int) ([]*whatsapp.Message, error) {
	f.lastLimit = limit
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	msgs := f.history[chat.ID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, chatID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeClient) SendMedia(ctx context.Context, chatID string, media *whatsapp.Media, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Media: media, Caption: caption})
	return nil
}

func (f *fakeClient) GetQuotedMessage(ctx context.Context, msg *whatsapp.Message) (*whatsapp.Message, error) {
	if !msg.HasQuotedMsg() {
		return nil, whatsapp.ErrNoQuotedMessage
	}
	q, ok := f.quoted[msg.QuotedID]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return q, nil
}

func (f *fakeClient) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type recordingForwarder struct {
	mu       sync.Mutex
	messages []models.InboundMessage
}

func (r *recordingForwarder) Forward(msg models.InboundMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recordingForwarder) forwarded() []models.InboundMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.InboundMessage(nil), r.messages...)
}
