package whatsapp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

// recordingHandler logs every EventHandler call in order
type recordingHandler struct {
	mu       sync.Mutex
	calls    []string
	messages []*Message
	creates  []*Message
}

func (r *recordingHandler) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recordingHandler) HandleQR(code string)             { r.record("qr:" + code) }
func (r *recordingHandler) HandleAuthenticated()             { r.record("authenticated") }
func (r *recordingHandler) HandleReady()                     { r.record("ready") }
func (r *recordingHandler) HandleDisconnected(reason string) { r.record("disconnected") }

func (r *recordingHandler) HandleMessage(msg *Message) {
	r.record("message")
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
}

func (r *recordingHandler) HandleMessageCreate(msg *Message) {
	r.record("message_create")
	r.mu.Lock()
	r.creates = append(r.creates, msg)
	r.mu.Unlock()
}

func (r *recordingHandler) callList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newDispatchClient(t *testing.T) (*Client, *recordingHandler) {
	t.Helper()
	// cancelled so a logout does not try to re-pair
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recordingHandler{}
	return &Client{history: newTestHistory(t), handler: rec, log: zerolog.Nop(), ctx: ctx}, rec
}

func textEvent(id string, fromMe bool, body string) *events.Message {
	chat := types.NewJID("5511999999999", types.DefaultUserServer)
	sender := chat
	if fromMe {
		sender = types.NewJID("5511000000000", types.DefaultUserServer)
	}
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: sender, IsFromMe: fromMe},
			ID:            id,
			Timestamp:     time.Unix(1700000000, 0),
		},
		Message: &waE2E.Message{Conversation: proto.String(body)},
	}
}

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestHandleEventIncomingMessage(t *testing.T) {
	c, rec := newDispatchClient(t)

	c.handleEvent(textEvent("IN1", false, "hello"))

	if got := rec.callList(); !equalCalls(got, []string{"message_create", "message"}) {
		t.Fatalf("unexpected calls %v", got)
	}
	if rec.messages[0] != rec.creates[0] || rec.messages[0].Body != "hello" || rec.messages[0].FromMe {
		t.Errorf("unexpected message %+v", rec.messages[0])
	}
	if _, err := c.history.Get("IN1"); err != nil {
		t.Errorf("incoming message not stored: %v", err)
	}
}

func TestHandleEventOwnMessageIsNotForwarded(t *testing.T) {
	c, rec := newDispatchClient(t)

	c.handleEvent(textEvent("OUT1", true, "!ping"))

	if got := rec.callList(); !equalCalls(got, []string{"message_create"}) {
		t.Fatalf("own messages must only raise message_create, got %v", got)
	}
	if !rec.creates[0].FromMe || rec.creates[0].From != "5511000000000@c.us" {
		t.Errorf("unexpected own message %+v", rec.creates[0])
	}
}

func TestHandleEventSessionLifecycle(t *testing.T) {
	c, rec := newDispatchClient(t)

	c.handleEvent(&events.PairSuccess{ID: types.NewJID("5511000000000", types.DefaultUserServer)})
	c.handleEvent(&events.Connected{})
	c.handleEvent(&events.Disconnected{})
	c.handleEvent(&events.StreamReplaced{})
	c.handleEvent(&events.LoggedOut{Reason: events.ConnectFailureLoggedOut})

	want := []string{"authenticated", "authenticated", "ready", "disconnected", "disconnected", "disconnected"}
	if got := rec.callList(); !equalCalls(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestHandleEventWithoutHandler(t *testing.T) {
	c := &Client{history: newTestHistory(t), log: zerolog.Nop()}

	// must not panic, and nothing is stored without a handler
	c.handleEvent(textEvent("X", false, "hi"))
	if _, err := c.history.Get("X"); err == nil {
		t.Error("expected no dispatch without a handler")
	}
}

func TestRecordSentEmitsMessageCreate(t *testing.T) {
	c, rec := newDispatchClient(t)
	to := types.NewJID("5511999999999", types.DefaultUserServer)
	ts := time.Unix(1700000100, 0)

	c.recordSent(to, whatsmeow.SendResponse{ID: "SENT1", Timestamp: ts}, "pong")

	if got := rec.callList(); !equalCalls(got, []string{"message_create"}) {
		t.Fatalf("unexpected calls %v", got)
	}
	msg := rec.creates[0]
	if msg.ID != "SENT1" || msg.ChatID != "5511999999999@c.us" || msg.Body != "pong" || !msg.FromMe || !msg.Timestamp.Equal(ts) {
		t.Errorf("unexpected echo %+v", msg)
	}

	stored, err := c.history.Get("SENT1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Body != "pong" || !stored.FromMe {
		t.Errorf("unexpected stored copy %+v", stored)
	}
}
