package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-relay/models"
	"whatsapp-relay/session"
	"whatsapp-relay/webhook"
	"whatsapp-relay/whatsapp"
)

// stubRenderer encodes the payload itself instead of drawing a QR code
type stubRenderer struct {
	err error
}

func (s stubRenderer) Render(payload string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(payload)), nil
}

func (stubRenderer) PrintTerminal(string) {}

func newTestRelay(renderer QRRenderer) (*EventRelay, *fakeClient, *session.State, *recordingForwarder) {
	client := newFakeClient()
	state := session.NewState()
	fwd := &recordingForwarder{}
	return NewEventRelay(client, state, renderer, fwd, time.Second, zerolog.Nop()), client, state, fwd
}

func TestHandleQRRecordsImage(t *testing.T) {
	relay, _, state, _ := newTestRelay(stubRenderer{})

	relay.HandleQR("PAIR123")
	img, ok := state.QR()
	if !ok || img == "" {
		t.Fatal("expected a QR image after the qr event")
	}
}

func TestHandleQRRenderFailureClearsImage(t *testing.T) {
	relay, _, state, _ := newTestRelay(stubRenderer{err: errors.New("too big")})
	state.RecordQR("data:image/png;base64,old")

	relay.HandleQR("PAIR123")
	if _, ok := state.QR(); ok {
		t.Error("a failed render must leave no QR image")
	}
}

func TestHandleReadyClearsQR(t *testing.T) {
	relay, client, state, _ := newTestRelay(stubRenderer{})
	relay.HandleQR("PAIR123")

	client.state = models.StateOpening
	relay.HandleAuthenticated()
	if s, _ := state.ConnectionState(); s != models.StateOpening {
		t.Errorf("expected OPENING after authenticated, got %q", s)
	}

	client.state = models.StateConnected
	relay.HandleReady()
	if s, _ := state.ConnectionState(); s != models.StateConnected {
		t.Errorf("expected CONNECTED after ready, got %q", s)
	}
	if _, ok := state.QR(); ok {
		t.Error("QR must be cleared once ready")
	}
}

func TestHandleDisconnectedRecordsState(t *testing.T) {
	relay, client, state, _ := newTestRelay(stubRenderer{})
	client.state = models.StateDisconnected

	relay.HandleDisconnected("connection lost")
	if s, _ := state.ConnectionState(); s != models.StateDisconnected {
		t.Errorf("expected DISCONNECTED, got %q", s)
	}
}

func TestPingReplies(t *testing.T) {
	cases := []struct {
		body    string
		replies int
	}{
		{"!ping", 1},
		{"!ping ", 0},
		{"ping", 0},
		{"!PING", 0},
		{"", 0},
	}
	for _, tc := range cases {
		t.Run(tc.body, func(t *testing.T) {
			relay, client, _, fwd := newTestRelay(stubRenderer{})
			relay.HandleMessageCreate(&whatsapp.Message{ID: "1", From: "5511@c.us", Body: tc.body})

			sent := client.sentMessages()
			if len(sent) != tc.replies {
				t.Fatalf("expected %d replies, got %d", tc.replies, len(sent))
			}
			if tc.replies == 1 && (sent[0].ChatID != "5511@c.us" || sent[0].Text != "pong") {
				t.Errorf("unexpected reply %+v", sent[0])
			}
			if len(fwd.forwarded()) != 0 {
				t.Error("message_create must not forward to the webhook")
			}
		})
	}
}

func TestHandleMessageForwards(t *testing.T) {
	relay, _, _, fwd := newTestRelay(stubRenderer{})

	relay.HandleMessage(&whatsapp.Message{ID: "1", From: "5511@c.us", Body: "hello"})
	relay.HandleMessage(&whatsapp.Message{ID: "2", From: "123-456@g.us", Body: "team"})

	got := fwd.forwarded()
	if len(got) != 2 {
		t.Fatalf("expected 2 forwards, got %d", len(got))
	}
	if got[0] != (models.InboundMessage{From: "5511@c.us", Body: "hello"}) {
		t.Errorf("unexpected contact forward %+v", got[0])
	}
	if !got[1].IsGroup || got[1].QuotedMessage != nil {
		t.Errorf("unexpected group forward %+v", got[1])
	}
}

func TestHandleMessageWithQuote(t *testing.T) {
	relay, client, _, fwd := newTestRelay(stubRenderer{})
	ts := time.Unix(1700000000, 0)
	client.quoted["q1"] = &whatsapp.Message{ID: "q1", From: "5511@c.us", Body: "original", Timestamp: ts}

	relay.HandleMessage(&whatsapp.Message{ID: "1", From: "5511@c.us", Body: "reply", QuotedID: "q1"})
	relay.HandleMessage(&whatsapp.Message{ID: "2", From: "5511@c.us", Body: "reply", QuotedID: "gone"})

	got := fwd.forwarded()
	if len(got) != 2 {
		t.Fatalf("expected 2 forwards, got %d", len(got))
	}
	want := models.QuotedMessage{From: "5511@c.us", Body: "original", Timestamp: ts.Unix()}
	if got[0].QuotedMessage == nil || *got[0].QuotedMessage != want {
		t.Errorf("unexpected quote %+v", got[0].QuotedMessage)
	}
	if got[1].QuotedMessage != nil {
		t.Error("an unresolvable quote must be forwarded as null")
	}
}

func TestForwardingToUnreachableWebhookKeepsServing(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()

	client := newFakeClient()
	state := session.NewState()
	fwd := webhook.NewForwarder(url, time.Second, zerolog.Nop())
	relay := NewEventRelay(client, state, stubRenderer{}, fwd, time.Second, zerolog.Nop())
	router := SetupRoutes(NewAPI(client, state, nil, time.Second, zerolog.Nop()), zerolog.Nop())

	for i := 0; i < 5; i++ {
		relay.HandleMessage(&whatsapp.Message{ID: "x", From: "5511@c.us", Body: "hello"})
	}

	w := doRequest(router, http.MethodGet, "/status", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected the API to keep serving, got %d", w.Code)
	}
}
