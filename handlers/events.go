package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"whatsapp-relay/models"
	"whatsapp-relay/session"
	"whatsapp-relay/utils"
	"whatsapp-relay/whatsapp"
)

const (
	pingCommand = "!ping"
	pongReply   = "pong"
)

// Forwarder delivers inbound messages to the downstream webhook
type Forwarder interface {
	Forward(msg models.InboundMessage)
}

// QRRenderer turns a pairing payload into a displayable image
type QRRenderer interface {
	Render(payload string) (string, error)
	PrintTerminal(payload string)
}

// EventRelay reacts to WhatsApp client events: it keeps the session state
// current, forwards inbound messages and answers !ping.
type EventRelay struct {
	client    WhatsAppClient
	session   *session.State
	renderer  QRRenderer
	forwarder Forwarder
	timeout   time.Duration
	log       zerolog.Logger
}

// NewEventRelay builds the relay; timeout bounds each client call it makes
func NewEventRelay(client WhatsAppClient, state *session.State, renderer QRRenderer, forwarder Forwarder, timeout time.Duration, log zerolog.Logger) *EventRelay {
	return &EventRelay{
		client:    client,
		session:   state,
		renderer:  renderer,
		forwarder: forwarder,
		timeout:   timeout,
		log:       log,
	}
}

var _ whatsapp.EventHandler = (*EventRelay)(nil)

// HandleQR renders a new pairing code into the session state. A code that
// cannot be rendered leaves no QR available.
func (r *EventRelay) HandleQR(code string) {
	image, err := r.renderer.Render(code)
	if err != nil {
		r.log.Error().Err(err).Msg("❌ Could not render QR code")
		r.session.ClearQR()
		return
	}
	r.session.RecordQR(image)
	r.renderer.PrintTerminal(code)
}

func (r *EventRelay) HandleAuthenticated() {
	r.log.Info().Msg("🔐 Authenticated")
	r.session.RecordConnectionState(r.client.GetState())
	r.session.ClearQR()
}

// HandleReady records the live state and drops the pairing code
func (r *EventRelay) HandleReady() {
	r.log.Info().Msg("✅ WhatsApp client ready")
	r.session.RecordConnectionState(r.client.GetState())
	r.session.ClearQR()
}

func (r *EventRelay) HandleDisconnected(reason string) {
	r.log.Warn().Str("reason", reason).Msg("⚠️ WhatsApp client disconnected")
	r.session.RecordConnectionState(r.client.GetState())
}

// HandleMessage forwards a received message, with the message it quotes when
// that can be resolved.
func (r *EventRelay) HandleMessage(msg *whatsapp.Message) {
	inbound := models.InboundMessage{
		From:    msg.From,
		Body:    msg.Body,
		IsGroup: utils.IsGroupID(msg.From),
	}
	if msg.HasQuotedMsg() {
		inbound.QuotedMessage = r.quoted(msg)
	}

	r.log.Debug().Str("from", msg.From).Bool("group", inbound.IsGroup).Msg("📩 Forwarding message")
	r.forwarder.Forward(inbound)
}

func (r *EventRelay) quoted(msg *whatsapp.Message) *models.QuotedMessage {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	q, err := r.client.GetQuotedMessage(ctx, msg)
	if err != nil {
		r.log.Warn().Err(err).Str("id", msg.ID).Msg("Could not load quoted message")
		return nil
	}
	var ts int64
	if !q.Timestamp.IsZero() {
		ts = q.Timestamp.Unix()
	}
	return &models.QuotedMessage{From: q.From, Body: q.Body, Timestamp: ts}
}

// HandleMessageCreate answers an exact "!ping" with "pong", whoever sent it
func (r *EventRelay) HandleMessageCreate(msg *whatsapp.Message) {
	if msg.Body != pingCommand {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.SendMessage(ctx, msg.From, pongReply); err != nil {
		r.log.Error().Err(err).Str("to", msg.From).Msg("❌ Could not reply to ping")
	}
}
