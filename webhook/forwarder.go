package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"whatsapp-relay/models"
)

// ForwardError describes a failed webhook delivery. It is only ever logged.
type ForwardError struct {
	DeliveryID string
	StatusCode int
	Err        error
}

func (e *ForwardError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webhook delivery %s failed: %v", e.DeliveryID, e.Err)
	}
	return fmt.Sprintf("webhook delivery %s failed: HTTP %d", e.DeliveryID, e.StatusCode)
}

func (e *ForwardError) Unwrap() error {
	return e.Err
}

// Forwarder posts inbound messages to the downstream workflow endpoint
type Forwarder struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

func NewForwarder(url string, timeout time.Duration, log zerolog.Logger) *Forwarder {
	return &Forwarder{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "webhook").Logger(),
	}
}

// Forward delivers the message on a detached goroutine. The outcome is logged
// and never reported back to the caller.
func (f *Forwarder) Forward(msg models.InboundMessage) {
	if f.url == "" {
		f.log.Debug().Str("from", msg.From).Msg("webhook disabled, message not forwarded")
		return
	}
	go func() {
		if err := f.Deliver(context.Background(), msg); err != nil {
			f.log.Error().Err(err).Str("from", msg.From).Msg("❌ Error forwarding message to Node-RED")
		}
	}()
}

// Deliver performs a single JSON POST and waits for the response
func (f *Forwarder) Deliver(ctx context.Context, msg models.InboundMessage) error {
	deliveryID := uuid.New().String()

	body, err := json.Marshal(msg)
	if err != nil {
		return &ForwardError{DeliveryID: deliveryID, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return &ForwardError{DeliveryID: deliveryID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", deliveryID)

	resp, err := f.client.Do(req)
	if err != nil {
		return &ForwardError{DeliveryID: deliveryID, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ForwardError{DeliveryID: deliveryID, StatusCode: resp.StatusCode}
	}

	f.log.Info().Str("delivery_id", deliveryID).Str("from", msg.From).Msg("✅ Message forwarded to Node-RED")
	return nil
}
