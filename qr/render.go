package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

var errEmptyPayload = errors.New("empty pairing payload")

// RenderError is returned when a pairing payload cannot be turned into an image
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering QR code: %v", e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Renderer converts pairing payloads into PNG data URLs and, optionally,
// draws them on a terminal.
type Renderer struct {
	Size     int
	Level    qrcode.RecoveryLevel
	Terminal io.Writer
}

func NewRenderer(terminal io.Writer) *Renderer {
	return &Renderer{Size: 256, Level: qrcode.Medium, Terminal: terminal}
}

// Render encodes the payload as a base64 PNG data URL
func (r *Renderer) Render(payload string) (string, error) {
	if payload == "" {
		return "", &RenderError{Err: errEmptyPayload}
	}
	png, err := qrcode.Encode(payload, r.Level, r.Size)
	if err != nil {
		return "", &RenderError{Err: err}
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// PrintTerminal draws the payload with half blocks; no-op without a terminal
func (r *Renderer) PrintTerminal(payload string) {
	if r.Terminal == nil || payload == "" {
		return
	}
	qrterminal.GenerateHalfBlock(payload, qrterminal.L, r.Terminal)
}
