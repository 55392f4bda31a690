package models

// ConnectionState mirrors the states reported by WhatsApp Web
type ConnectionState string

const (
	StateConnected    ConnectionState = "CONNECTED"
	StateOpening      ConnectionState = "OPENING"
	StatePairing      ConnectionState = "PAIRING"
	StateUnpaired     ConnectionState = "UNPAIRED"
	StateDisconnected ConnectionState = "DISCONNECTED"
)

// SessionSnapshot is a point-in-time copy of the tracked session state
type SessionSnapshot struct {
	QRImage         string          `json:"qrImage,omitempty"`
	ConnectionState ConnectionState `json:"connectionState,omitempty"`
}

// HasQR reports whether a pairing code is currently available
func (s SessionSnapshot) HasQR() bool {
	return s.QRImage != ""
}
