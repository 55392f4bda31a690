package whatsapp

// EventHandler receives the session and message events of a Client.
// Calls are made from whatsmeow's event goroutine, one at a time.
type EventHandler interface {
	// HandleQR is called with every new pairing code
	HandleQR(code string)
	HandleAuthenticated()
	HandleReady()
	HandleDisconnected(reason string)
	// HandleMessage is called for messages received from others
	HandleMessage(msg *Message)
	// HandleMessageCreate is called for every message, including our own
	HandleMessageCreate(msg *Message)
}
