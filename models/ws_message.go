package models

// WSTypeSession tags frames carrying a SessionSnapshot
const WSTypeSession = "session"

// WSMessage is one frame pushed on the /ws status stream
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
