package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"whatsapp-relay/models"
)

const (
	wsSendBuffer = 16
	wsWriteWait  = 10 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is one /ws connection. Frames are queued on send and written by
// the connection's own goroutine.
type wsClient struct {
	conn *websocket.Conn
	send chan models.WSMessage
}

// Hub keeps the open /ws connections and pushes session updates to them.
// Broadcasting never waits on a peer.
type Hub struct {
	mu      sync.Mutex
	clients map[*wsClient]bool
	log     zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*wsClient]bool),
		log:     log,
	}
}

// Broadcast queues a message for every connected client. A client whose
// queue is full is dropped.
func (h *Hub) Broadcast(messageType string, payload interface{}) {
	msg := models.WSMessage{Type: messageType, Payload: payload}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.log.Debug().Msg("Dropping slow websocket client")
			h.removeLocked(client)
		}
	}
}

// BroadcastSession pushes a session snapshot; it is meant to be registered
// with session.State.Watch.
func (h *Hub) BroadcastSession(snap models.SessionSnapshot) {
	h.Broadcast(models.WSTypeSession, snap)
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

// removeLocked closes the client's queue, which ends its writer
func (h *Hub) removeLocked(client *wsClient) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	close(client.send)
}

// HandleWebSocket upgrades the request and keeps the connection registered
// until the peer goes away. initial, when set, is the first frame sent.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, initial *models.WSMessage) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Could not upgrade websocket connection")
		return
	}

	client := &wsClient{conn: conn, send: make(chan models.WSMessage, wsSendBuffer)}
	if initial != nil {
		client.send <- *initial
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	go h.writePump(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(client)
}

func (h *Hub) writePump(client *wsClient) {
	defer client.conn.Close()

	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := client.conn.WriteJSON(msg); err != nil {
			h.log.Debug().Err(err).Msg("Websocket write failed")
			return
		}
	}

	client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
