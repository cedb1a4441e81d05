package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is one WebSocket connection. A connection may arrive without
// credentials; identity fields are set from the handshake token and the
// client enters the hub registry when it registers. A player may hold
// several connections at once (multiple tabs); per-player events fan out to
// all of them.
type Client struct {
	conn     *websocket.Conn
	playerID string
	username string
	userID   int
	bound    bool
	send     chan []byte
	gateway  *Gateway
}

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Hub tracks connected clients by player. A Relay, when attached, carries
// events for players connected to other processes.
type Hub struct {
	clients    map[string]map[*Client]bool // playerID -> connections
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	relay *Relay

	// onConnect fires when a player's first connection arrives; onDisconnect
	// when their last one drops.
	onConnect    func(playerID string)
	onDisconnect func(playerID string)
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run owns the client registry mutations.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			conns, exists := h.clients[client.playerID]
			if !exists {
				conns = make(map[*Client]bool)
				h.clients[client.playerID] = conns
			}
			first := len(conns) == 0
			conns[client] = true
			h.mu.Unlock()

			log.Printf("[WS] Player %s connected (handles=%d)", client.playerID, len(conns))
			if first && h.onConnect != nil {
				h.onConnect(client.playerID)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			last := false
			registered := false
			if conns, exists := h.clients[client.playerID]; exists {
				if _, ok := conns[client]; ok {
					registered = true
					delete(conns, client)
					if len(conns) == 0 {
						delete(h.clients, client.playerID)
						last = true
					}
				}
			}
			h.mu.Unlock()
			close(client.send)

			if registered {
				log.Printf("[WS] Player %s disconnected (last=%v)", client.playerID, last)
				if last && h.onDisconnect != nil {
					h.onDisconnect(client.playerID)
				}
			}
		}
	}
}

// SendToPlayer delivers an event to every local connection the player holds,
// or hands it to the relay when the player lives on another process.
func (h *Hub) SendToPlayer(playerID string, event string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{
		"type": event,
		"data": data,
	})
	if err != nil {
		log.Printf("[WS] marshal %s for %s: %v", event, playerID, err)
		return
	}

	if h.deliverLocal(playerID, payload) {
		return
	}
	if h.relay != nil {
		h.relay.Publish(playerID, payload)
		return
	}
	log.Printf("[WS] no connection for player %s, dropped %s", playerID, event)
}

// deliverLocal pushes raw bytes to the player's local connections. Returns
// false when the player has none here.
func (h *Hub) deliverLocal(playerID string, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, exists := h.clients[playerID]
	if !exists || len(conns) == 0 {
		return false
	}
	for client := range conns {
		select {
		case client.send <- payload:
		default:
			log.Printf("[WS] send buffer full for player %s, dropping message", playerID)
		}
	}
	return true
}

// Connected reports whether the player has at least one local connection.
func (h *Hub) Connected(playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[playerID]) > 0
}

// writePump writes messages and pings to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] write error for player %s: %v", c.playerID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client frames and dispatches them until the connection dies.
func (c *Client) readPump() {
	defer func() {
		c.gateway.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] read error for player %s: %v", c.playerID, err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.sendError("INVALID_MESSAGE", "malformed frame")
			continue
		}
		c.gateway.dispatch(c, env)
	}
}

// sendError pushes an error event to this connection only.
func (c *Client) sendError(code, message string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"type": "error",
		"data": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
	select {
	case c.send <- payload:
	default:
	}
}
