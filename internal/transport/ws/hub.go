package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub manages WebSocket connections, keyed by user. A user may hold several
// connections (multiple tabs); pushes go to all of them.
type Hub struct {
	conns map[string]map[*Connection]bool // userID -> connections

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	outbound   chan *outboundMessage
}

// Connection represents one WebSocket connection.
type Connection struct {
	UserID string
	Role   string
	Send   chan []byte
	Hub    *Hub
}

type outboundMessage struct {
	toUser string // exactly one of toUser/toRole is set
	toRole string
	data   []byte
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	h := &Hub{
		conns:      make(map[string]map[*Connection]bool),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		outbound:   make(chan *outboundMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.UserID] == nil {
				h.conns[conn.UserID] = make(map[*Connection]bool)
			}
			h.conns[conn.UserID][conn] = true
			h.mu.Unlock()
			log.Printf("ws: user %s connected", conn.UserID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.conns[conn.UserID]; ok && set[conn] {
				delete(set, conn)
				if len(set) == 0 {
					delete(h.conns, conn.UserID)
				}
				close(conn.Send)
				log.Printf("ws: user %s disconnected", conn.UserID)
			}
			h.mu.Unlock()

		case msg := <-h.outbound:
			h.mu.RLock()
			if msg.toUser != "" {
				for conn := range h.conns[msg.toUser] {
					select {
					case conn.Send <- msg.data:
					default:
						// Drop message if buffer full
					}
				}
			} else {
				for _, set := range h.conns {
					for conn := range set {
						if conn.Role != msg.toRole {
							continue
						}
						select {
						case conn.Send <- msg.data:
						default:
						}
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a connection.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// SendToUser pushes a payload to every connection of a user (implements
// push.Broadcaster).
func (h *Hub) SendToUser(userID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ws: marshal push for %s: %v", userID, err)
		return
	}
	h.outbound <- &outboundMessage{toUser: userID, data: data}
}

// SendToRole pushes a payload to every connected user holding a role
// (implements push.Broadcaster).
func (h *Hub) SendToRole(role string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ws: marshal push for role %s: %v", role, err)
		return
	}
	h.outbound <- &outboundMessage{toRole: role, data: data}
}

// Connected reports whether the user has at least one live connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}
