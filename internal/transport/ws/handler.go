package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"coursecontrol/internal/actor"
	"coursecontrol/internal/apperr"
	"coursecontrol/internal/cache"
	"coursecontrol/internal/chat"
	"coursecontrol/internal/model"
	"coursecontrol/internal/ratelimit"
	"coursecontrol/internal/repository"
	"coursecontrol/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	statusPushPeriod = 2 * time.Second
	seatsPushPeriod  = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// ClientMessage is the envelope clients send. The id, when present, becomes
// the queue item id so the client can match queue_update pushes to the
// message that caused them.
type ClientMessage struct {
	ID      string           `json:"id"`
	Action  model.ActionName `json:"action"`
	Payload json.RawMessage  `json:"payload"`
}

// Handler handles WebSocket connections.
type Handler struct {
	hub         *Hub
	authSvc     *service.AuthService
	system      *actor.System
	chatSvc     *chat.Service
	enrollments repository.EnrollmentRepo
	seats       cache.SubjectCache
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, authSvc *service.AuthService, system *actor.System, chatSvc *chat.Service, enrollments repository.EnrollmentRepo, seats cache.SubjectCache) *Handler {
	return &Handler{
		hub:         hub,
		authSvc:     authSvc,
		system:      system,
		chatSvc:     chatSvc,
		enrollments: enrollments,
		seats:       seats,
	}
}

// Connect handles GET /v1/ws
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	identity, err := h.authSvc.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	conn := &Connection{
		UserID: identity.UserID,
		Role:   string(identity.Role),
		Send:   make(chan []byte, 256),
		Hub:    h.hub,
	}
	h.hub.Register(conn)

	h.sendHello(conn, identity)

	done := make(chan struct{})
	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn, identity, done)
	if identity.Role == model.RoleStudent {
		go h.statusLoop(conn, identity, done)
		go h.seatsLoop(conn, identity, done)
	}
}

func (h *Handler) sendHello(conn *Connection, identity *model.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ph, err := h.system.Phase(ctx)
	if err != nil {
		log.Printf("ws: phase for hello: %v", err)
	}
	h.send(conn, map[string]interface{}{
		"type":   "hello",
		"userId": identity.UserID,
		"role":   identity.Role,
		"phase":  ph,
	})
}

func (h *Handler) send(conn *Connection, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case conn.Send <- data:
	default:
	}
}

func (h *Handler) sendError(conn *Connection, err error) {
	ae := apperr.From(err)
	h.send(conn, map[string]interface{}{
		"type":    "error",
		"code":    ae.Code,
		"message": ae.Message,
	})
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection, identity *model.Identity, done chan struct{}) {
	defer func() {
		close(done)
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// one action per second per connection, no burst
	bucket := ratelimit.NewTokenBucket(1, 1)

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(conn, apperr.New("BAD_REQUEST", "malformed message", 400))
			continue
		}
		if msg.Action == "ping" {
			h.send(conn, map[string]interface{}{"type": "pong"})
			continue
		}
		if !bucket.Allow() {
			h.sendError(conn, apperr.New("RATE_LIMITED", "one action per second", 429))
			continue
		}
		h.dispatch(conn, identity, &msg)
	}
}

func (h *Handler) dispatch(conn *Connection, identity *model.Identity, msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Action {
	case model.ActionStatus:
		if identity.Role != model.RoleStudent {
			h.sendError(conn, apperr.New("FORBIDDEN", "students only", 403))
			return
		}
		st, err := h.system.Student(identity.UserID).Status(ctx)
		if err != nil {
			h.sendError(conn, err)
			return
		}
		h.send(conn, map[string]interface{}{"type": "status", "status": st})

	case model.ActionCancel:
		var p struct {
			ItemID string `json:"itemId"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ItemID == "" {
			h.sendError(conn, apperr.New("BAD_REQUEST", "itemId required", 400))
			return
		}
		ok, err := h.system.Student(identity.UserID).Cancel(ctx, p.ItemID)
		if err != nil {
			h.sendError(conn, err)
			return
		}
		h.send(conn, map[string]interface{}{"type": "cancel_result", "itemId": p.ItemID, "cancelled": ok})

	case model.ActionCancelAll:
		n, err := h.system.Student(identity.UserID).CancelAll(ctx)
		if err != nil {
			h.sendError(conn, err)
			return
		}
		h.send(conn, map[string]interface{}{"type": "cancel_result", "cancelled": n})

	case model.ActionMessage:
		var p struct {
			ToUserID string `json:"toUserId"`
			Body     string `json:"body"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.sendError(conn, apperr.New("BAD_REQUEST", "malformed message payload", 400))
			return
		}
		if _, err := h.chatSvc.Send(*identity, p.ToUserID, p.Body); err != nil {
			h.sendError(conn, err)
		}

	default:
		if identity.Role != model.RoleStudent {
			h.sendError(conn, apperr.New("FORBIDDEN", "students only", 403))
			return
		}
		item, err := h.system.Student(identity.UserID).Enqueue(ctx, msg.ID, msg.Action, msg.Payload)
		if err != nil {
			h.sendError(conn, err)
			return
		}
		h.send(conn, map[string]interface{}{"type": "enqueued", "item": item})
	}
}

// statusLoop pushes the student's consolidated view every couple of seconds,
// but only when it changed since the last push.
func (h *Handler) statusLoop(conn *Connection, identity *model.Identity, done chan struct{}) {
	ticker := time.NewTicker(statusPushPeriod)
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			st, err := h.system.Student(identity.UserID).Status(ctx)
			cancel()
			if err != nil {
				continue
			}
			data, err := json.Marshal(st)
			if err != nil || string(data) == string(last) {
				continue
			}
			last = data
			h.send(conn, map[string]interface{}{"type": "status", "status": st})
		}
	}
}

// seatsLoop pushes seat availability for the student's enrolled subjects.
func (h *Handler) seatsLoop(conn *Connection, identity *model.Identity, done chan struct{}) {
	ticker := time.NewTicker(seatsPushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			subjects, err := h.enrollments.SubjectIDsFor(ctx, identity.UserID)
			if err != nil {
				cancel()
				continue
			}
			payloads := make([]*cache.SubjectPayload, 0, len(subjects))
			for _, id := range subjects {
				p, gerr := h.seats.Get(ctx, id)
				if gerr != nil || p == nil {
					continue
				}
				payloads = append(payloads, p)
			}
			cancel()
			if len(payloads) == 0 {
				continue
			}
			h.send(conn, map[string]interface{}{"type": "seat_status", "subjects": payloads})
		}
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
