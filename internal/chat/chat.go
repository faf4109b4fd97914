package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"coursecontrol/internal/apperr"
	"coursecontrol/internal/model"
	"coursecontrol/internal/push"
)

// Message is one direct message between a student and a staff member.
type Message struct {
	ID         string `json:"id"`
	FromUserID string `json:"fromUserId"`
	ToUserID   string `json:"toUserId"`
	Body       string `json:"body"`
	SentAtMs   int64  `json:"sentAtMs"`
}

const historyCap = 20

// Store keeps a short in-memory history per conversation. History is a
// convenience, not a record: it does not survive restarts.
type Store struct {
	mu    sync.Mutex
	convs map[string][]Message
}

func NewStore() *Store {
	return &Store{convs: make(map[string][]Message)}
}

func convKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (s *Store) Append(msg Message) {
	key := convKey(msg.FromUserID, msg.ToUserID)
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := append(s.convs[key], msg)
	if len(hist) > historyCap {
		hist = hist[len(hist)-historyCap:]
	}
	s.convs[key] = hist
}

func (s *Store) History(a, b string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := s.convs[convKey(a, b)]
	out := make([]Message, len(hist))
	copy(out, hist)
	return out
}

// Event is the payload pushed over the websocket for chat traffic.
type Event struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// Service routes messages and enforces who may talk to whom: students talk
// to staff, staff talk to anyone.
type Service struct {
	store *Store
	hub   push.Broadcaster
	roles RoleLookup
	now   func() time.Time
}

// RoleLookup resolves a user's role. Backed by the user repository.
type RoleLookup func(userID string) (model.Role, error)

func NewService(store *Store, hub push.Broadcaster, roles RoleLookup) *Service {
	return &Service{store: store, hub: hub, roles: roles, now: time.Now}
}

func (s *Service) Send(from model.Identity, toUserID, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.New("BAD_REQUEST", "empty message body", 400)
	}
	if len(body) > 2000 {
		return nil, apperr.New("BAD_REQUEST", "message body too long", 400)
	}
	if toUserID == "" || toUserID == from.UserID {
		return nil, apperr.New("BAD_REQUEST", "invalid recipient", 400)
	}
	if from.Role == model.RoleStudent {
		toRole, err := s.roles(toUserID)
		if err != nil {
			return nil, apperr.New("NOT_FOUND", "recipient not found", 404)
		}
		if toRole == model.RoleStudent {
			return nil, apperr.New("FORBIDDEN", "students can only message staff", 403)
		}
	}

	msg := Message{
		ID:         uuid.NewString(),
		FromUserID: from.UserID,
		ToUserID:   toUserID,
		Body:       body,
		SentAtMs:   s.now().UnixMilli(),
	}
	s.store.Append(msg)
	event := Event{Type: "chat", Message: msg}
	s.hub.SendToUser(toUserID, event)
	s.hub.SendToUser(from.UserID, event)
	return &msg, nil
}

func (s *Service) History(from model.Identity, peerUserID string) []Message {
	return s.store.History(from.UserID, peerUserID)
}
