// Package events implements the real-time fan-out: a hub holding a global
// room plus one room per authenticated user, fed by the mutation paths and
// drained by websocket connections. Publication is fire-and-forget; a full
// or dead subscriber is dropped, never waited on.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bashaMendi/ToDo-back/internal/logging"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
)

// sendBuffer is the per-connection outbound queue. A connection that falls
// this far behind is disconnected rather than blocking the publisher.
const sendBuffer = 64

// Authenticator resolves a session token to a session, used when a
// connection asks to be promoted into its per-user room.
type Authenticator func(ctx context.Context, token string) (*models.Session, error)

// Stats is a snapshot of the hub's observability counters.
type Stats struct {
	ActiveConnections int    `json:"activeConnections"`
	TotalConnections  uint64 `json:"totalConnections"`
	AuthSuccess       uint64 `json:"authSuccess"`
	AuthFailure       uint64 `json:"authFailure"`
}

// conn is one live subscriber. userID is empty until authenticated.
type conn struct {
	id     string
	userID string
	send   chan []byte
}

// Hub is the explicitly constructed fan-out service: no hidden singleton,
// one instance per process (or per test), shut down with the process.
type Hub struct {
	auth   Authenticator
	logger logging.Logger

	mu     sync.Mutex
	global map[*conn]struct{}
	byUser map[string]map[*conn]struct{}
	closed bool

	totalConnections atomic.Uint64
	authSuccess      atomic.Uint64
	authFailure      atomic.Uint64
}

// NewHub constructs an empty hub.
func NewHub(auth Authenticator, logger logging.Logger) *Hub {
	return &Hub{
		auth:   auth,
		logger: logger.With("module", "events"),
		global: make(map[*conn]struct{}),
		byUser: make(map[string]map[*conn]struct{}),
	}
}

// New builds an event envelope with a fresh id and emission timestamp.
func New(eventType models.EventType, payload map[string]any) models.Event {
	return models.Event{
		EventID:   uuid.NewString(),
		EmittedAt: time.Now().UTC(),
		Type:      eventType,
		Payload:   payload,
	}
}

// Publish fans the event out to every connection in the global room.
func (h *Hub) Publish(e models.Event) {
	raw, err := json.Marshal(e)
	if err != nil {
		h.logger.Error(context.Background(), "event marshal failed", "type", e.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.global {
		h.offer(c, raw)
	}
}

// PublishToUser additionally delivers the event to the user's personal room.
func (h *Hub) PublishToUser(userID string, e models.Event) {
	raw, err := json.Marshal(e)
	if err != nil {
		h.logger.Error(context.Background(), "event marshal failed", "type", e.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.byUser[userID] {
		h.offer(c, raw)
	}
}

// offer enqueues without blocking; a saturated connection is dropped.
// Caller holds h.mu.
func (h *Hub) offer(c *conn, raw []byte) {
	select {
	case c.send <- raw:
	default:
		h.removeLocked(c)
	}
}

// register adds a new, unauthenticated connection to the global room.
func (h *Hub) register() (*conn, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &conn{id: uuid.NewString(), send: make(chan []byte, sendBuffer)}
	h.global[c] = struct{}{}
	h.totalConnections.Add(1)
	return c, true
}

// authenticate promotes the connection into its per-user room. A failed
// authentication leaves the connection in the global room and counts the
// failure; the connection is not dropped.
func (h *Hub) authenticate(ctx context.Context, c *conn, token string) bool {
	sess, err := h.auth(ctx, token)
	if err != nil {
		h.authFailure.Add(1)
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.global[c]; !ok {
		return false
	}
	if c.userID != "" {
		delete(h.byUser[c.userID], c)
	}
	c.userID = sess.User.ID
	if h.byUser[c.userID] == nil {
		h.byUser[c.userID] = make(map[*conn]struct{})
	}
	h.byUser[c.userID][c] = struct{}{}
	h.authSuccess.Add(1)
	return true
}

// unregister drops the connection from every room and closes its queue.
func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked drops the connection; caller holds h.mu.
func (h *Hub) removeLocked(c *conn) {
	if _, ok := h.global[c]; !ok {
		return
	}
	delete(h.global, c)
	if c.userID != "" {
		delete(h.byUser[c.userID], c)
		if len(h.byUser[c.userID]) == 0 {
			delete(h.byUser, c.userID)
		}
	}
	close(c.send)
}

// Stats returns the current counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	active := len(h.global)
	h.mu.Unlock()
	return Stats{
		ActiveConnections: active,
		TotalConnections:  h.totalConnections.Load(),
		AuthSuccess:       h.authSuccess.Load(),
		AuthFailure:       h.authFailure.Load(),
	}
}

// Shutdown disconnects every connection and refuses new ones.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.global {
		h.removeLocked(c)
	}
	h.logger.Info(ctx, "event hub shut down")
}
