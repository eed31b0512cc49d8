package presence

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wave-social/wave-api/internal/observability"
)

const sendBufferSize = 32

// ErrInvalidConnection indicates a connect call with a blank user or
// connection identifier.
var ErrInvalidConnection = errors.New("connection and user id required")

// Event is a frame fanned out to a user's active connections.
type Event struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sent_at"`
}

// Connection is one device's ephemeral session for one user. Delivery is
// a buffered channel; a full buffer drops the frame rather than blocking
// the dispatcher on a slow consumer.
type Connection struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
	send     chan Event
	closed   chan struct{}
	once     sync.Once
}

// Deliver queues the event for the connection, reporting whether it was
// accepted.
func (c *Connection) Deliver(event Event) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// Events exposes the delivery stream consumed by the transport writer.
func (c *Connection) Events() <-chan Event {
	return c.send
}

// Done is closed when the connection is removed from the registry.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

// LastSeen returns the most recent activity timestamp.
func (c *Connection) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

func (c *Connection) touch(at time.Time) {
	c.mu.Lock()
	c.lastSeen = at
	c.mu.Unlock()
}

func (c *Connection) close() {
	c.once.Do(func() {
		close(c.closed)
	})
}

// Registry tracks ephemeral client connections and derives per-user
// online state. State is process-lifetime only: a restart drops every
// connection and implicitly marks all users offline until they
// reconnect. Constructed once in main and passed to the components that
// need it.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Connection
	byUser map[string]map[string]*Connection
	log    zerolog.Logger
	now    func() time.Time
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		byID:   make(map[string]*Connection),
		byUser: make(map[string]map[string]*Connection),
		log:    logger.With().Str("component", "presence_registry").Logger(),
		now:    time.Now,
	}
}

// Connect registers the connection for the user. Re-registering an
// existing connection id refreshes lastSeen and replaces the previous
// session, so retried connects stay idempotent.
func (r *Registry) Connect(connectionID, userID string) (*Connection, error) {
	connectionID = strings.TrimSpace(connectionID)
	userID = strings.TrimSpace(userID)
	if connectionID == "" || userID == "" {
		return nil, ErrInvalidConnection
	}

	now := r.now()

	replaced := false
	r.mu.Lock()
	if existing, ok := r.byID[connectionID]; ok {
		if existing.UserID == userID {
			existing.touch(now)
			r.mu.Unlock()
			return existing, nil
		}
		// Same connection id reused by a different user: drop the stale
		// session before registering the new one.
		r.removeLocked(existing)
		replaced = true
	}

	conn := &Connection{
		ID:          connectionID,
		UserID:      userID,
		ConnectedAt: now,
		lastSeen:    now,
		send:        make(chan Event, sendBufferSize),
		closed:      make(chan struct{}),
	}

	r.byID[connectionID] = conn
	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[string]*Connection)
	}
	r.byUser[userID][connectionID] = conn
	r.mu.Unlock()

	if replaced {
		observability.ConnectionsActive().Dec()
	}
	observability.ConnectionsActive().Inc()
	r.log.Debug().Str("connection_id", connectionID).Str("user_id", userID).Msg("connection registered")

	return conn, nil
}

// Disconnect removes the connection. Unknown ids are a no-op. When the
// owning user's set empties the user is offline.
func (r *Registry) Disconnect(connectionID string) {
	r.mu.Lock()
	conn, ok := r.byID[connectionID]
	if ok {
		r.removeLocked(conn)
	}
	r.mu.Unlock()

	if ok {
		observability.ConnectionsActive().Dec()
		r.log.Debug().Str("connection_id", connectionID).Str("user_id", conn.UserID).Msg("connection removed")
	}
}

func (r *Registry) removeLocked(conn *Connection) {
	delete(r.byID, conn.ID)
	if set, ok := r.byUser[conn.UserID]; ok {
		delete(set, conn.ID)
		if len(set) == 0 {
			delete(r.byUser, conn.UserID)
		}
	}
	conn.close()
}

// Touch refreshes the lastSeen timestamp for an active connection.
func (r *Registry) Touch(connectionID string) {
	r.mu.RLock()
	conn := r.byID[connectionID]
	r.mu.RUnlock()

	if conn != nil {
		conn.touch(r.now())
	}
}

// IsOnline reports whether the user has at least one active connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// ConnectionsOf returns the user's active connections, empty when offline.
func (r *Registry) ConnectionsOf(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	out := make([]*Connection, 0, len(set))
	for _, conn := range set {
		out = append(out, conn)
	}
	return out
}

// ConnectionIDsOf returns the ids of the user's active connections.
func (r *Registry) ConnectionIDsOf(userID string) []string {
	conns := r.ConnectionsOf(userID)
	ids := make([]string, 0, len(conns))
	for _, conn := range conns {
		ids = append(ids, conn.ID)
	}
	sort.Strings(ids)
	return ids
}

// OnlineUsers lists every user with at least one active connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}
