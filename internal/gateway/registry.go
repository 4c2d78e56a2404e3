package gateway

import (
	"sync"

	"talkomatic/internal/metrics"
	"talkomatic/pkg/interfaces"
)

// Registry tracks live connections by user and by room. It implements the
// hub's delivery directory; the room index moves with the user on join and
// leave.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]*Connection
	byRoom map[string]map[string]*Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]*Connection),
		byRoom: make(map[string]map[string]*Connection),
	}
}

// Register adds a freshly upgraded connection. A previous connection for the
// same user is displaced and closed.
func (r *Registry) Register(conn *Connection) {
	r.mu.Lock()
	old, had := r.byUser[conn.UserID()]
	r.byUser[conn.UserID()] = conn
	if had {
		// The new connection inherits the displaced one's room seat so
		// fanout reaches the user without a rejoin.
		roomID := old.RoomID()
		r.removeFromRoomLocked(old)
		if roomID != "" {
			conn.SetRoomID(roomID)
			if r.byRoom[roomID] == nil {
				r.byRoom[roomID] = make(map[string]*Connection)
			}
			r.byRoom[roomID][conn.UserID()] = conn
		}
	}
	r.mu.Unlock()

	if had {
		// The swap keeps the connection count unchanged; the displaced
		// connection's Unregister will no-op.
		_ = old.Close()
		return
	}
	metrics.ConnectedClients.Inc()
}

// Unregister drops the connection. A no-op when a newer connection has
// already displaced this one.
func (r *Registry) Unregister(conn *Connection) {
	r.mu.Lock()
	current, ok := r.byUser[conn.UserID()]
	if !ok || current != conn {
		r.mu.Unlock()
		return
	}
	delete(r.byUser, conn.UserID())
	r.removeFromRoomLocked(conn)
	r.mu.Unlock()

	metrics.ConnectedClients.Dec()
}

// SetRoom moves the connection's room index entry. An empty roomID removes it
// from any room.
func (r *Registry) SetRoom(conn *Connection, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeFromRoomLocked(conn)
	conn.SetRoomID(roomID)
	if roomID == "" {
		return
	}
	if r.byRoom[roomID] == nil {
		r.byRoom[roomID] = make(map[string]*Connection)
	}
	r.byRoom[roomID][conn.UserID()] = conn
}

func (r *Registry) removeFromRoomLocked(conn *Connection) {
	roomID := conn.RoomID()
	if roomID == "" {
		return
	}
	if set, ok := r.byRoom[roomID]; ok {
		if set[conn.UserID()] == conn {
			delete(set, conn.UserID())
		}
		if len(set) == 0 {
			delete(r.byRoom, roomID)
		}
	}
	conn.SetRoomID("")
}

// UserConnection returns the live connection for a user, if any.
func (r *Registry) UserConnection(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byUser[userID]
	return conn, ok
}

// RoomSenders returns the senders currently indexed to the room. Implements
// interfaces.Directory.
func (r *Registry) RoomSenders(roomID string) []interfaces.Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byRoom[roomID]
	senders := make([]interfaces.Sender, 0, len(set))
	for _, conn := range set {
		senders = append(senders, conn)
	}
	return senders
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
