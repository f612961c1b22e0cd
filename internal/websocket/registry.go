package websocket

import (
	"sync"

	"classlock/pkg/interfaces"
)

// Registry tracks live WebSocket connections by connection id
// ARCHITECTURAL DISCOVERY: Pure connection management without relay logic
// maintains clean separation between connection tracking and session state
type Registry struct {
	mu          sync.RWMutex           // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	connections map[string]*Connection // connectionID -> Connection
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// Register adds a connection
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister removes a specific connection
// RACE CONDITION FIX: Only removes the connection if it matches the one currently registered
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[conn.ID()]; exists && registered == conn {
		delete(r.connections, conn.ID())
	}
}

// Get returns the connection for an id with O(1) lookup
func (r *Registry) Get(connectionID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[connectionID]
	if !exists {
		return nil, false
	}
	return conn, true
}

// Notify delivers an event to one connection
// FUNCTIONAL DISCOVERY: Delivery failures are per recipient; callers log and move on
func (r *Registry) Notify(connectionID string, event string, data interface{}) error {
	conn, exists := r.Get(connectionID)
	if !exists {
		return ErrConnectionNotFound
	}
	return conn.Emit(event, data)
}

// IsConnected reports whether the connection is registered and not closed
func (r *Registry) IsConnected(connectionID string) bool {
	conn, exists := r.Get(connectionID)
	if !exists {
		return false
	}
	select {
	case <-conn.Done():
		return false
	default:
		return true
	}
}

// Count returns the number of registered connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// CloseAll closes every registered connection; used during shutdown
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	return map[string]int{
		"total_connections": r.Count(),
	}
}
