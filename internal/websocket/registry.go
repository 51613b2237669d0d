package websocket

import (
	"sync"

	"studyroom/pkg/interfaces"
)

// Registry is the authoritative map from user identity to live transport.
// Critical sections are pure in-memory mutation; transports are closed
// outside the lock.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection
	// allowReplace selects the duplicate-connect policy: replace the
	// existing transport (last-connect wins) or reject the newcomer.
	allowReplace bool
}

// NewRegistry creates an empty registry with the given duplicate-connect
// policy.
func NewRegistry(allowReplace bool) *Registry {
	return &Registry{
		connections:  make(map[string]interfaces.Connection),
		allowReplace: allowReplace,
	}
}

// Register adds a connection under its user identity. With replacement
// enabled the previous transport is closed asynchronously; otherwise a
// second connect for the same identity fails with ErrAlreadyConnected.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	userID := conn.UserID()

	r.mu.Lock()
	existing, exists := r.connections[userID]
	if exists && !r.allowReplace {
		r.mu.Unlock()
		return ErrAlreadyConnected
	}
	r.connections[userID] = conn
	r.mu.Unlock()

	if exists {
		// Close outside the lock; the old transport may block on a dead peer.
		go func() { _ = existing.Close() }()
	}
	return nil
}

// Unregister removes conn's registry entry. Idempotent, and instance
// checked: a stale connection cannot evict the transport that replaced it.
func (r *Registry) Unregister(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.connections[conn.UserID()]
	if !exists || registered != conn {
		return
	}
	delete(r.connections, conn.UserID())
}

// Remove deletes the entry for userID regardless of instance and returns
// the removed connection, if any.
func (r *Registry) Remove(userID string) (interfaces.Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[userID]
	if exists {
		delete(r.connections, userID)
	}
	return conn, exists
}

// Get returns the live transport for userID.
func (r *Registry) Get(userID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[userID]
	return conn, exists
}

// Snapshot returns a copy of all registered connections, for iteration
// outside the lock.
func (r *Registry) Snapshot() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
