package gateway

import "sync"

// IdentityRegistry maps device identities to their active connection and
// back. A passively matched user made no request at match time, so the
// gateway needs this mapping to push match_found to them. A new
// registration for an identity replaces the previous connection binding.
type IdentityRegistry struct {
	mu     sync.RWMutex
	byConn map[string]string // connID -> identity
	byID   map[string]string // identity -> connID
}

// NewIdentityRegistry creates an empty registry.
func NewIdentityRegistry() *IdentityRegistry {
	return &IdentityRegistry{
		byConn: make(map[string]string),
		byID:   make(map[string]string),
	}
}

// Bind associates a connection with a device identity, replacing any
// previous binding for either side.
func (r *IdentityRegistry) Bind(identity, connID string) {
	r.mu.Lock()
	if old, ok := r.byID[identity]; ok {
		delete(r.byConn, old)
	}
	if old, ok := r.byConn[connID]; ok {
		delete(r.byID, old)
	}
	r.byID[identity] = connID
	r.byConn[connID] = identity
	r.mu.Unlock()
}

// IdentityOf returns the identity bound to a connection, or "".
func (r *IdentityRegistry) IdentityOf(connID string) string {
	r.mu.RLock()
	identity := r.byConn[connID]
	r.mu.RUnlock()
	return identity
}

// ConnOf returns the connection bound to an identity, or "".
func (r *IdentityRegistry) ConnOf(identity string) string {
	r.mu.RLock()
	connID := r.byID[identity]
	r.mu.RUnlock()
	return connID
}

// UnbindConn removes a connection's binding and returns the identity it
// was bound to, or "" if none.
func (r *IdentityRegistry) UnbindConn(connID string) string {
	r.mu.Lock()
	identity, ok := r.byConn[connID]
	if ok {
		delete(r.byConn, connID)
		delete(r.byID, identity)
	}
	r.mu.Unlock()
	return identity
}
