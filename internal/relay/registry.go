package relay

import "sync"

// Registry owns the sets of live device and client connections, keyed by
// identifier and partitioned by role. It is the single source of truth for
// a device's online state; the durable status column is never consulted.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Conn
	clients map[string]*Conn
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Conn),
		clients: make(map[string]*Conn),
	}
}

func (r *Registry) table(role Role) map[string]*Conn {
	if role == RoleDevice {
		return r.devices
	}
	return r.clients
}

// Register inserts the connection, replacing any existing entry for the
// same identifier and role (last-writer-wins). The displaced connection,
// if any, is returned so the caller can force-close it.
func (r *Registry) Register(c *Conn) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.table(c.Role())
	replaced := table[c.ID()]
	table[c.ID()] = c
	if replaced == c {
		return nil
	}
	return replaced
}

// Lookup returns the live connection for the identifier and role.
func (r *Registry) Lookup(id string, role Role) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.table(role)[id]
	return c, ok
}

// Remove deletes the connection from the registry and reports whether it
// was still the registered entry. A connection displaced by a later
// registration under the same identifier is left alone, so its delayed
// close never evicts its replacement. Idempotent.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.table(c.Role())
	if table[c.ID()] != c {
		return false
	}
	delete(table, c.ID())
	return true
}

// IsOnline reports whether a device connection with the identifier is
// currently registered.
func (r *Registry) IsOnline(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.devices[deviceID]
	return ok
}

// Conns returns a snapshot of every registered connection.
func (r *Registry) Conns() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.devices)+len(r.clients))
	for _, c := range r.devices {
		conns = append(conns, c)
	}
	for _, c := range r.clients {
		conns = append(conns, c)
	}
	return conns
}

// DeviceCount returns the number of registered device connections.
func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// ClientCount returns the number of registered client connections.
func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
