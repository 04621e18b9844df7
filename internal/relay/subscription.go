package relay

import "sync"

// Index maps device identifiers to the client connections observing them.
// A client holds at most one active subscription: re-subscribing moves the
// client to the new target and drops it from the previous subscriber set.
// Subscriber sets are keyed by device identifier, not device connection,
// so subscriptions survive a device going offline.
type Index struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Conn]struct{}
	targets     map[*Conn]string
}

// NewIndex creates an empty subscription index.
func NewIndex() *Index {
	return &Index{
		subscribers: make(map[string]map[*Conn]struct{}),
		targets:     make(map[*Conn]string),
	}
}

// Subscribe records the client as observing deviceID, replacing any
// previous subscription the client held.
func (x *Index) Subscribe(client *Conn, deviceID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if prev, ok := x.targets[client]; ok && prev != deviceID {
		x.dropLocked(client, prev)
	}

	set, ok := x.subscribers[deviceID]
	if !ok {
		set = make(map[*Conn]struct{})
		x.subscribers[deviceID] = set
	}
	set[client] = struct{}{}
	x.targets[client] = deviceID
}

// UnsubscribeAll removes the client from every subscriber set it belongs
// to. Invoked on client disconnect.
func (x *Index) UnsubscribeAll(client *Conn) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if deviceID, ok := x.targets[client]; ok {
		x.dropLocked(client, deviceID)
		delete(x.targets, client)
	}
}

func (x *Index) dropLocked(client *Conn, deviceID string) {
	if set, ok := x.subscribers[deviceID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(x.subscribers, deviceID)
		}
	}
}

// SubscribersOf returns a snapshot of the clients observing deviceID.
func (x *Index) SubscribersOf(deviceID string) []*Conn {
	x.mu.RLock()
	defer x.mu.RUnlock()

	set := x.subscribers[deviceID]
	subs := make([]*Conn, 0, len(set))
	for c := range set {
		subs = append(subs, c)
	}
	return subs
}

// CurrentTarget returns the device the client last subscribed to.
func (x *Index) CurrentTarget(client *Conn) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	deviceID, ok := x.targets[client]
	return deviceID, ok
}
