package relay

import (
	"github.com/lynx-remote/backend/internal/task"
)

// Service bundles the relay engine: connection registry, subscription
// index, router and WebSocket transport. It is the only owner of the
// shared connection state; collaborators reach it through the service.
type Service struct {
	registry *Registry
	subs     *Index
	router   *Router
	handler  *Handler
}

// NewService creates a relay service wired to the given collaborators.
func NewService(presence Presence, shots ScreenshotStore, tasks *task.Queue) *Service {
	registry := NewRegistry()
	subs := NewIndex()
	router := NewRouter(registry, subs, presence, shots, tasks)

	return &Service{
		registry: registry,
		subs:     subs,
		router:   router,
		handler:  NewHandler(router),
	}
}

// Handler returns the WebSocket transport handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// Router returns the relay router.
func (s *Service) Router() *Router {
	return s.router
}

// IsOnline reports whether a device connection with the identifier is
// currently registered. This predicate, not the durable record, decides
// online state everywhere.
func (s *Service) IsOnline(deviceID string) bool {
	return s.registry.IsOnline(deviceID)
}

// Close closes every live connection.
func (s *Service) Close() {
	for _, c := range s.registry.Conns() {
		c.Close()
	}
}
