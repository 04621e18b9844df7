package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lynx-remote/backend/internal/relay"
)

// WebSocketHandler handles relay connection handshakes.
type WebSocketHandler struct {
	relayHandler *relay.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(relayHandler *relay.Handler) *WebSocketHandler {
	return &WebSocketHandler{relayHandler: relayHandler}
}

// Connect handles GET /api/ws - validates the identity query parameters
// and upgrades to a persistent relay connection. Missing or invalid
// `type` or `id` is rejected before the upgrade; the parameters are
// otherwise trusted as given.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	role := relay.Role(c.Query("type"))
	id := c.Query("id")

	if !role.Valid() || id == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Missing type or id")
		return
	}

	info := relay.DeviceInfo{
		Name:    c.Query("name"),
		OS:      c.Query("os"),
		Version: c.Query("version"),
		UserID:  c.Query("userId"),
	}

	if err := h.relayHandler.HandleConnection(c.Writer, c.Request, id, role, info); err != nil {
		// Upgrade failure already wrote its response
		return
	}
}

// RegisterRoutes registers the WebSocket handler routes on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws", h.Connect)
}
