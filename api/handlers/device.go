// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lynx-remote/backend/internal/blob"
	"github.com/lynx-remote/backend/internal/model"
	"github.com/lynx-remote/backend/internal/relay"
	"github.com/lynx-remote/backend/internal/repository"
)

// DeviceHandler handles HTTP requests for device metadata and screenshots.
type DeviceHandler struct {
	repo  *repository.DeviceRepository
	relay *relay.Service
	shots *blob.Store
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(repo *repository.DeviceRepository, relayService *relay.Service, shots *blob.Store) *DeviceHandler {
	return &DeviceHandler{
		repo:  repo,
		relay: relayService,
		shots: shots,
	}
}

// DeviceResponse represents a device in API responses. Online is the live
// registry state; Status is the last durable value and may lag behind.
type DeviceResponse struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Online    bool       `json:"online"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	Group     string     `json:"group,omitempty"`
	OS        string     `json:"os,omitempty"`
	Version   string     `json:"version,omitempty"`
	Uptime    *int64     `json:"uptime,omitempty"`
	CreatedAt string     `json:"createdAt"`
	UpdatedAt string     `json:"updatedAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// toDeviceResponse converts a model.Device to DeviceResponse.
func (h *DeviceHandler) toDeviceResponse(d *model.Device) *DeviceResponse {
	return &DeviceResponse{
		ID:        d.ID,
		UserID:    d.UserID,
		Name:      d.Name,
		Status:    string(d.Status),
		Online:    h.relay.IsOnline(d.ID),
		LastSeen:  d.LastSeen,
		Group:     d.Group,
		OS:        d.OS,
		Version:   d.Version,
		Uptime:    d.Uptime,
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
		UpdatedAt: d.UpdatedAt.Format(time.RFC3339),
	}
}

// List handles GET /api/devices - lists all device records.
func (h *DeviceHandler) List(c *gin.Context) {
	devices, err := h.repo.List(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list devices: "+err.Error())
		return
	}

	responses := make([]*DeviceResponse, 0, len(devices))
	for _, d := range devices {
		responses = append(responses, h.toDeviceResponse(d))
	}

	c.JSON(http.StatusOK, responses)
}

// Get handles GET /api/devices/:id - retrieves a single device record.
func (h *DeviceHandler) Get(c *gin.Context) {
	device, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrDeviceNotFound) {
			sendError(c, http.StatusNotFound, "DEVICE_NOT_FOUND", "Device not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get device: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, h.toDeviceResponse(device))
}

// Create handles POST /api/devices - pre-registers a device record.
func (h *DeviceHandler) Create(c *gin.Context) {
	var req model.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Name is required")
		return
	}

	now := time.Now()
	device := &model.Device{
		ID:        uuid.NewString(),
		UserID:    getUserID(c),
		Name:      req.Name,
		Status:    model.DeviceStatusOffline,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.repo.Create(c.Request.Context(), device); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create device: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, h.toDeviceResponse(device))
}

// Update handles PATCH /api/devices/:id - updates device metadata.
func (h *DeviceHandler) Update(c *gin.Context) {
	var req model.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	id := c.Param("id")
	up := model.DeviceUpsert{
		ID:    id,
		Name:  req.Name,
		Group: req.Group,
	}

	if err := h.repo.Upsert(c.Request.Context(), up); err != nil {
		if errors.Is(err, model.ErrDeviceNotFound) || errors.Is(err, model.ErrNoOwner) {
			sendError(c, http.StatusNotFound, "DEVICE_NOT_FOUND", "Device not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update device: "+err.Error())
		return
	}

	device, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get device: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, h.toDeviceResponse(device))
}

// Delete handles DELETE /api/devices/:id - removes a device record.
// Only this administrative action deletes records; the relay never does.
func (h *DeviceHandler) Delete(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, model.ErrDeviceNotFound) {
			sendError(c, http.StatusNotFound, "DEVICE_NOT_FOUND", "Device not found")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete device: "+err.Error())
		return
	}

	c.Status(http.StatusNoContent)
}

// ListScreenshots handles GET /api/devices/:id/screenshots - lists the
// stored screenshot filenames for a device.
func (h *DeviceHandler) ListScreenshots(c *gin.Context) {
	names, err := h.shots.List(c.Param("id"))
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list screenshots: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"screenshots": names})
}

// ListLogs handles GET /api/devices/:id/logs - lists recent lifecycle log
// entries for a device.
func (h *DeviceHandler) ListLogs(c *gin.Context) {
	logs, err := h.repo.ListLogs(c.Request.Context(), c.Param("id"), 100)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list device logs: "+err.Error())
		return
	}
	if logs == nil {
		logs = []*model.DeviceLog{}
	}

	c.JSON(http.StatusOK, logs)
}

// RegisterRoutes registers the device handler routes on a Gin router group.
func (h *DeviceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/devices", h.List)
	rg.POST("/devices", h.Create)
	rg.GET("/devices/:id", h.Get)
	rg.PATCH("/devices/:id", h.Update)
	rg.DELETE("/devices/:id", h.Delete)
	rg.GET("/devices/:id/screenshots", h.ListScreenshots)
	rg.GET("/devices/:id/logs", h.ListLogs)
}

// getUserID extracts the user ID from the request context.
// In a real implementation, this would come from authentication middleware.
func getUserID(c *gin.Context) string {
	// Try to get from context (set by auth middleware)
	if userID, exists := c.Get("userID"); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	// Default user for development/testing
	return "default-user"
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
