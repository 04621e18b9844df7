package model

import "time"

// DeviceStatus is the durable status of a device record. It is advisory
// only: the live online state always comes from the connection registry.
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
)

// Device represents a durable device record.
type Device struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Name      string       `json:"name"`
	Status    DeviceStatus `json:"status"`
	LastSeen  *time.Time   `json:"lastSeen,omitempty"`
	Group     string       `json:"group,omitempty"`
	OS        string       `json:"os,omitempty"`
	Version   string       `json:"version,omitempty"`
	Uptime    *int64       `json:"uptime,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// DeviceLogType classifies a device lifecycle log entry.
type DeviceLogType string

const (
	DeviceLogConnect    DeviceLogType = "connect"
	DeviceLogReconnect  DeviceLogType = "reconnect"
	DeviceLogDisconnect DeviceLogType = "disconnect"
)

// DeviceLog is one lifecycle event recorded for a device.
type DeviceLog struct {
	ID        int64         `json:"id"`
	DeviceID  string        `json:"deviceId"`
	Type      DeviceLogType `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message,omitempty"`
}

// DeviceUpsert carries the fields a presence or API update may set.
// Nil pointer fields are left untouched on update.
type DeviceUpsert struct {
	ID       string
	UserID   string
	Name     *string
	Status   *DeviceStatus
	LastSeen *time.Time
	Group    *string
	OS       *string
	Version  *string
	Uptime   *int64
}

// CreateDeviceRequest represents a request to pre-register a device.
type CreateDeviceRequest struct {
	Name string `json:"name" binding:"required"`
}

// UpdateDeviceRequest represents a metadata update for a device.
type UpdateDeviceRequest struct {
	Name  *string `json:"name"`
	Group *string `json:"group"`
}
