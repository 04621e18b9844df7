package model

import "errors"

var (
	// ErrDeviceNotFound is returned when a device record is not found.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrNoOwner is returned when a device record cannot be assigned an owner.
	ErrNoOwner = errors.New("no owner could be resolved for device")
)
