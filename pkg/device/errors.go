package device

import "errors"

var (
	// ErrDeviceNotFound is returned when no device matches the given ID.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrInvalidRegistration is returned for malformed registration input.
	ErrInvalidRegistration = errors.New("invalid device registration")

	// ErrInvalidPlatform is returned for an unknown platform value.
	ErrInvalidPlatform = errors.New("invalid platform")

	// ErrInvalidProvider is returned for an unknown provider family.
	ErrInvalidProvider = errors.New("invalid push provider")

	// ErrInvalidTimeFormat is returned when a quiet-hours boundary is not a
	// minute-resolution 24-hour "HH:MM" string.
	ErrInvalidTimeFormat = errors.New("invalid time format, expected HH:MM")

	// ErrDeviceInactive is returned when mutating a deactivated device.
	ErrDeviceInactive = errors.New("device is inactive")
)
