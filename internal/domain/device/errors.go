package device

import "errors"

var (
	// ErrDeviceNotFound is returned when the (user, device) pair is not remembered
	ErrDeviceNotFound = errors.New("device not found")
	// ErrDeviceIDRequired is returned when an empty device identifier is supplied
	ErrDeviceIDRequired = errors.New("device id is required")
	// ErrRegistrationFailed wraps any failure to record a remembered device.
	// Sign-in treats it as non-fatal.
	ErrRegistrationFailed = errors.New("device registration failed")
)
