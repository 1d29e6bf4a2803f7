package user

import "errors"

var (
	// ErrEmailExists is returned when trying to register with an email that already exists
	ErrEmailExists = errors.New("email already exists")
	// ErrEmailRequired is returned when trying to register without an email
	ErrEmailRequired = errors.New("email is required")
	// ErrNameRequired is returned when trying to register or rename with an empty name
	ErrNameRequired = errors.New("name is required")
	// ErrPasswordTooShort is returned when the password is below the minimum length
	ErrPasswordTooShort = errors.New("password is too short")
	// ErrUserNotFound is returned when no identity matches the lookup
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidStatus is returned for an unknown approval status
	ErrInvalidStatus = errors.New("invalid user status")
	// ErrInvalidRole is returned for a role other than user or admin
	ErrInvalidRole = errors.New("invalid user role")
)
