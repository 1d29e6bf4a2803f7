package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is the single failure of credential verification.
	// It never says which field was wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrSessionExpired is returned when a non-trusted session passed its inactivity deadline
	ErrSessionExpired = errors.New("session_expired")
	// ErrSessionRevoked is returned for a session lineage that was signed out
	ErrSessionRevoked = errors.New("session_revoked")
	// ErrInvalidToken is returned when a token cannot be verified
	ErrInvalidToken = errors.New("invalid_token")
	// ErrTokenMaxAge is returned when a token is past its absolute expiry
	ErrTokenMaxAge = errors.New("token_expired")
	// ErrNotAuthenticated is returned when a request carries no usable session
	ErrNotAuthenticated = errors.New("not_authenticated")
	// ErrForbidden is returned when the session lacks the required role
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidBody is returned when the request body cannot be parsed
	ErrInvalidBody = errors.New("invalid_body")
	// ErrUnknownKey is returned when the active signing key is not in the key set
	ErrUnknownKey = errors.New("unknown signing key")
)

// ErrKeysDirectoryNotAccessible is returned when the keys directory cannot be stat'ed
type ErrKeysDirectoryNotAccessible struct {
	Path string
	Err  error
}

func (e *ErrKeysDirectoryNotAccessible) Error() string {
	return fmt.Sprintf("keys directory %q not accessible: %v", e.Path, e.Err)
}

func (e *ErrKeysDirectoryNotAccessible) Unwrap() error { return e.Err }

// ErrKeysPathNotDirectory is returned when the keys path is a file
type ErrKeysPathNotDirectory struct {
	Path string
}

func (e *ErrKeysPathNotDirectory) Error() string {
	return fmt.Sprintf("keys path %q is not a directory", e.Path)
}

// ErrKeyFile describes a failure reading or parsing one key file
type ErrKeyFile struct {
	FileName string
	Reason   string
	Err      error
}

func (e *ErrKeyFile) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("key file %s: %s: %v", e.FileName, e.Reason, e.Err)
	}
	return fmt.Sprintf("key file %s: %s", e.FileName, e.Reason)
}

func (e *ErrKeyFile) Unwrap() error { return e.Err }
