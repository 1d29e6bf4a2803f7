package auth

import (
	"time"

	"github.com/Anvoria/alumnet/internal/config"
	"github.com/Anvoria/alumnet/internal/domain/user"
	"github.com/google/uuid"
)

// SessionToken is the decoded content of a signed session artifact.
// Values are never changed once signed; Refresh returns a new one.
type SessionToken struct {
	SessionID     string
	UserID        string
	Name          string
	PreferredName string
	Role          string
	Status        string
	DeviceID      string
	TrustedDevice bool
	// LastActivity is in epoch milliseconds
	LastActivity int64
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Issuer       string
}

// LastActivityTime converts LastActivity to a time.Time
func (t SessionToken) LastActivityTime() time.Time {
	return time.UnixMilli(t.LastActivity).UTC()
}

// Deadline is the moment the session becomes inactive, ignoring trust
func (t SessionToken) Deadline(window time.Duration) time.Time {
	return time.UnixMilli(t.LastActivity + window.Milliseconds()).UTC()
}

// IsActive reports whether now is within the inactivity window or the device is trusted
func (t SessionToken) IsActive(now time.Time, window time.Duration) bool {
	if t.TrustedDevice {
		return true
	}
	return now.UnixMilli() <= t.LastActivity+window.Milliseconds()
}

// Refresh returns a copy with last_activity set to now and iat/exp moved forward
// by the same lifetime the old token had.
func Refresh(old SessionToken, now time.Time) SessionToken {
	lifetime := old.ExpiresAt.Sub(old.IssuedAt)
	if lifetime <= 0 {
		lifetime = config.DefaultMaxAge
	}

	next := old
	next.LastActivity = now.UnixMilli()
	next.IssuedAt = now.UTC()
	next.ExpiresAt = now.UTC().Add(lifetime)
	return next
}

// SessionView is what callers outside this package see of a session
type SessionView struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	PreferredName   *string   `json:"preferred_name"`
	Role            string    `json:"role"`
	Status          string    `json:"status"`
	DeviceID        *string   `json:"device_id"`
	IsTrustedDevice bool      `json:"is_trusted_device"`
	LastActivity    time.Time `json:"last_activity"`
	ExpiresAt       time.Time `json:"expires_at"`
	SessionID       string    `json:"-"`
}

// IsApproved reports whether the session belongs to an approved identity
func (v *SessionView) IsApproved() bool {
	return v != nil && v.Status == string(user.StatusApproved)
}

// DeviceClaim carries the device identity into a new session.
// Trusted must only be set once the device was recorded.
type DeviceClaim struct {
	DeviceID string
	Trusted  bool
}

// Issuer builds and evaluates session tokens for one configuration
type Issuer struct {
	name   string
	window time.Duration
	maxAge time.Duration
}

// NewIssuer creates an Issuer from the session settings
func NewIssuer(name string, cfg *config.SessionConfig) *Issuer {
	return &Issuer{
		name:   name,
		window: cfg.Window(),
		maxAge: cfg.TokenMaxAge(),
	}
}

func (i *Issuer) Name() string { return i.name }

func (i *Issuer) Window() time.Duration { return i.window }

func (i *Issuer) MaxAge() time.Duration { return i.maxAge }

// Issue creates a fresh session lineage for u
func (i *Issuer) Issue(u *user.User, dev DeviceClaim, now time.Time) SessionToken {
	tok := SessionToken{
		SessionID:     uuid.NewString(),
		UserID:        u.ID.String(),
		Name:          u.Name,
		Role:          u.Role,
		Status:        string(u.Status),
		DeviceID:      dev.DeviceID,
		TrustedDevice: dev.Trusted && dev.DeviceID != "",
		LastActivity:  now.UnixMilli(),
		IssuedAt:      now.UTC(),
		ExpiresAt:     now.UTC().Add(i.maxAge),
		Issuer:        i.name,
	}
	if u.PreferredName != nil {
		tok.PreferredName = *u.PreferredName
	}
	return tok
}

// Active applies the inactivity rule with this issuer's window
func (i *Issuer) Active(tok SessionToken, now time.Time) bool {
	return tok.IsActive(now, i.window)
}

// View converts a token to a SessionView, or nil when the session is inactive.
// The signature is not checked here.
func (i *Issuer) View(tok SessionToken, now time.Time) *SessionView {
	if !i.Active(tok, now) {
		return nil
	}

	v := &SessionView{
		ID:              tok.UserID,
		Name:            tok.Name,
		Role:            tok.Role,
		Status:          tok.Status,
		IsTrustedDevice: tok.TrustedDevice,
		LastActivity:    tok.LastActivityTime(),
		ExpiresAt:       tok.Deadline(i.window),
		SessionID:       tok.SessionID,
	}
	if tok.PreferredName != "" {
		name := tok.PreferredName
		v.PreferredName = &name
	}
	if tok.DeviceID != "" {
		id := tok.DeviceID
		v.DeviceID = &id
	}
	return v
}
