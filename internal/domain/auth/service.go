package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Anvoria/alumnet/internal/domain/device"
	"github.com/Anvoria/alumnet/internal/domain/user"
)

// SignInRequest is the input of a password sign-in
type SignInRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	DeviceID       string `json:"device_id"`
	RememberDevice bool   `json:"remember_device"`
	UserAgentLabel string `json:"user_agent"`
}

// DeviceParams describes the device a session is issued for.
// External logins supply it out of band.
type DeviceParams struct {
	DeviceID string
	Remember bool
	Label    string
}

// SessionResult is a freshly signed session
type SessionResult struct {
	Token           string       `json:"token"`
	TokenExpiresAt  time.Time    `json:"token_expires_at"`
	Session         *SessionView `json:"session"`
	ReturningDevice bool         `json:"returning_device"`
}

// RevocationStore remembers signed-out session lineages
type RevocationStore interface {
	RevokeSession(ctx context.Context, sid string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sid string) (bool, error)
}

// AuthService defines the interface for authentication operations
type AuthService interface {
	Register(ctx context.Context, req user.RegisterRequest) (*user.UserResponse, error)
	SignIn(ctx context.Context, req SignInRequest) (*SessionResult, error)
	RefreshSession(ctx context.Context, raw string) (*SessionResult, error)
	CurrentSession(ctx context.Context, raw string) *SessionView
	SignOut(ctx context.Context, raw string) error
}

// Service handles authentication operations
type Service struct {
	Users       user.Service
	Devices     device.Service
	KeyStore    *KeyStore
	Issuer      *Issuer
	revocations RevocationStore
	now         func() time.Time

	// checkUnknownPassword runs when no identity matches the email
	checkUnknownPassword func(password string)
}

var (
	unknownHashOnce sync.Once
	unknownHash     string
)

// verifyAgainstUnknownHash spends one argon2id verification so an unknown
// email costs as much as a wrong password.
func verifyAgainstUnknownHash(password string) {
	unknownHashOnce.Do(func() {
		h, err := user.HashPassword("alumnet-unknown-account")
		if err != nil {
			slog.Error("Failed to prepare placeholder password hash", "error", err)
			return
		}
		unknownHash = h
	})
	_ = user.VerifyPassword(password, unknownHash)
}

// NewService constructs a Service. devices and revocations may be nil.
func NewService(users user.Service, devices device.Service, keyStore *KeyStore, issuer *Issuer, revocations RevocationStore) *Service {
	return &Service{
		Users:       users,
		Devices:     devices,
		KeyStore:    keyStore,
		Issuer:      issuer,
		revocations: revocations,
		now:         time.Now,

		checkUnknownPassword: verifyAgainstUnknownHash,
	}
}

// WithClock replaces the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Register(ctx context.Context, req user.RegisterRequest) (*user.UserResponse, error) {
	u, err := s.Users.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return u.ToResponse(), nil
}

// VerifyCredentials looks the identity up by email and checks the password.
// Every failure is reported as ErrInvalidCredentials.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*user.User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			slog.Error("Identity lookup failed", "error", err)
		}
		s.checkUnknownPassword(password)
		return nil, ErrInvalidCredentials
	}

	if !s.Users.VerifyPassword(u, password) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// SignIn verifies credentials and issues a session
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SessionResult, error) {
	u, err := s.VerifyCredentials(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	return s.IssueSession(ctx, u, DeviceParams{
		DeviceID: req.DeviceID,
		Remember: req.RememberDevice,
		Label:    req.UserAgentLabel,
	})
}

// IssueSession signs a new session for an already authenticated identity.
// The device is recorded only when the caller opted in; a failed recording
// still issues the session, untrusted.
func (s *Service) IssueSession(ctx context.Context, u *user.User, params DeviceParams) (*SessionResult, error) {
	deviceID := strings.TrimSpace(params.DeviceID)
	trusted := false
	returning := false

	if params.Remember && deviceID != "" && s.Devices != nil {
		known, err := s.Devices.IsKnownDevice(ctx, u.ID.String(), deviceID)
		if err != nil {
			slog.Warn("Known device lookup failed", "user_id", u.ID.String(), "device_id", deviceID, "error", err)
		}
		returning = known

		if err := s.recordDevice(ctx, u.ID.String(), deviceID, params.Label); err != nil {
			slog.Warn("Device registration failed, issuing untrusted session", "user_id", u.ID.String(), "device_id", deviceID, "error", err)
		} else {
			trusted = true
		}
	}

	now := s.now()
	tok := s.Issuer.Issue(u, DeviceClaim{DeviceID: deviceID, Trusted: trusted}, now)

	signed, err := s.KeyStore.SignSession(tok)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	slog.Info("Session issued", "user_id", tok.UserID, "sid", tok.SessionID, "trusted_device", tok.TrustedDevice, "returning_device", returning)

	return &SessionResult{
		Token:           signed,
		TokenExpiresAt:  tok.ExpiresAt,
		Session:         s.Issuer.View(tok, now),
		ReturningDevice: returning,
	}, nil
}

func (s *Service) recordDevice(ctx context.Context, userID, deviceID, label string) error {
	if err := s.Devices.RecordDevice(ctx, userID, deviceID, label); err != nil {
		if errors.Is(err, device.ErrRegistrationFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", device.ErrRegistrationFailed, err)
	}
	return nil
}

// Authenticate verifies raw and checks that its lineage was not signed out.
// It does not apply the inactivity rule.
func (s *Service) Authenticate(ctx context.Context, raw string) (SessionToken, error) {
	tok, err := s.KeyStore.VerifySession(raw, s.now())
	if err != nil {
		return SessionToken{}, err
	}

	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, tok.SessionID)
		if err != nil {
			slog.Warn("Revocation check failed", "sid", tok.SessionID, "error", err)
		} else if revoked {
			return SessionToken{}, ErrSessionRevoked
		}
	}

	return tok, nil
}

// CurrentSession returns the session view for raw, or nil when there is no usable session
func (s *Service) CurrentSession(ctx context.Context, raw string) *SessionView {
	if raw == "" {
		return nil
	}

	tok, err := s.Authenticate(ctx, raw)
	if err != nil {
		slog.Debug("Session token rejected", "error", err)
		return nil
	}

	return s.Issuer.View(tok, s.now())
}

// RefreshSession re-issues raw with last_activity set to now.
// A session already past its inactivity deadline is not revived.
func (s *Service) RefreshSession(ctx context.Context, raw string) (*SessionResult, error) {
	old, err := s.Authenticate(ctx, raw)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !s.Issuer.Active(old, now) {
		return nil, ErrSessionExpired
	}

	next := Refresh(old, now)
	s.reloadIdentity(ctx, &next)

	signed, err := s.KeyStore.SignSession(next)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session: %w", err)
	}

	return &SessionResult{
		Token:          signed,
		TokenExpiresAt: next.ExpiresAt,
		Session:        s.Issuer.View(next, now),
	}, nil
}

// reloadIdentity copies status, role and names from the identity store so
// approval and profile changes show up without a new sign-in. A forgotten
// device loses its trust. Store failures keep the token values.
func (s *Service) reloadIdentity(ctx context.Context, tok *SessionToken) {
	if s.Users != nil {
		u, err := s.Users.GetByID(ctx, tok.UserID)
		if err != nil {
			slog.Warn("Identity reload on refresh failed", "user_id", tok.UserID, "error", err)
		} else {
			tok.Status = string(u.Status)
			tok.Role = u.Role
			tok.Name = u.Name
			tok.PreferredName = ""
			if u.PreferredName != nil {
				tok.PreferredName = *u.PreferredName
			}
		}
	}

	if tok.TrustedDevice && s.Devices != nil {
		known, err := s.Devices.IsKnownDevice(ctx, tok.UserID, tok.DeviceID)
		if err != nil {
			slog.Warn("Device trust check on refresh failed", "user_id", tok.UserID, "device_id", tok.DeviceID, "error", err)
		} else if !known {
			tok.TrustedDevice = false
		}
	}
}

// SignOut revokes the lineage of raw until its absolute expiry.
// Unverifiable tokens are ignored.
func (s *Service) SignOut(ctx context.Context, raw string) error {
	if raw == "" || s.revocations == nil {
		return nil
	}

	tok, err := s.KeyStore.VerifySession(raw, s.now())
	if err != nil {
		return nil
	}

	ttl := tok.ExpiresAt.Sub(s.now())
	if err := s.revocations.RevokeSession(ctx, tok.SessionID, ttl); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	slog.Info("Session signed out", "user_id", tok.UserID, "sid", tok.SessionID)
	return nil
}
