package user

import (
	"context"
	"errors"
	"strings"
)

// MinPasswordLength is the shortest password accepted at registration
const MinPasswordLength = 8

// RegisterRequest represents the input for user registration.
// Role defaults to RoleUser; the public sign-up endpoint never sets it.
type RegisterRequest struct {
	Name          string
	PreferredName string
	Email         string
	Password      string
	Role          string
}

// Service interface for user operations
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Approve(ctx context.Context, id string) (*User, error)
	SetStatus(ctx context.Context, id string, status Status) (*User, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error)
	VerifyPassword(u *User, password string) bool
}

// service struct for user operations
type service struct {
	repo Repository
}

// NewService creates a new user service
func NewService(repo Repository) Service {
	return &service{repo}
}

// Register registers a new user. New identities start pending approval.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	email := NormalizeEmail(req.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	if len(req.Password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	role := req.Role
	if role == "" {
		role = RoleUser
	}
	if role != RoleUser && role != RoleAdmin {
		return nil, ErrInvalidRole
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hashedPassword, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Name:     name,
		Email:    email,
		Password: hashedPassword,
		Role:     role,
		Status:   StatusPending,
	}
	if preferred := strings.TrimSpace(req.PreferredName); preferred != "" {
		user.PreferredName = &preferred
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.FindByEmail(ctx, email)
}

// Approve moves a user into the approved state
func (s *service) Approve(ctx context.Context, id string) (*User, error) {
	return s.SetStatus(ctx, id, StatusApproved)
}

// SetStatus changes the administrative status of a user
func (s *service) SetStatus(ctx context.Context, id string, status Status) (*User, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.UpdateStatus(ctx, id, status)
}

// UpdateProfile updates the self-service profile fields
func (s *service) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error) {
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		update.Name = &name
	}
	if update.PreferredName != nil {
		preferred := strings.TrimSpace(*update.PreferredName)
		update.PreferredName = &preferred
	}
	return s.repo.UpdateProfile(ctx, id, update)
}

// VerifyPassword verifies if the provided password matches the user's hashed password
func (s *service) VerifyPassword(u *User, password string) bool {
	return VerifyPassword(password, u.Password)
}
