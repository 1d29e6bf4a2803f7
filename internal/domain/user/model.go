package user

import (
	"strings"

	"github.com/Anvoria/alumnet/internal/database"
)

// Status is the approval state of an identity
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSuspended Status = "suspended"
)

// IsValid reports whether s is one of the known administrative states
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusSuspended:
		return true
	default:
		return false
	}
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	database.BaseModel
	Name          string  `gorm:"column:name;not null"`
	PreferredName *string `gorm:"column:preferred_name"`
	Email         string  `gorm:"column:email;unique;not null"`
	Password      string  `gorm:"column:password;not null"`
	Role          string  `gorm:"column:role;not null;default:user"`
	Status        Status  `gorm:"column:status;not null;default:pending"`
}

func (User) TableName() string {
	return "users"
}

// IsApproved reports whether the identity passed the approval workflow
func (u *User) IsApproved() bool {
	return u.Status == StatusApproved
}

// DisplayName prefers the preferred name over the full name
func (u *User) DisplayName() string {
	if u.PreferredName != nil && strings.TrimSpace(*u.PreferredName) != "" {
		return *u.PreferredName
	}
	return u.Name
}

// UserResponse is the public view of an identity
type UserResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	PreferredName *string `json:"preferred_name"`
	Email         string  `json:"email"`
	Role          string  `json:"role"`
	Status        Status  `json:"status"`
}

// ToResponse strips the password hash
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:            u.ID.String(),
		Name:          u.Name,
		PreferredName: u.PreferredName,
		Email:         u.Email,
		Role:          u.Role,
		Status:        u.Status,
	}
}

// NormalizeEmail lower-cases and trims an email address for lookups
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
