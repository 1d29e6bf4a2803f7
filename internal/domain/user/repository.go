package user

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ProfileUpdate holds the profile fields a user may change themselves.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Name          *string
	PreferredName *string
}

// Repository interface for identity store operations
type Repository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*User, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error)
}

// repository struct for user operations
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new user repository
func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

// Create creates a new user
func (r *repository) Create(ctx context.Context, user *User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// FindByID finds a user by ID
func (r *repository) FindByID(ctx context.Context, id string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByEmail finds a user by normalised email
func (r *repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateStatus sets the approval status and returns the updated user
func (r *repository) UpdateStatus(ctx context.Context, id string, status Status) (*User, error) {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return r.FindByID(ctx, id)
}

// UpdateProfile applies the non-nil profile fields
func (r *repository) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*User, error) {
	updates := map[string]any{}
	if update.Name != nil {
		updates["name"] = *update.Name
	}
	if update.PreferredName != nil {
		if *update.PreferredName == "" {
			updates["preferred_name"] = nil
		} else {
			updates["preferred_name"] = *update.PreferredName
		}
	}

	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrUserNotFound
		}
	}

	return r.FindByID(ctx, id)
}
