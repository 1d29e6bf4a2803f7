package user

import (
	"context"
	"testing"

	"github.com/Anvoria/alumnet/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDB creates a PostgreSQL database connection for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db := utils.SetupTestDB(t, &User{})
	db.Exec("DELETE FROM users")
	return db
}

func TestService_Register(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(NewRepository(db))
	ctx := context.Background()

	tests := []struct {
		name     string
		existing *RegisterRequest
		req      RegisterRequest
		wantErr  error
	}{
		{
			name: "successful registration",
			req: RegisterRequest{
				Name:          "Ada Lovelace",
				PreferredName: "Ada",
				Email:         "Ada@Example.com ",
				Password:      "securepassword123",
			},
		},
		{
			name: "duplicate email differs only by case",
			existing: &RegisterRequest{
				Name:     "Existing",
				Email:    "dup@example.com",
				Password: "password123",
			},
			req: RegisterRequest{
				Name:     "Other",
				Email:    "DUP@example.com",
				Password: "password123",
			},
			wantErr: ErrEmailExists,
		},
		{
			name:    "missing name",
			req:     RegisterRequest{Email: "noname@example.com", Password: "password123"},
			wantErr: ErrNameRequired,
		},
		{
			name:    "short password",
			req:     RegisterRequest{Name: "Short", Email: "short@example.com", Password: "abc"},
			wantErr: ErrPasswordTooShort,
		},
		{
			name:    "unknown role",
			req:     RegisterRequest{Name: "Root", Email: "root@example.com", Password: "password123", Role: "root"},
			wantErr: ErrInvalidRole,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db.Exec("DELETE FROM users")

			if tt.existing != nil {
				_, err := service.Register(ctx, *tt.existing)
				require.NoError(t, err)
			}

			u, err := service.Register(ctx, tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, u)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, u)
			assert.Equal(t, "ada@example.com", u.Email)
			assert.Equal(t, StatusPending, u.Status)
			assert.Equal(t, RoleUser, u.Role)
			assert.Equal(t, "Ada", u.DisplayName())
			assert.NotEqual(t, tt.req.Password, u.Password)
			assert.True(t, service.VerifyPassword(u, tt.req.Password))
			assert.False(t, service.VerifyPassword(u, "wrongpassword"))
		})
	}
}

func TestService_ApproveAndProfile(t *testing.T) {
	db := setupTestDB(t)
	service := NewService(NewRepository(db))
	ctx := context.Background()

	u, err := service.Register(ctx, RegisterRequest{
		Name:     "Grace Hopper",
		Email:    "grace@example.com",
		Password: "correctpassword",
	})
	require.NoError(t, err)

	approved, err := service.Approve(ctx, u.ID.String())
	require.NoError(t, err)
	assert.True(t, approved.IsApproved())

	_, err = service.SetStatus(ctx, u.ID.String(), Status("bogus"))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	preferred := "Amazing Grace"
	updated, err := service.UpdateProfile(ctx, u.ID.String(), ProfileUpdate{PreferredName: &preferred})
	require.NoError(t, err)
	assert.Equal(t, "Amazing Grace", updated.DisplayName())
	assert.Equal(t, "Grace Hopper", updated.Name)

	empty := ""
	updated, err = service.UpdateProfile(ctx, u.ID.String(), ProfileUpdate{PreferredName: &empty})
	require.NoError(t, err)
	assert.Nil(t, updated.PreferredName)

	blank := "  "
	_, err = service.UpdateProfile(ctx, u.ID.String(), ProfileUpdate{Name: &blank})
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = service.Approve(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
