package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Anvoria/alumnet/internal/domain/user"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAuthService is a mock implementation of AuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, req user.RegisterRequest) (*user.UserResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.UserResponse), args.Error(1)
}

func (m *MockAuthService) SignIn(ctx context.Context, req SignInRequest) (*SessionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SessionResult), args.Error(1)
}

func (m *MockAuthService) RefreshSession(ctx context.Context, raw string) (*SessionResult, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SessionResult), args.Error(1)
}

func (m *MockAuthService) CurrentSession(ctx context.Context, raw string) *SessionView {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*SessionView)
}

func (m *MockAuthService) SignOut(ctx context.Context, raw string) error {
	args := m.Called(ctx, raw)
	return args.Error(0)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   any             `json:"error"`
}

func decode(t *testing.T, body io.Reader) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(body).Decode(&env))
	return env
}

func newTestApp(svc AuthService) *fiber.App {
	app := fiber.New()
	h := NewHandler(svc, CookieSettings{Name: "session"}, "/login")
	app.Post("/register", h.Register)
	app.Post("/signin", h.SignIn)
	app.Post("/refresh", h.Refresh)
	app.Get("/session", h.Session)
	app.Post("/signout", h.SignOut)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (int, envelope, []string) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(b))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderUserAgent, "TestAgent/1.0")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	return resp.StatusCode, decode(t, resp.Body), resp.Header.Values(fiber.HeaderSetCookie)
}

func TestNewHandler(t *testing.T) {
	h := NewHandler(new(MockAuthService), CookieSettings{}, "")
	assert.Equal(t, "session", h.cookie.Name)
	assert.Equal(t, "/login", h.loginPath)
}

func TestHandler_SignIn(t *testing.T) {
	t.Run("successful sign in sets cookie", func(t *testing.T) {
		svc := new(MockAuthService)
		app := newTestApp(svc)

		expected := &SessionResult{
			Token:          "signed.jwt.value",
			TokenExpiresAt: time.Now().Add(30 * time.Minute),
			Session:        &SessionView{ID: "user-1", Status: "approved", IsTrustedDevice: true},
		}
		svc.On("SignIn", mock.Anything, SignInRequest{
			Email:          "ada@example.com",
			Password:       "secret",
			DeviceID:       "laptop",
			RememberDevice: true,
			UserAgentLabel: "TestAgent/1.0",
		}).Return(expected, nil)

		status, env, cookies := postJSON(t, app, "/signin", fiber.Map{
			"email":           "ada@example.com",
			"password":        "secret",
			"device_id":       "laptop",
			"remember_device": true,
		})

		assert.Equal(t, fiber.StatusOK, status)
		assert.True(t, env.Success)
		require.Len(t, cookies, 1)
		assert.Contains(t, cookies[0], "session=signed.jwt.value")
		assert.Contains(t, cookies[0], "HttpOnly")

		var res SessionResult
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.Equal(t, "signed.jwt.value", res.Token)
		assert.True(t, res.Session.IsTrustedDevice)
	})

	t.Run("invalid credentials are generic", func(t *testing.T) {
		svc := new(MockAuthService)
		app := newTestApp(svc)
		svc.On("SignIn", mock.Anything, mock.Anything).Return(nil, ErrInvalidCredentials)

		status, env, cookies := postJSON(t, app, "/signin", fiber.Map{"email": "x@example.com", "password": "bad"})

		assert.Equal(t, fiber.StatusUnauthorized, status)
		assert.False(t, env.Success)
		assert.Equal(t, ErrInvalidCredentials.Error(), env.Error)
		assert.Empty(t, cookies)
	})

	t.Run("malformed body", func(t *testing.T) {
		app := newTestApp(new(MockAuthService))
		req := httptest.NewRequest(fiber.MethodPost, "/signin", bytes.NewBufferString("{"))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestHandler_Register(t *testing.T) {
	svc := new(MockAuthService)
	app := newTestApp(svc)

	svc.On("Register", mock.Anything, user.RegisterRequest{Name: "Grace", Email: "grace@example.com", Password: "password123"}).
		Return(&user.UserResponse{ID: "u-1", Name: "Grace", Email: "grace@example.com", Status: user.StatusPending}, nil)
	svc.On("Register", mock.Anything, user.RegisterRequest{Name: "Grace", Email: "dup@example.com", Password: "password123"}).
		Return(nil, user.ErrEmailExists)

	status, env, _ := postJSON(t, app, "/register", fiber.Map{"name": "Grace", "email": "grace@example.com", "password": "password123"})
	assert.Equal(t, fiber.StatusCreated, status)
	assert.True(t, env.Success)

	status, env, _ = postJSON(t, app, "/register", fiber.Map{"name": "Grace", "email": "dup@example.com", "password": "password123"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, user.ErrEmailExists.Error(), env.Error)
}

func TestHandler_Refresh(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		result     *SessionResult
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "no token",
			wantStatus: fiber.StatusUnauthorized,
			wantError:  ErrNotAuthenticated.Error(),
		},
		{
			name:       "expired session",
			cookie:     "old",
			err:        ErrSessionExpired,
			wantStatus: fiber.StatusUnauthorized,
			wantError:  ErrSessionExpired.Error(),
		},
		{
			name:       "revoked lineage reads as expired",
			cookie:     "old",
			err:        ErrSessionRevoked,
			wantStatus: fiber.StatusUnauthorized,
			wantError:  ErrSessionExpired.Error(),
		},
		{
			name:       "refreshed",
			cookie:     "old",
			result:     &SessionResult{Token: "new", Session: &SessionView{ID: "u"}},
			wantStatus: fiber.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAuthService)
			app := newTestApp(svc)
			if tt.cookie != "" {
				svc.On("RefreshSession", mock.Anything, tt.cookie).Return(tt.result, tt.err)
			}

			req := httptest.NewRequest(fiber.MethodPost, "/refresh", nil)
			if tt.cookie != "" {
				req.Header.Set(fiber.HeaderCookie, "session="+tt.cookie)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			env := decode(t, resp.Body)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, env.Error)
			} else {
				assert.True(t, env.Success)
			}
		})
	}
}

func TestHandler_SessionAndSignOut(t *testing.T) {
	svc := new(MockAuthService)
	app := newTestApp(svc)

	svc.On("CurrentSession", mock.Anything, "").Return(nil)
	svc.On("SignOut", mock.Anything, "tok").Return(nil)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/session", nil))
	require.NoError(t, err)
	env := decode(t, resp.Body)
	assert.True(t, env.Success)
	assert.Equal(t, "null", string(env.Data))

	req := httptest.NewRequest(fiber.MethodPost, "/signout?reason=timeout", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer tok")
	resp, err = app.Test(req)
	require.NoError(t, err)
	env = decode(t, resp.Body)

	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "/login?timeout=true", data["redirect"])
	assert.Contains(t, resp.Header.Get(fiber.HeaderSetCookie), "session=;")
}
