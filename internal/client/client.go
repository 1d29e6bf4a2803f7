// Package client talks to the session endpoints over HTTP. It backs the
// terminal session watcher and satisfies monitor.Refresher and
// monitor.Navigator.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Anvoria/alumnet/internal/domain/auth"
	"github.com/Anvoria/alumnet/internal/monitor"
)

var (
	// ErrSignInFailed is returned when the server rejects the credentials
	ErrSignInFailed = errors.New("sign in failed")
	// ErrNotSignedIn is returned when an operation needs a token and there is none
	ErrNotSignedIn = errors.New("not signed in")
)

const defaultTimeout = 10 * time.Second

// SignInParams are the fields of a password sign-in
type SignInParams struct {
	Email          string
	Password       string
	DeviceID       string
	RememberDevice bool
	UserAgent      string
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   any             `json:"error"`
}

func (e envelope) errorString() string {
	switch v := e.Error.(type) {
	case string:
		return v
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	return ""
}

// Client holds the current session token for one user
type Client struct {
	baseURL    string
	cookieName string
	timeout    time.Duration

	mu           sync.Mutex
	token        string
	lastRedirect string
}

// New creates a Client for the API at baseURL
func New(baseURL, cookieName string) *Client {
	if cookieName == "" {
		cookieName = "session"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		cookieName: cookieName,
		timeout:    defaultTimeout,
	}
}

// Token returns the current session token
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// LastRedirect returns where the server sent the user on the last sign-out
func (c *Client) LastRedirect() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRedirect
}

func (c *Client) setToken(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = tok
}

func (c *Client) timeoutFor(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < c.timeout {
			return d
		}
	}
	return c.timeout
}

// do sends the request built by agent and decodes the envelope
func (c *Client) do(ctx context.Context, agent *fiber.Agent) (int, envelope, error) {
	if err := ctx.Err(); err != nil {
		fiber.ReleaseAgent(agent)
		return 0, envelope{}, err
	}

	if tok := c.Token(); tok != "" {
		agent.Cookie(c.cookieName, tok)
	}
	agent.Timeout(c.timeoutFor(ctx))

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return 0, envelope{}, fmt.Errorf("request failed: %w", errors.Join(errs...))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return code, envelope{}, fmt.Errorf("invalid response (status %d): %w", code, err)
	}
	return code, env, nil
}

// SignIn authenticates and keeps the returned token
func (c *Client) SignIn(ctx context.Context, p SignInParams) (*auth.SessionView, error) {
	agent := fiber.Post(c.baseURL + "/v1/auth/signin").JSON(auth.SignInRequest{
		Email:          p.Email,
		Password:       p.Password,
		DeviceID:       p.DeviceID,
		RememberDevice: p.RememberDevice,
		UserAgentLabel: p.UserAgent,
	})

	code, env, err := c.do(ctx, agent)
	if err != nil {
		return nil, err
	}
	if code != fiber.StatusOK || !env.Success {
		return nil, fmt.Errorf("%w: %s", ErrSignInFailed, env.errorString())
	}

	var res auth.SessionResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		return nil, fmt.Errorf("invalid sign in response: %w", err)
	}

	c.setToken(res.Token)
	return res.Session, nil
}

// Refresh asks the server to slide the session. A refusal for an expired
// or unusable session is reported as monitor.ErrSessionExpired.
func (c *Client) Refresh(ctx context.Context) (monitor.Session, error) {
	if c.Token() == "" {
		return monitor.Session{}, monitor.ErrSessionExpired
	}

	code, env, err := c.do(ctx, fiber.Post(c.baseURL+"/v1/auth/refresh"))
	if err != nil {
		return monitor.Session{}, err
	}

	if code == fiber.StatusUnauthorized {
		c.setToken("")
		return monitor.Session{}, fmt.Errorf("%w: %s", monitor.ErrSessionExpired, env.errorString())
	}
	if code != fiber.StatusOK || !env.Success {
		return monitor.Session{}, fmt.Errorf("refresh failed with status %d: %s", code, env.errorString())
	}

	var res auth.SessionResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		return monitor.Session{}, fmt.Errorf("invalid refresh response: %w", err)
	}
	if res.Session == nil {
		return monitor.Session{}, monitor.ErrSessionExpired
	}

	c.setToken(res.Token)
	return monitor.Session{
		LastActivity: res.Session.LastActivity,
		Trusted:      res.Session.IsTrustedDevice,
	}, nil
}

// Session fetches the current session view, nil when signed out
func (c *Client) Session(ctx context.Context) (*auth.SessionView, error) {
	code, env, err := c.do(ctx, fiber.Get(c.baseURL+"/v1/auth/session"))
	if err != nil {
		return nil, err
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("session lookup failed with status %d: %s", code, env.errorString())
	}

	var view *auth.SessionView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		return nil, fmt.Errorf("invalid session response: %w", err)
	}
	return view, nil
}

// SignOut ends the session on the server and forgets the token
func (c *Client) SignOut(ctx context.Context, reason string) error {
	endpoint := c.baseURL + "/v1/auth/signout"
	if reason != "" {
		endpoint += "?reason=" + url.QueryEscape(reason)
	}

	code, env, err := c.do(ctx, fiber.Post(endpoint))
	c.setToken("")
	if err != nil {
		return err
	}
	if code != fiber.StatusOK {
		return fmt.Errorf("sign out failed with status %d: %s", code, env.errorString())
	}

	var data struct {
		Redirect string `json:"redirect"`
	}
	if err := json.Unmarshal(env.Data, &data); err == nil {
		c.mu.Lock()
		c.lastRedirect = data.Redirect
		c.mu.Unlock()
	}
	return nil
}
