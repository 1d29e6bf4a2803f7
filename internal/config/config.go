package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultInactivityWindow is how long a non-trusted session survives without activity
	DefaultInactivityWindow = 30 * time.Minute
	// DefaultMaxAge is the lifetime of a single signed session token
	DefaultMaxAge = 30 * time.Minute
	// DefaultTrustedPoll is the monitor cadence for remembered devices
	DefaultTrustedPoll = 60 * time.Second
	// DefaultUntrustedPoll is the monitor cadence for everything else
	DefaultUntrustedPoll = 15 * time.Second
)

// Config holds the application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Session  SessionConfig  `yaml:"session"`
	Routes   RoutesConfig   `yaml:"routes"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AppConfig holds app-specific configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host           string          `yaml:"host"`
	Port           int             `yaml:"port"`
	Domain         string          `yaml:"domain"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds limiter settings, expiration is in seconds
type RateLimitConfig struct {
	Max        int `yaml:"max"`
	Expiration int `yaml:"expiration"`
}

// AuthConfig holds auth-specific configuration
type AuthConfig struct {
	KeysPath     string `yaml:"keys_path"`
	ActiveKID    string `yaml:"active_kid"`
	CookieName   string `yaml:"cookie_name"`
	SecureCookie bool   `yaml:"secure_cookie"`
}

// SessionConfig holds the session lifetime settings.
// Durations are Go duration strings ("30m", "15s").
type SessionConfig struct {
	InactivityWindow string `yaml:"inactivity_window"`
	MaxAge           string `yaml:"max_age"`
	TrustedPoll      string `yaml:"trusted_poll"`
	UntrustedPoll    string `yaml:"untrusted_poll"`
}

// RoutesConfig holds the route classes used by the access gate
type RoutesConfig struct {
	Protected   []string `yaml:"protected"`
	AuthEntry   []string `yaml:"auth_entry"`
	Public      []string `yaml:"public"`
	LoginPath   string   `yaml:"login_path"`
	PendingPath string   `yaml:"pending_path"`
	HomePath    string   `yaml:"home_path"`
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds redis-specific configuration
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// PoolSize and MinIdleConns fall back to go-redis defaults when zero
	PoolSize     int `yaml:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns"`
}

// LoggingConfig holds logging-specific configuration
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Session.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Address returns the server address in the format "host:port"
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Cookie returns the session cookie name, "session" when unset
func (a *AuthConfig) Cookie() string {
	if a.CookieName == "" {
		return "session"
	}
	return a.CookieName
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (s *SessionConfig) validate() error {
	fields := map[string]string{
		"inactivity_window": s.InactivityWindow,
		"max_age":           s.MaxAge,
		"trusted_poll":      s.TrustedPoll,
		"untrusted_poll":    s.UntrustedPoll,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid session.%s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid session.%s: must be positive", name)
		}
	}
	return nil
}

// Window returns the inactivity window, 30m if unset
func (s *SessionConfig) Window() time.Duration {
	return parseDuration(s.InactivityWindow, DefaultInactivityWindow)
}

// TokenMaxAge returns the absolute lifetime of a single token, 30m if unset
func (s *SessionConfig) TokenMaxAge() time.Duration {
	return parseDuration(s.MaxAge, DefaultMaxAge)
}

// TrustedPollInterval returns the monitor cadence for remembered devices
func (s *SessionConfig) TrustedPollInterval() time.Duration {
	return parseDuration(s.TrustedPoll, DefaultTrustedPoll)
}

// UntrustedPollInterval returns the monitor cadence for non-remembered devices
func (s *SessionConfig) UntrustedPollInterval() time.Duration {
	return parseDuration(s.UntrustedPoll, DefaultUntrustedPoll)
}

// WithDefaults returns a copy with the application's route layout filled in
func (r RoutesConfig) WithDefaults() RoutesConfig {
	if len(r.Protected) == 0 {
		r.Protected = []string{"/dashboard"}
	}
	if len(r.AuthEntry) == 0 {
		r.AuthEntry = []string{"/login", "/register", "/forgot-password"}
	}
	if len(r.Public) == 0 {
		r.Public = []string{"/login", "/register", "/forgot-password", "/"}
	}
	if r.LoginPath == "" {
		r.LoginPath = "/login"
	}
	if r.PendingPath == "" {
		r.PendingPath = "/pending-status"
	}
	if r.HomePath == "" {
		r.HomePath = "/dashboard"
	}
	return r
}

// Address returns the redis address in the format "host:port"
func (r *RedisConfig) Address() string {
	return net.JoinHostPort(r.Host, fmt.Sprintf("%d", r.Port))
}

// Enabled reports whether a redis host is configured
func (r *RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// quoteDSNValue quotes a DSN value if it contains spaces or special characters.
// Single quotes inside the value are escaped by doubling them.
func quoteDSNValue(value string) string {
	needsQuoting := value == ""
	for _, r := range value {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '-' || r == '_' || r == '/' || r == '@' || r == ':') {
			needsQuoting = true
			break
		}
	}

	if !needsQuoting {
		return value
	}

	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// DSN returns the database connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteDSNValue(d.Host),
		d.Port,
		quoteDSNValue(d.User),
		quoteDSNValue(d.Password),
		quoteDSNValue(d.DBName),
		quoteDSNValue(d.SSLMode),
	)
}

// URL returns the database connection URL in postgres:// format for golang-migrate
func (d *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, fmt.Sprintf("%d", d.Port)),
		Path:     "/" + d.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s&search_path=public", url.QueryEscape(d.SSLMode)),
	}

	return u.String()
}
