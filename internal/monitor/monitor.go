// Package monitor watches user interaction on the client side. Interaction
// keeps the session token fresh; a periodic check signs a non-trusted
// session out once it has been idle longer than the inactivity window.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Anvoria/alumnet/internal/config"
)

// ErrSessionExpired is returned by a Refresher when the server refused to
// refresh because the session is past its inactivity deadline.
var ErrSessionExpired = errors.New("session expired")

// Event is a user interaction kind
type Event string

const (
	PointerDown Event = "pointerdown"
	KeyDown     Event = "keydown"
	Scroll      Event = "scroll"
	TouchStart  Event = "touchstart"
	Click       Event = "click"
)

// IsInteraction reports whether e counts as user activity
func (e Event) IsInteraction() bool {
	switch e {
	case PointerDown, KeyDown, Scroll, TouchStart, Click:
		return true
	default:
		return false
	}
}

// SignOutReasonTimeout is passed to the Navigator on inactivity sign-out
const SignOutReasonTimeout = "timeout"

// Session is the part of the server session the monitor cares about
type Session struct {
	LastActivity time.Time
	Trusted      bool
}

// Refresher asks the server to re-issue the session with last_activity = now
type Refresher interface {
	Refresh(ctx context.Context) (Session, error)
}

// Notifier shows a transient message to the user
type Notifier interface {
	Notify(title, message string)
}

// Navigator signs the user out and moves them to the login entry point
type Navigator interface {
	SignOut(ctx context.Context, reason string) error
}

// Ticker is the subset of time.Ticker the monitor uses
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewTicker wraps time.NewTicker
func NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Outcome tells why Run returned
type Outcome int

const (
	// Suspended means the location is public and nothing was monitored
	Suspended Outcome = iota
	// Stopped means the context was cancelled or Stop was called
	Stopped
	// TimedOut means the session was signed out for inactivity
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Suspended:
		return "suspended"
	case Stopped:
		return "stopped"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Config holds the monitor timings
type Config struct {
	Window        time.Duration
	TrustedPoll   time.Duration
	UntrustedPoll time.Duration
	PublicPaths   []string
}

// ConfigFrom derives the monitor timings from the shared config
func ConfigFrom(session *config.SessionConfig, routes config.RoutesConfig) Config {
	return Config{
		Window:        session.Window(),
		TrustedPoll:   session.TrustedPollInterval(),
		UntrustedPoll: session.UntrustedPollInterval(),
		PublicPaths:   routes.WithDefaults().Public,
	}
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = config.DefaultInactivityWindow
	}
	if c.TrustedPoll <= 0 {
		c.TrustedPoll = config.DefaultTrustedPoll
	}
	if c.UntrustedPoll <= 0 {
		c.UntrustedPoll = config.DefaultUntrustedPoll
	}
	if len(c.PublicPaths) == 0 {
		c.PublicPaths = config.RoutesConfig{}.WithDefaults().Public
	}
	return c
}

// Option configures a Monitor
type Option func(*Monitor)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithTicker replaces NewTicker
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(m *Monitor) { m.newTicker = newTicker }
}

type refreshResult struct {
	session Session
	err     error
}

// Monitor is a single-use inactivity watcher. All state is owned by the
// goroutine running Run; other goroutines talk to it through channels.
type Monitor struct {
	cfg       Config
	refresher Refresher
	notifier  Notifier
	navigator Navigator
	now       func() time.Time
	newTicker func(time.Duration) Ticker

	events   chan Event
	results  chan refreshResult
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	running  atomic.Bool

	// owned by the Run goroutine
	lastActivity time.Time
	trusted      bool
	ticker       Ticker
}

// New creates a Monitor
func New(cfg Config, refresher Refresher, notifier Notifier, navigator Navigator, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:       cfg.withDefaults(),
		refresher: refresher,
		notifier:  notifier,
		navigator: navigator,
		now:       time.Now,
		newTicker: NewTicker,
		events:    make(chan Event, 16),
		results:   make(chan refreshResult, 4),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsPublic reports whether location is a page the monitor stays off on
func (m *Monitor) IsPublic(location string) bool {
	for _, p := range m.cfg.PublicPaths {
		if p == "/" {
			if location == "/" {
				return true
			}
			continue
		}
		if location == p || strings.HasPrefix(location, p+"/") {
			return true
		}
	}
	return false
}

// Record reports a user interaction. It never blocks; events arriving while
// the monitor is not running, or faster than it can consume them, are dropped.
func (m *Monitor) Record(ev Event) bool {
	if !ev.IsInteraction() || !m.running.Load() {
		return false
	}
	select {
	case m.events <- ev:
		return true
	default:
		return false
	}
}

// Stop ends Run. It is safe to call more than once and from any goroutine.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Done is closed when Run has returned
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Run monitors the session at location until it times out, ctx is
// cancelled, or Stop is called. On a public location it returns at once.
func (m *Monitor) Run(ctx context.Context, location string, session Session) Outcome {
	defer close(m.done)

	if m.IsPublic(location) {
		slog.Debug("Session monitor suspended on public page", "location", location)
		return Suspended
	}

	// refreshes still in flight see ctx cancelled and drop their result
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		m.running.Store(false)
		cancel()
	}()

	m.lastActivity = session.LastActivity
	if m.lastActivity.IsZero() {
		m.lastActivity = m.now()
	}
	m.trusted = session.Trusted
	m.running.Store(true)
	m.resetTicker()
	defer func() { m.ticker.Stop() }()

	slog.Debug("Session monitor started", "location", location, "trusted", m.trusted, "poll", m.pollInterval())

	for {
		select {
		case <-ctx.Done():
			return Stopped
		case <-m.stop:
			return Stopped
		case <-m.events:
			m.lastActivity = m.now()
			m.startRefresh(ctx)
		case res := <-m.results:
			if m.applyRefresh(res) {
				m.forceSignOut(ctx)
				return TimedOut
			}
		case <-m.ticker.C():
			if m.idleExpired() {
				m.forceSignOut(ctx)
				return TimedOut
			}
		}
	}
}

func (m *Monitor) pollInterval() time.Duration {
	if m.trusted {
		return m.cfg.TrustedPoll
	}
	return m.cfg.UntrustedPoll
}

func (m *Monitor) resetTicker() {
	if m.ticker != nil {
		m.ticker.Stop()
	}
	m.ticker = m.newTicker(m.pollInterval())
}

// startRefresh fires a refresh without waiting for it. Overlapping refreshes
// are harmless since each one only moves last_activity forward.
func (m *Monitor) startRefresh(ctx context.Context) {
	go func() {
		s, err := m.refresher.Refresh(ctx)
		select {
		case m.results <- refreshResult{session: s, err: err}:
		case <-ctx.Done():
		}
	}()
}

// applyRefresh folds a refresh result into the loop state and reports
// whether the session must be signed out.
func (m *Monitor) applyRefresh(res refreshResult) bool {
	if res.err != nil {
		if errors.Is(res.err, ErrSessionExpired) && !m.trusted {
			return true
		}
		if !errors.Is(res.err, context.Canceled) {
			slog.Warn("Session refresh failed", "error", res.err)
		}
		return false
	}

	if res.session.LastActivity.After(m.lastActivity) {
		m.lastActivity = res.session.LastActivity
	}
	if res.session.Trusted != m.trusted {
		m.trusted = res.session.Trusted
		m.resetTicker()
		slog.Debug("Session trust changed", "trusted", m.trusted, "poll", m.pollInterval())
	}
	return false
}

func (m *Monitor) idleExpired() bool {
	if m.trusted {
		return false
	}
	return m.now().Sub(m.lastActivity) > m.cfg.Window
}

func (m *Monitor) forceSignOut(ctx context.Context) {
	m.running.Store(false)
	m.ticker.Stop()

	slog.Info("Session timed out due to inactivity", "idle", m.now().Sub(m.lastActivity).Round(time.Second))
	m.notifier.Notify("Session expired", "Your session has timed out due to inactivity.")

	if err := m.navigator.SignOut(context.WithoutCancel(ctx), SignOutReasonTimeout); err != nil {
		slog.Error("Sign-out after inactivity failed", "error", err)
	}
}
