package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTicker struct {
	interval time.Duration
	ch       chan time.Time
	mu       sync.Mutex
	stopped  bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeTicker) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type tickerFactory struct {
	created chan *fakeTicker
}

func newTickerFactory() *tickerFactory {
	return &tickerFactory{created: make(chan *fakeTicker, 8)}
}

func (f *tickerFactory) New(d time.Duration) Ticker {
	t := &fakeTicker{interval: d, ch: make(chan time.Time)}
	f.created <- t
	return t
}

func (f *tickerFactory) next(t *testing.T) *fakeTicker {
	t.Helper()
	select {
	case tk := <-f.created:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("ticker was not created")
		return nil
	}
}

type fakeRefresher struct {
	calls  chan struct{}
	result func() (Session, error)
}

func (r *fakeRefresher) Refresh(ctx context.Context) (Session, error) {
	r.calls <- struct{}{}
	if ctx.Err() != nil {
		return Session{}, ctx.Err()
	}
	return r.result()
}

type recorder struct {
	mu       sync.Mutex
	notified []string
	signOuts []string
}

func (r *recorder) Notify(title, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notified = append(r.notified, title)
}

func (r *recorder) SignOut(_ context.Context, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signOuts = append(r.signOuts, reason)
	return nil
}

func (r *recorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notified...), append([]string(nil), r.signOuts...)
}

type harness struct {
	clock     *fakeClock
	tickers   *tickerFactory
	refresher *fakeRefresher
	rec       *recorder
	mon       *Monitor
	outcome   chan Outcome
}

func newHarness(cfg Config) *harness {
	h := &harness{
		clock:   &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
		tickers: newTickerFactory(),
		refresher: &fakeRefresher{
			calls: make(chan struct{}, 16),
		},
		rec:     &recorder{},
		outcome: make(chan Outcome, 1),
	}
	// a zero LastActivity leaves the locally recorded activity time in place
	h.refresher.result = func() (Session, error) {
		return Session{}, nil
	}
	h.mon = New(cfg, h.refresher, h.rec, h.rec, WithClock(h.clock.Now), WithTicker(h.tickers.New))
	return h
}

func (h *harness) start(ctx context.Context, location string, s Session) {
	go func() {
		h.outcome <- h.mon.Run(ctx, location, s)
	}()
}

func (h *harness) wait(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-h.outcome:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not return")
		return Stopped
	}
}

func (h *harness) waitRefresh(t *testing.T) {
	t.Helper()
	select {
	case <-h.refresher.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh was not called")
	}
}

func tick(t *testing.T, tk *fakeTicker, now time.Time) {
	t.Helper()
	select {
	case tk.ch <- now:
	case <-time.After(2 * time.Second):
		t.Fatal("tick was not consumed")
	}
}

func TestMonitor_UntrustedIdleSignsOutOnce(t *testing.T) {
	h := newHarness(Config{})
	h.start(context.Background(), "/dashboard", Session{LastActivity: h.clock.Now()})

	tk := h.tickers.next(t)
	assert.Equal(t, 15*time.Second, tk.interval)

	h.clock.Advance(31 * time.Minute)
	tick(t, tk, h.clock.Now())

	assert.Equal(t, TimedOut, h.wait(t))
	assert.True(t, tk.isStopped())

	notified, signOuts := h.rec.snapshot()
	assert.Equal(t, []string{"Session expired"}, notified)
	assert.Equal(t, []string{SignOutReasonTimeout}, signOuts)

	// nothing is listening any more
	assert.False(t, h.mon.Record(KeyDown))
	select {
	case tk.ch <- h.clock.Now():
		t.Fatal("ticker still consumed after sign-out")
	default:
	}
}

func TestMonitor_UntrustedWithinWindowStays(t *testing.T) {
	h := newHarness(Config{})
	h.start(context.Background(), "/dashboard", Session{LastActivity: h.clock.Now()})
	tk := h.tickers.next(t)

	h.clock.Advance(30 * time.Minute)
	tick(t, tk, h.clock.Now())

	h.mon.Stop()
	assert.Equal(t, Stopped, h.wait(t))

	_, signOuts := h.rec.snapshot()
	assert.Empty(t, signOuts)
}

func TestMonitor_TrustedNeverTimesOut(t *testing.T) {
	h := newHarness(Config{})
	h.start(context.Background(), "/dashboard", Session{LastActivity: h.clock.Now(), Trusted: true})

	tk := h.tickers.next(t)
	assert.Equal(t, 60*time.Second, tk.interval)

	for i := 0; i < 5; i++ {
		h.clock.Advance(2 * time.Hour)
		tick(t, tk, h.clock.Now())
	}

	h.mon.Stop()
	assert.Equal(t, Stopped, h.wait(t))
	_, signOuts := h.rec.snapshot()
	assert.Empty(t, signOuts)
}

func TestMonitor_ActivityResetsIdleTimer(t *testing.T) {
	h := newHarness(Config{})
	h.start(context.Background(), "/dashboard/alumni", Session{LastActivity: h.clock.Now()})
	tk := h.tickers.next(t)

	h.clock.Advance(20 * time.Minute)
	require.True(t, h.mon.Record(KeyDown))
	h.waitRefresh(t)

	h.clock.Advance(20 * time.Minute)
	tick(t, tk, h.clock.Now())

	_, signOuts := h.rec.snapshot()
	assert.Empty(t, signOuts, "40 minutes since start but only 20 since the last key press")

	h.clock.Advance(11 * time.Minute)
	tick(t, tk, h.clock.Now())
	assert.Equal(t, TimedOut, h.wait(t))
}

func TestMonitor_RefreshRefusedSignsOut(t *testing.T) {
	h := newHarness(Config{})
	h.refresher.result = func() (Session, error) {
		return Session{}, ErrSessionExpired
	}
	h.start(context.Background(), "/dashboard", Session{LastActivity: h.clock.Now()})
	h.tickers.next(t)

	require.True(t, h.mon.Record(Click))
	h.waitRefresh(t)

	assert.Equal(t, TimedOut, h.wait(t))
	_, signOuts := h.rec.snapshot()
	assert.Equal(t, []string{SignOutReasonTimeout}, signOuts)
}

func TestMonitor_TransientRefreshFailureIsTolerated(t *testing.T) {
	h := newHarness(Config{})
	h.refresher.result = func() (Session, error) {
		return Session{}, errors.New("connection reset")
	}
	h.start(context.Background(), "/dashboard", Session{LastActivity: h.clock.Now()})
	tk := h.tickers.next(t)

	require.True(t, h.mon.Record(Scroll))
	h.waitRefresh(t)

	h.clock.Advance(10 * time.Minute)
	tick(t, tk, h.clock.Now())

	h.mon.Stop()
	assert.Equal(t, Stopped, h.wait(t))
	_, signOuts := h.rec.snapshot()
	assert.Empty(t, signOuts)
}

func TestMonitor_TrustLostSwitchesCadence(t *testing.T) {
	h := newHarness(Config{})
	h.refresher.result = func() (Session, error) {
		return Session{LastActivity: h.clock.Now(), Trusted: false}, nil
	}
	h.start(context.Background(), "/dashboard", Session{LastActivity: h.clock.Now(), Trusted: true})

	first := h.tickers.next(t)
	assert.Equal(t, 60*time.Second, first.interval)

	require.True(t, h.mon.Record(TouchStart))
	h.waitRefresh(t)

	second := h.tickers.next(t)
	assert.Equal(t, 15*time.Second, second.interval)
	assert.True(t, first.isStopped())

	h.clock.Advance(31 * time.Minute)
	tick(t, second, h.clock.Now())
	assert.Equal(t, TimedOut, h.wait(t))
}

func TestMonitor_PublicPageIsSuspended(t *testing.T) {
	for _, location := range []string{"/", "/login", "/register", "/forgot-password", "/login/help"} {
		t.Run(location, func(t *testing.T) {
			h := newHarness(Config{})
			assert.Equal(t, Suspended, h.mon.Run(context.Background(), location, Session{}))
			assert.False(t, h.mon.Record(KeyDown))
			assert.Empty(t, h.tickers.created)
		})
	}
}

func TestMonitor_ContextCancel(t *testing.T) {
	h := newHarness(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	h.start(ctx, "/dashboard", Session{LastActivity: h.clock.Now()})
	tk := h.tickers.next(t)

	cancel()
	assert.Equal(t, Stopped, h.wait(t))
	assert.True(t, tk.isStopped())
	<-h.mon.Done()
	assert.False(t, h.mon.Record(KeyDown))
}

// stuckRefresher ignores ctx and blocks until released, like an HTTP
// client whose timeout is not tied to the caller's context.
type stuckRefresher struct {
	started chan struct{}
	release chan struct{}
}

func (r *stuckRefresher) Refresh(context.Context) (Session, error) {
	r.started <- struct{}{}
	<-r.release
	return Session{}, nil
}

func TestMonitor_StopDoesNotWaitForRefresh(t *testing.T) {
	h := newHarness(Config{})
	stuck := &stuckRefresher{started: make(chan struct{}, 1), release: make(chan struct{})}
	defer close(stuck.release)
	h.mon = New(Config{}, stuck, h.rec, h.rec, WithClock(h.clock.Now), WithTicker(h.tickers.New))

	h.start(context.Background(), "/dashboard", Session{LastActivity: h.clock.Now()})
	h.tickers.next(t)

	require.True(t, h.mon.Record(Click))
	select {
	case <-stuck.started:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh was not called")
	}

	h.mon.Stop()
	assert.Equal(t, Stopped, h.wait(t))
	select {
	case <-h.mon.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Done was not closed while a refresh was still running")
	}
}

func TestMonitor_IgnoresNonInteractionEvents(t *testing.T) {
	h := newHarness(Config{})
	h.start(context.Background(), "/dashboard", Session{LastActivity: h.clock.Now()})
	h.tickers.next(t)

	assert.False(t, h.mon.Record(Event("mousemove")))
	assert.True(t, PointerDown.IsInteraction())

	h.mon.Stop()
	h.mon.Stop()
	assert.Equal(t, Stopped, h.wait(t))
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 30*time.Minute, cfg.Window)
	assert.Equal(t, 60*time.Second, cfg.TrustedPoll)
	assert.Equal(t, 15*time.Second, cfg.UntrustedPoll)
	assert.Contains(t, cfg.PublicPaths, "/")
	assert.Equal(t, "timed_out", TimedOut.String())
}
