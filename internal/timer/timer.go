// Package timer implements the rest countdown between sets.
//
// Remaining time is always derived from the start timestamp and the
// configured duration, never from a decremented counter. The periodic tick
// only triggers a re-evaluation, so a throttled process, a suspended machine
// or a restart all resume with the correct remaining time.
package timer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/claude/restset/internal/observability"
)

// DefaultInterval is the tick granularity used when none is configured.
const DefaultInterval = time.Second

// State is the lifecycle state of a Timer.
type State int

const (
	Idle State = iota
	Running
	Expired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Remaining returns duration - (now - start). The result is negative once the
// rest period is over.
func Remaining(start time.Time, duration time.Duration, now time.Time) time.Duration {
	return duration - now.Sub(start)
}

// Alerter produces the sensory cue when a rest period ends. Failures are ignored.
type Alerter interface {
	Alert() error
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func() error

func (f AlertFunc) Alert() error { return f() }

// Option configures a Timer.
type Option func(*Timer)

// WithInterval sets the tick granularity.
func WithInterval(d time.Duration) Option {
	return func(t *Timer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithAlerter sets the cue fired on expiry.
func WithAlerter(a Alerter) Option {
	return func(t *Timer) { t.alert = a }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(t *Timer) { t.log = log }
}

// Timer counts down one exercise's rest. At most one ticker is live per Timer;
// starting again always stops the previous one first.
type Timer struct {
	clock    Clock
	interval time.Duration
	onExpire func()
	alert    Alerter
	log      *slog.Logger

	mu       sync.Mutex
	state    State
	start    time.Time
	duration time.Duration
	ticker   Ticker
	done     chan struct{}
}

// New returns an idle Timer. onExpire runs exactly once per activation that
// runs out; it is not called for activations cancelled with Stop or Start.
func New(clock Clock, onExpire func(), opts ...Option) *Timer {
	t := &Timer{
		clock:    clock,
		interval: DefaultInterval,
		onExpire: onExpire,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start activates the timer for a rest period that began at start. A start in
// the past resumes with the time left; if none is left the timer expires
// immediately, before Start returns, without ever ticking.
func (t *Timer) Start(start time.Time, d time.Duration) {
	t.mu.Lock()
	if t.state == Running {
		t.halt()
		observability.RecordTimerStopped(false)
	}
	t.start, t.duration = start, d
	t.state = Running
	observability.RecordTimerStarted()

	if Remaining(start, d, t.clock.Now()) <= 0 {
		t.state = Expired
		t.mu.Unlock()
		t.fire()
		return
	}

	ticker := t.clock.NewTicker(t.interval)
	done := make(chan struct{})
	t.ticker, t.done = ticker, done
	t.mu.Unlock()

	go t.loop(ticker, done)
}

func (t *Timer) loop(ticker Ticker, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C():
			t.Check()
		}
	}
}

// Check recomputes the remaining time from the clock and expires the timer if
// it has run out. It is called on every tick and whenever the caller has
// reason to believe time jumped, such as the client becoming visible again.
// It reports whether this call expired the timer.
func (t *Timer) Check() bool {
	t.mu.Lock()
	if t.state != Running || Remaining(t.start, t.duration, t.clock.Now()) > 0 {
		t.mu.Unlock()
		return false
	}
	t.halt()
	t.state = Expired
	t.mu.Unlock()

	t.fire()
	return true
}

// Stop cancels a running countdown without firing expiry.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		return
	}
	t.halt()
	t.state = Idle
	observability.RecordTimerStopped(false)
}

// Remaining returns the time left, or 0 when the timer is not running.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		return 0
	}
	return max(Remaining(t.start, t.duration, t.clock.Now()), 0)
}

// State returns the current lifecycle state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// halt must be called with mu held.
func (t *Timer) halt() {
	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.done)
	t.ticker, t.done = nil, nil
}

// fire runs the expiry side effects outside the lock, then returns to Idle.
func (t *Timer) fire() {
	observability.RecordTimerStopped(true)
	if t.onExpire != nil {
		t.onExpire()
	}
	if t.alert != nil {
		if err := t.alert.Alert(); err != nil {
			t.log.Debug("rest alert failed", "error", err)
		}
	}

	t.mu.Lock()
	if t.state == Expired {
		t.state = Idle
	}
	t.mu.Unlock()
}
