// Package session tracks user inactivity per session. Each session gets one
// Tracker that moves from active to warning to expired as idle time passes;
// any activity before expiry moves it back to active. The Registry owns the
// trackers of a running server.
package session

import (
	"sync"
	"time"
)

// State of a tracker
type State int

const (
	StateActive State = iota
	StateWarning
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWarning:
		return "warning"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// Config sets the inactivity limits
type Config struct {
	// IdleTimeout is how long a session may go without activity
	IdleTimeout time.Duration
	// WarningBefore is how long before expiry the warning state starts
	WarningBefore time.Duration
}

// DefaultConfig is 30 minutes idle with a 5 minute warning
func DefaultConfig() Config {
	return Config{IdleTimeout: 30 * time.Minute, WarningBefore: 5 * time.Minute}
}

func (c Config) normalize() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if c.WarningBefore < 0 || c.WarningBefore >= c.IdleTimeout {
		c.WarningBefore = 0
	}
	return c
}

// Tracker is the inactivity state machine of one session. It runs at most
// one timer at a time. Callbacks run outside the tracker's lock.
type Tracker struct {
	mu           sync.Mutex
	cfg          Config
	clock        Clock
	state        State
	lastActivity time.Time
	timer        Timer
	started      bool
	disposed     bool
	onWarning    []func()
	onExpire     []func()
}

// NewTracker creates a tracker; call Init to start it
func NewTracker(cfg Config, clock Clock) *Tracker {
	if clock == nil {
		clock = RealClock{}
	}
	return &Tracker{cfg: cfg.normalize(), clock: clock}
}

// OnWarning registers fn to run when the warning state is entered
func (t *Tracker) OnWarning(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onWarning = append(t.onWarning, fn)
}

// OnExpire registers fn to run once when the session expires
func (t *Tracker) OnExpire(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = append(t.onExpire, fn)
}

// Init starts tracking from now. Calling it again has no effect.
func (t *Tracker) Init() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.disposed {
		return
	}
	t.started = true
	t.state = StateActive
	t.lastActivity = t.clock.Now()
	t.schedule()
}

// Touch records activity. It reports false once the session has expired
// or the tracker was disposed; expiry is final.
func (t *Tracker) Touch() bool {
	fire := t.advance()
	defer runAll(fire)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed || t.state == StateExpired {
		return false
	}
	if !t.started {
		t.started = true
	}
	t.state = StateActive
	t.lastActivity = t.clock.Now()
	t.schedule()
	return true
}

// State returns the current state
func (t *Tracker) State() State {
	runAll(t.advance())

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining returns the time left before expiry
func (t *Tracker) Remaining() time.Duration {
	runAll(t.advance())

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateExpired {
		return 0
	}
	if !t.started {
		return t.cfg.IdleTimeout
	}
	left := t.cfg.IdleTimeout - t.clock.Now().Sub(t.lastActivity)
	if left < 0 {
		return 0
	}
	return left
}

// LastActivity returns the time of the last Touch or Init
func (t *Tracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastActivity
}

// Dispose stops the timer; no callbacks run afterwards
func (t *Tracker) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Disposed reports whether Dispose was called
func (t *Tracker) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// schedule arms the single timer for the next transition. Callers hold mu.
func (t *Tracker) schedule() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.disposed || t.state == StateExpired {
		return
	}

	next := t.lastActivity.Add(t.cfg.IdleTimeout)
	if t.state == StateActive && t.cfg.WarningBefore > 0 {
		next = next.Add(-t.cfg.WarningBefore)
	}
	d := next.Sub(t.clock.Now())
	if d < 0 {
		d = 0
	}
	t.timer = t.clock.AfterFunc(d, func() { runAll(t.advance()) })
}

// advance applies every transition that is due by now and returns the
// callbacks to run once the lock is released
func (t *Tracker) advance() []func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started || t.disposed || t.state == StateExpired {
		return nil
	}

	idle := t.clock.Now().Sub(t.lastActivity)
	var fire []func()
	switch {
	case idle >= t.cfg.IdleTimeout:
		if t.state == StateActive && t.cfg.WarningBefore > 0 {
			fire = append(fire, t.onWarning...)
		}
		t.state = StateExpired
		fire = append(fire, t.onExpire...)
	case t.cfg.WarningBefore > 0 && idle >= t.cfg.IdleTimeout-t.cfg.WarningBefore:
		if t.state == StateActive {
			t.state = StateWarning
			fire = append(fire, t.onWarning...)
		}
	default:
		return nil
	}
	t.schedule()
	return fire
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
