package session

import (
	"sync"
	"time"
)

// Status is a snapshot of one session's inactivity state
type Status struct {
	State     State
	Remaining time.Duration
	Warning   time.Duration
}

// Registry maps session ids to trackers. It is built once per server and
// passed to whoever needs it.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	clock    Clock
	trackers map[string]*Tracker
	onExpire func(sessionID string)
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config, clock Clock) *Registry {
	if clock == nil {
		clock = RealClock{}
	}
	return &Registry{
		cfg:      cfg.normalize(),
		clock:    clock,
		trackers: make(map[string]*Tracker),
	}
}

// OnExpire sets a callback run when any tracker expires on its own timer
func (r *Registry) OnExpire(fn func(sessionID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = fn
}

// Config returns the normalised limits
func (r *Registry) Config() Config { return r.cfg }

// Touch records activity for id, starting a tracker on first sight. It
// returns StateExpired when the session already timed out.
func (r *Registry) Touch(id string) State {
	t := r.tracker(id)
	if !t.Touch() {
		return StateExpired
	}
	return StateActive
}

// Status reports the state of id without counting as activity
func (r *Registry) Status(id string) Status {
	t := r.tracker(id)
	return Status{State: t.State(), Remaining: t.Remaining(), Warning: r.cfg.WarningBefore}
}

// Reset replaces the tracker of id with a fresh one
func (r *Registry) Reset(id string) {
	r.Remove(id)
	r.tracker(id)
}

// Remove disposes the tracker of id
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	t, ok := r.trackers[id]
	delete(r.trackers, id)
	r.mu.Unlock()
	if ok {
		t.Dispose()
	}
}

// Sweep disposes trackers that expired or have been idle for longer than
// the idle timeout and returns how many were removed
func (r *Registry) Sweep() int {
	r.mu.Lock()
	snapshot := make(map[string]*Tracker, len(r.trackers))
	for id, t := range r.trackers {
		snapshot[id] = t
	}
	r.mu.Unlock()

	removed := 0
	now := r.clock.Now()
	for id, t := range snapshot {
		if t.State() == StateExpired || now.Sub(t.LastActivity()) > r.cfg.IdleTimeout {
			r.Remove(id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}

func (r *Registry) tracker(id string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.trackers[id]; ok {
		return t
	}
	t := NewTracker(r.cfg, r.clock)
	t.OnExpire(func() {
		r.mu.Lock()
		fn := r.onExpire
		r.mu.Unlock()
		if fn != nil {
			fn(id)
		}
	})
	t.Init()
	r.trackers[id] = t
	return t
}
