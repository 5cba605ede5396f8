package timeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	appLog "profiled/internal/log"
	"profiled/internal/model"
)

// State is the lifecycle of the timeline shown on the page.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Snapshot is what the page renders: the last run's events or its error.
type Snapshot struct {
	State     State         `json:"state"`
	Events    []model.Event `json:"events"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
	FromCache bool          `json:"from_cache"`
	// Source is the redacted export URL the run read from.
	Source string `json:"source,omitempty"`
}

// Runner is satisfied by *Pipeline.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// sourcer is implemented by runners that can name where they read from.
type sourcer interface {
	Source() string
}

// Store holds the latest Snapshot and makes sure at most one run is in
// flight; concurrent Refresh calls share its outcome.
type Store struct {
	runner Runner
	now    func() time.Time

	group singleflight.Group

	mu   sync.RWMutex
	snap Snapshot

	listeners []func(Snapshot)
}

// NewStore returns a Store in the loading state.
func NewStore(r Runner) *Store {
	return &Store{
		runner: r,
		now:    time.Now,
		snap:   Snapshot{State: StateLoading, Events: []model.Event{}},
	}
}

// OnUpdate registers fn to be called after every completed run.
// Must be called before the first Refresh.
func (s *Store) OnUpdate(fn func(Snapshot)) {
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Refresh runs the pipeline (or joins the run already in flight) and
// returns the resulting snapshot.
func (s *Store) Refresh(ctx context.Context) Snapshot {
	v, _, shared := s.group.Do("refresh", func() (any, error) {
		// A caller going away must not cancel a run others are waiting on.
		res, err := s.runner.Run(context.WithoutCancel(ctx))

		snap := Snapshot{UpdatedAt: s.now(), Events: []model.Event{}}
		if src, ok := s.runner.(sourcer); ok {
			snap.Source = src.Source()
		}
		if err != nil {
			appLog.Error("timeline refresh failed", err)
			snap.State = StateFailed
			snap.Error = err.Error()
		} else {
			snap.State = StateReady
			snap.Events = res.Events
			snap.FromCache = res.FromCache
		}

		s.mu.Lock()
		s.snap = snap
		s.mu.Unlock()

		for _, fn := range s.listeners {
			fn(snap)
		}
		return snap, nil
	})
	if shared {
		appLog.Debug("timeline refresh joined in-flight run")
	}
	return v.(Snapshot)
}
