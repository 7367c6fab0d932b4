package transfer

import (
	"sort"
	"sync"
)

// Totals are the registry's lifetime counters.
type Totals struct {
	Active    int
	Started   int64
	Completed int64
	Failed    int64
}

// Registry tracks the sessions a process is running.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	started   int64
	completed int64
	failed    int64
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Track registers s and returns the function that retires it with its outcome.
// The returned function may be called more than once; only the first call counts.
func (r *Registry) Track(s *Session) func(err error) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.started++
	r.mu.Unlock()

	var once sync.Once
	return func(err error) {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.sessions, s.ID)
			if err != nil {
				r.failed++
			} else {
				r.completed++
			}
		})
	}
}

// Active returns the number of sessions that are still running.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the stats of every running session, oldest first.
func (r *Registry) Snapshot() []Stats {
	r.mu.RLock()
	out := make([]Stats, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Stats())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

func (r *Registry) Totals() Totals {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Totals{
		Active:    len(r.sessions),
		Started:   r.started,
		Completed: r.completed,
		Failed:    r.failed,
	}
}
