package concurrency

import (
	"errors"
	"sync"
)

var ErrBusy = errors.New("resource is busy")

// KeyedGuard hands out exclusive, non-blocking claims on string keys.
// A second claim on a held key fails with ErrBusy instead of waiting.
type KeyedGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewKeyedGuard() *KeyedGuard {
	return &KeyedGuard{held: make(map[string]struct{})}
}

// TryAcquire claims key. The returned release func is safe to call more than once.
func (g *KeyedGuard) TryAcquire(key string) (func(), error) {
	g.mu.Lock()
	if _, busy := g.held[key]; busy {
		g.mu.Unlock()
		return nil, ErrBusy
	}
	g.held[key] = struct{}{}
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

// Held reports how many keys are currently claimed.
func (g *KeyedGuard) Held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}
