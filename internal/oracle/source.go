package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/holiman/uint256"
)

// ErrNoObservation is returned by a source that has nothing to report yet.
var ErrNoObservation = errors.New("oracle: no observation available")

// Observation is a raw price as reported upstream, stamped with the source's
// own update time.
type Observation struct {
	Price     *uint256.Int
	UpdatedAt time.Time
}

// Source is an upstream price feed. A returned error is a source fault.
type Source interface {
	Latest(ctx context.Context) (Observation, error)
}

// PushSource reports the last observation pushed into it. Producers (the NATS
// price subscriber, tests, static config) push, the engine reads.
type PushSource struct {
	mu  sync.RWMutex
	obs *Observation
	err error
}

func NewPushSource() *PushSource {
	return &PushSource{}
}

// NewStaticSource returns a source preloaded with one observation.
func NewStaticSource(price *uint256.Int, updatedAt time.Time) *PushSource {
	s := NewPushSource()
	s.Push(price, updatedAt)
	return s
}

// Push replaces the current observation and clears any injected fault.
func (s *PushSource) Push(price *uint256.Int, updatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs = &Observation{Price: price.Clone(), UpdatedAt: updatedAt}
	s.err = nil
}

// Fail makes Latest return err until the next Push.
func (s *PushSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *PushSource) Latest(ctx context.Context) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return Observation{}, s.err
	}
	if s.obs == nil {
		return Observation{}, ErrNoObservation
	}
	return Observation{Price: s.obs.Price.Clone(), UpdatedAt: s.obs.UpdatedAt}, nil
}

// PushSources is a concurrency-safe set of push sources keyed by feed name.
type PushSources struct {
	mu      sync.Mutex
	sources map[string]*PushSource
}

func NewPushSources() *PushSources {
	return &PushSources{sources: make(map[string]*PushSource)}
}

// Get returns the source for name, creating it on first use.
func (p *PushSources) Get(name string) *PushSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sources[name]
	if !ok {
		s = NewPushSource()
		p.sources[name] = s
	}
	return s
}
