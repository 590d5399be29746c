package progress

import (
	"context"
	"fmt"

	"github.com/podonamu/sori/internal/resilience"
)

// BreakerStore wraps a Store with a circuit breaker so that a failing
// database is bypassed quickly instead of stalling every session end.
// Saves are advisory to callers anyway; the breaker just turns repeated
// slow failures into fast ones until the store recovers.
type BreakerStore struct {
	inner   Store
	breaker *resilience.CircuitBreaker
}

var (
	_ Store             = (*BreakerStore)(nil)
	_ StandingsProvider = (*BreakerStore)(nil)
)

// NewBreakerStore wraps inner with a breaker using the supplied config.
func NewBreakerStore(inner Store, cfg resilience.CircuitBreakerConfig) *BreakerStore {
	return &BreakerStore{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker(cfg),
	}
}

// Load fetches the user's progress through the breaker.
func (s *BreakerStore) Load(ctx context.Context, username string) (UserProgress, error) {
	var p UserProgress
	err := s.breaker.Execute(func() error {
		var err error
		p, err = s.inner.Load(ctx, username)
		return err
	})
	return p, err
}

// Save persists the user's progress through the breaker.
func (s *BreakerStore) Save(ctx context.Context, username string, p UserProgress) error {
	return s.breaker.Execute(func() error {
		return s.inner.Save(ctx, username, p)
	})
}

// EnsureUser delegates to the inner store when it supports user creation.
func (s *BreakerStore) EnsureUser(ctx context.Context, username string) (int, error) {
	ensurer, ok := s.inner.(interface {
		EnsureUser(ctx context.Context, username string) (int, error)
	})
	if !ok {
		return 0, fmt.Errorf("progress: store %T cannot ensure users", s.inner)
	}
	var id int
	err := s.breaker.Execute(func() error {
		var err error
		id, err = ensurer.EnsureUser(ctx, username)
		return err
	})
	return id, err
}

// Standings delegates to the inner store when it can enumerate users.
func (s *BreakerStore) Standings(ctx context.Context) ([]Standing, error) {
	provider, ok := s.inner.(StandingsProvider)
	if !ok {
		return nil, fmt.Errorf("progress: store %T cannot list standings", s.inner)
	}
	var standings []Standing
	err := s.breaker.Execute(func() error {
		var err error
		standings, err = provider.Standings(ctx)
		return err
	})
	return standings, err
}
