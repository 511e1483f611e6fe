package ratelimit

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"

	"hookrelay/internal/config"
	"hookrelay/pkg/circuitbreaker"
)

type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

// NewCircuitBreakerStore returns store unchanged when the breaker is disabled.
func NewCircuitBreakerStore(store Store, cfg config.CircuitBreakerConfig) Store {
	if !cfg.Enabled {
		return store
	}
	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(circuitbreaker.FromSettings("ratelimit-store", cfg)),
	}
}

// Name implements health.Checker.
func (s *CircuitBreakerStore) Name() string {
	return s.cb.Name()
}

// Check implements health.Checker. An open breaker means the shared store is
// being bypassed and the fallback policy decides every request.
func (s *CircuitBreakerStore) Check(_ context.Context) error {
	if state := s.cb.State(); state == gobreaker.StateOpen {
		return fmt.Errorf("circuit breaker %s", state)
	}
	return nil
}

func (s *CircuitBreakerStore) Allow(ctx context.Context, key string) (Result, error) {
	out, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return s.store.Allow(ctx, key)
	})
	if err != nil {
		return Result{}, err
	}
	return out.(Result), nil
}
