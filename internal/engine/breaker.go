package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/flowrun-io/flowrun/internal/config"
)

// BreakerRegistry hands out one circuit breaker per executor, shielding
// batch daemons from repeated failing submissions. Breakers are created
// lazily on first use.
type BreakerRegistry struct {
	mu          sync.Mutex
	logger      *slog.Logger
	maxFailures uint32
	openFor     time.Duration
	breakers    map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry builds a registry from the configured thresholds,
// falling back to five consecutive failures and a 30 second open window.
func NewBreakerRegistry(cfg config.BreakerConfig, logger *slog.Logger) *BreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := uint32(5)
	if cfg.MaxFailures > 0 {
		maxFailures = uint32(cfg.MaxFailures)
	}
	openFor := 30 * time.Second
	if cfg.OpenSeconds > 0 {
		openFor = time.Duration(cfg.OpenSeconds) * time.Second
	}
	return &BreakerRegistry{
		logger:      logger,
		maxFailures: maxFailures,
		openFor:     openFor,
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the named executor, creating it on
// first use.
func (r *BreakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3, // probe submissions allowed while half-open
		Interval:    0, // never clear counts while closed
		Timeout:     r.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed",
				"executor", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation is the user's doing, not a backend fault.
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	r.breakers[name] = cb
	return cb
}
