package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"

	"github.com/flowrun-io/flowrun/internal/config"
)

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	reg := NewBreakerRegistry(config.BreakerConfig{MaxFailures: 2, OpenSeconds: 60}, testLogger())
	cb := reg.Get("grid")

	boom := errors.New("submit refused")
	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(func() (interface{}, error) { return nil, boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: err = %v, want %v", i+1, err, boom)
		}
	}

	called := false
	_, err := cb.Execute(func() (interface{}, error) {
		called = true
		return nil, nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want %v", err, gobreaker.ErrOpenState)
	}
	if called {
		t.Fatal("operation ran through an open breaker")
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	reg := NewBreakerRegistry(config.BreakerConfig{MaxFailures: 1, OpenSeconds: 60}, testLogger())
	cb := reg.Get("grid")

	for i := 0; i < 5; i++ {
		cb.Execute(func() (interface{}, error) { return nil, context.Canceled })
	}

	if _, err := cb.Execute(func() (interface{}, error) { return "ok", nil }); err != nil {
		t.Fatalf("breaker opened on cancellations: %v", err)
	}
}

func TestBreakerReusesInstancePerName(t *testing.T) {
	reg := NewBreakerRegistry(config.BreakerConfig{}, testLogger())
	if reg.Get("a") != reg.Get("a") {
		t.Error("same name returned distinct breakers")
	}
	if reg.Get("a") == reg.Get("b") {
		t.Error("distinct names share a breaker")
	}
}
