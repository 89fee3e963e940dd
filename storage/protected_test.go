package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type failingEngine struct {
	Engine
	failures int
}

func (f *failingEngine) Get(ctx context.Context, id string) (*Diagram, error) {
	f.failures++
	return nil, errors.New("boom")
}

func TestProtectedTripsAfterThreshold(t *testing.T) {
	inner := &failingEngine{}
	p := NewProtected(inner, nil)

	for i := 0; i < failureThreshold; i++ {
		_, err := p.Get(context.Background(), "x")
		require.Error(t, err)
		var circuitOpen *CircuitOpenError
		require.False(t, errors.As(err, &circuitOpen))
	}

	_, err := p.Get(context.Background(), "x")
	var circuitOpen *CircuitOpenError
	require.ErrorAs(t, err, &circuitOpen)
	require.Equal(t, failureThreshold, inner.failures)
}

type succeedingEngine struct {
	Engine
	calls int
}

func (s *succeedingEngine) Get(ctx context.Context, id string) (*Diagram, error) {
	s.calls++
	return &Diagram{ID: id}, nil
}

func TestProtectedHalfOpenRecoversOnSuccess(t *testing.T) {
	inner := &succeedingEngine{}
	p := NewProtected(inner, nil)

	// Force the breaker open directly rather than waiting out real
	// failures, then let the cooldown lapse.
	p.mu.Lock()
	p.trip()
	p.openUntil = time.Now().Add(-time.Millisecond)
	p.mu.Unlock()

	d, err := p.Get(context.Background(), "y")
	require.NoError(t, err)
	require.Equal(t, "y", d.ID)

	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	require.Equal(t, stateClosed, state)
}

func TestCircuitOpenErrorMessage(t *testing.T) {
	err := &CircuitOpenError{RetryAfter: 2 * time.Second}
	require.Contains(t, err.Error(), "2s")
}
