package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	now := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("notion", 2, time.Minute)
	b.now = func() time.Time { return now }
	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }

	assert.ErrorIs(t, b.Execute(context.Background(), fail), boom)
	assert.Equal(t, CircuitClosed, b.State())
	assert.ErrorIs(t, b.Execute(context.Background(), fail), boom)
	assert.Equal(t, CircuitOpen, b.State())

	var called bool
	err := b.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	assert.Equal(t, CircuitHalfOpen, b.State())
	require.NoError(t, b.Execute(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("salesforce", 1, time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("down") })
	now = now.Add(2 * time.Second)
	_ = b.Execute(context.Background(), func(context.Context) error { return errors.New("still down") })
	assert.Equal(t, CircuitOpen, b.State())
}

func TestBreaker_IgnoresCancellation(t *testing.T) {
	b := NewBreaker("file", 1, time.Minute)
	_ = b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.Equal(t, CircuitClosed, b.State())
}

func TestExecuteVal(t *testing.T) {
	b := NewBreaker("file", 0, 0)
	got, err := ExecuteVal(context.Background(), b, func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
}
