package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eshop-marketplace/chatting-service/pkg/logger"
)

func testConfig() Config {
	return Config{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		RetryTimeout:     50 * time.Millisecond,
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := New(testConfig(), logger.New(logger.Config{Level: "error"}))
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := cb.Execute(func() error { return boom })
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, StateOpen, cb.State())

	// Requests are rejected without invoking fn while open.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := New(testConfig(), logger.New(logger.Config{Level: "error"}))
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return boom })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(60 * time.Millisecond)

	// Two successes in half-open close the circuit again.
	require.NoError(t, cb.Execute(func() error { return nil }))
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := New(testConfig(), logger.New(logger.Config{Level: "error"}))
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return boom })
	}
	time.Sleep(60 * time.Millisecond)

	err := cb.Execute(func() error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := New(testConfig(), logger.New(logger.Config{Level: "error"}))
	for i := 0; i < 10; i++ {
		require.NoError(t, cb.Execute(func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())
}
