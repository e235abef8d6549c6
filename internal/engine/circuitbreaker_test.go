package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_TripsOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 3)
	now := time.Now()

	assert.False(t, cb.RecordError(now, false))
	assert.False(t, cb.RecordError(now, false))
	assert.True(t, cb.RecordError(now, false))
	assert.True(t, cb.Tripped(now))
}

func TestCircuitBreaker_CriticalTripsImmediately(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 10)
	now := time.Now()

	assert.True(t, cb.RecordError(now, true))
	assert.True(t, cb.Tripped(now))
}

func TestCircuitBreaker_WindowPrunesOldErrors(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 2)
	start := time.Now()

	cb.RecordError(start, false)
	cb.RecordError(start, false)
	assert.True(t, cb.Tripped(start))

	later := start.Add(2 * time.Minute)
	assert.False(t, cb.Tripped(later), "errors outside the window should no longer count")
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(time.Minute, 1)
	now := time.Now()

	cb.RecordError(now, true)
	assert.True(t, cb.Tripped(now))

	cb.Reset()
	assert.False(t, cb.Tripped(now))
}

func TestCircuitBreaker_ErrorRate(t *testing.T) {
	cb := NewCircuitBreaker(time.Hour, 100)
	now := time.Now()

	assert.Zero(t, cb.ErrorRate())
	cb.RecordError(now, false)
	cb.RecordError(now, false)
	assert.InDelta(t, 2.0, cb.ErrorRate(), 1e-9)
}
