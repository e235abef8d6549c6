package execution

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/venusbot/liquidator/pkg/types"
)

func testConfig() Config {
	return Config{
		Interval:        10 * time.Millisecond,
		MaxRetries:      3,
		BaseRetryDelay:  20 * time.Millisecond,
		MaxRetryDelay:   200 * time.Millisecond,
		SuccessCooldown: 50 * time.Millisecond,
	}
}

func TestScheduleRetryIncrementsAndSchedules(t *testing.T) {
	svc := NewService(testConfig(), zerolog.Nop())
	key := types.PositionKey("borrower|repay|seize")
	borrower := types.ParseAddress("0x0000000000000000000000000000000000000001")

	svc.ScheduleRetry(key, borrower, "rpc timeout")

	state, ok := svc.State(key)
	assert.True(t, ok)
	assert.Equal(t, 1, state.RetryCount)
	assert.Equal(t, "rpc timeout", state.LastError)
	assert.True(t, state.NextRetryAt.After(time.Now()))
}

func TestScheduleRetryGivesUpPastMaxRetries(t *testing.T) {
	svc := NewService(testConfig(), zerolog.Nop())
	key := types.PositionKey("borrower|repay|seize")
	borrower := types.ParseAddress("0x0000000000000000000000000000000000000001")

	for i := 0; i < svc.cfg.MaxRetries; i++ {
		svc.ScheduleRetry(key, borrower, "still failing")
		_, ok := svc.State(key)
		assert.True(t, ok)
	}

	// one more failure pushes retryCount past maxRetries: give up.
	svc.ScheduleRetry(key, borrower, "final failure")
	_, ok := svc.State(key)
	assert.False(t, ok)
}

func TestBackoffDelayIsNonDecreasingUpToCap(t *testing.T) {
	base := 10 * time.Millisecond
	max := 100 * time.Millisecond

	var prev time.Duration
	for retryCount := 1; retryCount <= 10; retryCount++ {
		// jitter only adds up to 20% on top, so the delay lies in
		// [floor, 1.2*floor] where floor is the capped exponential term.
		floor := base * time.Duration(uint64(1)<<uint(retryCount-1))
		if floor > max || floor <= 0 {
			floor = max
		}
		d := backoffDelay(base, max, retryCount)
		assert.True(t, d >= floor && d <= floor+floor/5)
		assert.True(t, floor >= prev || floor == max)
		prev = floor
	}
}

func TestBackoffDelayCapsAtMaxRetryDelay(t *testing.T) {
	d := backoffDelay(10*time.Millisecond, 50*time.Millisecond, 20)
	// even with jitter, the base exponential term alone would overflow
	// the cap many times over, so the result must sit within [max, 1.2*max].
	assert.True(t, d >= 50*time.Millisecond)
	assert.True(t, d <= 60*time.Millisecond)
}

func TestClearSuccessStartsCooldown(t *testing.T) {
	svc := NewService(testConfig(), zerolog.Nop())
	key := types.PositionKey("borrower|repay|seize")
	borrower := types.ParseAddress("0x0000000000000000000000000000000000000001")

	svc.ScheduleRetry(key, borrower, "transient")
	svc.ClearSuccess(key)

	_, ok := svc.State(key)
	assert.False(t, ok)
	assert.True(t, svc.InCooldown(key))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, svc.InCooldown(key))
}

func TestRunRetriesDueKeysAndClearsOnSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 5 * time.Millisecond
	svc := NewService(cfg, zerolog.Nop())

	key := types.PositionKey("borrower|repay|seize")
	borrower := types.ParseAddress("0x0000000000000000000000000000000000000001")
	svc.mu.Lock()
	svc.retryStates[key] = &types.RetryState{RetryCount: 1, NextRetryAt: time.Now().Add(-time.Millisecond)}
	svc.borrowerOf[key] = borrower
	svc.mu.Unlock()

	attempts := 0
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx, func(ctx context.Context, b types.Address) error {
			attempts++
			if attempts == 1 {
				return fmt.Errorf("still pending")
			}
			return nil
		})
	}()

	<-done
	_, stillTracked := svc.State(key)
	assert.False(t, stillTracked)
	assert.True(t, attempts >= 1)
}
