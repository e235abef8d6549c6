// Package execution implements the Execution Service (spec §4.12): a
// per-position retry/backoff scheduler, grounded on internal/monitor's
// PollingService ticker loop and mutex-guarded working-set shape, adapted
// from "refresh every tracked account" to "retry every position whose
// nextRetryAt has elapsed."
package execution

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/venusbot/liquidator/pkg/types"
)

type Config struct {
	Interval        time.Duration
	MaxRetries      int
	BaseRetryDelay  time.Duration
	MaxRetryDelay   time.Duration
	SuccessCooldown time.Duration
}

// RetryFunc re-attempts a liquidation for borrower. A non-nil error
// reschedules key. Returning nil clears the RetryState for key, unless
// the func has already rescheduled or cleared key itself.
type RetryFunc func(ctx context.Context, borrower types.Address) error

// Service owns the retryStates map described in spec §4.12 and §3, and
// drives scheduled retries on a ticker, one key at a time.
type Service struct {
	cfg Config
	log zerolog.Logger

	mu            sync.Mutex
	retryStates   map[types.PositionKey]*types.RetryState
	borrowerOf    map[types.PositionKey]types.Address
	cooldownUntil map[types.PositionKey]time.Time

	stopped bool
}

func NewService(cfg Config, log zerolog.Logger) *Service {
	return &Service{
		cfg:           cfg,
		log:           log.With().Str("component", "execution").Logger(),
		retryStates:   make(map[types.PositionKey]*types.RetryState),
		borrowerOf:    make(map[types.PositionKey]types.Address),
		cooldownUntil: make(map[types.PositionKey]time.Time),
	}
}

// ScheduleRetry implements spec §4.12's scheduleRetry(positionKey,
// borrower, reason): increments retryCount, gives up past maxRetries, and
// otherwise sets nextRetryAt with capped exponential backoff plus jitter.
func (s *Service) ScheduleRetry(key types.PositionKey, borrower types.Address, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.retryStates[key]
	if state == nil {
		state = &types.RetryState{}
		s.retryStates[key] = state
		s.borrowerOf[key] = borrower
	}
	state.RetryCount++
	state.LastError = reason

	if state.RetryCount > s.cfg.MaxRetries {
		delete(s.retryStates, key)
		delete(s.borrowerOf, key)
		s.log.Warn().Str("position_key", string(key)).Str("reason", reason).Msg("giving up after max retries")
		return
	}

	delay := backoffDelay(s.cfg.BaseRetryDelay, s.cfg.MaxRetryDelay, state.RetryCount)
	state.NextRetryAt = time.Now().Add(delay)
}

// backoffDelay computes min(maxDelay, baseDelay*2^(retryCount-1)) with up
// to 20% random jitter added on top, never subtracted, so the schedule
// stays monotone non-decreasing across the capped range (spec's "backoff
// is strictly non-decreasing up to maxRetryDelayMs").
func backoffDelay(base, max time.Duration, retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	shift := retryCount - 1
	if shift > 62 {
		shift = 62
	}
	delay := base * time.Duration(uint64(1)<<uint(shift))
	if delay <= 0 || delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1)) // ≤ 20% of delay
	return delay + jitter
}

// ClearSuccess clears a key's RetryState and starts its success cooldown
// (spec §4.12: "On success, clear the entry and enter a
// successCooldownMs refractory period for that key").
func (s *Service) ClearSuccess(key types.PositionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retryStates, key)
	delete(s.borrowerOf, key)
	s.cooldownUntil[key] = time.Now().Add(s.cfg.SuccessCooldown)
}

// InCooldown reports whether key is still inside its post-success
// refractory period.
func (s *Service) InCooldown(key types.PositionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.cooldownUntil[key]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(s.cooldownUntil, key)
		return false
	}
	return true
}

// State returns a copy of key's current RetryState, or false if none is
// tracked.
func (s *Service) State(key types.PositionKey) (types.RetryState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.retryStates[key]
	if !ok {
		return types.RetryState{}, false
	}
	return *state, true
}

// due returns the keys whose nextRetryAt has elapsed, alongside their
// tracked borrower address, in no particular order.
func (s *Service) due(now time.Time) []types.PositionKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.PositionKey
	for key, state := range s.retryStates {
		if !state.NextRetryAt.After(now) {
			out = append(out, key)
		}
	}
	return out
}

func (s *Service) borrowerFor(key types.PositionKey) (types.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.borrowerOf[key]
	return b, ok
}

// Run drives the retry loop at cfg.Interval until ctx is cancelled or
// Stop is called. Due keys are retried strictly sequentially, mirroring
// the Polling Service's single-threaded cooperative cycle (spec §5).
func (s *Service) Run(ctx context.Context, retry RetryFunc) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.isStopped() {
				return nil
			}
			s.runOnce(ctx, retry)
		}
	}
}

func (s *Service) runOnce(ctx context.Context, retry RetryFunc) {
	for _, key := range s.due(time.Now()) {
		if s.isStopped() {
			return
		}
		borrower, ok := s.borrowerFor(key)
		if !ok {
			continue
		}
		before, _ := s.State(key)
		if err := retry(ctx, borrower); err != nil {
			s.ScheduleRetry(key, borrower, err.Error())
			continue
		}
		if after, ok := s.State(key); !ok || after.RetryCount != before.RetryCount {
			continue
		}
		s.ClearSuccess(key)
	}
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *Service) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
