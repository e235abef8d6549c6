package types

import "sync"

// Stats is the shared, monotone-counter aggregator described in spec §3
// and §5 ("no process-wide mutable singletons except the stats
// aggregator"). It is owned by the orchestrator and passed by reference;
// all mutation goes through its methods so a concurrent metrics reader
// (internal/stats) can take a consistent snapshot.
type Stats struct {
	mu sync.Mutex

	SwapsAttempted uint64
	SwapsSucceeded uint64
	SwapsFailed    uint64
	TotalUsdSwapped float64

	LiquidationSuccessCount uint64
	LiquidationFailureCount uint64
	TotalProfitUsd          float64
	TotalGasCostUsd         float64
	RealizedUsd             float64

	DryRunAttempts uint64

	DailyLossUsd float64

	RouteCacheHits   uint64
	RouteCacheMisses uint64
}

// Snapshot is an immutable copy of Stats for safe reporting/persistence.
type Snapshot struct {
	SwapsAttempted          uint64
	SwapsSucceeded          uint64
	SwapsFailed             uint64
	TotalUsdSwapped         float64
	LiquidationSuccessCount uint64
	LiquidationFailureCount uint64
	TotalProfitUsd          float64
	TotalGasCostUsd         float64
	RealizedUsd             float64
	DryRunAttempts          uint64
	DailyLossUsd            float64
	RouteCacheHits          uint64
	RouteCacheMisses        uint64
}

func (s *Stats) RecordSwapAttempt() {
	s.mu.Lock()
	s.SwapsAttempted++
	s.mu.Unlock()
}

func (s *Stats) RecordSwapSuccess(usdValue float64) {
	s.mu.Lock()
	s.SwapsSucceeded++
	s.TotalUsdSwapped += usdValue
	s.mu.Unlock()
}

func (s *Stats) RecordSwapFailure() {
	s.mu.Lock()
	s.SwapsFailed++
	s.mu.Unlock()
}

func (s *Stats) RecordLiquidationSuccess(profitUsd, gasCostUsd, realizedUsd float64) {
	s.mu.Lock()
	s.LiquidationSuccessCount++
	s.TotalProfitUsd += profitUsd
	s.TotalGasCostUsd += gasCostUsd
	s.RealizedUsd += realizedUsd
	s.mu.Unlock()
}

func (s *Stats) RecordLiquidationFailure(gasCostUsd float64) {
	s.mu.Lock()
	s.LiquidationFailureCount++
	s.TotalGasCostUsd += gasCostUsd
	s.mu.Unlock()
}

func (s *Stats) RecordDryRun() {
	s.mu.Lock()
	s.DryRunAttempts++
	s.mu.Unlock()
}

func (s *Stats) AddDailyLoss(usd float64) {
	s.mu.Lock()
	s.DailyLossUsd += usd
	s.mu.Unlock()
}

func (s *Stats) ResetDailyLoss() {
	s.mu.Lock()
	s.DailyLossUsd = 0
	s.mu.Unlock()
}

func (s *Stats) RecordRouteCache(hit bool) {
	s.mu.Lock()
	if hit {
		s.RouteCacheHits++
	} else {
		s.RouteCacheMisses++
	}
	s.mu.Unlock()
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SwapsAttempted:          s.SwapsAttempted,
		SwapsSucceeded:          s.SwapsSucceeded,
		SwapsFailed:             s.SwapsFailed,
		TotalUsdSwapped:         s.TotalUsdSwapped,
		LiquidationSuccessCount: s.LiquidationSuccessCount,
		LiquidationFailureCount: s.LiquidationFailureCount,
		TotalProfitUsd:          s.TotalProfitUsd,
		TotalGasCostUsd:         s.TotalGasCostUsd,
		RealizedUsd:             s.RealizedUsd,
		DryRunAttempts:          s.DryRunAttempts,
		DailyLossUsd:            s.DailyLossUsd,
		RouteCacheHits:          s.RouteCacheHits,
		RouteCacheMisses:        s.RouteCacheMisses,
	}
}
