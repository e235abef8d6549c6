// Package position implements the Position Tracker (spec §4.2): the
// single mutable map of borrower -> latest Position snapshot, eviction of
// long-healthy accounts, and the liquidatable-subset view the Liquidation
// Engine consumes.
package position

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/venusbot/liquidator/pkg/types"
)

// defaultCloseFactor is Compound's standard close factor: at most half a
// borrower's debt may be repaid in a single liquidation call.
const defaultCloseFactor = 0.5

// IncentiveSource supplies the Comptroller's liquidation incentive,
// satisfied by internal/health.Calculator.
type IncentiveSource interface {
	LiquidationIncentive() float64
}

// GasEstimator supplies the cheap, fee-data-only gas cost estimate spec
// §4.4 defines for ranking candidates before committing to a mode,
// satisfied by internal/profitability.Calculator.
type GasEstimator interface {
	EstimateGasCostUsdForCandidate(ctx context.Context, mode types.LiquidationMode) (float64, error)
}

type entry struct {
	position     types.Position
	healthyPolls int
}

// Tracker owns the borrower -> Position map. Per spec §5, it is only
// ever mutated by the single poll-cycle goroutine; no internal locking
// is required for that access pattern, but a mutex guards the map so a
// concurrent read (e.g. a metrics/debug endpoint) stays safe.
type Tracker struct {
	mu    sync.RWMutex
	byKey map[types.Address]*entry

	healthyPollsBeforeDrop int
	minHealthFactor        float64
	minPositionSizeUsd     float64
	closeFactor            float64

	incentive IncentiveSource
	gas       GasEstimator
}

type Config struct {
	HealthyPollsBeforeDrop int
	MinHealthFactor        float64
	MinPositionSizeUsd     float64
	CloseFactor            float64 // 0 => defaultCloseFactor
}

func NewTracker(cfg Config, incentive IncentiveSource, gas GasEstimator) *Tracker {
	closeFactor := cfg.CloseFactor
	if closeFactor <= 0 {
		closeFactor = defaultCloseFactor
	}
	return &Tracker{
		byKey:                  make(map[types.Address]*entry),
		healthyPollsBeforeDrop: cfg.HealthyPollsBeforeDrop,
		minHealthFactor:        cfg.MinHealthFactor,
		minPositionSizeUsd:     cfg.MinPositionSizeUsd,
		closeFactor:            closeFactor,
		incentive:              incentive,
		gas:                    gas,
	}
}

// UpdatePosition merges a freshly computed snapshot into the tracker,
// estimates profit, recomputes liquidatable status, and evicts the
// account once it has been healthy with zero debt for
// healthyPollsBeforeDrop consecutive polls.
func (t *Tracker) UpdatePosition(snapshot types.Position) {
	snapshot.EstimatedProfitUsd = t.estimateProfit(snapshot)

	t.mu.Lock()
	defer t.mu.Unlock()

	e, exists := t.byKey[snapshot.Borrower]
	if !exists {
		e = &entry{}
		t.byKey[snapshot.Borrower] = e
	}
	e.position = snapshot

	if snapshot.DebtValueUsd == 0 {
		e.healthyPolls++
		if t.healthyPollsBeforeDrop > 0 && e.healthyPolls >= t.healthyPollsBeforeDrop {
			delete(t.byKey, snapshot.Borrower)
		}
	} else {
		e.healthyPolls = 0
	}
}

// estimateProfit implements spec §4.2's estimatedProfitUsd formula:
// min(closeFactor*debtUsd, seizeUsd) * (incentive-1) - estimatedGasCostUsd.
// The gas term comes from the Profitability Calculator's cheap,
// fee-data-only candidate estimate (spec §4.4); a standard-mode
// liquidation is assumed since the mode decision hasn't been made yet
// at ranking time. A failed gas read degrades to the gas-free signal
// rather than dropping the candidate.
func (t *Tracker) estimateProfit(p types.Position) float64 {
	seizeUsd := p.CollateralValueUsd
	repayCapUsd := t.closeFactor * p.DebtValueUsd
	seizable := math.Min(repayCapUsd, seizeUsd)

	incentive := defaultLiquidationIncentiveIfUnset(t.incentive)
	gasCostUsd := t.estimateGasCostUsd()
	return seizable*(incentive-1) - gasCostUsd
}

func (t *Tracker) estimateGasCostUsd() float64 {
	if t.gas == nil {
		return 0
	}
	cost, err := t.gas.EstimateGasCostUsdForCandidate(context.Background(), types.ModeStandard)
	if err != nil {
		return 0
	}
	return cost
}

func defaultLiquidationIncentiveIfUnset(src IncentiveSource) float64 {
	if src == nil {
		return 1.10
	}
	return src.LiquidationIncentive()
}

// Get returns the current snapshot for borrower, if tracked.
func (t *Tracker) Get(borrower types.Address) (types.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byKey[borrower]
	if !ok {
		return types.Position{}, false
	}
	return e.position, true
}

// Len reports how many borrowers are currently tracked.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byKey)
}

// GetLiquidatablePositions returns tracked positions that cross the
// liquidation threshold, sorted by descending debtValueUsd (tie-break:
// descending estimatedProfitUsd), per spec §4.2.
func (t *Tracker) GetLiquidatablePositions() []types.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.Position, 0, len(t.byKey))
	for _, e := range t.byKey {
		if e.position.IsLiquidatable(t.minHealthFactor, t.minPositionSizeUsd) {
			out = append(out, e.position)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DebtValueUsd != out[j].DebtValueUsd {
			return out[i].DebtValueUsd > out[j].DebtValueUsd
		}
		return out[i].EstimatedProfitUsd > out[j].EstimatedProfitUsd
	})
	return out
}
