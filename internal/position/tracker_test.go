package position

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/venusbot/liquidator/pkg/types"
)

type fixedIncentive float64

func (f fixedIncentive) LiquidationIncentive() float64 { return float64(f) }

func newTestTracker(healthyPollsBeforeDrop int) *Tracker {
	return NewTracker(Config{
		HealthyPollsBeforeDrop: healthyPollsBeforeDrop,
		MinHealthFactor:        1.0,
		MinPositionSizeUsd:     10,
	}, fixedIncentive(1.10), nil)
}

func TestTracker_UpdateAndGet(t *testing.T) {
	tr := newTestTracker(0)
	borrower := types.ParseAddress("0x000000000000000000000000000000000000aa")

	tr.UpdatePosition(types.Position{
		Borrower:           borrower,
		HealthFactor:       0.8,
		CollateralValueUsd: 200,
		DebtValueUsd:       100,
	})

	got, ok := tr.Get(borrower)
	assert.True(t, ok)
	assert.Equal(t, 0.8, got.HealthFactor)
	assert.Greater(t, got.EstimatedProfitUsd, 0.0)
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_GetLiquidatablePositions_SortedByDebtDescending(t *testing.T) {
	tr := newTestTracker(0)
	a := types.ParseAddress("0x000000000000000000000000000000000000aa")
	b := types.ParseAddress("0x000000000000000000000000000000000000bb")

	tr.UpdatePosition(types.Position{Borrower: a, HealthFactor: 0.9, DebtValueUsd: 100, CollateralValueUsd: 150})
	tr.UpdatePosition(types.Position{Borrower: b, HealthFactor: 0.5, DebtValueUsd: 500, CollateralValueUsd: 700})

	out := tr.GetLiquidatablePositions()
	if assert.Len(t, out, 2) {
		assert.Equal(t, b, out[0].Borrower)
		assert.Equal(t, a, out[1].Borrower)
	}
}

func TestTracker_GetLiquidatablePositions_ExcludesHealthyAndSmall(t *testing.T) {
	tr := newTestTracker(0)
	healthy := types.ParseAddress("0x000000000000000000000000000000000000aa")
	tooSmall := types.ParseAddress("0x000000000000000000000000000000000000bb")
	zeroDebt := types.ParseAddress("0x000000000000000000000000000000000000cc")

	tr.UpdatePosition(types.Position{Borrower: healthy, HealthFactor: 1.5, DebtValueUsd: 100})
	tr.UpdatePosition(types.Position{Borrower: tooSmall, HealthFactor: 0.5, DebtValueUsd: 1})
	tr.UpdatePosition(types.Position{Borrower: zeroDebt, HealthFactor: math.Inf(1), DebtValueUsd: 0})

	assert.Empty(t, tr.GetLiquidatablePositions())
}

func TestTracker_EvictsAfterConsecutiveHealthyPolls(t *testing.T) {
	tr := newTestTracker(2)
	borrower := types.ParseAddress("0x000000000000000000000000000000000000aa")

	tr.UpdatePosition(types.Position{Borrower: borrower, HealthFactor: 2.0, DebtValueUsd: 0})
	_, ok := tr.Get(borrower)
	assert.True(t, ok, "should still be tracked after one healthy poll")

	tr.UpdatePosition(types.Position{Borrower: borrower, HealthFactor: 2.0, DebtValueUsd: 0})
	_, ok = tr.Get(borrower)
	assert.False(t, ok, "should be evicted after healthyPollsBeforeDrop consecutive healthy polls")
}

func TestTracker_HealthyStreakResetsOnNewDebt(t *testing.T) {
	tr := newTestTracker(2)
	borrower := types.ParseAddress("0x000000000000000000000000000000000000aa")

	tr.UpdatePosition(types.Position{Borrower: borrower, HealthFactor: 2.0, DebtValueUsd: 0})
	tr.UpdatePosition(types.Position{Borrower: borrower, HealthFactor: 1.2, DebtValueUsd: 50})
	tr.UpdatePosition(types.Position{Borrower: borrower, HealthFactor: 2.0, DebtValueUsd: 0})

	_, ok := tr.Get(borrower)
	assert.True(t, ok, "healthy streak should have reset when debt reappeared")
}
