package profitability

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/venusbot/liquidator/pkg/types"
)

// TestCalculateFlashLoanFee covers spec §8 scenario 3's three fee-scale
// fixtures at differing decimals.
func TestCalculateFlashLoanFee(t *testing.T) {
	calc := &Calculator{cfg: Config{FlashLoanFeeBps: 9}}

	t.Run("10000 USDT at 6 decimals", func(t *testing.T) {
		amount := new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e6))
		fee, err := calc.CalculateFlashLoanFee(amount, 6, 1.0)
		assert.NoError(t, err)
		assert.InDelta(t, 9.0, fee, 1e-6)
	})

	t.Run("0.1 WBTC at 8 decimals", func(t *testing.T) {
		amount := big.NewInt(0).Div(big.NewInt(1e8), big.NewInt(10)) // 0.1 * 1e8
		fee, err := calc.CalculateFlashLoanFee(amount, 8, 40_000)
		assert.NoError(t, err)
		assert.InDelta(t, 3.6, fee, 1e-6)
	})

	t.Run("10 WBNB at 18 decimals", func(t *testing.T) {
		amount := new(big.Int).Mul(big.NewInt(10), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
		fee, err := calc.CalculateFlashLoanFee(amount, 18, 300)
		assert.NoError(t, err)
		assert.InDelta(t, 2.7, fee, 1e-6)
	})

	t.Run("invalid price refused", func(t *testing.T) {
		_, err := calc.CalculateFlashLoanFee(big.NewInt(1), 18, 0)
		assert.Error(t, err)
	})
}

// TestAnalyzeProfitability_ProfitableStandard covers spec §8 scenario 1.
func TestAnalyzeProfitability_ProfitableStandard(t *testing.T) {
	calc := &Calculator{}
	position := types.Position{DebtValueUsd: 1000, EstimatedProfitUsd: 100}
	gas := &types.GasEstimate{EstimatedCostUsd: 5}

	analysis := calc.AnalyzeProfitability(position, types.ModeStandard, gas, 0, 0, true)

	assert.Equal(t, 100.0, analysis.GrossProfitUsd)
	assert.InDelta(t, 95.0, analysis.NetProfitUsd, 1e-9)
	assert.True(t, analysis.IsProfitable)
	assert.Equal(t, types.ModeStandard, analysis.RecommendedMode)
}

// TestAnalyzeProfitability_RecommendsFlashLoanWithoutBalance asserts the
// mode-escalation branch: a standard liquidation the signer can't fund
// is recommended as a flash loan instead.
func TestAnalyzeProfitability_RecommendsFlashLoanWithoutBalance(t *testing.T) {
	calc := &Calculator{}
	position := types.Position{DebtValueUsd: 1000, EstimatedProfitUsd: 100}
	gas := &types.GasEstimate{EstimatedCostUsd: 5}

	analysis := calc.AnalyzeProfitability(position, types.ModeStandard, gas, 0, 0, false)
	assert.Equal(t, types.ModeFlashLoan, analysis.RecommendedMode)
}

// TestAnalyzeProfitability_BelowMinProfitUsd asserts the isProfitable
// floor, and the netProfitUsd invariant from spec §8.
func TestAnalyzeProfitability_BelowMinProfitUsd(t *testing.T) {
	calc := &Calculator{}
	position := types.Position{DebtValueUsd: 1000, EstimatedProfitUsd: 10}
	gas := &types.GasEstimate{EstimatedCostUsd: 5}

	analysis := calc.AnalyzeProfitability(position, types.ModeStandard, gas, 2, 10, true)

	assert.InDelta(t, analysis.GrossProfitUsd-analysis.GasCostUsd-analysis.FlashLoanFeeUsd, analysis.NetProfitUsd, 1e-9)
	assert.False(t, analysis.IsProfitable)
}
