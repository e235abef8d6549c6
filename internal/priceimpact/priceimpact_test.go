package priceimpact

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/venusbot/liquidator/pkg/types"
)

func TestCheckPriceImpact(t *testing.T) {
	c := NewChecker(0.02)

	t.Run("within tolerance", func(t *testing.T) {
		v := c.CheckPriceImpact(100, 1.0, 99, 1.0)
		assert.True(t, v.IsAcceptable)
		assert.InDelta(t, 0.01, v.ImpactPercent, 1e-9)
	})

	t.Run("exceeds tolerance", func(t *testing.T) {
		v := c.CheckPriceImpact(100, 1.0, 90, 1.0)
		assert.False(t, v.IsAcceptable)
	})

	t.Run("zero oracle price is a safe refusal", func(t *testing.T) {
		v := c.CheckPriceImpact(100, 0, 99, 1.0)
		assert.False(t, v.IsAcceptable)
		assert.Zero(t, v.ImpactPercent)
	})
}

func TestCalculateMinAmountOut(t *testing.T) {
	amountIn := big.NewInt(1_000_000_000_000_000_000) // 1 token, 18 decimals
	min := CalculateMinAmountOut(amountIn, 18, 6, 1.0, 1.0, 0.01)

	// 1 * 1.0 * 0.99 USD worth, rescaled to 6 decimals => 990000
	assert.Equal(t, big.NewInt(990000), min)
}

func TestCalculateMinAmountOut_ZeroOutPrice(t *testing.T) {
	amountIn := big.NewInt(1_000_000_000_000_000_000)
	min := CalculateMinAmountOut(amountIn, 18, 6, 1.0, 0, 0.01)
	assert.Equal(t, big.NewInt(0), min)
}

func TestValidateSlippage(t *testing.T) {
	out := big.NewInt(1_000_000)
	min := big.NewInt(990_000)
	assert.True(t, ValidateSlippage(out, min, 6, 0.02))
	assert.False(t, ValidateSlippage(out, min, 6, 0.005))
}

func TestValidateSlippage_ZeroOut(t *testing.T) {
	assert.True(t, ValidateSlippage(big.NewInt(0), big.NewInt(0), 6, 0.01))
	assert.False(t, ValidateSlippage(big.NewInt(0), big.NewInt(1), 6, 0.01))
}

func TestEnrichSwapResultWithImpact(t *testing.T) {
	result := &types.SwapResult{AmountOut: big.NewInt(980)}
	EnrichSwapResultWithImpact(result, big.NewInt(1000))

	if assert.NotNil(t, result.PriceImpact) {
		assert.InDelta(t, 0.02, *result.PriceImpact, 1e-6)
	}
}

func TestEnrichSwapResultWithImpact_BetterThanExpected(t *testing.T) {
	result := &types.SwapResult{AmountOut: big.NewInt(1010)}
	EnrichSwapResultWithImpact(result, big.NewInt(1000))

	if assert.NotNil(t, result.PriceImpact) {
		assert.Equal(t, 0.0, *result.PriceImpact)
	}
}

func TestEnrichSwapResultWithImpact_NilGuards(t *testing.T) {
	assert.NotPanics(t, func() {
		EnrichSwapResultWithImpact(nil, big.NewInt(1000))
		EnrichSwapResultWithImpact(&types.SwapResult{}, big.NewInt(1000))
		EnrichSwapResultWithImpact(&types.SwapResult{AmountOut: big.NewInt(1)}, big.NewInt(0))
	})
}
