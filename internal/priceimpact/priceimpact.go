// Package priceimpact implements the Price Impact Checker (spec §4.6):
// oracle-vs-quote comparison, USD-preserving minAmountOut derivation, and
// slippage validation.
package priceimpact

import (
	"math/big"

	"github.com/venusbot/liquidator/pkg/types"
)

// Verdict is the result of checkPriceImpact.
type Verdict struct {
	ExpectedUsd   float64
	ActualUsd     float64
	ImpactPercent float64
	IsAcceptable  bool
}

type Checker struct {
	maxPriceImpact float64 // fraction, e.g. 0.02 for 2%
}

func NewChecker(maxPriceImpact float64) *Checker {
	return &Checker{maxPriceImpact: maxPriceImpact}
}

// CheckPriceImpact implements spec §4.6's checkPriceImpact. humanIn and
// humanExpectedOut are already decimal-adjusted token amounts (not wei).
// A zero oracle price on either side is a safe refusal: not acceptable,
// zero impact reported.
func (c *Checker) CheckPriceImpact(humanIn, oraclePriceIn, humanExpectedOut, oraclePriceOut float64) Verdict {
	if oraclePriceIn <= 0 || oraclePriceOut <= 0 {
		return Verdict{IsAcceptable: false}
	}

	expectedUsd := humanIn * oraclePriceIn
	actualUsd := humanExpectedOut * oraclePriceOut
	if expectedUsd <= 0 {
		return Verdict{ExpectedUsd: expectedUsd, ActualUsd: actualUsd, IsAcceptable: false}
	}

	impactPercent := (expectedUsd - actualUsd) / expectedUsd
	return Verdict{
		ExpectedUsd:   expectedUsd,
		ActualUsd:     actualUsd,
		ImpactPercent: impactPercent,
		IsAcceptable:  impactPercent <= c.maxPriceImpact,
	}
}

// CalculateMinAmountOut implements spec §4.6: preserves USD value across
// the configured slippage tolerance, rescaled to tOut decimals.
func CalculateMinAmountOut(amountIn *big.Int, tInDecimals, tOutDecimals uint8, priceIn, priceOut, slippageTolerance float64) *big.Int {
	humanIn := toHuman(amountIn, tInDecimals)
	minUsd := humanIn * priceIn * (1 - slippageTolerance)
	if priceOut <= 0 {
		return big.NewInt(0)
	}
	minOutHuman := minUsd / priceOut
	return fromHuman(minOutHuman, tOutDecimals)
}

// ValidateSlippage implements spec §4.6's validateSlippage predicate.
func ValidateSlippage(amountOut, amountOutMin *big.Int, decimals uint8, slippageTolerance float64) bool {
	if amountOut.Sign() == 0 {
		return amountOutMin.Sign() == 0
	}
	outF := toHuman(amountOut, decimals)
	minF := toHuman(amountOutMin, decimals)
	return (outF-minF)/outF <= slippageTolerance
}

// EnrichSwapResultWithImpact implements spec §4.6's
// enrichSwapResultWithImpact: priceImpact = max(0, (expectedOut -
// amountOut)/expectedOut), computed through a 6-decimal fixed-point
// integer intermediate to avoid float drift, then surfaced as a display
// float (spec §9c: display-only, never used for trading decisions).
func EnrichSwapResultWithImpact(result *types.SwapResult, expectedOut *big.Int) {
	if result == nil || result.AmountOut == nil || expectedOut == nil || expectedOut.Sign() == 0 {
		return
	}

	const scale = 1_000_000 // 6 decimals
	diff := new(big.Int).Sub(expectedOut, result.AmountOut)
	if diff.Sign() < 0 {
		diff = big.NewInt(0)
	}
	scaled := new(big.Int).Mul(diff, big.NewInt(scale))
	scaled.Div(scaled, expectedOut)

	impact := float64(scaled.Int64()) / scale
	result.PriceImpact = &impact
}

func toHuman(amount *big.Int, decimals uint8) float64 {
	f := new(big.Float).Quo(new(big.Float).SetInt(amount), pow10(decimals))
	out, _ := f.Float64()
	return out
}

func fromHuman(human float64, decimals uint8) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(human), pow10(decimals))
	// Round to the nearest unit so float64 drift (0.99 is stored as
	// 0.98999...) does not truncate a whole unit away.
	scaled.Add(scaled, big.NewFloat(0.5))
	out, _ := scaled.Int(nil)
	if out == nil {
		return big.NewInt(0)
	}
	return out
}

func pow10(decimals uint8) *big.Float {
	return new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
}
