// Package health computes a borrower's health factor and per-market USD
// exposure from the Comptroller/vToken contracts (spec §4.1), grounded on
// the teacher's multicall-free, per-call ContractClient pattern (adapted
// from 0xmichalis-liquidatoor's getAccountLiquidity/getAssetsIn scan,
// retrieval-pack file 308838e5).
package health

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/venusbot/liquidator/internal/errs"
	"github.com/venusbot/liquidator/internal/price"
	"github.com/venusbot/liquidator/pkg/contractclient"
	"github.com/venusbot/liquidator/pkg/types"
)

// defaultLiquidationIncentive is the fallback applied when
// liquidationIncentiveMantissa cannot be read (spec §4.1).
const defaultLiquidationIncentive = 1.10

// VTokenClientFactory binds a generic vToken ABI to a market address, on
// demand. One factory is shared across all tracked markets so the same
// underlying ethclient connection and ABI parse are reused.
type VTokenClientFactory func(market common.Address) contractclient.ContractClient

// Calculator computes Position snapshots for borrowers.
type Calculator struct {
	comptroller contractclient.ContractClient
	vTokenOf    VTokenClientFactory
	prices      price.Service
	log         zerolog.Logger
}

func NewCalculator(comptroller contractclient.ContractClient, vTokenOf VTokenClientFactory, prices price.Service, log zerolog.Logger) *Calculator {
	return &Calculator{comptroller: comptroller, vTokenOf: vTokenOf, prices: prices, log: log.With().Str("component", "health").Logger()}
}

// marketExposure is one vToken's USD-valued supply/borrow for a borrower.
type marketExposure struct {
	market        common.Address
	underlying    common.Address
	collateralUsd float64
	debtUsd       float64
}

// Compute builds a Position for borrower from on-chain state. It never
// returns an error for a single bad market read — those markets are
// skipped per spec §4.1 ("account remains valid") — only for failures
// that make the whole account unevaluable (getAccountLiquidity itself,
// or getAssetsIn).
func (c *Calculator) Compute(borrower common.Address) (*types.Position, error) {
	liquidity, shortfall, err := c.accountLiquidity(borrower)
	if err != nil {
		return nil, err
	}

	assets, err := c.assetsIn(borrower)
	if err != nil {
		return nil, err
	}

	exposures := make([]marketExposure, 0, len(assets))
	for _, market := range assets {
		exp, ok := c.marketExposure(borrower, market)
		if ok {
			exposures = append(exposures, exp)
		}
	}

	var collateralUsd, debtUsd float64
	var collateralTokens, borrowTokens, assetAddrs []types.Address
	var repayToken, seizeToken types.Address
	var maxDebt, maxCollateral float64

	for _, exp := range exposures {
		assetAddrs = append(assetAddrs, types.NewAddress(exp.market))
		if exp.collateralUsd > 0 {
			collateralTokens = append(collateralTokens, types.NewAddress(exp.market))
			collateralUsd += exp.collateralUsd
			if exp.collateralUsd > maxCollateral {
				maxCollateral = exp.collateralUsd
				seizeToken = types.NewAddress(exp.market)
			}
		}
		if exp.debtUsd > 0 {
			borrowTokens = append(borrowTokens, types.NewAddress(exp.market))
			debtUsd += exp.debtUsd
			if exp.debtUsd > maxDebt {
				maxDebt = exp.debtUsd
				repayToken = types.NewAddress(exp.market)
			}
		}
	}

	hf := computeHealthFactor(liquidity, shortfall, debtUsd)

	return &types.Position{
		Borrower:           types.NewAddress(borrower),
		HealthFactor:       hf,
		CollateralTokens:   collateralTokens,
		BorrowTokens:       borrowTokens,
		AssetsIn:           assetAddrs,
		CollateralValueUsd: collateralUsd,
		DebtValueUsd:       debtUsd,
		AccountLiquidity:   types.AccountLiquidity{Liquidity: liquidity, Shortfall: shortfall},
		RepayToken:         repayToken,
		SeizeToken:         seizeToken,
	}, nil
}

// computeHealthFactor implements spec §4.1's three-case HF derivation.
func computeHealthFactor(liquidity, shortfall *big.Int, debtUsd float64) float64 {
	zero := big.NewInt(0)
	if liquidity.Cmp(zero) == 0 && shortfall.Cmp(zero) == 0 {
		return 1.0
	}
	if shortfall.Cmp(zero) > 0 {
		shortfallUsd := weiToUsd(shortfall)
		denom := debtUsd + shortfallUsd
		if denom <= 0 {
			return 0
		}
		return debtUsd / denom
	}
	// liquidity > 0
	if debtUsd == 0 {
		return math.Inf(1)
	}
	liquidityUsd := weiToUsd(liquidity)
	return (debtUsd + liquidityUsd) / debtUsd
}

// weiToUsd converts a Comptroller 1e18-scaled USD amount to a float64 at
// the USD boundary (spec §9).
func weiToUsd(v *big.Int) float64 {
	f := new(big.Float).Quo(new(big.Float).SetInt(v), big.NewFloat(1e18))
	out, _ := f.Float64()
	return out
}

func (c *Calculator) accountLiquidity(borrower common.Address) (*big.Int, *big.Int, error) {
	out, err := c.comptroller.Call(nil, "getAccountLiquidity", borrower)
	if err != nil {
		return nil, nil, errs.ClassifyChainError(fmt.Errorf("getAccountLiquidity(%s): %w", borrower.Hex(), err))
	}
	if len(out) < 3 {
		return nil, nil, fmt.Errorf("getAccountLiquidity(%s): unexpected return shape", borrower.Hex())
	}
	errCode, _ := out[0].(*big.Int)
	if errCode != nil && errCode.Sign() != 0 {
		return nil, nil, errs.NewPermanentChainError(fmt.Errorf("getAccountLiquidity(%s): comptroller error code %s", borrower.Hex(), errCode))
	}
	liquidity, _ := out[1].(*big.Int)
	shortfall, _ := out[2].(*big.Int)
	if liquidity == nil || shortfall == nil {
		return nil, nil, fmt.Errorf("getAccountLiquidity(%s): nil liquidity/shortfall", borrower.Hex())
	}
	return liquidity, shortfall, nil
}

func (c *Calculator) assetsIn(borrower common.Address) ([]common.Address, error) {
	out, err := c.comptroller.Call(nil, "getAssetsIn", borrower)
	if err != nil {
		return nil, errs.ClassifyChainError(fmt.Errorf("getAssetsIn(%s): %w", borrower.Hex(), err))
	}
	if len(out) == 0 {
		return nil, nil
	}
	markets, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getAssetsIn(%s): unexpected return type", borrower.Hex())
	}
	return markets, nil
}

// LiquidationIncentive reads the Comptroller's liquidationIncentiveMantissa,
// falling back to defaultLiquidationIncentive on any read failure.
func (c *Calculator) LiquidationIncentive() float64 {
	out, err := c.comptroller.Call(nil, "liquidationIncentiveMantissa")
	if err != nil || len(out) == 0 {
		return defaultLiquidationIncentive
	}
	mantissa, ok := out[0].(*big.Int)
	if !ok {
		return defaultLiquidationIncentive
	}
	f := new(big.Float).Quo(new(big.Float).SetInt(mantissa), big.NewFloat(1e18))
	incentive, _ := f.Float64()
	if incentive <= 1.0 {
		return defaultLiquidationIncentive
	}
	return incentive
}

// marketExposure reads getAccountSnapshot for one market and converts the
// vToken balance / borrow balance to USD. Markets with a non-zero error
// code or zero oracle price are skipped (second return value false),
// leaving the rest of the account valid, per spec §4.1.
func (c *Calculator) marketExposure(borrower, market common.Address) (marketExposure, bool) {
	vToken := c.vTokenOf(market)

	out, err := vToken.Call(nil, "getAccountSnapshot", borrower)
	if err != nil || len(out) < 4 {
		c.log.Warn().Err(err).Str("market", market.Hex()).Msg("getAccountSnapshot failed, skipping market")
		return marketExposure{}, false
	}
	errCode, _ := out[0].(*big.Int)
	if errCode != nil && errCode.Sign() != 0 {
		return marketExposure{}, false
	}
	vTokenBalance, _ := out[1].(*big.Int)
	borrowBalance, _ := out[2].(*big.Int)
	exchangeRate, _ := out[3].(*big.Int)
	if vTokenBalance == nil || borrowBalance == nil || exchangeRate == nil {
		return marketExposure{}, false
	}

	underlying, err := c.underlyingOf(vToken, market)
	if err != nil {
		return marketExposure{}, false
	}

	priceUsd, err := c.prices.GetTokenPriceUsd(underlying)
	if err != nil || priceUsd == 0 {
		return marketExposure{}, false
	}
	decimals, err := c.prices.GetUnderlyingDecimals(underlying)
	if err != nil {
		return marketExposure{}, false
	}

	// underlyingBalance = vTokenBalance * exchangeRate / 1e18 (Compound's
	// exchangeRateMantissa convention).
	underlyingSupplied := new(big.Int).Mul(vTokenBalance, exchangeRate)
	underlyingSupplied.Div(underlyingSupplied, new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

	scale := new(big.Float).SetFloat64(math.Pow10(-int(decimals)))
	collateralUsd := amountToUsd(underlyingSupplied, scale, priceUsd)
	debtUsd := amountToUsd(borrowBalance, scale, priceUsd)

	return marketExposure{
		market:        market,
		underlying:    underlying,
		collateralUsd: collateralUsd,
		debtUsd:       debtUsd,
	}, true
}

func (c *Calculator) underlyingOf(vToken contractclient.ContractClient, market common.Address) (common.Address, error) {
	out, err := vToken.Call(nil, "underlying")
	if err != nil || len(out) == 0 {
		return common.Address{}, fmt.Errorf("underlying(%s): %w", market.Hex(), err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("underlying(%s): unexpected return type", market.Hex())
	}
	return addr, nil
}

// amountToUsd applies the spec §9 USD-boundary conversion:
// priceUsd * amount * 10^(-decimals), performed once in float64 at the
// boundary rather than threading big.Float through the rest of the
// pipeline.
func amountToUsd(amount *big.Int, decimalScale *big.Float, priceUsd float64) float64 {
	human := new(big.Float).Mul(new(big.Float).SetInt(amount), decimalScale)
	humanF, _ := human.Float64()
	if math.IsNaN(humanF) || math.IsInf(humanF, 0) {
		return 0
	}
	return humanF * priceUsd
}
