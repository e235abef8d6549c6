// Package collateral implements the Collateral Manager (spec §4.8):
// post-liquidation disposition of seized collateral per the configured
// CollateralStrategy, with the ordered guard checks and atomic Stats
// updates the spec requires.
package collateral

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/venusbot/liquidator/internal/errs"
	"github.com/venusbot/liquidator/internal/price"
	"github.com/venusbot/liquidator/internal/priceimpact"
	"github.com/venusbot/liquidator/internal/route"
	"github.com/venusbot/liquidator/internal/swap"
	"github.com/venusbot/liquidator/pkg/types"
)

// priceCeiling mirrors spec §4.8 guard (a): oracle prices above this are
// treated as corrupt.
const priceCeiling = 1_000_000

// TokenConfig is one entry of the collateralSwap.tokenConfigs map
// (spec §6).
type TokenConfig struct {
	Address           common.Address
	Symbol            string
	Decimals          uint8
	IsStablecoin      bool
	AutoSell          bool
	PreferredSwapPath []common.Address
}

type Config struct {
	Strategy           types.CollateralStrategy
	TargetStablecoin   common.Address
	TokenConfigs       map[types.Address]TokenConfig // keyed by lowercased address
	MaxSlippage        float64
	MaxPriceImpact     float64
	MinSwapAmountUsd   float64
}

// Manager is the Collateral Manager.
type Manager struct {
	cfg       Config
	optimizer *route.Optimizer
	executor  *swap.Executor
	prices    price.Service
	checker   *priceimpact.Checker
	stats     *types.Stats
}

func NewManager(cfg Config, optimizer *route.Optimizer, executor *swap.Executor, prices price.Service, stats *types.Stats) *Manager {
	return &Manager{
		cfg:       cfg,
		optimizer: optimizer,
		executor:  executor,
		prices:    prices,
		checker:   priceimpact.NewChecker(cfg.MaxPriceImpact),
		stats:     stats,
	}
}

// Dispose implements spec §4.8's strategy dispatch for a seized token.
// A nil, nil return means HOLD: no-op, nothing to report.
func (m *Manager) Dispose(seizeToken common.Address, seizeAmount *big.Int, decimals uint8) (*types.SwapResult, error) {
	switch m.cfg.Strategy {
	case types.StrategyHold:
		return nil, nil
	case types.StrategyAutoSell:
		return m.autoSell(seizeToken, seizeAmount, decimals, nil)
	case types.StrategyConfigurable:
		return m.configurable(seizeToken, seizeAmount, decimals)
	default:
		return nil, nil
	}
}

func (m *Manager) configurable(seizeToken common.Address, seizeAmount *big.Int, decimals uint8) (*types.SwapResult, error) {
	cfg, ok := m.cfg.TokenConfigs[types.NewAddress(seizeToken)]
	if !ok {
		return m.autoSell(seizeToken, seizeAmount, decimals, nil)
	}
	if !cfg.AutoSell {
		return nil, nil
	}
	return m.autoSell(seizeToken, seizeAmount, decimals, cfg.PreferredSwapPath)
}

func (m *Manager) autoSell(seizeToken common.Address, seizeAmount *big.Int, decimals uint8, preferredPath []common.Address) (*types.SwapResult, error) {
	if isStablecoin(seizeToken, m.cfg.TargetStablecoin) {
		amount := new(big.Int).Set(seizeAmount)
		m.stats.RecordSwapAttempt()
		m.stats.RecordSwapSuccess(0)
		return &types.SwapResult{Success: true, AmountIn: seizeAmount, AmountOut: amount, TokenIn: seizeToken, TokenOut: seizeToken}, nil
	}

	m.stats.RecordSwapAttempt()

	// Guard (a): oracle prices finite, positive, below sanity ceiling.
	priceIn, err := m.prices.GetTokenPriceUsd(seizeToken)
	if err != nil || !validPrice(priceIn) {
		m.stats.RecordSwapFailure()
		return nil, errs.NewInvalidPriceDataError(seizeToken.Hex(), priceIn)
	}
	priceOut, err := m.prices.GetTokenPriceUsd(m.cfg.TargetStablecoin)
	if err != nil || !validPrice(priceOut) {
		m.stats.RecordSwapFailure()
		return nil, errs.NewInvalidPriceDataError(m.cfg.TargetStablecoin.Hex(), priceOut)
	}

	humanIn := toHuman(seizeAmount, decimals)
	usdValue := humanIn * priceIn

	// Guard (b): USD value floor.
	if usdValue < m.cfg.MinSwapAmountUsd {
		m.stats.RecordSwapFailure()
		return nil, fmt.Errorf("collateral swap below minSwapAmountUsd: $%.2f < $%.2f", usdValue, m.cfg.MinSwapAmountUsd)
	}

	decimalsOut, err := m.prices.GetUnderlyingDecimals(m.cfg.TargetStablecoin)
	if err != nil {
		m.stats.RecordSwapFailure()
		return nil, fmt.Errorf("collateral swap: target stablecoin decimals: %w", err)
	}

	var result *types.SwapResult
	if len(preferredPath) >= 2 {
		fees := mediumFeesForHops(len(preferredPath) - 1)
		result = m.executePath(preferredPath, fees, seizeAmount, priceIn, priceOut, decimals, decimalsOut)
	} else {
		r, err := m.optimizer.FindBestRoute(seizeToken, m.cfg.TargetStablecoin, seizeAmount)
		if err != nil {
			m.stats.RecordSwapFailure()
			return nil, err
		}

		// Guard (c): price impact verdict, using the route's expected
		// output as the quoted comparison point.
		expectedOutHuman := toHuman(r.ExpectedOut, decimalsOut)
		verdict := m.checker.CheckPriceImpact(humanIn, priceIn, expectedOutHuman, priceOut)
		if !verdict.IsAcceptable {
			m.stats.RecordSwapFailure()
			return nil, fmt.Errorf("collateral swap price impact %.4f exceeds max %.4f", verdict.ImpactPercent, m.cfg.MaxPriceImpact)
		}

		result = m.executePath(r.Path, r.Fees, seizeAmount, priceIn, priceOut, decimals, decimalsOut)
	}

	if result == nil || !result.Success {
		m.stats.RecordSwapFailure()
		if result != nil {
			return result, fmt.Errorf("collateral swap failed: %s", result.Error)
		}
		return nil, fmt.Errorf("collateral swap failed")
	}

	m.stats.RecordSwapSuccess(usdValue)
	return result, nil
}

// executePath derives minOut via USD preservation (guard d) and
// dispatches to the single- or multi-hop Swap Executor operation.
func (m *Manager) executePath(path []common.Address, fees []uint32, amountIn *big.Int, priceIn, priceOut float64, decimalsIn, decimalsOut uint8) *types.SwapResult {
	minOut := priceimpact.CalculateMinAmountOut(amountIn, decimalsIn, decimalsOut, priceIn, priceOut, m.cfg.MaxSlippage)

	gas := swap.GasParams{}
	if len(path) == 2 {
		return m.executor.ExecuteSingleHopSwap(swap.SingleHopParams{
			TokenIn:          path[0],
			TokenOut:         path[1],
			Fee:              fees[0],
			AmountIn:         amountIn,
			AmountOutMinimum: minOut,
		}, gas)
	}
	return m.executor.ExecuteMultiHopSwap(path, fees, amountIn, minOut, gas, path[len(path)-1])
}

func isStablecoin(token, target common.Address) bool {
	return strings.EqualFold(token.Hex(), target.Hex())
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0 && p <= priceCeiling
}

func toHuman(amount *big.Int, decimals uint8) float64 {
	f := new(big.Float).Quo(new(big.Float).SetInt(amount), new(big.Float).SetFloat64(math.Pow10(int(decimals))))
	out, _ := f.Float64()
	return out
}

func mediumFeesForHops(hops int) []uint32 {
	fees := make([]uint32, hops)
	for i := range fees {
		fees[i] = types.FeeMedium
	}
	return fees
}
