// Package engine implements the Liquidation Engine orchestrator
// (spec §4.11), grounded on the teacher's StrategyPhase/CircuitBreaker/
// StrategyReport shape (specs/001-liquidity-repositioning/contracts/
// strategy_api.go), repurposed from liquidity-repositioning phases to
// liquidation phases and from rebalancing events to liquidation events.
package engine

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/venusbot/liquidator/internal/collateral"
	"github.com/venusbot/liquidator/internal/errs"
	"github.com/venusbot/liquidator/internal/position"
	"github.com/venusbot/liquidator/internal/price"
	"github.com/venusbot/liquidator/internal/profitability"
	"github.com/venusbot/liquidator/internal/risk"
	"github.com/venusbot/liquidator/internal/strategy"
	"github.com/venusbot/liquidator/internal/util"
	"github.com/venusbot/liquidator/pkg/contractclient"
	"github.com/venusbot/liquidator/pkg/txlistener"
	"github.com/venusbot/liquidator/pkg/types"
)

// VTokenClientFactory binds a vToken ABI to a market address, on demand.
type VTokenClientFactory func(market common.Address) contractclient.ContractClient

// ExecutionScheduler threads failed/succeeded attempts into the
// Execution Service's retry/backoff scheduler (spec §4.12). Satisfied
// by *internal/execution.Service; nil is a valid no-op scheduler for
// callers that don't want retry tracking.
type ExecutionScheduler interface {
	ScheduleRetry(key types.PositionKey, borrower types.Address, reason string)
	ClearSuccess(key types.PositionKey)
}

type Config struct {
	MinProfitUsd       float64
	MinPositionSizeUsd float64
	MaxPositionSizeUsd float64
	DryRun             bool
	ErrorWindow        time.Duration
	ErrorThreshold     int
}

// Engine is the Liquidation Engine: it pulls liquidatable positions from
// the Tracker, runs each through the full spec §4.11 sequence, and
// streams lifecycle events on its report channel.
type Engine struct {
	cfg Config

	tracker       *position.Tracker
	strategy      *strategy.Strategy
	profitability *profitability.Calculator
	prices        price.Service
	risk          *risk.Manager
	collateral    *collateral.Manager
	vTokenOf      VTokenClientFactory
	flashClient   contractclient.ContractClient // nil when flash loans are unused
	listener      txlistener.TxListener

	signer common.Address
	pk     *ecdsa.PrivateKey

	stats   *types.Stats
	breaker *CircuitBreaker
	log     zerolog.Logger
	exec    ExecutionScheduler

	reportChan chan<- types.EngineReport
	phase      EnginePhaseHolder
}

// EnginePhaseHolder is a tiny mutex-free holder; phase transitions only
// ever happen on the single orchestrator goroutine per spec §5.
type EnginePhaseHolder struct {
	current types.EnginePhase
}

func NewEngine(
	cfg Config,
	tracker *position.Tracker,
	strat *strategy.Strategy,
	profit *profitability.Calculator,
	prices price.Service,
	riskMgr *risk.Manager,
	collateralMgr *collateral.Manager,
	vTokenOf VTokenClientFactory,
	flashClient contractclient.ContractClient,
	listener txlistener.TxListener,
	signer common.Address,
	pk *ecdsa.PrivateKey,
	stats *types.Stats,
	exec ExecutionScheduler,
	reportChan chan<- types.EngineReport,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:           cfg,
		tracker:       tracker,
		strategy:      strat,
		profitability: profit,
		prices:        prices,
		risk:          riskMgr,
		collateral:    collateralMgr,
		vTokenOf:      vTokenOf,
		flashClient:   flashClient,
		listener:      listener,
		signer:        signer,
		pk:            pk,
		stats:         stats,
		exec:          exec,
		breaker:       NewCircuitBreaker(cfg.ErrorWindow, cfg.ErrorThreshold),
		log:           log.With().Str("component", "engine").Logger(),
		reportChan:    reportChan,
		phase:         EnginePhaseHolder{current: types.PhaseIdle},
	}
}

// CanExecute implements spec §4.11's canExecute predicate.
func (e *Engine) CanExecute(p types.Position) bool {
	return p.DebtValueUsd >= e.cfg.MinPositionSizeUsd &&
		p.DebtValueUsd <= e.cfg.MaxPositionSizeUsd &&
		p.EstimatedProfitUsd >= e.cfg.MinProfitUsd
}

// RunCycle evaluates every currently liquidatable tracked position in
// descending priority order. It halts (returns an error) only if the
// circuit breaker trips; individual position failures are reported on
// the report channel and do not stop the cycle.
func (e *Engine) RunCycle(ctx context.Context) error {
	if e.breaker.Tripped(time.Now()) {
		e.setPhase(types.PhaseHalted)
		e.emit("halt", "", "circuit breaker is tripped", 0, 0, "")
		return fmt.Errorf("liquidation engine halted: circuit breaker tripped")
	}

	e.setPhase(types.PhaseEvaluating)
	for _, p := range e.tracker.GetLiquidatablePositions() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.evaluateOne(ctx, p)
	}
	e.setPhase(types.PhaseIdle)
	return nil
}

// EvaluateBorrower re-runs the spec §4.11 sequence for a single tracked
// borrower, the entry point the Execution Service's retry loop uses
// instead of a full RunCycle (spec §4.12). It returns an error only when
// the position is no longer tracked or the circuit breaker is tripped;
// ordinary liquidation failures are still reported and scheduled for
// retry from within evaluateOne, not surfaced as a RetryFunc error.
func (e *Engine) EvaluateBorrower(ctx context.Context, borrower types.Address) error {
	if e.breaker.Tripped(time.Now()) {
		return fmt.Errorf("liquidation engine halted: circuit breaker tripped")
	}
	p, ok := e.tracker.Get(borrower)
	if !ok {
		return fmt.Errorf("evaluate borrower: %s no longer tracked", borrower)
	}
	e.evaluateOne(ctx, p)
	return nil
}

// evaluateOne runs the full spec §4.11 sequence for a single position.
func (e *Engine) evaluateOne(ctx context.Context, p types.Position) {
	borrowerHex := p.Borrower.Common().Hex()
	e.emit("position_found", borrowerHex, "candidate position found", p.EstimatedProfitUsd, 0, "")

	if !e.CanExecute(p) {
		e.emit("not_profitable", borrowerHex, "position fails canExecute bounds", p.EstimatedProfitUsd, 0, "")
		return
	}

	// Step 1: strategy.validate.
	if err := e.strategy.Validate(); err != nil {
		e.recordFailure(p, err, "Strategy validation failed")
		return
	}

	// Step 2: strategy.select(mode).
	hasBalance, err := e.strategy.HasSufficientBalance(ctx, p.RepayToken, p.RepayAmount, e.signer)
	if err != nil {
		e.recordFailure(p, err, "balance check failed")
		return
	}
	standardGas, standardErr := e.profitability.EstimateGas(ctx, p, types.ModeStandard)
	flashGas, flashErr := e.profitability.EstimateGas(ctx, p, types.ModeFlashLoan)

	var standardNet, flashNet float64
	if standardErr == nil {
		standardNet = p.EstimatedProfitUsd - standardGas.EstimatedCostUsd
	}
	if flashErr == nil {
		flashNet = p.EstimatedProfitUsd - flashGas.EstimatedCostUsd
	}

	mode, err := e.strategy.Select(hasBalance, standardNet, flashNet)
	if err != nil {
		e.recordFailure(p, err, "Strategy validation failed")
		return
	}

	// Step 3: profitability.estimateGas then analyzeProfitability.
	gas := standardGas
	if mode == types.ModeFlashLoan {
		gas = flashGas
	}
	if gas == nil {
		e.recordFailure(p, fmt.Errorf("gas estimation failed for mode %s", mode), "not profitable")
		return
	}

	var flashFeeUsd float64
	if mode == types.ModeFlashLoan {
		flashFeeUsd, err = e.flashLoanFee(p)
		if err != nil {
			e.recordFailure(p, err, "not profitable")
			return
		}
	}

	analysis := e.profitability.AnalyzeProfitability(p, mode, gas, flashFeeUsd, e.cfg.MinProfitUsd, hasBalance)
	if !analysis.IsProfitable {
		e.emit("not_profitable", borrowerHex, "net profit below minProfitUsd", analysis.NetProfitUsd, analysis.GasCostUsd, "")
		return
	}

	// Step 4: risk.validate.
	expectedLossUsd := gas.EstimatedCostUsd + flashFeeUsd
	riskResult := e.risk.Validate(ctx, p, e.signer, expectedLossUsd, gas.GasPriceGwei)
	if !riskResult.Allowed {
		e.emit("risk_blocked", borrowerHex, riskResult.FailureReason(), analysis.NetProfitUsd, analysis.GasCostUsd, "")
		e.stats.RecordLiquidationFailure(analysis.GasCostUsd)
		return
	}

	// Step 5: dry-run short-circuit.
	if e.cfg.DryRun {
		e.stats.RecordDryRun()
		e.emit("liquidated", borrowerHex, "dry run: no on-chain calls made", analysis.NetProfitUsd, analysis.GasCostUsd, "")
		return
	}

	e.setPhase(types.PhaseExecuting)

	// Step 6: dispatch to Standard or Flash liquidator.
	key := types.NewPositionKey(p.Borrower, p.RepayToken, p.SeizeToken)
	result := e.dispatch(ctx, p, mode, gas, analysis)
	if !result.Success {
		e.recordFailure(p, fmt.Errorf("%s", result.ErrorMessage), result.ErrorMessage)
		if e.exec != nil {
			e.exec.ScheduleRetry(key, p.Borrower, result.ErrorMessage)
		}
		return
	}
	if e.exec != nil {
		e.exec.ClearSuccess(key)
	}

	// Step 7: Collateral Manager disposes of seized collateral.
	if e.collateral != nil {
		decimals, derr := e.prices.GetUnderlyingDecimals(p.SeizeToken.Common())
		if derr == nil {
			swapResult, serr := e.collateral.Dispose(p.SeizeToken.Common(), p.RepayAmount, decimals)
			if serr != nil {
				e.log.Warn().Err(serr).Str("borrower", borrowerHex).Msg("collateral disposal failed")
			} else if swapResult != nil {
				result.SwapResult = swapResult
				e.emit("swap_complete", borrowerHex, "collateral disposed", 0, 0, "")
			}
		}
	}

	// Step 8: update stats.
	e.stats.RecordLiquidationSuccess(result.NetProfitUsd, result.GasCostUsd, result.RealizedUsd)
	e.breaker.Reset()
	e.emit("liquidated", borrowerHex, "liquidation succeeded", result.NetProfitUsd, result.GasCostUsd, "")
}

func (e *Engine) flashLoanFee(p types.Position) (float64, error) {
	decimals, err := e.prices.GetUnderlyingDecimals(p.RepayToken.Common())
	if err != nil {
		return 0, err
	}
	priceUsd, err := e.prices.GetTokenPriceUsd(p.RepayToken.Common())
	if err != nil {
		return 0, err
	}
	return e.profitability.CalculateFlashLoanFee(p.RepayAmount, decimals, priceUsd)
}

// dispatch submits the on-chain liquidateBorrow call (standard or via the
// flash-liquidator contract) and awaits its receipt.
func (e *Engine) dispatch(ctx context.Context, p types.Position, mode types.LiquidationMode, gas *types.GasEstimate, analysis types.ProfitabilityAnalysis) types.LiquidationResult {
	result := types.LiquidationResult{Borrower: p.Borrower, Mode: mode, Timestamp: time.Now(), NetProfitUsd: analysis.NetProfitUsd, GasCostUsd: analysis.GasCostUsd}

	var txHash common.Hash
	var err error
	switch mode {
	case types.ModeFlashLoan:
		txHash, err = e.sendFlashLoanLiquidation(p, gas)
	default:
		txHash, err = e.sendStandardLiquidation(p, gas)
	}
	if err != nil {
		result.ErrorMessage = err.Error()
		if errs.IsCritical(err) {
			e.breaker.RecordError(time.Now(), true)
		} else {
			e.breaker.RecordError(time.Now(), false)
		}
		return result
	}

	receipt, err := e.listener.WaitForTransaction(txHash)
	if err != nil {
		result.ErrorMessage = err.Error()
		e.breaker.RecordError(time.Now(), errs.IsCritical(err))
		return result
	}
	if receipt.Status != "0x1" {
		result.ErrorMessage = "liquidateBorrow reverted"
		e.breaker.RecordError(time.Now(), true)
		return result
	}

	gasCostWei, gerr := util.ExtractGasCost(receipt)
	if gerr == nil {
		result.Transactions = append(result.Transactions, types.TransactionRecord{
			TxHash:    common.HexToHash(receipt.TxHash),
			Operation: "liquidateBorrow",
			Timestamp: time.Now(),
			GasCost:   gasCostWei,
		})
	}

	result.Success = true
	result.RealizedUsd = analysis.GrossProfitUsd
	return result
}

func (e *Engine) sendStandardLiquidation(p types.Position, gas *types.GasEstimate) (common.Hash, error) {
	vToken := e.vTokenOf(p.RepayToken.Common())
	return vToken.Send(types.Standard, new(big.Int).SetUint64(gas.EstimatedGas), &e.signer, e.pk,
		"liquidateBorrow", p.Borrower.Common(), p.RepayAmount, p.SeizeToken.Common())
}

func (e *Engine) sendFlashLoanLiquidation(p types.Position, gas *types.GasEstimate) (common.Hash, error) {
	if e.flashClient == nil {
		return common.Hash{}, errs.NewConfigurationError("flash loan liquidation selected but no flash liquidator contract is wired")
	}
	return e.flashClient.Send(types.Standard, new(big.Int).SetUint64(gas.EstimatedGas), &e.signer, e.pk,
		"liquidateWithFlashLoan", p.Borrower.Common(), p.RepayToken.Common(), p.SeizeToken.Common(), p.RepayAmount)
}

func (e *Engine) recordFailure(p types.Position, err error, publicReason string) {
	e.log.Warn().Err(err).Str("borrower", p.Borrower.String()).Msg(publicReason)
	e.stats.RecordLiquidationFailure(0)
	e.breaker.RecordError(time.Now(), errs.IsCritical(err))
	e.emit("risk_blocked", p.Borrower.Common().Hex(), publicReason, 0, 0, err.Error())
}

func (e *Engine) setPhase(p types.EnginePhase) {
	e.phase.current = p
}

func (e *Engine) emit(eventType, borrower, message string, netProfitUsd, gasCostUsd float64, errMsg string) {
	if e.reportChan == nil {
		return
	}
	phase := e.phase.current
	report := types.EngineReport{
		Timestamp:    time.Now(),
		EventType:    eventType,
		Borrower:     borrower,
		Message:      message,
		Phase:        &phase,
		NetProfitUsd: netProfitUsd,
		GasCostUsd:   gasCostUsd,
		Error:        errMsg,
	}
	select {
	case e.reportChan <- report:
	default:
		e.log.Warn().Str("event_type", eventType).Msg("report channel full, dropping event")
	}
}
