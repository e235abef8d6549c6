// Package risk implements the Risk Manager (spec §4.9): an ordered set of
// pre-execution hard-block checks gating every liquidation attempt,
// grounded on the polybot risk-gate example's mutex-guarded gate shape
// (retrieval-pack file 07ff2077), adapted from per-trade PnL gating to
// per-liquidation USD-loss gating. Unlike the example, amounts here stay
// in float64/big.Int per spec §9's numeric model rather than
// shopspring/decimal — only the structural pattern (ordered checks,
// mutex-guarded state, emergency stop as a circuit breaker) is carried
// over.
package risk

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/venusbot/liquidator/pkg/contractclient"
	"github.com/venusbot/liquidator/pkg/types"
)

// HealthRechecker recomputes a borrower's current Position, used by the
// HF-still-below-threshold recheck (spec §4.9 step 6). Satisfied by
// *internal/health.Calculator.
type HealthRechecker interface {
	Compute(borrower common.Address) (*types.Position, error)
}

// ERC20ClientFactory binds an ERC20 ABI to a token address, on demand,
// mirroring internal/price's factory shape.
type ERC20ClientFactory func(token common.Address) contractclient.ContractClient

type Config struct {
	MaxDailyLossUsd   float64
	MaxGasPriceGwei    float64
	AllowedTokens      map[types.Address]bool // nil/empty means "no restriction"
	MinHealthFactor    float64
	NativeUnderlying   map[types.Address]bool // vToken markets whose underlying is native BNB
}

// Manager is the Risk Manager: a mutex-guarded ordered gate plus an
// emergency-stop circuit breaker.
type Manager struct {
	mu sync.Mutex

	cfg      Config
	eth      *ethclient.Client
	erc20Of  ERC20ClientFactory
	health   HealthRechecker
	log      zerolog.Logger

	emergencyStop bool
	dailyLossUsd  float64
}

func NewManager(cfg Config, eth *ethclient.Client, erc20Of ERC20ClientFactory, health HealthRechecker, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		eth:     eth,
		erc20Of: erc20Of,
		health:  health,
		log:     log.With().Str("component", "risk").Logger(),
	}
}

// TripEmergencyStop halts all further liquidation attempts until
// ResetEmergencyStop is called. There is no automatic cooldown: an
// operator must clear it deliberately.
func (m *Manager) TripEmergencyStop(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyStop = true
	m.log.Error().Str("reason", reason).Msg("emergency stop tripped")
}

func (m *Manager) ResetEmergencyStop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyStop = false
	m.log.Info().Msg("emergency stop reset")
}

// AddDailyLoss accumulates a realized loss toward the daily cap. Callers
// pass the loss as a positive amount; zero or negative values are
// ignored, so gains do not reduce the accumulated loss (spec §4.9: the
// cap tracks loss, not net PnL).
func (m *Manager) AddDailyLoss(lossUsd float64) {
	if lossUsd <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyLossUsd += lossUsd
}

func (m *Manager) ResetDailyLoss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dailyLossUsd = 0
}

// Validate runs the ordered hard-block checks from spec §4.9 and returns
// a RiskValidationResult recording every check's pass/fail, not just the
// first failure, so operators can see the whole picture from one result.
func (m *Manager) Validate(ctx context.Context, position types.Position, signer common.Address, expectedLossUsd float64, gasPriceGwei float64) types.RiskValidationResult {
	m.mu.Lock()
	stopped := m.emergencyStop
	dailyLoss := m.dailyLossUsd
	m.mu.Unlock()

	checks := make([]types.RiskCheck, 0, 6)
	allowed := true

	record := func(name string, passed bool, reason string) {
		checks = append(checks, types.RiskCheck{Name: name, Passed: passed, Reason: reason})
		if !passed {
			allowed = false
		}
	}

	record("emergencyStop", !stopped, ifFail(stopped, "emergency stop is active"))

	projectedLoss := dailyLoss + expectedLossUsd
	record("dailyLossCap", projectedLoss <= m.cfg.MaxDailyLossUsd,
		ifFail(projectedLoss > m.cfg.MaxDailyLossUsd, fmt.Sprintf("projected daily loss $%.2f exceeds cap $%.2f", projectedLoss, m.cfg.MaxDailyLossUsd)))

	record("gasCap", gasPriceGwei <= m.cfg.MaxGasPriceGwei,
		ifFail(gasPriceGwei > m.cfg.MaxGasPriceGwei, fmt.Sprintf("gas price %.2f gwei exceeds cap %.2f gwei", gasPriceGwei, m.cfg.MaxGasPriceGwei)))

	if len(m.cfg.AllowedTokens) > 0 {
		repayOk := m.cfg.AllowedTokens[position.RepayToken]
		seizeOk := m.cfg.AllowedTokens[position.SeizeToken]
		record("tokenAllowList", repayOk && seizeOk,
			ifFail(!(repayOk && seizeOk), "repay or seize token not in allow-list"))
	} else {
		record("tokenAllowList", true, "")
	}

	balanceOk, balanceReason := m.checkSignerBalance(ctx, position, signer)
	record("signerBalance", balanceOk, balanceReason)

	hfOk, hfReason := m.recheckHealthFactor(position)
	record("healthFactorStillBelowThreshold", hfOk, hfReason)

	return types.RiskValidationResult{Allowed: allowed, Checks: checks}
}

func (m *Manager) checkSignerBalance(ctx context.Context, position types.Position, signer common.Address) (bool, string) {
	if position.RepayAmount == nil {
		return true, ""
	}

	var balance *big.Int
	var err error
	if m.cfg.NativeUnderlying[position.RepayToken] {
		balance, err = m.eth.BalanceAt(ctx, signer, nil)
	} else {
		balance, err = m.erc20Balance(position.RepayToken.Common(), signer)
	}
	if err != nil {
		return false, fmt.Sprintf("balance check failed: %v", err)
	}
	if balance.Cmp(position.RepayAmount) < 0 {
		return false, fmt.Sprintf("signer balance %s below required repay amount %s", balance, position.RepayAmount)
	}
	return true, ""
}

func (m *Manager) erc20Balance(token, holder common.Address) (*big.Int, error) {
	client := m.erc20Of(token)
	out, err := client.Call(nil, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("balanceOf: empty result")
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: unexpected return type")
	}
	return balance, nil
}

// recheckHealthFactor re-derives the borrower's health factor at the
// moment of execution, guarding against the window between poll and
// dispatch where the position may have been topped up or liquidated by
// someone else (spec §4.9 step 6).
func (m *Manager) recheckHealthFactor(position types.Position) (bool, string) {
	fresh, err := m.health.Compute(position.Borrower.Common())
	if err != nil {
		return false, fmt.Sprintf("health factor recheck failed: %v", err)
	}
	if fresh.HealthFactor >= m.cfg.MinHealthFactor {
		return false, fmt.Sprintf("health factor recovered to %.4f at execution time", fresh.HealthFactor)
	}
	return true, ""
}

func ifFail(failed bool, reason string) string {
	if failed {
		return reason
	}
	return ""
}
