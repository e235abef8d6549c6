// Package strategy implements the Liquidation Strategy (spec §4.10):
// STANDARD vs FLASH_LOAN mode selection based on live signer balances and
// relative profitability, with its own validation pass separate from the
// per-position risk checks in internal/risk.
package strategy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/venusbot/liquidator/internal/errs"
	"github.com/venusbot/liquidator/pkg/contractclient"
	"github.com/venusbot/liquidator/pkg/types"
)

// ERC20ClientFactory binds an ERC20 ABI to a token address, on demand.
type ERC20ClientFactory func(token common.Address) contractclient.ContractClient

type Config struct {
	UseFlashLoans           bool
	FlashLiquidatorContract common.Address
	NativeUnderlying        map[types.Address]bool // vToken markets whose underlying is native BNB
}

// Strategy selects the funding mode for a liquidation attempt.
type Strategy struct {
	cfg     Config
	eth     *ethclient.Client
	erc20Of ERC20ClientFactory
}

func NewStrategy(cfg Config, eth *ethclient.Client, erc20Of ERC20ClientFactory) *Strategy {
	return &Strategy{cfg: cfg, eth: eth, erc20Of: erc20Of}
}

// Validate implements spec §4.11 step 1: gates missing dependencies
// before any per-position work begins. A flash-loan configuration that
// enables useFlashLoans without a flashLiquidatorContract address is a
// ConfigurationError, not a per-position failure.
func (s *Strategy) Validate() error {
	if s.cfg.UseFlashLoans && s.cfg.FlashLiquidatorContract == (common.Address{}) {
		return errs.NewConfigurationFieldError("flashLiquidatorContract", fmt.Errorf("useFlashLoans is enabled but no flash liquidator contract is configured"))
	}
	return nil
}

// Select implements spec §4.10: STANDARD when the signer holds enough
// repay-token and standard nets at least as much profit as flash-loan
// mode would; FLASH_LOAN otherwise, provided it is actually available.
func (s *Strategy) Select(hasSufficientBalance bool, standardNetProfitUsd, flashLoanNetProfitUsd float64) (types.LiquidationMode, error) {
	if hasSufficientBalance && standardNetProfitUsd >= flashLoanNetProfitUsd {
		return types.ModeStandard, nil
	}

	flashLoansAvailable := s.cfg.UseFlashLoans && s.cfg.FlashLiquidatorContract != (common.Address{})
	if !flashLoansAvailable {
		if hasSufficientBalance {
			return types.ModeStandard, nil
		}
		return types.ModeStandard, fmt.Errorf("insufficient signer balance and flash loans are not configured")
	}

	return types.ModeFlashLoan, nil
}

// HasSufficientBalance checks whether signer holds at least repayAmount
// of the repay token, using native BNB balance for native-underlying
// markets and ERC20 balanceOf otherwise (spec §4.9's same check, reused
// here for mode selection).
func (s *Strategy) HasSufficientBalance(ctx context.Context, repayToken types.Address, repayAmount *big.Int, signer common.Address) (bool, error) {
	if repayAmount == nil {
		return true, nil
	}

	var balance *big.Int
	var err error
	if s.cfg.NativeUnderlying[repayToken] {
		balance, err = s.eth.BalanceAt(ctx, signer, nil)
	} else {
		balance, err = s.erc20Balance(repayToken.Common(), signer)
	}
	if err != nil {
		return false, err
	}
	return balance.Cmp(repayAmount) >= 0, nil
}

func (s *Strategy) erc20Balance(token, holder common.Address) (*big.Int, error) {
	client := s.erc20Of(token)
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
