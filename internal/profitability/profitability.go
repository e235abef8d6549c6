// Package profitability implements the Profitability Calculator
// (spec §4.4): EIP-1559 gas pricing grounded on
// NimaZeighami-Flash-liquSwap-Sync's CalculateDynamicGasParams
// (retrieval-pack file 95e5e6ab), flash-loan fee math, and net-profit
// analysis at the USD boundary (spec §9).
package profitability

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"

	"github.com/venusbot/liquidator/internal/errs"
	"github.com/venusbot/liquidator/internal/price"
	"github.com/venusbot/liquidator/pkg/contractclient"
	"github.com/venusbot/liquidator/pkg/types"
)

// VTokenClientFactory binds a vToken ABI to a market address, mirroring
// internal/health's factory; it performs no caching of its own.
type VTokenClientFactory func(market common.Address) contractclient.ContractClient

// baseGasEstimate is the fallback gas unit count when estimateGas fails
// (spec §4.4 step 4).
const baseGasEstimate = 220_000

// flashLoanOverheadGas is the fixed extra gas budget for FLASH_LOAN mode
// (spec §4.4 step 5).
const flashLoanOverheadGas = 130_000

// bnbDecimals is BNB's native decimal count, used to convert the wei gas
// cost to a human BNB amount before pricing it in USD.
const bnbDecimals = 18

type Config struct {
	GasPriceMultiplier float64
	MaxGasPriceGwei    float64
	FlashLoanFeeBps    int64
}

// Calculator is the Profitability Calculator.
type Calculator struct {
	eth         *ethclient.Client
	comptroller contractclient.ContractClient
	vTokenOf    VTokenClientFactory
	signer      common.Address
	prices      price.Service
	cfg         Config
}

func NewCalculator(eth *ethclient.Client, comptroller contractclient.ContractClient, vTokenOf VTokenClientFactory, signer common.Address, prices price.Service, cfg Config) *Calculator {
	return &Calculator{eth: eth, comptroller: comptroller, vTokenOf: vTokenOf, signer: signer, prices: prices, cfg: cfg}
}

// EstimateGas implements spec §4.4's estimateGas(position, mode).
func (c *Calculator) EstimateGas(ctx context.Context, position types.Position, mode types.LiquidationMode) (*types.GasEstimate, error) {
	maxFeePerGas, maxPriorityFeePerGas, err := c.feeData(ctx)
	if err != nil {
		return nil, err
	}

	maxFeeGwei, _ := new(big.Float).Quo(new(big.Float).SetInt(maxFeePerGas), big.NewFloat(params.GWei)).Float64()
	if math.IsNaN(maxFeeGwei) || math.IsInf(maxFeeGwei, 0) {
		return nil, errs.NewNumericOverflowError(fmt.Errorf("gas price in gwei exceeds safe float64 range"))
	}
	if maxFeeGwei > c.cfg.MaxGasPriceGwei {
		return nil, errs.NewPermanentChainError(fmt.Errorf("gas price too high: %.2f gwei > cap %.2f gwei", maxFeeGwei, c.cfg.MaxGasPriceGwei))
	}

	maxFeePerGas = applyMultiplier(maxFeePerGas, c.cfg.GasPriceMultiplier)
	maxPriorityFeePerGas = applyMultiplier(maxPriorityFeePerGas, c.cfg.GasPriceMultiplier)

	gasUnits, err := c.estimateLiquidateBorrow(ctx, position)
	if err != nil {
		gasUnits = baseGasEstimate
	}
	if mode == types.ModeFlashLoan {
		gasUnits += flashLoanOverheadGas
	}

	costWei := new(big.Int).Mul(new(big.Int).SetUint64(gasUnits), maxFeePerGas)
	costUsd, err := c.weiToUsd(costWei)
	if err != nil {
		return nil, err
	}

	estimate := &types.GasEstimate{
		EstimatedGas:         gasUnits,
		MaxFeePerGas:         maxFeePerGas,
		MaxPriorityFeePerGas: maxPriorityFeePerGas,
		GasPriceGwei:         maxFeeGwei,
		EstimatedCostUsd:     costUsd,
	}
	if !estimate.Valid() {
		return nil, errs.NewNumericOverflowError(fmt.Errorf("gas estimate failed invariant check"))
	}
	return estimate, nil
}

// EstimateGasCostUsdForCandidate is the cheap variant from spec §4.4:
// fee-data only, no estimateGas call, used to rank candidates before
// committing to the full estimate.
func (c *Calculator) EstimateGasCostUsdForCandidate(ctx context.Context, mode types.LiquidationMode) (float64, error) {
	maxFeePerGas, _, err := c.feeData(ctx)
	if err != nil {
		return 0, err
	}
	maxFeePerGas = applyMultiplier(maxFeePerGas, c.cfg.GasPriceMultiplier)

	gasUnits := uint64(baseGasEstimate)
	if mode == types.ModeFlashLoan {
		gasUnits += flashLoanOverheadGas
	}
	costWei := new(big.Int).Mul(new(big.Int).SetUint64(gasUnits), maxFeePerGas)
	return c.weiToUsd(costWei)
}

// CalculateFlashLoanFee implements spec §4.4's flash-loan fee formula.
func (c *Calculator) CalculateFlashLoanFee(amount *big.Int, decimals uint8, priceUsd float64) (float64, error) {
	if math.IsNaN(priceUsd) || math.IsInf(priceUsd, 0) || priceUsd <= 0 {
		return 0, errs.NewInvalidPriceDataError("flash-loan-fee-input", priceUsd)
	}
	human := new(big.Float).Quo(new(big.Float).SetInt(amount), new(big.Float).SetFloat64(math.Pow10(int(decimals))))
	humanF, _ := human.Float64()
	if math.IsNaN(humanF) || math.IsInf(humanF, 0) {
		return 0, errs.NewNumericOverflowError(fmt.Errorf("flash loan amount overflowed float64"))
	}
	return humanF * priceUsd * float64(c.cfg.FlashLoanFeeBps) / 10_000, nil
}

// AnalyzeProfitability implements spec §4.4's analyzeProfitability,
// producing the invariant netProfitUsd = grossProfitUsd - gasCostUsd -
// flashLoanFeeUsd (spec §8).
func (c *Calculator) AnalyzeProfitability(position types.Position, mode types.LiquidationMode, gas *types.GasEstimate, flashLoanFeeUsd, minProfitUsd float64, signerHasSufficientBalance bool) types.ProfitabilityAnalysis {
	grossProfitUsd := position.EstimatedProfitUsd
	netProfitUsd := grossProfitUsd - gas.EstimatedCostUsd - flashLoanFeeUsd

	var margin float64
	if position.DebtValueUsd != 0 {
		margin = netProfitUsd / position.DebtValueUsd
	}

	recommended := mode
	if mode == types.ModeStandard && !signerHasSufficientBalance {
		recommended = types.ModeFlashLoan
	}

	return types.ProfitabilityAnalysis{
		GrossProfitUsd:  grossProfitUsd,
		GasCostUsd:      gas.EstimatedCostUsd,
		FlashLoanFeeUsd: flashLoanFeeUsd,
		NetProfitUsd:    netProfitUsd,
		ProfitMargin:    margin,
		IsProfitable:    netProfitUsd >= minProfitUsd,
		RecommendedMode: recommended,
	}
}

// estimateLiquidateBorrow runs eth_estimateGas against the repay vToken's
// liquidateBorrow(borrower, repayAmount, vTokenCollateral) (spec §4.4
// step 4), falling back to baseGasEstimate on any failure.
func (c *Calculator) estimateLiquidateBorrow(ctx context.Context, position types.Position) (uint64, error) {
	if c.vTokenOf == nil {
		return 0, fmt.Errorf("estimateGas: no vToken client factory configured")
	}
	repayMarket := position.RepayToken.Common()
	seizeMarket := position.SeizeToken.Common()
	vToken := c.vTokenOf(repayMarket)

	input, err := vToken.Abi().Pack("liquidateBorrow", position.Borrower.Common(), position.RepayAmount, seizeMarket)
	if err != nil {
		return 0, fmt.Errorf("pack liquidateBorrow: %w", err)
	}

	to := repayMarket
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.signer, To: &to, Data: input})
	if err != nil {
		return 0, errs.ClassifyChainError(fmt.Errorf("estimateGas liquidateBorrow: %w", err))
	}
	return gas, nil
}

// feeData fetches (baseFee, priorityFee) grounded on
// CalculateDynamicGasParams (retrieval-pack 95e5e6ab), returning
// maxFeePerGas = 2*baseFee + priorityFee and the raw priority fee.
func (c *Calculator) feeData(ctx context.Context) (*big.Int, *big.Int, error) {
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, errs.ClassifyChainError(fmt.Errorf("fetch head header: %w", err))
	}
	if head.BaseFee == nil {
		gasPrice, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return nil, nil, errs.ClassifyChainError(fmt.Errorf("suggest gas price: %w", err))
		}
		return gasPrice, gasPrice, nil
	}

	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, errs.ClassifyChainError(fmt.Errorf("suggest gas tip cap: %w", err))
	}
	maxFeePerGas := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	return maxFeePerGas, tip, nil
}

func applyMultiplier(wei *big.Int, multiplier float64) *big.Int {
	if multiplier <= 0 {
		multiplier = 1.0
	}
	scaled := new(big.Float).Mul(new(big.Float).SetInt(wei), big.NewFloat(multiplier))
	out, _ := scaled.Int(nil)
	return out
}

// weiToUsd converts a native-token wei cost to USD via the Price
// Service's getBnbPriceUsd, rejecting non-finite intermediates (spec §4.4
// step 7 / §7 NumericOverflowError).
func (c *Calculator) weiToUsd(costWei *big.Int) (float64, error) {
	bnbPrice, err := c.prices.GetBnbPriceUsd()
	if err != nil {
		return 0, err
	}

	human := new(big.Float).Quo(new(big.Float).SetInt(costWei), new(big.Float).SetFloat64(math.Pow10(bnbDecimals)))
	humanF, _ := human.Float64()
	if math.IsNaN(humanF) || math.IsInf(humanF, 0) {
		return 0, errs.NewNumericOverflowError(fmt.Errorf("gas cost in wei exceeds safe float64 range"))
	}

	usd := humanF * bnbPrice
	if math.IsNaN(usd) || math.IsInf(usd, 0) {
		return 0, errs.NewNumericOverflowError(fmt.Errorf("gas cost usd conversion is non-finite"))
	}
	return usd, nil
}
