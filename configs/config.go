// Package configs loads the bot's YAML configuration, grounded on the
// teacher's config.go: the same os.ReadFile + yaml.v3 Unmarshal shape and
// the same pattern of To*Config conversion methods that turn flat YAML
// data into each internal package's own Config struct.
package configs

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/venusbot/liquidator/internal/collateral"
	"github.com/venusbot/liquidator/internal/engine"
	"github.com/venusbot/liquidator/internal/errs"
	"github.com/venusbot/liquidator/internal/execution"
	"github.com/venusbot/liquidator/internal/position"
	"github.com/venusbot/liquidator/internal/profitability"
	"github.com/venusbot/liquidator/internal/risk"
	"github.com/venusbot/liquidator/internal/strategy"
	"github.com/venusbot/liquidator/pkg/types"
)

// ContractClientYAMLData names one contract's deployed address and ABI
// artifact path, the same shape the teacher uses for its contract_client
// map.
type ContractClientYAMLData struct {
	Address string `yaml:"address"`
	ABI     string `yaml:"abi"`
}

// TokenYAMLData is one entry of collateralSwap.tokenConfigs.
type TokenYAMLData struct {
	Address            string `yaml:"address"`
	Symbol             string `yaml:"symbol"`
	Decimals           uint8  `yaml:"decimals"`
	IsStablecoin       bool   `yaml:"isStablecoin"`
	AutoSell           bool   `yaml:"autoSell"`
	PreferredSwapPath  string `yaml:"preferredSwapPath,omitempty"`
	NativeUnderlying   bool   `yaml:"nativeUnderlying,omitempty"`
}

type VenusYAMLData struct {
	Comptroller string `yaml:"comptroller"`
	Oracle      string `yaml:"oracle"`
}

type DexYAMLData struct {
	PancakeswapRouter  string `yaml:"pancakeswapRouter"`
	PancakeswapV3Factory string `yaml:"pancakeswapV3Factory"`
}

type ExecutionYAMLData struct {
	IntervalMs        int64 `yaml:"intervalMs"`
	MaxRetries        int   `yaml:"maxRetries"`
	BaseRetryDelayMs  int64 `yaml:"baseRetryDelayMs"`
	MaxRetryDelayMs   int64 `yaml:"maxRetryDelayMs"`
	SuccessCooldownMs int64 `yaml:"successCooldownMs"`
}

type CollateralSwapYAMLData struct {
	TargetStablecoins []string          `yaml:"targetStablecoins"`
	TokenConfigs      []TokenYAMLData   `yaml:"tokenConfigs"`
	MaxSlippage       float64           `yaml:"maxSlippage"`
	MaxPriceImpact    float64           `yaml:"maxPriceImpact"`
	MinSwapAmountUsd  float64           `yaml:"minSwapAmountUsd"`
}

// Config mirrors spec's recognized-options list for the bot's YAML file.
type Config struct {
	RPCUrl     string `yaml:"rpcUrl"`
	ChainID    int64  `yaml:"chainId"`
	PrivateKey string `yaml:"privateKey"`

	MinProfitUsd       float64 `yaml:"minProfitUsd"`
	MinPositionSizeUsd float64 `yaml:"minPositionSizeUsd"`
	MaxPositionSizeUsd float64 `yaml:"maxPositionSizeUsd"`

	GasPriceMultiplier float64 `yaml:"gasPriceMultiplier"`
	MaxGasPriceGwei    float64 `yaml:"maxGasPriceGwei"`

	UseFlashLoans           bool   `yaml:"useFlashLoans"`
	FlashLoanFeeBps         int64  `yaml:"flashLoanFeeBps"`
	FlashLiquidatorContract string `yaml:"flashLiquidatorContract"`

	CollateralStrategy  string  `yaml:"collateralStrategy"`
	SlippageTolerance   float64 `yaml:"slippageTolerance"`
	MinSwapAmountUsd    float64 `yaml:"minSwapAmountUsd"`
	MaxPriceImpact      float64 `yaml:"maxPriceImpact"`
	PreferredStablecoin string  `yaml:"preferredStablecoin"`

	PollingIntervalMs      int64   `yaml:"pollingIntervalMs"`
	MinHealthFactor        float64 `yaml:"minHealthFactor"`
	HealthyPollsBeforeDrop int     `yaml:"healthyPollsBeforeDrop"`
	MaxDailyLossUsd        float64 `yaml:"maxDailyLossUsd"`

	Venus     VenusYAMLData     `yaml:"venus"`
	Dex       DexYAMLData       `yaml:"dex"`
	Execution ExecutionYAMLData `yaml:"execution"`

	CollateralSwap CollateralSwapYAMLData `yaml:"collateralSwap"`

	ContractClient map[string]ContractClientYAMLData `yaml:"contractClient"`

	DryRun bool `yaml:"dryRun"`
}

// LoadConfig reads and parses a YAML file into a Config, the same
// read-then-unmarshal shape as the teacher's LoadConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if config.HealthyPollsBeforeDrop <= 0 {
		return nil, errs.NewConfigurationFieldError("healthyPollsBeforeDrop", fmt.Errorf("must be a positive integer"))
	}
	return &config, nil
}

func (c *Config) nativeUnderlying() map[types.Address]bool {
	out := make(map[types.Address]bool)
	for _, t := range c.CollateralSwap.TokenConfigs {
		if t.NativeUnderlying {
			out[types.ParseAddress(t.Address)] = true
		}
	}
	return out
}

// ToEngineConfig builds the Liquidation Engine's Config from the flat
// YAML fields.
func (c *Config) ToEngineConfig() engine.Config {
	return engine.Config{
		MinProfitUsd:       c.MinProfitUsd,
		MinPositionSizeUsd: c.MinPositionSizeUsd,
		MaxPositionSizeUsd: c.MaxPositionSizeUsd,
		DryRun:             c.DryRun,
		ErrorWindow:        5 * time.Minute,
		ErrorThreshold:      5,
	}
}

// ToRiskConfig builds the Risk Manager's Config.
func (c *Config) ToRiskConfig() risk.Config {
	return risk.Config{
		MaxDailyLossUsd:  c.MaxDailyLossUsd,
		MaxGasPriceGwei:  c.MaxGasPriceGwei,
		MinHealthFactor:  c.MinHealthFactor,
		NativeUnderlying: c.nativeUnderlying(),
	}
}

// ToStrategyConfig builds the Liquidation Strategy's Config.
func (c *Config) ToStrategyConfig() strategy.Config {
	return strategy.Config{
		UseFlashLoans:           c.UseFlashLoans,
		FlashLiquidatorContract: common.HexToAddress(c.FlashLiquidatorContract),
		NativeUnderlying:        c.nativeUnderlying(),
	}
}

// ToPositionConfig builds the Position Tracker's Config.
func (c *Config) ToPositionConfig() position.Config {
	return position.Config{
		HealthyPollsBeforeDrop: c.HealthyPollsBeforeDrop,
		MinHealthFactor:        c.MinHealthFactor,
		MinPositionSizeUsd:     c.MinPositionSizeUsd,
	}
}

// ToProfitabilityConfig builds the Profitability Calculator's Config.
func (c *Config) ToProfitabilityConfig() profitability.Config {
	return profitability.Config{
		GasPriceMultiplier: c.GasPriceMultiplier,
		MaxGasPriceGwei:    c.MaxGasPriceGwei,
		FlashLoanFeeBps:    c.FlashLoanFeeBps,
	}
}

// ToExecutionConfig builds the Execution Service's Config.
func (c *Config) ToExecutionConfig() execution.Config {
	return execution.Config{
		Interval:        time.Duration(c.Execution.IntervalMs) * time.Millisecond,
		MaxRetries:      c.Execution.MaxRetries,
		BaseRetryDelay:  time.Duration(c.Execution.BaseRetryDelayMs) * time.Millisecond,
		MaxRetryDelay:   time.Duration(c.Execution.MaxRetryDelayMs) * time.Millisecond,
		SuccessCooldown: time.Duration(c.Execution.SuccessCooldownMs) * time.Millisecond,
	}
}

// ToCollateralConfig builds the Collateral Manager's Config, resolving
// token configs and the collateral strategy enum from YAML strings.
func (c *Config) ToCollateralConfig() collateral.Config {
	strategyEnum := types.ParseCollateralStrategy(c.CollateralStrategy)

	tokenConfigs := make(map[types.Address]collateral.TokenConfig, len(c.CollateralSwap.TokenConfigs))
	for _, t := range c.CollateralSwap.TokenConfigs {
		var path []common.Address
		if t.PreferredSwapPath != "" {
			path = []common.Address{common.HexToAddress(t.PreferredSwapPath)}
		}
		tokenConfigs[types.ParseAddress(t.Address)] = collateral.TokenConfig{
			Address:            common.HexToAddress(t.Address),
			Symbol:             t.Symbol,
			Decimals:           t.Decimals,
			IsStablecoin:       t.IsStablecoin,
			AutoSell:           t.AutoSell,
			PreferredSwapPath:  path,
		}
	}

	target := common.HexToAddress(c.PreferredStablecoin)
	if len(c.CollateralSwap.TargetStablecoins) > 0 {
		target = common.HexToAddress(c.CollateralSwap.TargetStablecoins[0])
	}

	return collateral.Config{
		Strategy:         strategyEnum,
		TargetStablecoin: target,
		TokenConfigs:     tokenConfigs,
		MaxSlippage:      firstNonZero(c.CollateralSwap.MaxSlippage, c.SlippageTolerance),
		MaxPriceImpact:   firstNonZero(c.CollateralSwap.MaxPriceImpact, c.MaxPriceImpact),
		MinSwapAmountUsd: firstNonZero(c.CollateralSwap.MinSwapAmountUsd, c.MinSwapAmountUsd),
	}
}

func firstNonZero(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// ChainIDBig returns the configured chain ID as a *big.Int for signer
// construction.
func (c *Config) ChainIDBig() *big.Int {
	return big.NewInt(c.ChainID)
}
