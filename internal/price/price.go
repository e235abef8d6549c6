// Package price wraps the oracle contract behind the Price Service
// interface spec §6 names as a consumed external collaborator:
// getTokenPriceUsd, getUnderlyingDecimals, getBnbPriceUsd.
package price

import (
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/venusbot/liquidator/internal/errs"
	"github.com/venusbot/liquidator/pkg/contractclient"
	"github.com/venusbot/liquidator/pkg/types"
)

// priceCeiling is the sanity ceiling from spec §4.8/§7: an oracle read
// above this is treated as corrupt data, not a real price.
const priceCeiling = 1_000_000

// ERC20ClientFactory binds a generic ERC20 ABI to a token address, on
// demand, the first time its decimals are needed. The bot loads the ERC20
// ABI once at startup (it's also used by the Swap Executor for
// allowance/approve) and shares the factory across components.
type ERC20ClientFactory func(token common.Address) contractclient.ContractClient

// Service is the Price Service contract from spec §6.
type Service interface {
	GetTokenPriceUsd(addr common.Address) (float64, error)
	GetUnderlyingDecimals(addr common.Address) (uint8, error)
	GetBnbPriceUsd() (float64, error)
}

type oracleService struct {
	oracle  contractclient.ContractClient
	wbnb    common.Address
	erc20Of ERC20ClientFactory

	mu       sync.Mutex
	decimals map[types.Address]uint8
}

// NewOracleService builds a Price Service over a Venus-style
// ResilientOracle/PriceOracle contract exposing getUnderlyingPrice(vToken)
// plus an ERC20 client factory used to read decimals() per underlying.
func NewOracleService(oracle contractclient.ContractClient, wbnb common.Address, erc20Of ERC20ClientFactory) Service {
	return &oracleService{
		oracle:   oracle,
		wbnb:     wbnb,
		erc20Of:  erc20Of,
		decimals: make(map[types.Address]uint8),
	}
}

func (s *oracleService) GetTokenPriceUsd(addr common.Address) (float64, error) {
	out, err := s.oracle.Call(nil, "getUnderlyingPrice", addr)
	if err != nil {
		return 0, errs.ClassifyChainError(fmt.Errorf("getUnderlyingPrice(%s): %w", addr.Hex(), err))
	}
	if len(out) == 0 {
		return 0, errs.NewInvalidPriceDataError(addr.Hex(), 0)
	}
	mantissa, ok := out[0].(*big.Int)
	if !ok {
		return 0, errs.NewInvalidPriceDataError(addr.Hex(), 0)
	}

	// Venus oracle prices are scaled 1e18 / 10^(18 - underlyingDecimals);
	// callers apply the underlying-decimals adjustment themselves at the
	// USD boundary (spec §9), so this returns the raw 1e18-scaled USD
	// price per whole token unit.
	priceFloat := new(big.Float).Quo(new(big.Float).SetInt(mantissa), big.NewFloat(1e18))
	usd, _ := priceFloat.Float64()

	if err := validatePrice(addr.Hex(), usd); err != nil {
		return 0, err
	}
	return usd, nil
}

func (s *oracleService) GetUnderlyingDecimals(addr common.Address) (uint8, error) {
	key := types.NewAddress(addr)

	s.mu.Lock()
	if d, ok := s.decimals[key]; ok {
		s.mu.Unlock()
		return d, nil
	}
	s.mu.Unlock()

	if s.erc20Of == nil {
		return 0, fmt.Errorf("decimals(%s): no erc20 client factory configured", addr.Hex())
	}
	erc20 := s.erc20Of(addr)
	out, err := erc20.Call(nil, "decimals")
	if err != nil {
		return 0, errs.ClassifyChainError(fmt.Errorf("decimals(%s): %w", addr.Hex(), err))
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("decimals(%s): empty result", addr.Hex())
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals(%s): unexpected return type", addr.Hex())
	}

	s.mu.Lock()
	s.decimals[key] = d
	s.mu.Unlock()
	return d, nil
}

func (s *oracleService) GetBnbPriceUsd() (float64, error) {
	return s.GetTokenPriceUsd(s.wbnb)
}

func validatePrice(token string, usd float64) error {
	if math.IsNaN(usd) || math.IsInf(usd, 0) {
		return errs.NewInvalidPriceDataError(token, usd)
	}
	if usd <= 0 || usd > priceCeiling {
		return errs.NewInvalidPriceDataError(token, usd)
	}
	return nil
}
