package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// V3 fee tiers, in hundredths of a basis point, as exposed by PancakeSwap
// V3 / Uniswap V3 style factories.
const (
	FeeLow    uint32 = 100
	FeeMedium uint32 = 500
	FeeHigh   uint32 = 2500
)

// Route is an ordered V3 swap path (spec §3): path has length >= 2,
// fees has length len(path)-1.
type Route struct {
	Path        []common.Address
	Fees        []uint32
	ExpectedOut *big.Int
}

// Valid reports whether the path/fee-tier lengths are consistent
// (spec §6, §8: "decode(encode(path,fees)) = (path,fees) iff |path|=|fees|+1").
func (r *Route) Valid() bool {
	return len(r.Path) >= 2 && len(r.Fees) == len(r.Path)-1
}

// TokenIn / TokenOut are convenience accessors over the path endpoints.
func (r *Route) TokenIn() common.Address  { return r.Path[0] }
func (r *Route) TokenOut() common.Address { return r.Path[len(r.Path)-1] }

// SwapResult is the outcome of a Swap Executor call (spec §3). Amounts use
// nil to represent "undefined" (not zero) per spec §4.7's no-matching-logs
// case.
type SwapResult struct {
	Success     bool
	TxHash      *common.Hash
	AmountIn    *big.Int
	AmountOut   *big.Int
	TokenIn     common.Address
	TokenOut    common.Address
	GasUsed     *uint64
	// PriceImpact is a 6-decimal fixed-point display value (spec §9c):
	// sufficient for operator dashboards, never for trading decisions.
	PriceImpact *float64
	Error       string
}
