// Package route implements the Route Optimizer (spec §4.5): direct and
// 2-hop V3 path discovery over PancakeSwap V3's factory/pool contracts,
// with pool-address memoization for the optimizer's lifetime.
package route

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/venusbot/liquidator/internal/errs"
	"github.com/venusbot/liquidator/pkg/contractclient"
	"github.com/venusbot/liquidator/pkg/types"
)

// feeTiers is the probe order from spec §4.5.
var feeTiers = []uint32{types.FeeLow, types.FeeMedium, types.FeeHigh}

type poolKey struct {
	tokenA, tokenB common.Address
	fee            uint32
}

// PoolClientFactory binds a V3 pool ABI to a pool address, on demand.
type PoolClientFactory func(pool common.Address) contractclient.ContractClient

// Optimizer chooses the best V3 swap path between two tokens.
type Optimizer struct {
	factory   contractclient.ContractClient
	poolOf    PoolClientFactory
	hubTokens []common.Address
	stats     *types.Stats

	mu       sync.Mutex
	poolAddr map[poolKey]common.Address // memoized getPool lookups; zero address = "no pool"
}

func NewOptimizer(factory contractclient.ContractClient, poolOf PoolClientFactory, hubTokens []common.Address, stats *types.Stats) *Optimizer {
	return &Optimizer{
		factory:   factory,
		poolOf:    poolOf,
		hubTokens: hubTokens,
		stats:     stats,
		poolAddr:  make(map[poolKey]common.Address),
	}
}

// FindBestRoute implements spec §4.5: probes direct routes across all
// three fee tiers and 2-hop routes via each configured hub (skipping
// hubs equal to either endpoint), returning the path with the largest
// expectedOut. Returns RouteNotFoundError if no pool exists anywhere.
func (o *Optimizer) FindBestRoute(tokenIn, tokenOut common.Address, amountIn *big.Int) (*types.Route, error) {
	var best *types.Route

	for _, fee := range feeTiers {
		pool, err := o.poolAddress(tokenIn, tokenOut, fee)
		if err != nil || pool == (common.Address{}) {
			continue
		}
		out, err := o.quoteSingleHop(pool, tokenIn, tokenOut, amountIn)
		if err != nil {
			continue
		}
		candidate := &types.Route{Path: []common.Address{tokenIn, tokenOut}, Fees: []uint32{fee}, ExpectedOut: out}
		best = betterOf(best, candidate)
	}

	for _, hub := range o.hubTokens {
		if hub == tokenIn || hub == tokenOut {
			continue
		}
		candidate, err := o.twoHopRoute(tokenIn, hub, tokenOut, amountIn)
		if err != nil {
			continue
		}
		best = betterOf(best, candidate)
	}

	if best == nil {
		return nil, errs.NewRouteNotFoundError(tokenIn.Hex(), tokenOut.Hex())
	}
	return best, nil
}

func (o *Optimizer) twoHopRoute(tokenIn, hub, tokenOut common.Address, amountIn *big.Int) (*types.Route, error) {
	feeIn, err := o.bestFeeTier(tokenIn, hub)
	if err != nil {
		return nil, err
	}
	poolIn, err := o.poolAddress(tokenIn, hub, feeIn)
	if err != nil || poolIn == (common.Address{}) {
		return nil, errs.NewRouteNotFoundError(tokenIn.Hex(), hub.Hex())
	}
	hubOut, err := o.quoteSingleHop(poolIn, tokenIn, hub, amountIn)
	if err != nil {
		return nil, err
	}

	feeOut, err := o.bestFeeTier(hub, tokenOut)
	if err != nil {
		return nil, err
	}
	poolOut, err := o.poolAddress(hub, tokenOut, feeOut)
	if err != nil || poolOut == (common.Address{}) {
		return nil, errs.NewRouteNotFoundError(hub.Hex(), tokenOut.Hex())
	}
	finalOut, err := o.quoteSingleHop(poolOut, hub, tokenOut, hubOut)
	if err != nil {
		return nil, err
	}

	return &types.Route{
		Path:        []common.Address{tokenIn, hub, tokenOut},
		Fees:        []uint32{feeIn, feeOut},
		ExpectedOut: finalOut,
	}, nil
}

// bestFeeTier picks the tier whose pool holds the largest liquidity(),
// defaulting to MEDIUM when no pool is decidable (spec §4.5).
func (o *Optimizer) bestFeeTier(tokenA, tokenB common.Address) (uint32, error) {
	var bestFee uint32 = types.FeeMedium
	var bestLiquidity *big.Int
	found := false

	for _, fee := range feeTiers {
		pool, err := o.poolAddress(tokenA, tokenB, fee)
		if err != nil || pool == (common.Address{}) {
			continue
		}
		client := o.poolOf(pool)
		out, err := client.Call(nil, "liquidity")
		if err != nil || len(out) == 0 {
			continue
		}
		liquidity, ok := out[0].(*big.Int)
		if !ok {
			continue
		}
		if !found || liquidity.Cmp(bestLiquidity) > 0 {
			bestLiquidity = liquidity
			bestFee = fee
			found = true
		}
	}
	return bestFee, nil
}

// poolAddress memoizes factory.getPool(tokenIn, tokenOut, fee) for the
// life of the Optimizer (spec §4.5).
func (o *Optimizer) poolAddress(tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	key := canonicalPoolKey(tokenA, tokenB, fee)

	o.mu.Lock()
	if addr, ok := o.poolAddr[key]; ok {
		o.mu.Unlock()
		o.stats.RecordRouteCache(true)
		return addr, nil
	}
	o.mu.Unlock()
	o.stats.RecordRouteCache(false)

	out, err := o.factory.Call(nil, "getPool", tokenA, tokenB, fee)
	if err != nil {
		return common.Address{}, errs.ClassifyChainError(fmt.Errorf("getPool(%s,%s,%d): %w", tokenA.Hex(), tokenB.Hex(), fee, err))
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("getPool: empty result")
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("getPool: unexpected return type")
	}

	o.mu.Lock()
	o.poolAddr[key] = addr
	o.mu.Unlock()
	return addr, nil
}

func canonicalPoolKey(tokenA, tokenB common.Address, fee uint32) poolKey {
	if tokenA.Hex() > tokenB.Hex() {
		tokenA, tokenB = tokenB, tokenA
	}
	return poolKey{tokenA: tokenA, tokenB: tokenB, fee: fee}
}

// quoteSingleHop calls the pool's staticcall-equivalent quote path. The
// real router exposes this via exactInputSingle with callStatic
// semantics (spec §4.5); here it is delegated to the pool client's Call,
// which the chain client binds as an eth_call (no state change).
func (o *Optimizer) quoteSingleHop(pool, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	client := o.poolOf(pool)
	out, err := client.Call(nil, "quoteExactInputSingle", tokenIn, tokenOut, amountIn)
	if err != nil {
		return nil, errs.ClassifyChainError(fmt.Errorf("quoteExactInputSingle: %w", err))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("quoteExactInputSingle: empty result")
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("quoteExactInputSingle: unexpected return type")
	}
	return amountOut, nil
}

func betterOf(current, candidate *types.Route) *types.Route {
	if current == nil {
		return candidate
	}
	if candidate.ExpectedOut.Cmp(current.ExpectedOut) > 0 {
		return candidate
	}
	return current
}
