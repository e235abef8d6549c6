package collateral

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/venusbot/liquidator/internal/priceimpact"
	"github.com/venusbot/liquidator/internal/swap"
	"github.com/venusbot/liquidator/pkg/contractclient"
	"github.com/venusbot/liquidator/pkg/types"
)

// fakeTokenClient satisfies contractclient.ContractClient for both the
// router and per-token ERC20 clients the Swap Executor needs.
type fakeTokenClient struct {
	address   common.Address
	allowance *big.Int
	lastSend  []interface{}
	lastMethod string
}

func (f *fakeTokenClient) Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	switch method {
	case "allowance":
		return []interface{}{f.allowance}, nil
	default:
		return []interface{}{big.NewInt(0)}, nil
	}
}

func (f *fakeTokenClient) Send(mode types.SendMode, gasLimit *big.Int, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
	f.lastMethod = method
	f.lastSend = args
	return common.HexToHash("0xaaaa"), nil
}
func (f *fakeTokenClient) Abi() *abi.ABI                   { return nil }
func (f *fakeTokenClient) ContractAddress() common.Address { return f.address }
func (f *fakeTokenClient) ParseReceipt(receipt *types.TxReceipt) (string, error) {
	return "", nil
}
func (f *fakeTokenClient) TransactionData(hash common.Hash) ([]byte, error) { return nil, nil }
func (f *fakeTokenClient) DecodeTransaction(data []byte) (interface{}, error) {
	return nil, nil
}

var _ contractclient.ContractClient = (*fakeTokenClient)(nil)

// fakeListener satisfies txlistener.TxListener with a successful, log-free
// receipt: enough for the Swap Executor's await step, AmountOut stays nil.
type fakeListener struct{}

func (fakeListener) WaitForTransaction(hash common.Hash) (*types.TxReceipt, error) {
	return &types.TxReceipt{Status: "0x1", GasUsed: "0x5208"}, nil
}
func (fakeListener) WaitForTransactionCtx(ctx context.Context, hash common.Hash) (*types.TxReceipt, error) {
	return &types.TxReceipt{Status: "0x1", GasUsed: "0x5208"}, nil
}

type fakePriceService struct {
	prices   map[common.Address]float64
	decimals map[common.Address]uint8
}

func (f *fakePriceService) GetTokenPriceUsd(addr common.Address) (float64, error) {
	return f.prices[addr], nil
}
func (f *fakePriceService) GetUnderlyingDecimals(addr common.Address) (uint8, error) {
	return f.decimals[addr], nil
}
func (f *fakePriceService) GetBnbPriceUsd() (float64, error) { return 300, nil }

var (
	wbnb = common.HexToAddress("0x000000000000000000000000000000000000b1")
	usdt = common.HexToAddress("0x000000000000000000000000000000000000d1")
)

func TestDispose_Hold(t *testing.T) {
	stats := &types.Stats{}
	mgr := NewManager(Config{Strategy: types.StrategyHold}, nil, nil, nil, stats)

	result, err := mgr.Dispose(wbnb, big.NewInt(1e18), 18)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestAutoSell_StablecoinPassthrough(t *testing.T) {
	stats := &types.Stats{}
	cfg := Config{Strategy: types.StrategyAutoSell, TargetStablecoin: usdt}
	mgr := NewManager(cfg, nil, nil, nil, stats)

	amount := big.NewInt(5_000_000) // 5 USDT at 6 decimals
	result, err := mgr.Dispose(usdt, amount, 6)
	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, amount, result.AmountOut)
}

// TestAutoSell_PreferredPath_DecimalsMismatch exercises the WBNB(18d) ->
// USDT(6d) decimals mismatch scenario spec §8 names, and asserts the
// Swap Executor receives a minAmountOut derived from the *target*
// token's decimals, not the seized token's.
func TestAutoSell_PreferredPath_DecimalsMismatch(t *testing.T) {
	stats := &types.Stats{}
	prices := &fakePriceService{
		prices:   map[common.Address]float64{wbnb: 300, usdt: 1},
		decimals: map[common.Address]uint8{wbnb: 18, usdt: 6},
	}

	pk, err := crypto.GenerateKey()
	assert.NoError(t, err)
	signer := crypto.PubkeyToAddress(pk.PublicKey)

	router := &fakeTokenClient{address: common.HexToAddress("0xr0"), allowance: big.NewInt(0)}
	wbnbToken := &fakeTokenClient{address: wbnb, allowance: new(big.Int).Lsh(big.NewInt(1), 200)}
	tokenOf := func(token common.Address) contractclient.ContractClient { return wbnbToken }

	executor := swap.NewExecutor(router, tokenOf, fakeListener{}, signer, pk, 50, zerolog.Nop())

	cfg := Config{
		Strategy:         types.StrategyConfigurable,
		TargetStablecoin: usdt,
		MaxSlippage:      0.01,
		MaxPriceImpact:   0.05,
		MinSwapAmountUsd: 1,
		TokenConfigs: map[types.Address]TokenConfig{
			types.NewAddress(wbnb): {Address: wbnb, AutoSell: true, PreferredSwapPath: []common.Address{wbnb, usdt}},
		},
	}
	mgr := NewManager(cfg, nil, executor, prices, stats)

	amount := new(big.Int).Mul(big.NewInt(10), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)) // 10 WBNB
	result, err := mgr.Dispose(wbnb, amount, 18)
	assert.NoError(t, err)
	assert.NotNil(t, result)
	assert.True(t, result.Success)

	assert.Equal(t, "exactInputSingle", router.lastMethod)
	gotMinOut, ok := router.lastSend[6].(*big.Int)
	assert.True(t, ok)

	wantMinOut := priceimpact.CalculateMinAmountOut(amount, 18, 6, 300, 1, 0.01)
	assert.Equal(t, wantMinOut, gotMinOut)

	// A buggy call (decimalsOut==decimalsIn) would scale minOut by 10^12
	// too high, which would fail this comparison.
	assert.NotEqual(t, priceimpact.CalculateMinAmountOut(amount, 18, 18, 300, 1, 0.01), gotMinOut)
}

func TestAutoSell_BelowMinSwapAmountUsd(t *testing.T) {
	stats := &types.Stats{}
	prices := &fakePriceService{
		prices:   map[common.Address]float64{wbnb: 300, usdt: 1},
		decimals: map[common.Address]uint8{wbnb: 18, usdt: 6},
	}
	cfg := Config{
		Strategy:         types.StrategyAutoSell,
		TargetStablecoin: usdt,
		MinSwapAmountUsd: 1_000_000,
	}
	mgr := NewManager(cfg, nil, nil, prices, stats)

	amount := big.NewInt(1e15) // tiny WBNB amount, well under the USD floor
	_, err := mgr.Dispose(wbnb, amount, 18)
	assert.Error(t, err)
}

func TestConfigurable_HoldsWhenAutoSellDisabled(t *testing.T) {
	stats := &types.Stats{}
	cfg := Config{
		Strategy: types.StrategyConfigurable,
		TokenConfigs: map[types.Address]TokenConfig{
			types.NewAddress(wbnb): {Address: wbnb, AutoSell: false},
		},
	}
	mgr := NewManager(cfg, nil, nil, nil, stats)

	result, err := mgr.Dispose(wbnb, big.NewInt(1e18), 18)
	assert.NoError(t, err)
	assert.Nil(t, result)
}
