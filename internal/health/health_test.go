package health

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/venusbot/liquidator/pkg/contractclient"
	"github.com/venusbot/liquidator/pkg/types"
)

// fakeClient routes Call by method name, matching the ContractClient
// interface just enough to drive the Calculator's read-only call sequence.
type fakeClient struct {
	calls map[string][]interface{}
}

func (f *fakeClient) Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	out, ok := f.calls[method]
	if !ok {
		return nil, errUnconfiguredCall(method)
	}
	return out, nil
}
func (f *fakeClient) Send(mode types.SendMode, gasLimit *big.Int, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeClient) Abi() *abi.ABI                   { return nil }
func (f *fakeClient) ContractAddress() common.Address { return common.Address{} }
func (f *fakeClient) ParseReceipt(receipt *types.TxReceipt) (string, error) {
	return "", nil
}
func (f *fakeClient) TransactionData(hash common.Hash) ([]byte, error) { return nil, nil }
func (f *fakeClient) DecodeTransaction(data []byte) (interface{}, error) {
	return nil, nil
}

type unconfiguredCallError string

func (e unconfiguredCallError) Error() string { return "unconfigured call: " + string(e) }

func errUnconfiguredCall(method string) error { return unconfiguredCallError(method) }

var _ contractclient.ContractClient = (*fakeClient)(nil)

type fakePriceService struct {
	priceUsd float64
	decimals uint8
}

func (f *fakePriceService) GetTokenPriceUsd(addr common.Address) (float64, error) { return f.priceUsd, nil }
func (f *fakePriceService) GetUnderlyingDecimals(addr common.Address) (uint8, error) {
	return f.decimals, nil
}
func (f *fakePriceService) GetBnbPriceUsd() (float64, error) { return f.priceUsd, nil }

var market1 = common.HexToAddress("0x0000000000000000000000000000000000000a")
var underlying1 = common.HexToAddress("0x0000000000000000000000000000000000000b")

func newTestCalculator(liquidity, shortfall *big.Int, vTokenBalance, borrowBalance *big.Int) *Calculator {
	comptroller := &fakeClient{calls: map[string][]interface{}{
		"getAccountLiquidity": {big.NewInt(0), liquidity, shortfall},
		"getAssetsIn":         {[]common.Address{market1}},
	}}
	vToken := &fakeClient{calls: map[string][]interface{}{
		"getAccountSnapshot": {big.NewInt(0), vTokenBalance, borrowBalance, big.NewInt(2e17)},
		"underlying":         {underlying1},
	}}
	vTokenOf := func(market common.Address) contractclient.ContractClient { return vToken }
	prices := &fakePriceService{priceUsd: 1.0, decimals: 18}
	return NewCalculator(comptroller, vTokenOf, prices, zerolog.Nop())
}

func TestCompute_HealthyAccount_ZeroEverything(t *testing.T) {
	calc := newTestCalculator(big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0))
	pos, err := calc.Compute(common.HexToAddress("0x1"))
	assert.NoError(t, err)
	assert.Equal(t, 1.0, pos.HealthFactor)
}

func TestCompute_ShortfallAccount(t *testing.T) {
	// borrowBalance = 100e18 underlying units, price 1 USD, decimals 18 => debtUsd = 100
	shortfall := big.NewInt(0).Mul(big.NewInt(50), big.NewInt(1e18)) // $50 shortfall-equivalent wei
	calc := newTestCalculator(big.NewInt(0), shortfall, big.NewInt(0), bigEther(100))
	pos, err := calc.Compute(common.HexToAddress("0x1"))
	assert.NoError(t, err)
	assert.Less(t, pos.HealthFactor, 1.0)
	assert.Greater(t, pos.DebtValueUsd, 0.0)
}

func TestCompute_LiquidAccount(t *testing.T) {
	liquidity := big.NewInt(0).Mul(big.NewInt(200), big.NewInt(1e18))
	calc := newTestCalculator(liquidity, big.NewInt(0), bigEther(300), bigEther(100))
	pos, err := calc.Compute(common.HexToAddress("0x1"))
	assert.NoError(t, err)
	assert.Greater(t, pos.HealthFactor, 1.0)
}

func TestLiquidationIncentive_FallsBackOnReadFailure(t *testing.T) {
	comptroller := &fakeClient{calls: map[string][]interface{}{}}
	calc := &Calculator{comptroller: comptroller}
	assert.Equal(t, defaultLiquidationIncentive, calc.LiquidationIncentive())
}

func TestLiquidationIncentive_ReadsMantissa(t *testing.T) {
	comptroller := &fakeClient{calls: map[string][]interface{}{
		"liquidationIncentiveMantissa": {big.NewInt(0).Mul(big.NewInt(115), big.NewInt(1e16))}, // 1.15
	}}
	calc := &Calculator{comptroller: comptroller}
	assert.InDelta(t, 1.15, calc.LiquidationIncentive(), 1e-9)
}

func bigEther(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}
