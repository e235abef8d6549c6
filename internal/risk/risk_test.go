package risk

import (
	"context"
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

type fakeERC20Client struct {
	balance *big.Int
}

func (f *fakeERC20Client) Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	return []interface{}{f.balance}, nil
}
func (f *fakeERC20Client) Send(mode types.SendMode, gasLimit *big.Int, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeERC20Client) Abi() *abi.ABI                   { return nil }
func (f *fakeERC20Client) ContractAddress() common.Address { return common.Address{} }
func (f *fakeERC20Client) ParseReceipt(receipt *types.TxReceipt) (string, error) {
	return "", nil
}
func (f *fakeERC20Client) TransactionData(hash common.Hash) ([]byte, error) { return nil, nil }
func (f *fakeERC20Client) DecodeTransaction(data []byte) (interface{}, error) {
	return nil, nil
}

var _ contractclient.ContractClient = (*fakeERC20Client)(nil)

type fakeHealthRechecker struct {
	healthFactor float64
	err          error
}

func (f *fakeHealthRechecker) Compute(borrower common.Address) (*types.Position, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.Position{Borrower: types.NewAddress(borrower), HealthFactor: f.healthFactor}, nil
}

func newTestManager(balance *big.Int, hf float64, cfg Config) *Manager {
	erc20Of := func(token common.Address) contractclient.ContractClient {
		return &fakeERC20Client{balance: balance}
	}
	return NewManager(cfg, nil, erc20Of, &fakeHealthRechecker{healthFactor: hf}, zerolog.Nop())
}

func testPosition() types.Position {
	return types.Position{
		Borrower:    types.ParseAddress("0x000000000000000000000000000000000000aa"),
		RepayToken:  types.ParseAddress("0x000000000000000000000000000000000000bb"),
		SeizeToken:  types.ParseAddress("0x000000000000000000000000000000000000cc"),
		RepayAmount: big.NewInt(100),
	}
}

func TestManager_Validate_AllChecksPass(t *testing.T) {
	m := newTestManager(big.NewInt(1000), 0.8, Config{
		MaxDailyLossUsd: 100,
		MaxGasPriceGwei: 10,
		MinHealthFactor: 1.0,
	})

	result := m.Validate(context.Background(), testPosition(), common.Address{}, 5, 3)
	assert.True(t, result.Allowed)
	for _, c := range result.Checks {
		assert.Truef(t, c.Passed, "check %q failed: %s", c.Name, c.Reason)
	}
}

func TestManager_Validate_EmergencyStopBlocks(t *testing.T) {
	m := newTestManager(big.NewInt(1000), 0.8, Config{MaxDailyLossUsd: 100, MaxGasPriceGwei: 10, MinHealthFactor: 1.0})
	m.TripEmergencyStop("operator halt")

	result := m.Validate(context.Background(), testPosition(), common.Address{}, 5, 3)
	assert.False(t, result.Allowed)
}

func TestManager_Validate_DailyLossCapBlocks(t *testing.T) {
	m := newTestManager(big.NewInt(1000), 0.8, Config{MaxDailyLossUsd: 10, MaxGasPriceGwei: 10, MinHealthFactor: 1.0})
	m.AddDailyLoss(8)

	result := m.Validate(context.Background(), testPosition(), common.Address{}, 5, 3)
	assert.False(t, result.Allowed)
}

func TestManager_Validate_GasCapBlocks(t *testing.T) {
	m := newTestManager(big.NewInt(1000), 0.8, Config{MaxDailyLossUsd: 100, MaxGasPriceGwei: 5, MinHealthFactor: 1.0})

	result := m.Validate(context.Background(), testPosition(), common.Address{}, 5, 50)
	assert.False(t, result.Allowed)
}

func TestManager_Validate_InsufficientBalanceBlocks(t *testing.T) {
	m := newTestManager(big.NewInt(1), 0.8, Config{MaxDailyLossUsd: 100, MaxGasPriceGwei: 10, MinHealthFactor: 1.0})

	result := m.Validate(context.Background(), testPosition(), common.Address{}, 5, 3)
	assert.False(t, result.Allowed)
}

func TestManager_Validate_HealthFactorRecoveredBlocks(t *testing.T) {
	m := newTestManager(big.NewInt(1000), 1.5, Config{MaxDailyLossUsd: 100, MaxGasPriceGwei: 10, MinHealthFactor: 1.0})

	result := m.Validate(context.Background(), testPosition(), common.Address{}, 5, 3)
	assert.False(t, result.Allowed)
}

func TestManager_ResetEmergencyStop(t *testing.T) {
	m := newTestManager(big.NewInt(1000), 0.8, Config{MaxDailyLossUsd: 100, MaxGasPriceGwei: 10, MinHealthFactor: 1.0})
	m.TripEmergencyStop("test")
	m.ResetEmergencyStop()

	result := m.Validate(context.Background(), testPosition(), common.Address{}, 5, 3)
	assert.True(t, result.Allowed)
}

func TestManager_ResetDailyLoss(t *testing.T) {
	m := newTestManager(big.NewInt(1000), 0.8, Config{MaxDailyLossUsd: 10, MaxGasPriceGwei: 10, MinHealthFactor: 1.0})
	m.AddDailyLoss(9)
	m.ResetDailyLoss()

	result := m.Validate(context.Background(), testPosition(), common.Address{}, 5, 3)
	assert.True(t, result.Allowed)
}
