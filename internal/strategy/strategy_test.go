package strategy

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/venusbot/liquidator/pkg/types"
)

func TestStrategy_Validate(t *testing.T) {
	t.Run("flash loans disabled needs no contract", func(t *testing.T) {
		s := NewStrategy(Config{UseFlashLoans: false}, nil, nil)
		assert.NoError(t, s.Validate())
	})

	t.Run("flash loans enabled without contract is a configuration error", func(t *testing.T) {
		s := NewStrategy(Config{UseFlashLoans: true}, nil, nil)
		assert.Error(t, s.Validate())
	})

	t.Run("flash loans enabled with contract is valid", func(t *testing.T) {
		s := NewStrategy(Config{
			UseFlashLoans:           true,
			FlashLiquidatorContract: common.HexToAddress("0x00000000000000000000000000000000000001"),
		}, nil, nil)
		assert.NoError(t, s.Validate())
	})
}

func TestStrategy_Select(t *testing.T) {
	flashCfg := Config{UseFlashLoans: true, FlashLiquidatorContract: common.HexToAddress("0x1")}
	noFlashCfg := Config{UseFlashLoans: false}

	t.Run("sufficient balance and standard at least as profitable picks standard", func(t *testing.T) {
		s := NewStrategy(flashCfg, nil, nil)
		mode, err := s.Select(true, 10, 5)
		assert.NoError(t, err)
		assert.Equal(t, types.ModeStandard, mode)
	})

	t.Run("insufficient balance falls back to flash loan when configured", func(t *testing.T) {
		s := NewStrategy(flashCfg, nil, nil)
		mode, err := s.Select(false, 10, 5)
		assert.NoError(t, err)
		assert.Equal(t, types.ModeFlashLoan, mode)
	})

	t.Run("standard less profitable than flash loan picks flash loan when configured", func(t *testing.T) {
		s := NewStrategy(flashCfg, nil, nil)
		mode, err := s.Select(true, 5, 10)
		assert.NoError(t, err)
		assert.Equal(t, types.ModeFlashLoan, mode)
	})

	t.Run("insufficient balance and no flash loans configured is an error", func(t *testing.T) {
		s := NewStrategy(noFlashCfg, nil, nil)
		_, err := s.Select(false, 10, 5)
		assert.Error(t, err)
	})

	t.Run("sufficient balance with no flash loans configured still picks standard", func(t *testing.T) {
		s := NewStrategy(noFlashCfg, nil, nil)
		mode, err := s.Select(true, 5, 10)
		assert.NoError(t, err)
		assert.Equal(t, types.ModeStandard, mode)
	})
}
