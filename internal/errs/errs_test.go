package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationError_Unwrap(t *testing.T) {
	cause := errors.New("missing rpcUrl")
	err := NewConfigurationFieldError("rpcUrl", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "rpcUrl")
}

func TestIsCritical(t *testing.T) {
	assert.True(t, IsCritical(NewConfigurationError("bad config")))
	assert.True(t, IsCritical(NewNumericOverflowError(errors.New("overflow"))))
	assert.False(t, IsCritical(NewTransientChainError(errors.New("timeout"))))
	assert.False(t, IsCritical(NewPermanentChainError(errors.New("reverted"))))
	assert.False(t, IsCritical(NewRouteNotFoundError("USDT", "BNB")))
}

func TestClassifyChainError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, ClassifyChainError(nil))
	})

	t.Run("revert classifies as permanent", func(t *testing.T) {
		var perm *PermanentChainError
		err := ClassifyChainError(errors.New("execution reverted: insufficient shortfall"))
		assert.ErrorAs(t, err, &perm)
	})

	t.Run("nonce too low classifies as permanent", func(t *testing.T) {
		var perm *PermanentChainError
		err := ClassifyChainError(errors.New("nonce too low"))
		assert.ErrorAs(t, err, &perm)
	})

	t.Run("unrecognized error defaults to transient", func(t *testing.T) {
		var transient *TransientChainError
		err := ClassifyChainError(errors.New("connection reset by peer"))
		assert.ErrorAs(t, err, &transient)
	})
}

func TestRouteNotFoundError_Message(t *testing.T) {
	err := NewRouteNotFoundError("USDT", "BNB")
	assert.Contains(t, err.Error(), "USDT")
	assert.Contains(t, err.Error(), "BNB")
}
