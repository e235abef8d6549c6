package swap

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func addr(hex string) common.Address {
	return common.HexToAddress(hex)
}

// TestV3Path_RoundTrip covers spec §8's universal invariant:
// decode(encode(path,fees)) = (path,fees) iff |path|=|fees|+1; else
// encode fails.
func TestV3Path_RoundTrip(t *testing.T) {
	t.Run("single hop", func(t *testing.T) {
		tokens := []common.Address{addr("0x1"), addr("0x2")}
		fees := []uint32{500}

		encoded, err := EncodeV3Path(tokens, fees)
		assert.NoError(t, err)

		gotTokens, gotFees, err := DecodeV3Path(encoded)
		assert.NoError(t, err)
		assert.Equal(t, tokens, gotTokens)
		assert.Equal(t, fees, gotFees)
	})

	t.Run("three hop path", func(t *testing.T) {
		// ETH -> WBNB -> USDT -> BUSD (spec §8 scenario 4).
		eth := addr("0x1111111111111111111111111111111111111111")
		wbnb := addr("0x2222222222222222222222222222222222222222")
		usdt := addr("0x3333333333333333333333333333333333333333")
		busd := addr("0x4444444444444444444444444444444444444444")
		tokens := []common.Address{eth, wbnb, usdt, busd}
		fees := []uint32{500, 500, 3000}

		encoded, err := EncodeV3Path(tokens, fees)
		assert.NoError(t, err)
		assert.Len(t, encoded, 4*20+3*3) // 89 bytes: four addresses and three 3-byte fees

		gotTokens, gotFees, err := DecodeV3Path(encoded)
		assert.NoError(t, err)
		assert.Equal(t, tokens, gotTokens)
		assert.Equal(t, fees, gotFees)
		assert.Equal(t, eth, gotTokens[0])
		assert.Equal(t, busd, gotTokens[len(gotTokens)-1])
	})

	t.Run("mismatched lengths refuse to encode", func(t *testing.T) {
		tokens := []common.Address{addr("0x1"), addr("0x2"), addr("0x3")}
		fees := []uint32{500} // want len(fees)+1 == 3, got 2

		_, err := EncodeV3Path(tokens, fees)
		assert.Error(t, err)
	})

	t.Run("malformed length refuses to decode", func(t *testing.T) {
		_, _, err := DecodeV3Path(make([]byte, 19)) // shorter than one address
		assert.Error(t, err)

		_, _, err = DecodeV3Path(make([]byte, 21)) // 1 extra byte past a clean hop boundary
		assert.Error(t, err)
	})
}

func TestApplyTolerance(t *testing.T) {
	quote := big.NewInt(1_000_000)
	out := applyTolerance(quote, 50) // 0.5% tolerance
	assert.Equal(t, int64(995_000), out.Int64())
}
