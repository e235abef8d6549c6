package util

import "math/big"

// Q96 is the fixed-point scale PancakeSwap V3 / Uniswap V3 use for
// sqrtPriceX96 (2^96).
var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// tickBasePrec is the big.Float precision (bits) at which 1.0001, the
// per-tick price ratio, is held so repeated multiplication in
// TickToSqrtPriceX96 doesn't drift.
const tickBasePrec = 160

// TickToSqrtPriceX96 converts a tick index to its Q96 sqrt-price,
// sqrt(1.0001^tick) * 2^96, by exponentiation-by-squaring over big.Float,
// rounding any fractional result up to the next integer.
func TickToSqrtPriceX96(tick int) *big.Int {
	base, _ := new(big.Float).SetPrec(tickBasePrec).SetString("1.0001")
	exp := tick
	neg := exp < 0
	if neg {
		exp = -exp
	}

	result := new(big.Float).SetPrec(tickBasePrec).SetInt64(1)
	sq := new(big.Float).SetPrec(tickBasePrec).Set(base)
	for exp > 0 {
		if exp&1 == 1 {
			result.Mul(result, sq)
		}
		sq.Mul(sq, sq)
		exp >>= 1
	}
	if neg {
		result.Quo(new(big.Float).SetPrec(tickBasePrec).SetInt64(1), result)
	}

	sqrtRatio := new(big.Float).SetPrec(tickBasePrec).Sqrt(result)
	scaled := new(big.Float).SetPrec(tickBasePrec).Mul(sqrtRatio, new(big.Float).SetInt(q96))

	out, acc := scaled.Int(nil)
	if acc == big.Below {
		out.Add(out, big.NewInt(1))
	}
	return out
}

// SqrtPriceToPrice converts a Q96 sqrtPriceX96 into the pool's raw
// token1-per-token0 price, (sqrtPriceX96 / 2^96)^2. No token-decimals
// adjustment is applied; the caller is responsible for it.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int) *big.Float {
	ratio := new(big.Float).SetPrec(tickBasePrec).Quo(
		new(big.Float).SetInt(sqrtPriceX96),
		new(big.Float).SetInt(q96),
	)
	return new(big.Float).SetPrec(tickBasePrec).Mul(ratio, ratio)
}
