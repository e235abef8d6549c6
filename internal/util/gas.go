package util

import (
	"fmt"
	"math/big"

	"github.com/venusbot/liquidator/pkg/types"
)

// ExtractGasCost computes effectiveGasPrice * gasUsed in wei from a
// TxReceipt, reproducing the teacher's repeated
// `gasPrice.SetString(receipt.EffectiveGasPrice, 0); gasPrice.Mul(...)`
// call sites (blackhole.go) as a single reusable helper.
func ExtractGasCost(receipt *types.TxReceipt) (*big.Int, error) {
	if receipt == nil {
		return nil, fmt.Errorf("extract gas cost: receipt is nil")
	}

	gasPrice, ok := new(big.Int).SetString(receipt.EffectiveGasPrice, 0)
	if !ok {
		return nil, fmt.Errorf("extract gas cost: invalid effective gas price %q", receipt.EffectiveGasPrice)
	}
	gasUsed, ok := new(big.Int).SetString(receipt.GasUsed, 0)
	if !ok {
		return nil, fmt.Errorf("extract gas cost: invalid gas used %q", receipt.GasUsed)
	}

	return new(big.Int).Mul(gasPrice, gasUsed), nil
}
