// Package swap implements the Swap Executor (spec §4.7): V3 path
// encoding, pre-trade approval reuse grounded on the teacher's
// ensureApproval (blackhole.go), quote-derived minAmountOut, and
// post-trade Transfer-log delta extraction.
package swap

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/venusbot/liquidator/internal/errs"
	"github.com/venusbot/liquidator/pkg/contractclient"
	"github.com/venusbot/liquidator/pkg/txlistener"
	"github.com/venusbot/liquidator/pkg/types"
)

// swapDeadlineSeconds is the shared deadline applied to every swap
// (spec §4.8: "a shared 300-second swap deadline applies").
const swapDeadlineSeconds = 300

// toleranceBpsDenominator matches spec §4.7's minOut derivation:
// minOut = quote * (10_000 - toleranceBps) / 10_000.
const toleranceBpsDenominator = 10_000

// GasParams is the fee envelope the Liquidation Engine's transaction
// builder hands down to every on-chain call.
type GasParams struct {
	GasLimit             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// SingleHopParams are the inputs to executeSingleHopSwap.
type SingleHopParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Fee              uint32
	AmountIn         *big.Int
	AmountOutMinimum *big.Int // 0 means "derive from router quote"
	Recipient        common.Address
}

// Executor is the Swap Executor.
type Executor struct {
	router   contractclient.ContractClient
	tokenOf  func(common.Address) contractclient.ContractClient
	listener txlistener.TxListener
	signer   common.Address
	pk       *ecdsa.PrivateKey
	toleranceBps int64
	log      zerolog.Logger
}

func NewExecutor(router contractclient.ContractClient, tokenOf func(common.Address) contractclient.ContractClient, listener txlistener.TxListener, signer common.Address, pk *ecdsa.PrivateKey, toleranceBps int64, log zerolog.Logger) *Executor {
	return &Executor{router: router, tokenOf: tokenOf, listener: listener, signer: signer, pk: pk, toleranceBps: toleranceBps, log: log.With().Str("component", "swap_executor").Logger()}
}

// EncodeV3Path implements spec §4.7's path encoding:
// address(20) || fee(3) per hop, then the final address(20). Fails fast
// if |tokens| != |fees|+1.
func EncodeV3Path(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) != len(fees)+1 {
		return nil, fmt.Errorf("encode v3 path: |tokens|=%d must equal |fees|+1=%d", len(tokens), len(fees)+1)
	}
	out := make([]byte, 0, len(tokens)*20+len(fees)*3)
	for i, fee := range fees {
		out = append(out, tokens[i].Bytes()...)
		out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
	}
	out = append(out, tokens[len(tokens)-1].Bytes()...)
	return out, nil
}

// DecodeV3Path is the inverse of EncodeV3Path, used by tests to assert
// the round-trip property from spec §8.
func DecodeV3Path(encoded []byte) ([]common.Address, []uint32, error) {
	const hopSize = 23
	if len(encoded) < 20 || (len(encoded)-20)%hopSize != 0 {
		return nil, nil, fmt.Errorf("decode v3 path: malformed length %d", len(encoded))
	}
	numHops := (len(encoded) - 20) / hopSize

	tokens := make([]common.Address, 0, numHops+1)
	fees := make([]uint32, 0, numHops)
	offset := 0
	for i := 0; i < numHops; i++ {
		tokens = append(tokens, common.BytesToAddress(encoded[offset:offset+20]))
		fee := uint32(encoded[offset+20])<<16 | uint32(encoded[offset+21])<<8 | uint32(encoded[offset+22])
		fees = append(fees, fee)
		offset += hopSize
	}
	tokens = append(tokens, common.BytesToAddress(encoded[offset:offset+20]))
	return tokens, fees, nil
}

// ExecuteSingleHopSwap implements spec §4.7. On any failure it returns a
// SwapResult{Success:false,...} rather than propagating an error.
func (e *Executor) ExecuteSingleHopSwap(params SingleHopParams, gas GasParams) *types.SwapResult {
	if err := e.ensureApproval(params.TokenIn, params.AmountIn); err != nil {
		return failure(params.TokenIn, params.TokenOut, params.AmountIn, err)
	}

	minOut, err := e.deriveMinOut(params.TokenIn, params.TokenOut, params.Fee, params.AmountIn, params.AmountOutMinimum)
	if err != nil {
		minOut = params.AmountOutMinimum // fall back to caller-provided minimum, possibly 0 (spec §4.7)
	}

	deadline := deadlineFromNow()
	txHash, err := e.router.Send(
		types.Standard,
		gas.GasLimit,
		&e.signer,
		e.pk,
		"exactInputSingle",
		params.TokenIn, params.TokenOut, params.Fee, params.Recipient, deadline, params.AmountIn, minOut, big.NewInt(0),
	)
	if err != nil {
		return failure(params.TokenIn, params.TokenOut, params.AmountIn, err)
	}

	return e.awaitAndExtract(txHash, params.TokenIn, params.TokenOut, params.AmountIn)
}

// ExecuteMultiHopSwap implements spec §4.7's multi-hop variant using
// exactInput over an encoded path.
func (e *Executor) ExecuteMultiHopSwap(path []common.Address, fees []uint32, amountIn, amountOutMinimum *big.Int, gas GasParams, recipient common.Address) *types.SwapResult {
	tokenIn, tokenOut := path[0], path[len(path)-1]

	if err := e.ensureApproval(tokenIn, amountIn); err != nil {
		return failure(tokenIn, tokenOut, amountIn, err)
	}

	encoded, err := EncodeV3Path(path, fees)
	if err != nil {
		return failure(tokenIn, tokenOut, amountIn, err)
	}

	minOut := amountOutMinimum
	if minOut == nil || minOut.Sign() == 0 {
		if quote, err := e.estimateMultiHopOutput(encoded, amountIn); err == nil {
			minOut = applyTolerance(quote, e.toleranceBps)
		} else {
			minOut = big.NewInt(0)
		}
	}

	deadline := deadlineFromNow()
	txHash, err := e.router.Send(
		types.Standard,
		gas.GasLimit,
		&e.signer,
		e.pk,
		"exactInput",
		encoded, recipient, deadline, amountIn, minOut,
	)
	if err != nil {
		return failure(tokenIn, tokenOut, amountIn, err)
	}

	return e.awaitAndExtract(txHash, tokenIn, tokenOut, amountIn)
}

// EstimateSwapOutput calls the router's quoteExactInputSingle (with a
// zero price limit) as a read-only call, without broadcasting.
func (e *Executor) EstimateSwapOutput(tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	out, err := e.router.Call(&e.signer, "quoteExactInputSingle", tokenIn, tokenOut, fee, amountIn, big.NewInt(0))
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

func (e *Executor) deriveMinOut(tokenIn, tokenOut common.Address, fee uint32, amountIn, explicitMin *big.Int) (*big.Int, error) {
	if explicitMin != nil && explicitMin.Sign() > 0 {
		return explicitMin, nil
	}
	quote, err := e.EstimateSwapOutput(tokenIn, tokenOut, fee, amountIn)
	if err != nil {
		return nil, err
	}
	return applyTolerance(quote, e.toleranceBps), nil
}

func (e *Executor) estimateMultiHopOutput(encodedPath []byte, amountIn *big.Int) (*big.Int, error) {
	out, err := e.router.Call(&e.signer, "quoteExactInput", encodedPath, amountIn)
	if err != nil {
		return nil, errs.ClassifyChainError(fmt.Errorf("quoteExactInput: %w", err))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("quoteExactInput: empty result")
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("quoteExactInput: unexpected return type")
	}
	return amountOut, nil
}

// ensureApproval mirrors the teacher's blackhole.go ensureApproval:
// reuse existing allowance when sufficient, else send a fresh approve.
func (e *Executor) ensureApproval(token common.Address, requiredAmount *big.Int) error {
	tokenClient := e.tokenOf(token)

	out, err := tokenClient.Call(&e.signer, "allowance", e.signer, e.router.ContractAddress())
	if err != nil {
		return fmt.Errorf("check allowance: %w", err)
	}
	currentAllowance, ok := out[0].(*big.Int)
	if !ok {
		return fmt.Errorf("check allowance: unexpected return type")
	}
	if currentAllowance.Cmp(requiredAmount) >= 0 {
		return nil
	}

	txHash, err := tokenClient.Send(types.Standard, nil, &e.signer, e.pk, "approve", e.router.ContractAddress(), requiredAmount)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	if _, err := e.listener.WaitForTransaction(txHash); err != nil {
		return fmt.Errorf("await approval: %w", err)
	}
	return nil
}

// awaitAndExtract waits for the swap transaction and extracts the
// signer's net tokenOut delta from Transfer logs (spec §4.7): positive
// delta is amountOut; no matching logs leaves AmountOut nil (undefined,
// not an error).
func (e *Executor) awaitAndExtract(txHash common.Hash, tokenIn, tokenOut common.Address, amountIn *big.Int) *types.SwapResult {
	receipt, err := e.listener.WaitForTransaction(txHash)
	if err != nil {
		return failure(tokenIn, tokenOut, amountIn, err)
	}
	if receipt.Status != "0x1" {
		return failure(tokenIn, tokenOut, amountIn, fmt.Errorf("swap transaction reverted"))
	}

	gasUsed := parseGasUsed(receipt.GasUsed)
	result := &types.SwapResult{
		Success:   true,
		TxHash:    hashPtr(txHash),
		AmountIn:  amountIn,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		GasUsed:   &gasUsed,
	}

	amountOut, ok := netTransferDelta(tokenOut, e.signer, receipt)
	if ok {
		result.AmountOut = amountOut
	}
	return result
}

func failure(tokenIn, tokenOut common.Address, amountIn *big.Int, err error) *types.SwapResult {
	return &types.SwapResult{
		Success:  false,
		AmountIn: amountIn,
		TokenIn:  tokenIn,
		TokenOut: tokenOut,
		Error:    err.Error(),
	}
}

func applyTolerance(quote *big.Int, toleranceBps int64) *big.Int {
	minOut := new(big.Int).Mul(quote, big.NewInt(toleranceBpsDenominator-toleranceBps))
	return minOut.Div(minOut, big.NewInt(toleranceBpsDenominator))
}

func deadlineFromNow() *big.Int {
	return big.NewInt(time.Now().Unix() + swapDeadlineSeconds)
}

func hashPtr(h common.Hash) *common.Hash { return &h }

func parseGasUsed(s string) uint64 {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return 0
	}
	return v.Uint64()
}

// transferTopic is keccak256("Transfer(address,address,uint256)"), the
// canonical topic hash spec §6 names.
var transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// netTransferDelta sums the token's ERC20 Transfer logs in receipt into
// signer's net balance change; ok is false when no such log was found or
// the net change is not positive.
func netTransferDelta(token, signer common.Address, receipt *types.TxReceipt) (*big.Int, bool) {
	delta := big.NewInt(0)
	found := false

	for _, l := range receipt.Logs {
		if !sameAddress(l.Address, token) {
			continue
		}
		if len(l.Topics) < 3 || l.Topics[0] != transferTopic.Hex() {
			continue
		}
		from := common.HexToAddress(l.Topics[1])
		to := common.HexToAddress(l.Topics[2])
		value := parseHexBigInt(l.Data)
		if value == nil {
			continue
		}
		found = true
		if to == signer {
			delta.Add(delta, value)
		}
		if from == signer {
			delta.Sub(delta, value)
		}
	}

	if !found || delta.Sign() <= 0 {
		return nil, false
	}
	return delta, true
}

func sameAddress(hex string, addr common.Address) bool {
	return common.HexToAddress(hex) == addr
}

func parseHexBigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil
	}
	return v
}
