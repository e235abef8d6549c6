package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransactionRecord tracks one on-chain call's gas accounting, rolled up
// into a LiquidationResult's Transactions slice. The Engine records only
// the successful liquidateBorrow call, with TxHash, GasCost, Timestamp
// and Operation set; approve and swap calls are not recorded.
type TransactionRecord struct {
	TxHash    common.Hash
	GasUsed   uint64
	GasPrice  *big.Int // effective gas price, wei
	GasCost   *big.Int // GasUsed * GasPrice, wei
	Timestamp time.Time
	Operation string // e.g. "approve", "liquidateBorrow", "exactInputSingle"
}

// LiquidationResult is the Liquidation Engine's per-position outcome
// (spec §4.11).
type LiquidationResult struct {
	Borrower     Address
	Mode         LiquidationMode
	Success      bool
	DryRun       bool
	NetProfitUsd float64
	GasCostUsd   float64
	RealizedUsd  float64
	Transactions []TransactionRecord
	SwapResult   *SwapResult
	ErrorMessage string
	Timestamp    time.Time
}

// EnginePhase is the Liquidation Engine's coarse lifecycle state.
type EnginePhase int

const (
	PhaseIdle EnginePhase = iota
	PhaseEvaluating
	PhaseExecuting
	PhaseHalted
)

func (p EnginePhase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseEvaluating:
		return "Evaluating"
	case PhaseExecuting:
		return "Executing"
	case PhaseHalted:
		return "Halted"
	default:
		return "Unknown"
	}
}

// EngineReport is one JSON-serializable lifecycle event emitted on the
// Engine's report channel: "position_found", "not_profitable",
// "risk_blocked", "liquidated", "swap_complete", "halt".
type EngineReport struct {
	Timestamp    time.Time    `json:"timestamp"`
	EventType    string       `json:"event_type"`
	Borrower     string       `json:"borrower,omitempty"`
	Message      string       `json:"message"`
	Phase        *EnginePhase `json:"phase,omitempty"`
	NetProfitUsd float64      `json:"net_profit_usd,omitempty"`
	GasCostUsd   float64      `json:"gas_cost_usd,omitempty"`
	Error        string       `json:"error,omitempty"`
}
