package types

// SendMode selects the transaction envelope a ContractClient uses when
// broadcasting a state-changing call.
type SendMode int

const (
	// Standard sends an EIP-1559 dynamic-fee transaction.
	Standard SendMode = iota
	// Legacy sends a pre-EIP-1559 gas-price transaction, for chains/RPC
	// endpoints that reject type-2 envelopes.
	Legacy
)

// TxReceipt is the chain-agnostic receipt shape handed back by
// pkg/txlistener. Numeric fields are kept as hex/decimal strings, exactly
// as received over JSON-RPC, so callers decide how much precision they
// need instead of losing it to a premature int64 conversion.
type TxReceipt struct {
	TxHash            string
	BlockNumber       string
	BlockHash         string
	GasUsed           string
	EffectiveGasPrice string
	Status            string // "0x1" success, "0x0" reverted
	ContractAddress   string
	Logs              []TxLog
}

// TxLog is a single receipt log entry, decoded just enough to be
// re-encoded as JSON for ContractClient.ParseReceipt.
type TxLog struct {
	Address     string
	Topics      []string
	Data        string
	LogIndex    string
	BlockNumber string
	TxHash      string
}
