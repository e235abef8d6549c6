// Package contractclient provides a thin, ABI-driven wrapper around
// ethclient.Client: one value per (contract address, ABI) pair, exposing
// read calls, signed sends, and receipt/calldata decoding without
// requiring a generated binding per contract.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/venusbot/liquidator/internal/errs"
	"github.com/venusbot/liquidator/pkg/types"
)

const defaultCallTimeout = 15 * time.Second

// ContractClient is the set of operations the rest of the module needs
// against a single deployed contract. Implementations must be safe for
// concurrent reads; Send is expected to be called from at most one
// goroutine per signer at a time (nonce management is not synchronized
// here).
type ContractClient interface {
	Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error)
	Send(mode types.SendMode, gasLimit *big.Int, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error)
	Abi() *abi.ABI
	ContractAddress() common.Address
	ParseReceipt(receipt *types.TxReceipt) (string, error)
	TransactionData(hash common.Hash) ([]byte, error)
	DecodeTransaction(data []byte) (interface{}, error)
}

type client struct {
	eth     *ethclient.Client
	address common.Address
	abi     *abi.ABI
	chainID *big.Int
	log     zerolog.Logger
}

// NewContractClient builds a ContractClient bound to one contract address
// and ABI, sharing the underlying ethclient.Client connection.
func NewContractClient(eth *ethclient.Client, address common.Address, contractABI *abi.ABI) ContractClient {
	return &client{
		eth:     eth,
		address: address,
		abi:     contractABI,
		log:     zerolog.Nop(),
	}
}

// NewContractClientWithLogger is NewContractClient with an explicit
// logger, for callers that want Send/Call diagnostics attributed to a
// named component.
func NewContractClientWithLogger(eth *ethclient.Client, address common.Address, contractABI *abi.ABI, logger zerolog.Logger) ContractClient {
	c := NewContractClient(eth, address, contractABI).(*client)
	c.log = logger.With().Str("contract", address.Hex()).Logger()
	return c
}

func (c *client) Abi() *abi.ABI             { return c.abi }
func (c *client) ContractAddress() common.Address { return c.address }

func (c *client) Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()

	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: input}
	if from != nil {
		msg.From = *from
	}

	out, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, errs.ClassifyChainError(fmt.Errorf("call %s on %s: %w", method, c.address.Hex(), err))
	}

	vals, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return vals, nil
}

func (c *client) Send(mode types.SendMode, gasLimit *big.Int, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
	if pk == nil {
		return common.Hash{}, errs.NewConfigurationError("contractclient: Send requires a non-nil private key")
	}
	if from == nil {
		return common.Hash{}, errs.NewConfigurationError("contractclient: Send requires a non-nil sender address")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()

	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}

	chainID, err := c.cachedChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := c.eth.PendingNonceAt(ctx, *from)
	if err != nil {
		return common.Hash{}, errs.ClassifyChainError(fmt.Errorf("nonce for %s: %w", from.Hex(), err))
	}

	gas := gasLimit
	if gas == nil {
		estimated, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: *from, To: &c.address, Data: input})
		if err != nil {
			return common.Hash{}, errs.ClassifyChainError(fmt.Errorf("estimate gas for %s: %w", method, err))
		}
		gas = new(big.Int).SetUint64(estimated + estimated/5) // 20% headroom
	}

	var tx *gethtypes.Transaction
	switch mode {
	case types.Legacy:
		gasPrice, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, errs.ClassifyChainError(fmt.Errorf("suggest gas price: %w", err))
		}
		tx = gethtypes.NewTx(&gethtypes.LegacyTx{
			Nonce:    nonce,
			To:       &c.address,
			Value:    big.NewInt(0),
			Gas:      gas.Uint64(),
			GasPrice: gasPrice,
			Data:     input,
		})
	default:
		tip, err := c.eth.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, errs.ClassifyChainError(fmt.Errorf("suggest gas tip cap: %w", err))
		}
		head, err := c.eth.HeaderByNumber(ctx, nil)
		if err != nil {
			return common.Hash{}, errs.ClassifyChainError(fmt.Errorf("fetch head header: %w", err))
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		tx = gethtypes.NewTx(&gethtypes.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			To:        &c.address,
			Value:     big.NewInt(0),
			Gas:       gas.Uint64(),
			GasFeeCap: feeCap,
			GasTipCap: tip,
			Data:      input,
		})
	}

	signer := gethtypes.LatestSignerForChainID(chainID)
	signedTx, err := gethtypes.SignTx(tx, signer, pk)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx for %s: %w", method, err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, errs.ClassifyChainError(fmt.Errorf("broadcast %s: %w", method, err))
	}

	c.log.Debug().Str("method", method).Str("tx_hash", signedTx.Hash().Hex()).Msg("transaction broadcast")
	return signedTx.Hash(), nil
}

func (c *client) cachedChainID(ctx context.Context) (*big.Int, error) {
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, errs.ClassifyChainError(fmt.Errorf("fetch chain id: %w", err))
	}
	c.chainID = id
	return id, nil
}

func (c *client) TransactionData(hash common.Hash) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCallTimeout)
	defer cancel()

	tx, _, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, errs.ClassifyChainError(fmt.Errorf("fetch tx %s: %w", hash.Hex(), err))
	}
	return tx.Data(), nil
}

// decodedCall is the JSON-friendly shape returned by DecodeTransaction.
type decodedCall struct {
	MethodName string                 `json:"methodName"`
	Parameter  map[string]interface{} `json:"parameter"`
}

func (c *client) DecodeTransaction(data []byte) (interface{}, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("decode transaction: calldata shorter than a method selector")
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	args := map[string]interface{}{}
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, fmt.Errorf("decode transaction: unpack %s: %w", method.Name, err)
	}
	return decodedCall{MethodName: method.Name, Parameter: args}, nil
}

// decodedEvent mirrors the {"EventName": ..., "Parameter": ...} shape
// ParseReceipt returns for each log emitted by this contract, e.g.
// LiquidateBorrow or Transfer events read back off a submitted tx.
type decodedEvent struct {
	EventName string                 `json:"EventName"`
	Parameter map[string]interface{} `json:"Parameter"`
}

func (c *client) ParseReceipt(receipt *types.TxReceipt) (string, error) {
	if receipt == nil {
		return "", fmt.Errorf("parse receipt: receipt is nil")
	}

	events := make([]decodedEvent, 0, len(receipt.Logs))
	for _, l := range receipt.Logs {
		if !strings.EqualFold(l.Address, c.address.Hex()) {
			continue
		}
		topics := make([]common.Hash, 0, len(l.Topics))
		for _, t := range l.Topics {
			topics = append(topics, common.HexToHash(t))
		}
		if len(topics) == 0 {
			continue
		}
		ev, err := c.abi.EventByID(topics[0])
		if err != nil {
			continue // log from this contract but not in our ABI (e.g. an inherited event)
		}

		params := map[string]interface{}{}
		if len(l.Data) > 0 {
			dataBytes := common.FromHex(l.Data)
			if err := ev.Inputs.UnpackIntoMap(params, dataBytes); err != nil {
				continue
			}
		}
		indexed := make(abi.Arguments, 0)
		for _, in := range ev.Inputs {
			if in.Indexed {
				indexed = append(indexed, in)
			}
		}
		if len(indexed) > 0 && len(topics) > 1 {
			if err := abi.ParseTopicsIntoMap(params, indexed, topics[1:]); err != nil {
				continue
			}
		}

		events = append(events, decodedEvent{EventName: ev.Name, Parameter: params})
	}

	out, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("parse receipt: marshal events: %w", err)
	}
	return string(out), nil
}
