// Package txlistener polls for transaction receipts, adapting the
// teacher's WithPollInterval/WithTimeout functional-options constructor
// to the chain-agnostic types.TxReceipt shape.
package txlistener

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/venusbot/liquidator/internal/errs"
	"github.com/venusbot/liquidator/pkg/types"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultTimeout       = 2 * time.Minute
)

// TxListener waits for a submitted transaction to be mined and returns
// its receipt in a chain-agnostic shape.
type TxListener interface {
	WaitForTransaction(hash common.Hash) (*types.TxReceipt, error)
	WaitForTransactionCtx(ctx context.Context, hash common.Hash) (*types.TxReceipt, error)
}

type listener struct {
	eth          *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures a TxListener at construction time.
type Option func(*listener)

// WithPollInterval sets how often WaitForTransaction polls for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(l *listener) { l.pollInterval = d }
}

// WithTimeout bounds how long WaitForTransaction waits before giving up.
func WithTimeout(d time.Duration) Option {
	return func(l *listener) { l.timeout = d }
}

// NewTxListener builds a TxListener polling over the given client.
func NewTxListener(eth *ethclient.Client, opts ...Option) TxListener {
	l := &listener{
		eth:          eth,
		pollInterval: defaultPollInterval,
		timeout:      defaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *listener) WaitForTransaction(hash common.Hash) (*types.TxReceipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.WaitForTransactionCtx(ctx, hash)
}

func (l *listener) WaitForTransactionCtx(ctx context.Context, hash common.Hash) (*types.TxReceipt, error) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return toTxReceipt(receipt), nil
		}
		if err != ethereum.NotFound {
			return nil, errs.ClassifyChainError(fmt.Errorf("poll receipt %s: %w", hash.Hex(), err))
		}

		select {
		case <-ctx.Done():
			return nil, errs.NewTransientChainError(fmt.Errorf("timed out waiting for %s: %w", hash.Hex(), ctx.Err()))
		case <-ticker.C:
		}
	}
}

func toTxReceipt(r *gethtypes.Receipt) *types.TxReceipt {
	logs := make([]types.TxLog, 0, len(r.Logs))
	for _, l := range r.Logs {
		topics := make([]string, 0, len(l.Topics))
		for _, t := range l.Topics {
			topics = append(topics, t.Hex())
		}
		logs = append(logs, types.TxLog{
			Address:     l.Address.Hex(),
			Topics:      topics,
			Data:        fmt.Sprintf("0x%x", l.Data),
			LogIndex:    fmt.Sprintf("0x%x", l.Index),
			BlockNumber: fmt.Sprintf("0x%x", l.BlockNumber),
			TxHash:      l.TxHash.Hex(),
		})
	}

	status := "0x0"
	if r.Status == gethtypes.ReceiptStatusSuccessful {
		status = "0x1"
	}

	contractAddr := ""
	if r.ContractAddress != (common.Address{}) {
		contractAddr = r.ContractAddress.Hex()
	}

	return &types.TxReceipt{
		TxHash:            r.TxHash.Hex(),
		BlockNumber:       fmt.Sprintf("0x%x", r.BlockNumber),
		BlockHash:         r.BlockHash.Hex(),
		GasUsed:           fmt.Sprintf("0x%x", r.GasUsed),
		EffectiveGasPrice: fmt.Sprintf("0x%x", r.EffectiveGasPrice),
		Status:            status,
		ContractAddress:   contractAddr,
		Logs:              logs,
	}
}
