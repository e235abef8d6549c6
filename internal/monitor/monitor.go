// Package monitor implements the Event Monitor + Polling Service
// (spec §4.3): block-header-triggered borrower discovery grounded on
// 0xmichalis-liquidatoor's SubscribeNewHead/BorrowerCache pattern
// (retrieval-pack file 308838e5), feeding a single-threaded cooperative
// polling loop that drives the Health Factor Calculator and Position
// Tracker for each tracked account.
package monitor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/venusbot/liquidator/internal/errs"
	"github.com/venusbot/liquidator/pkg/types"
)

// marketEnteredTopic is keccak256("MarketEntered(address,address)"), the
// Comptroller event emitted the first time an account supplies/borrows
// in a given market — the discovery signal for new borrowers.
var marketEnteredTopic = common.HexToHash("0x3ab23ab0d51cccc0c3085aec51f99228625aa1a922b3a8ca89a26b0f2027a1a5")

// DiscoveryCallback receives a newly observed borrower address.
type DiscoveryCallback func(borrower common.Address)

// EventMonitor scans Comptroller MarketEntered logs block by block and
// reports new borrowers to a callback. It owns no borrower state itself — that
// lives in the Polling Service's working set.
type EventMonitor struct {
	eth         *ethclient.Client
	comptroller common.Address
	log         zerolog.Logger

	mu   sync.Mutex
	seen map[types.Address]struct{}
}

func NewEventMonitor(eth *ethclient.Client, comptroller common.Address, log zerolog.Logger) *EventMonitor {
	return &EventMonitor{
		eth:         eth,
		comptroller: comptroller,
		log:         log.With().Str("component", "event_monitor").Logger(),
		seen:        make(map[types.Address]struct{}),
	}
}

// Run subscribes to new block headers and, for each, filters
// MarketEntered logs emitted since the previous header, invoking onNew
// for any borrower address not seen before. Blocks until ctx is
// cancelled or the subscription errors.
func (m *EventMonitor) Run(ctx context.Context, onNew DiscoveryCallback) error {
	headers := make(chan *gethtypes.Header)
	sub, err := m.eth.SubscribeNewHead(ctx, headers)
	if err != nil {
		return errs.ClassifyChainError(fmt.Errorf("subscribe new head: %w", err))
	}
	defer sub.Unsubscribe()

	var lastBlock uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return errs.ClassifyChainError(fmt.Errorf("header subscription: %w", err))
		case header := <-headers:
			from := lastBlock
			if from == 0 {
				from = header.Number.Uint64()
			}
			if err := m.scanRange(ctx, from, header.Number.Uint64(), onNew); err != nil {
				m.log.Warn().Err(err).Msg("market-entered scan failed for block range")
			}
			lastBlock = header.Number.Uint64() + 1
		}
	}
}

func (m *EventMonitor) scanRange(ctx context.Context, from, to uint64, onNew DiscoveryCallback) error {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{m.comptroller},
		Topics:    [][]common.Hash{{marketEnteredTopic}},
	}
	logs, err := m.eth.FilterLogs(ctx, query)
	if err != nil {
		return errs.ClassifyChainError(fmt.Errorf("filter logs: %w", err))
	}

	for _, l := range logs {
		if len(l.Topics) < 3 {
			continue
		}
		// MarketEntered(address indexed market, address indexed account)
		borrower := common.BytesToAddress(l.Topics[2].Bytes())
		key := types.NewAddress(borrower)

		m.mu.Lock()
		_, known := m.seen[key]
		if !known {
			m.seen[key] = struct{}{}
		}
		m.mu.Unlock()

		if !known {
			onNew(borrower)
		}
	}
	return nil
}

// PollingService holds the working set of tracked borrowers and, at
// pollingIntervalMs, drives refresh(account) for each sequentially
// (spec §5: "single-threaded cooperative... one poll cycle completes...
// before the next starts").
type PollingService struct {
	interval time.Duration
	refresh  func(ctx context.Context, account common.Address) error
	log      zerolog.Logger

	mu      sync.Mutex
	working map[types.Address]common.Address

	stopped bool
}

func NewPollingService(interval time.Duration, refresh func(ctx context.Context, account common.Address) error, log zerolog.Logger) *PollingService {
	return &PollingService{
		interval: interval,
		refresh:  refresh,
		log:      log.With().Str("component", "polling_service").Logger(),
		working:  make(map[types.Address]common.Address),
	}
}

// Track adds account to the working set (called from EventMonitor's
// discovery callback, or at startup for a seeded borrower list).
func (p *PollingService) Track(account common.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.working[types.NewAddress(account)] = account
}

// Untrack removes account from the working set.
func (p *PollingService) Untrack(account types.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.working, account)
}

func (p *PollingService) workingSet() []common.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]common.Address, 0, len(p.working))
	for _, a := range p.working {
		out = append(out, a)
	}
	return out
}

// Run executes poll cycles until ctx is cancelled or Stop is called.
// Each cycle refreshes every tracked account strictly sequentially; a
// per-account timeout is enforced via a child context so one stuck RPC
// call cannot stall the whole cycle indefinitely.
func (p *PollingService) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if p.isStopped() {
				return nil
			}
			p.pollOnce(ctx)
		}
	}
}

func (p *PollingService) pollOnce(ctx context.Context) {
	for _, account := range p.workingSet() {
		if p.isStopped() {
			return
		}
		accountCtx, cancel := context.WithTimeout(ctx, p.interval)
		if err := p.refresh(accountCtx, account); err != nil {
			p.log.Warn().Err(err).Str("account", account.Hex()).Msg("refresh failed")
		}
		cancel()
	}
}

// Stop sets the cooperative-cancellation flag checked between
// suspension points (spec §5); in-flight RPCs are allowed to complete.
func (p *PollingService) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

func (p *PollingService) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}
