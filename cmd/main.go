// Command liquidator bootstraps the Venus liquidation bot: it decrypts
// the signer key the same way the teacher's bootstrap does (ENC_PK/KEY
// env vars), loads the YAML config, dials the chain, wires every
// internal component, and runs the poll/execute loop until interrupted.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/venusbot/liquidator/configs"
	"github.com/venusbot/liquidator/internal/collateral"
	"github.com/venusbot/liquidator/internal/db"
	"github.com/venusbot/liquidator/internal/engine"
	"github.com/venusbot/liquidator/internal/execution"
	"github.com/venusbot/liquidator/internal/health"
	"github.com/venusbot/liquidator/internal/monitor"
	"github.com/venusbot/liquidator/internal/position"
	"github.com/venusbot/liquidator/internal/price"
	"github.com/venusbot/liquidator/internal/profitability"
	"github.com/venusbot/liquidator/internal/risk"
	"github.com/venusbot/liquidator/internal/route"
	"github.com/venusbot/liquidator/internal/stats"
	"github.com/venusbot/liquidator/internal/strategy"
	"github.com/venusbot/liquidator/internal/swap"
	"github.com/venusbot/liquidator/internal/util"
	"github.com/venusbot/liquidator/pkg/contractclient"
	"github.com/venusbot/liquidator/pkg/txlistener"
	"github.com/venusbot/liquidator/pkg/types"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "bootstrap").Logger()

	encryptedPk := os.Getenv("ENC_PK")
	if encryptedPk == "" {
		log.Fatal().Msg("ENC_PK not set")
	}
	key := os.Getenv("KEY")
	if key == "" {
		log.Fatal().Msg("KEY not set")
	}

	pkHex, err := util.Decrypt([]byte(key), encryptedPk)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to decrypt signing key")
	}
	pk, err := crypto.HexToECDSA(trimHexPrefix(pkHex))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse signing key")
	}
	signer := crypto.PubkeyToAddress(pk.PublicKey)

	configPath := "configs/config.yml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	conf, err := configs.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	eth, err := ethclient.Dial(conf.RPCUrl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to dial RPC")
	}

	abiCache := map[string]*abi.ABI{}
	loadNamed := func(name string) (*abi.ABI, common.Address) {
		entry, ok := conf.ContractClient[name]
		if !ok {
			log.Fatal().Str("name", name).Msg("contractClient entry not found in config")
		}
		parsed, ok := abiCache[entry.ABI]
		if !ok {
			parsed, err = loadABIAuto(entry.ABI)
			if err != nil {
				log.Fatal().Err(err).Str("abi", entry.ABI).Msg("failed to load ABI")
			}
			abiCache[entry.ABI] = parsed
		}
		return parsed, common.HexToAddress(entry.Address)
	}

	comptrollerABI, comptrollerAddr := loadNamed("comptroller")
	oracleABI, oracleAddr := loadNamed("oracle")
	routerABI, routerAddr := loadNamed("pancakeswapRouter")
	factoryABI, factoryAddr := loadNamed("pancakeswapV3Factory")
	erc20ABI, _ := loadNamed("erc20")
	vTokenABI, _ := loadNamed("vtoken")
	poolABI, _ := loadNamed("pancakeswapV3Pool")

	comptroller := contractclient.NewContractClientWithLogger(eth, comptrollerAddr, comptrollerABI, log)
	oracle := contractclient.NewContractClientWithLogger(eth, oracleAddr, oracleABI, log)
	router := contractclient.NewContractClientWithLogger(eth, routerAddr, routerABI, log)
	factory := contractclient.NewContractClientWithLogger(eth, factoryAddr, factoryABI, log)

	var flashClient contractclient.ContractClient
	if conf.UseFlashLoans && conf.FlashLiquidatorContract != "" {
		flashABI, flashAddr := loadNamed("flashLiquidator")
		flashClient = contractclient.NewContractClientWithLogger(eth, flashAddr, flashABI, log)
	}

	erc20Of := func(token common.Address) contractclient.ContractClient {
		return contractclient.NewContractClientWithLogger(eth, token, erc20ABI, log)
	}
	vTokenOf := func(market common.Address) contractclient.ContractClient {
		return contractclient.NewContractClientWithLogger(eth, market, vTokenABI, log)
	}
	poolOf := func(pool common.Address) contractclient.ContractClient {
		return contractclient.NewContractClientWithLogger(eth, pool, poolABI, log)
	}

	listener := txlistener.NewTxListener(eth,
		txlistener.WithPollInterval(3*time.Second),
		txlistener.WithTimeout(5*time.Minute))

	var wbnb common.Address
	if entry, ok := conf.ContractClient["wbnb"]; ok {
		wbnb = common.HexToAddress(entry.Address)
	}
	prices := price.NewOracleService(oracle, wbnb, erc20Of)

	healthCalc := health.NewCalculator(comptroller, vTokenOf, prices, log)
	profitCalc := profitability.NewCalculator(eth, comptroller, vTokenOf, signer, prices, conf.ToProfitabilityConfig())
	tracker := position.NewTracker(conf.ToPositionConfig(), healthCalc, profitCalc)

	riskMgr := risk.NewManager(conf.ToRiskConfig(), eth, erc20Of, healthCalc, log)
	strat := strategy.NewStrategy(conf.ToStrategyConfig(), eth, erc20Of)

	appStats := &types.Stats{}

	collateralCfg := conf.ToCollateralConfig()
	hubTokens := []common.Address{wbnb}
	optimizer := route.NewOptimizer(factory, poolOf, hubTokens, appStats)
	executor := swap.NewExecutor(router, erc20Of, listener, signer, pk, slippageBps(collateralCfg.MaxSlippage), log)
	collateralMgr := collateral.NewManager(collateralCfg, optimizer, executor, prices, appStats)

	execSvc := execution.NewService(conf.ToExecutionConfig(), log)

	reportChan := make(chan types.EngineReport, 256)
	eng := engine.NewEngine(
		conf.ToEngineConfig(),
		tracker,
		strat,
		profitCalc,
		prices,
		riskMgr,
		collateralMgr,
		vTokenOf,
		flashClient,
		listener,
		signer,
		pk,
		appStats,
		execSvc,
		reportChan,
		log,
	)

	var recorder *db.MySQLRecorder
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		recorder, err = db.NewMySQLRecorder(dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer recorder.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(stats.NewCollector(appStats))
	go serveMetrics(registry, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventMonitor := monitor.NewEventMonitor(eth, comptrollerAddr, log)
	pollSvc := monitor.NewPollingService(time.Duration(conf.PollingIntervalMs)*time.Millisecond,
		func(ctx context.Context, account common.Address) error {
			snapshot, err := healthCalc.Compute(account)
			if err != nil {
				return err
			}
			tracker.UpdatePosition(*snapshot)
			return nil
		}, log)

	go func() {
		if err := eventMonitor.Run(ctx, pollSvc.Track); err != nil {
			log.Warn().Err(err).Msg("event monitor stopped")
		}
	}()
	go func() {
		if err := pollSvc.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("polling service stopped")
		}
	}()
	go func() {
		retry := func(ctx context.Context, borrower types.Address) error {
			return eng.EvaluateBorrower(ctx, borrower)
		}
		if err := execSvc.Run(ctx, retry); err != nil {
			log.Warn().Err(err).Msg("execution service stopped")
		}
	}()

	go func() {
		cycleInterval := time.Duration(conf.PollingIntervalMs) * time.Millisecond
		ticker := time.NewTicker(cycleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := eng.RunCycle(ctx); err != nil {
					log.Error().Err(err).Msg("liquidation engine halted")
				}
			}
		}
	}()

	go func() {
		for report := range reportChan {
			event := log.Info()
			if report.Error != "" {
				event = log.Warn()
			}
			event.
				Str("event_type", report.EventType).
				Str("borrower", report.Borrower).
				Float64("net_profit_usd", report.NetProfitUsd).
				Float64("gas_cost_usd", report.GasCostUsd).
				Msg(report.Message)

			if recorder != nil && report.EventType == "liquidated" {
				if rerr := recorder.RecordStatsSnapshot(appStats.Snapshot()); rerr != nil {
					log.Warn().Err(rerr).Msg("failed to record stats snapshot")
				}
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")
	cancel()
	pollSvc.Stop()
	execSvc.Stop()
}

// loadABIAuto tries a bare ABI JSON array first (solc --abi output),
// then falls back to the Hardhat artifact shape, matching the two
// loaders internal/util exposes.
func loadABIAuto(path string) (*abi.ABI, error) {
	if parsed, err := util.LoadABI(path); err == nil {
		return parsed, nil
	}
	return util.LoadABIFromHardhatArtifact(path)
}

func serveMetrics(registry *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		addr = ":9090"
	}
	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn().Err(err).Msg("metrics server stopped")
	}
}

func slippageBps(tolerance float64) int64 {
	return int64(tolerance * 10_000)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
