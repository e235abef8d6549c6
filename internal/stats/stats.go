// Package stats exports a read-mostly projection of pkg/types.Stats as
// Prometheus metrics, using naming and registration conventions grounded
// on go-coffee's producer/metrics package (retrieval-pack repo
// DimaJoyti-go-coffee), adapted from promauto package-level counters to a
// custom prometheus.Collector: Stats already aggregates counts under its
// own mutex, so Collect reads one Snapshot per scrape instead of
// duplicating increments into separate prometheus counters.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/venusbot/liquidator/pkg/types"
)

const namespace = "liquidator"

// Collector adapts a *types.Stats into a Prometheus collector. Register
// it once with a prometheus.Registry; every scrape takes one Snapshot.
type Collector struct {
	stats *types.Stats

	swapsAttempted  *prometheus.Desc
	swapsSucceeded  *prometheus.Desc
	swapsFailed     *prometheus.Desc
	usdSwapped      *prometheus.Desc
	liqSuccessCount *prometheus.Desc
	liqFailureCount *prometheus.Desc
	profitUsd       *prometheus.Desc
	gasCostUsd      *prometheus.Desc
	realizedUsd     *prometheus.Desc
	dryRunAttempts  *prometheus.Desc
	dailyLossUsd    *prometheus.Desc
	routeCacheHits  *prometheus.Desc
	routeCacheMiss  *prometheus.Desc
}

func NewCollector(stats *types.Stats) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(namespace+"_"+name, help, nil, nil)
	}
	return &Collector{
		stats:           stats,
		swapsAttempted:  desc("swaps_attempted_total", "Total collateral swaps attempted"),
		swapsSucceeded:  desc("swaps_succeeded_total", "Total collateral swaps that executed successfully"),
		swapsFailed:     desc("swaps_failed_total", "Total collateral swaps that reverted or errored"),
		usdSwapped:      desc("swaps_usd_total", "Total USD notional swapped through collateral disposal"),
		liqSuccessCount: desc("liquidations_succeeded_total", "Total liquidations that executed successfully"),
		liqFailureCount: desc("liquidations_failed_total", "Total liquidation attempts that failed"),
		profitUsd:       desc("profit_usd_total", "Total estimated net profit USD across successful liquidations"),
		gasCostUsd:      desc("gas_cost_usd_total", "Total gas cost USD across all liquidation attempts"),
		realizedUsd:     desc("realized_usd_total", "Total realized seize-collateral value USD"),
		dryRunAttempts:  desc("dry_run_attempts_total", "Total liquidations evaluated under dryRun"),
		dailyLossUsd:    desc("daily_loss_usd", "Current accumulated loss USD within the daily cap window"),
		routeCacheHits:  desc("route_cache_hits_total", "Total route optimizer cache hits"),
		routeCacheMiss:  desc("route_cache_misses_total", "Total route optimizer cache misses"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.swapsAttempted
	ch <- c.swapsSucceeded
	ch <- c.swapsFailed
	ch <- c.usdSwapped
	ch <- c.liqSuccessCount
	ch <- c.liqFailureCount
	ch <- c.profitUsd
	ch <- c.gasCostUsd
	ch <- c.realizedUsd
	ch <- c.dryRunAttempts
	ch <- c.dailyLossUsd
	ch <- c.routeCacheHits
	ch <- c.routeCacheMiss
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.swapsAttempted, prometheus.CounterValue, float64(snap.SwapsAttempted))
	ch <- prometheus.MustNewConstMetric(c.swapsSucceeded, prometheus.CounterValue, float64(snap.SwapsSucceeded))
	ch <- prometheus.MustNewConstMetric(c.swapsFailed, prometheus.CounterValue, float64(snap.SwapsFailed))
	ch <- prometheus.MustNewConstMetric(c.usdSwapped, prometheus.CounterValue, snap.TotalUsdSwapped)
	ch <- prometheus.MustNewConstMetric(c.liqSuccessCount, prometheus.CounterValue, float64(snap.LiquidationSuccessCount))
	ch <- prometheus.MustNewConstMetric(c.liqFailureCount, prometheus.CounterValue, float64(snap.LiquidationFailureCount))
	ch <- prometheus.MustNewConstMetric(c.profitUsd, prometheus.CounterValue, snap.TotalProfitUsd)
	ch <- prometheus.MustNewConstMetric(c.gasCostUsd, prometheus.CounterValue, snap.TotalGasCostUsd)
	ch <- prometheus.MustNewConstMetric(c.realizedUsd, prometheus.CounterValue, snap.RealizedUsd)
	ch <- prometheus.MustNewConstMetric(c.dryRunAttempts, prometheus.CounterValue, float64(snap.DryRunAttempts))
	ch <- prometheus.MustNewConstMetric(c.dailyLossUsd, prometheus.GaugeValue, snap.DailyLossUsd)
	ch <- prometheus.MustNewConstMetric(c.routeCacheHits, prometheus.CounterValue, float64(snap.RouteCacheHits))
	ch <- prometheus.MustNewConstMetric(c.routeCacheMiss, prometheus.CounterValue, float64(snap.RouteCacheMisses))
}
