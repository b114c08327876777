// Package metrics exposes the bot's Prometheus collectors. Everything is
// registered through promauto at init and scraped from the webserver's
// /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nukebot_build_info",
			Help: "Build information of the NUKE distribution bot",
		},
		[]string{"version", "commit", "network"},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nukebot_cycles_total",
			Help: "Total number of executed tax cycles",
		},
		[]string{"status"}, // "distributed", "rolled_over", "failed"
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nukebot_cycle_duration_seconds",
			Help:    "Wall time of one full tax cycle",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4.3 minutes
		},
	)

	TaxHarvestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nukebot_tax_harvested_base_units_total",
			Help: "Withheld transfer fees harvested, in raw token base units",
		},
	)

	SwapProceedsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nukebot_swap_proceeds_lamports_total",
			Help: "SOL received from venue swaps, in lamports",
		},
	)

	SolDistributedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nukebot_sol_distributed_lamports_total",
			Help: "SOL actually paid out to holders, in lamports",
		},
	)

	SolToTreasuryTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nukebot_sol_to_treasury_lamports_total",
			Help: "SOL transferred to the treasury wallet, in lamports",
		},
	)

	HoldersPaidPerCycle = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nukebot_holders_paid_per_cycle",
			Help:    "Number of holders paid in one distribution",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	HoldersSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nukebot_holders_skipped_total",
			Help: "Holder payouts skipped by floors, balance guards, or transfer failures",
		},
	)

	OperatingBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nukebot_operating_balance_lamports",
			Help: "Current operating wallet balance, in lamports",
		},
	)

	TokenHolders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nukebot_token_holders",
			Help: "Token accounts holding the mint at last scan",
		},
	)

	RPCOnPrimary = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nukebot_rpc_on_primary",
			Help: "1 while the primary RPC endpoint is in use, 0 on backup",
		},
	)
)

// RecordCycle records the outcome and duration of one pipeline run.
func RecordCycle(status string, duration time.Duration) {
	CyclesTotal.WithLabelValues(status).Inc()
	CycleDuration.Observe(duration.Seconds())
}

// RecordDistribution records the amounts moved by a completed distribution.
func RecordDistribution(harvested, proceeds, toHolders, toTreasury uint64, paid, skipped int) {
	TaxHarvestedTotal.Add(float64(harvested))
	SwapProceedsTotal.Add(float64(proceeds))
	SolDistributedTotal.Add(float64(toHolders))
	SolToTreasuryTotal.Add(float64(toTreasury))
	HoldersPaidPerCycle.Observe(float64(paid))
	if skipped > 0 {
		HoldersSkippedTotal.Add(float64(skipped))
	}
}

// SetBuildInfo pins the build labels; call once at startup.
func SetBuildInfo(version, commit, network string) {
	BuildInfo.WithLabelValues(version, commit, network).Set(1)
}

// SetOperatingBalance updates the operating wallet balance gauge.
func SetOperatingBalance(lamports uint64) {
	OperatingBalance.Set(float64(lamports))
}

// SetTokenHolders updates the holder count gauge.
func SetTokenHolders(count int) {
	TokenHolders.Set(float64(count))
}

// SetRPCOnPrimary flags which RPC endpoint is serving.
func SetRPCOnPrimary(onPrimary bool) {
	if onPrimary {
		RPCOnPrimary.Set(1)
	} else {
		RPCOnPrimary.Set(0)
	}
}
