// Package metrics holds the Prometheus collectors of the progress ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "recoverly"

// ─── Ledger ─────────────────────────────────────────────────────────────────

// LedgerOperations counts coin ledger mutations by operation and result.
var LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Coin ledger mutations by operation and result.",
}, []string{"operation", "result"})

// LevelUpBonus counts coins granted by level-up bonuses.
var LevelUpBonus = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "level_up_bonus_coins_total",
	Help:      "Coins credited as level-up bonuses.",
})

// ─── Contracts ──────────────────────────────────────────────────────────────

// ContractsStarted counts stakes placed.
var ContractsStarted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "contract",
	Name:      "started_total",
	Help:      "Commitment contracts started.",
})

// ContractResolutions counts contract resolutions by outcome.
var ContractResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "contract",
	Name:      "resolutions_total",
	Help:      "Commitment contract resolutions by outcome.",
}, []string{"outcome"})

// ContractSettlementLag observes how long after expiry a contract was evaluated.
var ContractSettlementLag = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "contract",
	Name:      "settlement_lag_seconds",
	Help:      "Delay between contract end and its opportunistic evaluation.",
	Buckets:   []float64{1, 60, 600, 3600, 6 * 3600, 24 * 3600, 3 * 24 * 3600, 7 * 24 * 3600},
})

// ─── Streak ─────────────────────────────────────────────────────────────────

// CascadeResets counts restart/forfeit cascades by trigger.
var CascadeResets = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "streak",
	Name:      "cascade_resets_total",
	Help:      "Atomic streak resets by trigger.",
}, []string{"trigger"})

// BadgeReconciliations counts reconciliation calls by whether they wrote.
var BadgeReconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "streak",
	Name:      "badge_reconciliations_total",
	Help:      "Badge reconciliations by whether the stored tier changed.",
}, []string{"changed"})

// CheckIns counts daily check-ins by whether they awarded anything.
var CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "streak",
	Name:      "check_ins_total",
	Help:      "Daily check-ins by whether a reward was granted.",
}, []string{"awarded"})

// ─── Activities ─────────────────────────────────────────────────────────────

// ActivityCompletions counts side-activity reports by kind and result.
var ActivityCompletions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "activity",
	Name:      "completions_total",
	Help:      "Client-reported activity completions by kind and result.",
}, []string{"kind", "result"})

// ─── Store ────────────────────────────────────────────────────────────────

// StoreConflicts counts optimistic or serialization conflicts that forced a retry.
var StoreConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "store",
	Name:      "conflicts_total",
	Help:      "Account writes retried after losing a concurrent update.",
})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequestDuration observes request latency by route and status class.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})

// Result converts an error into the label used by result-labelled counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
