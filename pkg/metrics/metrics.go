package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementsTotal counts settlements by outcome (settled, retryable_error,
// consistency_error, rejected).
var SettlementsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "settled_settlements_total",
		Help: "Total number of settlement attempts by outcome",
	},
	[]string{"outcome"},
)

// SettlementLatency records latency distribution for the settlement transaction.
var SettlementLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "settled_settlement_latency_seconds",
		Help:    "Latency in seconds to settle a matched trade",
		Buckets: prometheus.DefBuckets,
	},
)

// TradedValue accumulates the notional value settled per symbol.
var TradedValue = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "settled_traded_value_total",
		Help: "Cumulative traded value settled, by symbol",
	},
	[]string{"symbol"},
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "settled_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "settled_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

func init() {
	prometheus.MustRegister(SettlementsTotal, SettlementLatency, TradedValue)
	prometheus.MustRegister(DBOpenConns, DBInUseConns)
}
