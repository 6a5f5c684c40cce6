package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/is42day/binance-trading-agent-sub000/internal/breaker"
	"github.com/is42day/binance-trading-agent-sub000/internal/strategy"
)

// Metrics holds all Prometheus metrics for the trading agent.
type Metrics struct {
	// Strategy analysis
	AnalysesTotal  *prometheus.CounterVec   // labels: strategy, signal
	AnalysisDur    *prometheus.HistogramVec // labels: strategy
	LastConfidence *prometheus.GaugeVec     // labels: strategy

	// Trader cycle
	SignalsTotal      *prometheus.CounterVec // labels: symbol, signal
	ConsensusStrength *prometheus.GaugeVec   // labels: symbol
	CycleDur          prometheus.Histogram

	// Orders and risk
	OrdersTotal    *prometheus.CounterVec // labels: side, status
	RiskRejections *prometheus.CounterVec // labels: symbol
	Equity         prometheus.Gauge

	// Market data
	MarketDataErrors *prometheus.CounterVec // labels: endpoint

	// Upstream circuit breakers
	BreakerState *prometheus.GaugeVec   // labels: breaker (0=closed, 1=open, 2=half-open)
	BreakerTrips *prometheus.CounterVec // labels: breaker

	// Storage and fan-out
	RedisPublishDur      prometheus.Histogram
	SQLiteCommitDur      prometheus.Histogram
	SQLiteDroppedRecords prometheus.Counter
	WSClients            prometheus.Gauge
}

// NewMetrics creates every metric and registers it with reg. Pass
// prometheus.DefaultRegisterer in services and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_strategy_analyses_total",
			Help: "Strategy analyses recorded, by strategy and resulting signal",
		}, []string{"strategy", "signal"}),
		AnalysisDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_strategy_analysis_duration_seconds",
			Help:    "Time spent in a single strategy analysis",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"strategy"}),
		LastConfidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agent_strategy_last_confidence",
			Help: "Confidence of the latest analysis per strategy",
		}, []string{"strategy"}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_signals_total",
			Help: "Signals generated by the trader, by symbol and signal",
		}, []string{"symbol", "signal"}),
		ConsensusStrength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agent_consensus_strength",
			Help: "Share of strategies voting for the consensus signal",
		}, []string{"symbol"}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_trade_cycle_duration_seconds",
			Help:    "Duration of one trader polling cycle over all symbols",
			Buckets: prometheus.DefBuckets,
		}),

		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_orders_total",
			Help: "Orders handed to the executor, by side and status",
		}, []string{"side", "status"}),
		RiskRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_risk_rejections_total",
			Help: "Orders blocked by the risk manager",
		}, []string{"symbol"}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_equity",
			Help: "Paper equity tracked by the risk manager",
		}),

		MarketDataErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_market_data_errors_total",
			Help: "Failed market data requests by endpoint",
		}, []string{"endpoint"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agent_circuit_breaker_state",
			Help: "Circuit breaker state per upstream (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"breaker"}),

		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_redis_publish_duration_seconds",
			Help:    "Redis signal publish pipeline latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteDroppedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agent_sqlite_dropped_records_total",
			Help: "Performance records dropped because the writer queue was full",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_ws_clients",
			Help: "Connected WebSocket stream clients",
		}),
	}

	reg.MustRegister(
		m.AnalysesTotal,
		m.AnalysisDur,
		m.LastConfidence,
		m.SignalsTotal,
		m.ConsensusStrength,
		m.CycleDur,
		m.OrdersTotal,
		m.RiskRejections,
		m.Equity,
		m.MarketDataErrors,
		m.BreakerState,
		m.BreakerTrips,
		m.RedisPublishDur,
		m.SQLiteCommitDur,
		m.SQLiteDroppedRecords,
		m.WSClients,
	)

	return m
}

// OnAnalysis implements strategy.Observer.
func (m *Metrics) OnAnalysis(rec strategy.PerformanceRecord, took time.Duration) {
	m.AnalysesTotal.WithLabelValues(rec.Strategy, rec.Signal.Lower()).Inc()
	m.AnalysisDur.WithLabelValues(rec.Strategy).Observe(took.Seconds())
	m.LastConfidence.WithLabelValues(rec.Strategy).Set(rec.Confidence)
}

// MarketDataError matches the binance client's error hook.
func (m *Metrics) MarketDataError(endpoint string, _ error) {
	m.MarketDataErrors.WithLabelValues(endpoint).Inc()
}

// BreakerChanged matches breaker.Listener.
func (m *Metrics) BreakerChanged(name string, _, to breaker.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(to))
	if to == breaker.Open {
		m.BreakerTrips.WithLabelValues(name).Inc()
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
