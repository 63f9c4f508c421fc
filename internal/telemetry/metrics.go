// Package telemetry carries the observability surface: Prometheus metrics,
// the WebSocket hub and the Discord notifier.
//
// Metrics exposed at /metrics:
//   - goldpilot_ticks_total                      – engine loop iterations
//   - goldpilot_tick_duration_seconds            – tick latency histogram
//   - goldpilot_ai_requests_total{provider,kind} – AI calls by provider and kind (entry|guardian)
//   - goldpilot_orders_total{kind}               – orders by origin (entry|dca|momentum_dca|manual)
//   - goldpilot_closes_total{close_type}         – detected closures by classification
//   - goldpilot_open_positions                   – current open position count
//   - goldpilot_account_balance / _equity        – account gauges
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "goldpilot_ticks_total",
			Help: "Engine loop iterations",
		},
	)

	mtxTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "goldpilot_tick_duration_seconds",
			Help:    "Duration of one engine tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	mtxAIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldpilot_ai_requests_total",
			Help: "AI analysis calls by provider and kind",
		},
		[]string{"provider", "kind"},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldpilot_orders_total",
			Help: "Market orders placed by origin",
		},
		[]string{"kind"},
	)

	mtxCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goldpilot_closes_total",
			Help: "Detected position closures by classification",
		},
		[]string{"close_type"},
	)

	mtxOpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "goldpilot_open_positions",
			Help: "Open positions on the traded symbol",
		},
	)

	mtxBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "goldpilot_account_balance",
			Help: "Account balance in account currency",
		},
	)

	mtxEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "goldpilot_account_equity",
			Help: "Account equity in account currency",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxTicks, mtxTickDuration)
	prometheus.MustRegister(mtxAIRequests, mtxOrders, mtxCloses)
	prometheus.MustRegister(mtxOpenPositions, mtxBalance, mtxEquity)
}

// IncTick counts one engine loop iteration
func IncTick() { mtxTicks.Inc() }

// ObserveTickDuration records tick latency in seconds
func ObserveTickDuration(seconds float64) { mtxTickDuration.Observe(seconds) }

// IncAIRequest counts one AI call; kind is entry or guardian
func IncAIRequest(provider, kind string) { mtxAIRequests.WithLabelValues(provider, kind).Inc() }

// IncOrder counts one placed order by origin
func IncOrder(kind string) { mtxOrders.WithLabelValues(kind).Inc() }

// IncClose counts one detected closure by classification
func IncClose(closeType string) { mtxCloses.WithLabelValues(closeType).Inc() }

// SetOpenPositions updates the open position gauge
func SetOpenPositions(n int) { mtxOpenPositions.Set(float64(n)) }

// SetAccount updates the balance and equity gauges
func SetAccount(balance, equity float64) {
	mtxBalance.Set(balance)
	mtxEquity.Set(equity)
}
