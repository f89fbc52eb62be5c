package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks request latency by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path", "status"},
	)

	// EventsTotal counts inbound order events by kind and outcome.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_events_total",
			Help: "Total number of inbound order events by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// TradesTotal counts executed trades.
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_trades_total",
			Help: "Total number of executed trades by symbol",
		},
		[]string{"symbol"},
	)

	// SettlementFailures counts trades whose settlement write failed and
	// was handed to the operator channel for reconciliation.
	SettlementFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exchange_settlement_failures_total",
			Help: "Total number of failed settlement writes",
		},
	)

	// SubscribersConnected tracks live broadcast subscribers.
	SubscribersConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exchange_subscribers_connected",
			Help: "Currently connected trade-stream subscribers",
		},
	)

	// SubscribersDropped counts subscribers removed after failed delivery.
	SubscribersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exchange_subscribers_dropped_total",
			Help: "Subscribers dropped due to disconnect or backpressure",
		},
	)

	// BookDepth tracks resting order counts per book side.
	BookDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "exchange_orderbook_depth",
			Help: "Current resting order count",
		},
		[]string{"symbol", "side"},
	)

	// SequencerInboundSeq tracks the current inbound sequence number.
	SequencerInboundSeq = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exchange_sequencer_inbound_seq",
			Help: "Current inbound sequence number",
		},
	)

	// SequencerOutboundSeq tracks the current outbound sequence number.
	SequencerOutboundSeq = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "exchange_sequencer_outbound_seq",
			Help: "Current outbound sequence number",
		},
	)
)

// PrometheusMiddleware records request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Observe(duration)
	}
}
