package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nathanyu/matching-engine/internal/domain"
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

	// CommandsTotal counts engine commands by kind and verdict.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_commands_total",
			Help: "Total number of engine commands by kind and result",
		},
		[]string{"kind", "result"},
	)

	// TradesTotal counts executed trades.
	TradesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_trades_total",
			Help: "Total number of trades executed",
		},
	)

	// BookDepth tracks the number of populated price levels per side as
	// seen in the event's depth snapshot, so it saturates at that
	// snapshot's depth.
	BookDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_book_depth_levels",
			Help: "Number of populated price levels per side",
		},
		[]string{"side"},
	)

	// BestPrice tracks the current best bid and ask.
	BestPrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_best_price",
			Help: "Current best price per side (0 when the side is empty)",
		},
		[]string{"side"},
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

// ObserveEvent updates the domain gauges from an engine event.
func ObserveEvent(event domain.EngineEvent) {
	TradesTotal.Add(float64(len(event.Trades)))

	BookDepth.WithLabelValues(string(domain.SideBuy)).Set(float64(len(event.Book.Bids)))
	BookDepth.WithLabelValues(string(domain.SideSell)).Set(float64(len(event.Book.Asks)))

	var bestBid, bestAsk float64
	if len(event.Book.Bids) > 0 {
		bestBid = event.Book.Bids[0].Price
	}
	if len(event.Book.Asks) > 0 {
		bestAsk = event.Book.Asks[0].Price
	}
	BestPrice.WithLabelValues(string(domain.SideBuy)).Set(bestBid)
	BestPrice.WithLabelValues(string(domain.SideSell)).Set(bestAsk)
}
