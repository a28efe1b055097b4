package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nathanyu/matching-engine/internal/handler"
	"github.com/nathanyu/matching-engine/internal/marketdata"
	"github.com/nathanyu/matching-engine/internal/matching"
	"github.com/nathanyu/matching-engine/internal/middleware"
	"github.com/nathanyu/matching-engine/internal/ordermanager"
	"github.com/nathanyu/matching-engine/internal/sequencer"
)

const channelBufferSize = 4096

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	symbol := getEnv("SYMBOL", "AAPL")
	logger.Info("starting matching engine service", zap.String("symbol", symbol))

	// --- Core components ---

	// Matching engine: single instrument, no internal synchronization.
	engine := matching.NewEngine(symbol)

	// Sequencer: the single goroutine that owns all engine access.
	seq := sequencer.NewSequencer(engine, logger, channelBufferSize)

	// Order manager: lifecycle read model fed by engine events.
	manager := ordermanager.NewManager(logger, channelBufferSize)

	// Market data publisher: trade/book push feeds over WebSocket.
	publisher := marketdata.NewPublisher(logger, channelBufferSize)

	// --- Wire the event fan-out ---
	//
	// HTTP Handler → Sequencer (synchronous command + verdict)
	//                    ↓ Events
	//        Order Manager + Market Data Publisher + metrics
	go func() {
		for event := range seq.Events {
			middleware.ObserveEvent(event)

			select {
			case manager.EventsIn <- event:
			default:
				logger.Warn("order manager event channel full")
			}
			select {
			case publisher.EventsIn <- event:
			default:
				logger.Warn("market data event channel full")
			}
		}
	}()

	seq.Start()
	manager.Start()
	publisher.Start()

	// --- HTTP Server ---
	port := getEnv("PORT", "8080")

	r := gin.Default()
	r.Use(middleware.PrometheusMiddleware())

	h := handler.NewHandler(seq, manager, publisher)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// --- Metrics Server ---
	metricsPort := getEnv("METRICS_PORT", "9090")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    ":" + metricsPort,
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server listening", zap.String("port", metricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("http server listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seq.Stop()
	manager.Stop()
	publisher.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}

	logger.Info("matching engine service stopped")
}
