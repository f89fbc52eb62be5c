package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nathanyu/exchange-core/internal/broadcast"
	"github.com/nathanyu/exchange-core/internal/config"
	"github.com/nathanyu/exchange-core/internal/handler"
	"github.com/nathanyu/exchange-core/internal/matching"
	"github.com/nathanyu/exchange-core/internal/middleware"
	"github.com/nathanyu/exchange-core/internal/queue"
	"github.com/nathanyu/exchange-core/internal/sequencer"
	"github.com/nathanyu/exchange-core/internal/settlement"
	"github.com/nathanyu/exchange-core/internal/telemetry"
)

func main() {
	cfg := config.LoadFromEnv()

	logger, err := telemetry.NewLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("starting exchange core", "http_addr", cfg.HTTPAddr, "nats_url", cfg.NATSURL)

	// --- Core components ---

	// Settlement store (pebble-backed, atomic trade + balance writes)
	store, err := settlement.Open(cfg.DataDir)
	if err != nil {
		sugar.Fatalw("open settlement store", "err", err)
	}
	defer store.Close()

	// Matching engine (per-symbol order books; volatile, rebuilt on restart)
	engine := matching.NewEngine()

	// Broadcast hub (trade ticks to WebSocket subscribers)
	hub := broadcast.NewHub(sugar.Named("broadcast"))
	hub.Run()
	defer hub.Stop()

	// Sequencer (single writer: applies events, settles, fans out)
	seq := sequencer.NewSequencer(engine, store, sugar.Named("sequencer"), cfg.BufferSize)
	seq.AddPublisher(hub)

	// --- Transport (NATS) ---
	nc, err := queue.NewClient(cfg.NATSURL, sugar.Named("nats"))
	if err != nil {
		sugar.Fatalw("connect transport", "err", err)
	}
	defer nc.Close()

	seq.AddPublisher(queue.NewTradePublisher(nc, cfg.TradesSubject, sugar.Named("nats")))

	consumer := queue.NewConsumer(nc, cfg.OrdersSubject, seq, sugar.Named("nats"))

	seq.Start()
	defer seq.Stop()

	if err := consumer.Start(); err != nil {
		sugar.Fatalw("start consumer", "err", err)
	}
	defer consumer.Stop()

	// Drain the operator error channel; these need reconciliation, not
	// retries, so they only get surfaced here.
	go func() {
		for err := range seq.Errors() {
			sugar.Errorw("settlement incident, reconcile manually", "err", err)
		}
	}()

	// --- HTTP server (query surface) ---
	r := gin.Default()
	r.Use(middleware.PrometheusMiddleware())

	h := handler.NewHandler(engine, store, hub)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	// --- Metrics server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}

	go func() {
		sugar.Infow("metrics server listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("metrics server", "err", err)
		}
	}()

	go func() {
		sugar.Infow("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("http server", "err", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Infow("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		sugar.Warnw("http server shutdown", "err", err)
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		sugar.Warnw("metrics server shutdown", "err", err)
	}

	sugar.Infow("exchange core stopped")
}
