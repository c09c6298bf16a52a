package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gamboaalejandro/trading-bot/config"
	"github.com/gamboaalejandro/trading-bot/internal/bus"
	"github.com/gamboaalejandro/trading-bot/internal/logger"
	"github.com/gamboaalejandro/trading-bot/internal/marketdata/normalize"
	"github.com/gamboaalejandro/trading-bot/internal/marketdata/ws"
	"github.com/gamboaalejandro/trading-bot/internal/metrics"
	"github.com/gamboaalejandro/trading-bot/internal/model"
)

// feedhandler ingests the exchange WebSocket feed, normalizes raw tickers,
// and publishes canonical ticks to the Redis bus, one topic per symbol.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedhandler] starting...")

	cfg := config.Load()
	symbols := cfg.ParseSymbols()
	if len(symbols) == 0 {
		log.Fatal("[feedhandler] no symbols configured")
	}
	slogger := logger.Init("feedhandler", slog.LevelInfo)
	slogger.Info("feed configured", slog.Any("symbols", symbols), slog.String("url", cfg.FeedURL))

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Redis publisher ----
	publisher, err := bus.NewPublisher(bus.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("[feedhandler] redis init failed: %v", err)
	}
	defer publisher.Close()
	health.StartLivenessChecker(ctx, publisher.Client(), nil, 10*time.Second)

	// ---- Normalizer and WebSocket ingest ----
	norm := normalize.New()
	norm.OnRejected = func() { prom.TicksRejected.Inc() }

	ingest, err := ws.New(ws.Config{URL: cfg.FeedURL}, norm)
	if err != nil {
		log.Fatalf("[feedhandler] ingest init failed: %v", err)
	}
	ingest.OnReconnect = func() {
		prom.WSReconnects.Inc()
		health.SetWSConnected(false)
	}

	// ---- Pipeline: ingest → count → publish ----
	tickCh := make(chan model.Tick, 10000)
	pubCh := make(chan model.Tick, 10000)

	go func() {
		for tick := range tickCh {
			prom.TicksTotal.Inc()
			health.SetWSConnected(true)
			health.SetLastTickTime(tick.Time())
			select {
			case pubCh <- tick:
				prom.TicksPublished.Inc()
			default:
				prom.DroppedTicks.Inc()
			}
		}
		close(pubCh)
	}()

	go publisher.Run(ctx, pubCh)

	go func() {
		if err := ingest.Start(ctx, tickCh); err != nil && ctx.Err() == nil {
			log.Printf("[feedhandler] ingest stopped: %v", err)
		}
		close(tickCh)
	}()

	<-sigCh
	log.Println("[feedhandler] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Println("[feedhandler] bye")
}
