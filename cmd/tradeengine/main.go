package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gamboaalejandro/trading-bot/config"
	"github.com/gamboaalejandro/trading-bot/internal/bus"
	"github.com/gamboaalejandro/trading-bot/internal/engine"
	"github.com/gamboaalejandro/trading-bot/internal/execution"
	"github.com/gamboaalejandro/trading-bot/internal/logger"
	"github.com/gamboaalejandro/trading-bot/internal/metrics"
	"github.com/gamboaalejandro/trading-bot/internal/model"
	"github.com/gamboaalejandro/trading-bot/internal/risk"
	"github.com/gamboaalejandro/trading-bot/internal/sizing"
)

// tradeengine consumes normalized ticks from the Redis bus and runs the
// trading pipeline: candles, strategies, combination, sizing, risk, and
// paper execution.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tradeengine] starting...")

	cfg := config.Load()
	symbols := cfg.ParseSymbols()
	if len(symbols) == 0 {
		log.Fatal("[tradeengine] no symbols configured")
	}

	pipeline, err := config.LoadPipeline(cfg.PipelinePath)
	if err != nil {
		log.Fatalf("[tradeengine] %v", err)
	}

	slogger := logger.Init("tradeengine", slog.LevelInfo)
	slogger.Info("pipeline loaded",
		slog.Any("symbols", symbols),
		slog.Float64("capital", pipeline.Risk.InitialCapital),
		slog.String("policy", pipeline.Defaults.Policy))

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Decision journal (audit only, off the hot path) ----
	os.MkdirAll(filepath.Dir(cfg.JournalPath), 0o755)
	journal, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		log.Fatalf("[tradeengine] journal init failed: %v", err)
	}
	defer journal.Close()

	// ---- Risk manager ----
	riskCfg := pipeline.Risk
	riskCfg.TOTPSecret = cfg.TOTPSecret
	book := risk.NewManager(riskCfg, pipeline.CorrelationMatrix())
	book.OnReject = func(_, code string) { prom.IntentsRejected.WithLabelValues(code).Inc() }
	book.OnBreakerTrip = func(pnl float64) {
		prom.BreakerState.Set(1)
		health.SetBreakerTripped(true)
		slogger.Error("trading halted by drawdown breaker", slog.Float64("daily_pnl", pnl))
	}

	// Operator endpoint: re-arm the breaker with a TOTP code.
	metricsSrv.Handle("/risk/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		if err := book.ResetDaily(r.FormValue("code")); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		prom.BreakerState.Set(0)
		health.SetBreakerTripped(false)
		w.WriteHeader(http.StatusNoContent)
	})
	metricsSrv.Start()

	// ---- Sizer and paper executor ----
	sizer := sizing.NewSizer(pipeline.Sizing)
	sizer.OnSkip = func(_, reason string) { prom.SizingSkips.WithLabelValues(reason).Inc() }

	executor := execution.NewPaper(book, journal)
	executor.OnClose = func(_, exitKind string, _ float64) {
		prom.TradesClosed.WithLabelValues(exitKind).Inc()
		prom.DailyPnL.Set(book.DailyPnL())
		prom.OpenRisk.Set(book.Exposure())
	}

	// ---- Trading engine ----
	eng, err := engine.New(engine.Config{
		Symbols:        symbols,
		CandleInterval: cfg.CandleInterval(),
		WindowSize:     cfg.WindowSize,
		Defaults:       pipeline.Defaults,
		PerSymbol:      pipeline.Symbols,
	}, engine.Deps{
		Sizer:    sizer,
		Book:     book,
		Executor: executor,
		Journal:  journal,
	}, engine.Hooks{
		OnCandleClose: func(symbol string) { prom.CandlesTotal.WithLabelValues(symbol).Inc() },
		OnLateTick:    func(string) { prom.LateTicks.Inc() },
		OnSignal: func(name string, dir model.Direction) {
			prom.SignalsTotal.WithLabelValues(name, string(dir)).Inc()
		},
		OnStrategyError: func(name string) { prom.StrategyFailures.WithLabelValues(name).Inc() },
		OnDecision: func(policy string, dir model.Direction) {
			prom.DecisionsTotal.WithLabelValues(policy, string(dir)).Inc()
			prom.OpenRisk.Set(book.Exposure())
		},
		OnEvaluate: func(elapsed time.Duration) { prom.EvaluateDur.Observe(elapsed.Seconds()) },
	})
	if err != nil {
		log.Fatalf("[tradeengine] %v", err)
	}

	// ---- Redis subscriber and fan-out ----
	subscriber, err := bus.NewSubscriber(bus.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("[tradeengine] redis init failed: %v", err)
	}
	defer subscriber.Close()
	health.StartLivenessChecker(ctx, subscriber.Client(), nil, 10*time.Second)

	busCh := make(chan model.Tick, 10000)
	fanout := bus.NewFanOut(10000)
	fanout.OnDrop = func(idx int) {
		prom.FanoutDropsTotal.WithLabelValues(strconv.Itoa(idx)).Inc()
	}
	engineCh := fanout.Subscribe()
	executorCh := fanout.Subscribe()

	go fanout.Run(ctx, busCh)
	go subscriber.Run(ctx, symbols, busCh)
	go executor.Run(ctx, executorCh)

	engineDone := make(chan struct{})
	go func() {
		eng.Run(ctx, engineCh)
		close(engineDone)
	}()

	<-sigCh
	log.Println("[tradeengine] shutting down...")
	cancel()
	select {
	case <-engineDone:
	case <-time.After(5 * time.Second):
		log.Println("[tradeengine] engine drain timed out")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Println("[tradeengine] bye")
}
