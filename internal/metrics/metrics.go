package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading pipeline.
type Metrics struct {
	// Market data ingest
	TicksTotal      prometheus.Counter
	TicksRejected   prometheus.Counter
	TicksPublished  prometheus.Counter
	WSReconnects    prometheus.Counter
	DroppedTicks    prometheus.Counter
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber

	// Aggregation
	CandlesTotal *prometheus.CounterVec // labels: symbol
	LateTicks    prometheus.Counter

	// Strategy and combination
	SignalsTotal     *prometheus.CounterVec // labels: strategy, direction
	StrategyFailures *prometheus.CounterVec // labels: strategy
	DecisionsTotal   *prometheus.CounterVec // labels: policy, direction
	EvaluateDur      prometheus.Histogram

	// Sizing and risk
	SizingSkips     *prometheus.CounterVec // labels: reason
	IntentsApproved prometheus.Counter
	IntentsRejected *prometheus.CounterVec // labels: reason
	OpenRisk        prometheus.Gauge
	DailyPnL        prometheus.Gauge
	BreakerState    prometheus.Gauge // 0=armed, 1=tripped

	// Execution
	TradesClosed *prometheus.CounterVec // labels: exit_kind
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_ticks_total",
			Help: "Raw tickers received from the feed",
		}),
		TicksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_ticks_rejected_total",
			Help: "Raw tickers rejected by the normalizer",
		}),
		TicksPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_ticks_published_total",
			Help: "Normalized ticks published to the bus",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_ws_reconnects_total",
			Help: "WebSocket reconnection attempts",
		}),
		DroppedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_dropped_ticks_total",
			Help: "Ticks dropped because a channel was full",
		}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_fanout_drops_total",
			Help: "Ticks dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),

		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_candles_total",
			Help: "Closed candles emitted per symbol",
		}, []string{"symbol"}),
		LateTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_late_ticks_total",
			Help: "Ticks dropped for arriving after their candle closed",
		}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_signals_total",
			Help: "Signals emitted per strategy and direction",
		}, []string{"strategy", "direction"}),
		StrategyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_strategy_failures_total",
			Help: "Strategy evaluations that errored or panicked",
		}, []string{"strategy"}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_decisions_total",
			Help: "Combined decisions per policy and direction",
		}, []string{"policy", "direction"}),
		EvaluateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_evaluate_duration_seconds",
			Help:    "Full candle-close evaluation latency (strategies through risk)",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),

		SizingSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_sizing_skips_total",
			Help: "Decisions the sizer declined to turn into intents",
		}, []string{"reason"}),
		IntentsApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_intents_approved_total",
			Help: "Position intents approved by the risk gate",
		}),
		IntentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_intents_rejected_total",
			Help: "Position intents rejected by the risk gate per reason",
		}, []string{"reason"}),
		OpenRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_open_risk",
			Help: "Summed risk amount of live positions, quote units",
		}),
		DailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_daily_pnl",
			Help: "Realized profit and loss booked today, quote units",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradebot_circuit_breaker_state",
			Help: "Drawdown circuit breaker state (0=armed, 1=tripped)",
		}),

		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_trades_closed_total",
			Help: "Paper trades closed per exit kind",
		}, []string{"exit_kind"}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.TicksRejected,
		m.TicksPublished,
		m.WSReconnects,
		m.DroppedTicks,
		m.FanoutDropsTotal,
		m.CandlesTotal,
		m.LateTicks,
		m.SignalsTotal,
		m.StrategyFailures,
		m.DecisionsTotal,
		m.EvaluateDur,
		m.SizingSkips,
		m.IntentsApproved,
		m.IntentsRejected,
		m.OpenRisk,
		m.DailyPnL,
		m.BreakerState,
		m.TradesClosed,
	)

	return m
}

// HealthStatus represents the process health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	JournalOK      bool      `json:"journal_ok"`
	BreakerTripped bool      `json:"breaker_tripped"`

	RedisLatencyMs   float64   `json:"redis_latency_ms"`
	JournalLatencyMs float64   `json:"journal_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetBreakerTripped(v bool) {
	h.mu.Lock()
	h.BreakerTripped = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckJournal pings the journal database and records latency and health.
func (h *HealthStatus) CheckJournal(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.JournalOK = err == nil
	h.JournalLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency probes until ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, journalDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if journalDB != nil {
					h.CheckJournal(probeCtx, journalDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.WSConnected || !h.RedisConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if h.BreakerTripped {
		overallStatus = "halted"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		WSConnected      bool    `json:"ws_connected"`
		LastTickTime     string  `json:"last_tick_time"`
		TickAge          string  `json:"tick_age"`
		RedisConnected   bool    `json:"redis_connected"`
		RedisLatencyMs   float64 `json:"redis_latency_ms"`
		JournalOK        bool    `json:"journal_ok"`
		JournalLatencyMs float64 `json:"journal_latency_ms"`
		BreakerTripped   bool    `json:"breaker_tripped"`
		LastCheckAt      string  `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:      h.WSConnected,
		LastTickTime:     h.LastTickTime.Format(time.RFC3339),
		TickAge:          tickAge,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		JournalOK:        h.JournalOK,
		JournalLatencyMs: h.JournalLatencyMs,
		BreakerTripped:   h.BreakerTripped,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	mux    *http.ServeMux
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		mux:    mux,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handle registers an extra operator endpoint. Call before Start.
func (s *Server) Handle(pattern string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, h)
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
