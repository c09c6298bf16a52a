// Package config loads process configuration: connection and tuning knobs
// from environment variables, and the per-symbol trading pipeline from a
// JSON file. Both fail fast on invalid values.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gamboaalejandro/trading-bot/internal/engine"
	"github.com/gamboaalejandro/trading-bot/internal/marketdata/normalize"
	"github.com/gamboaalejandro/trading-bot/internal/portfolio"
	"github.com/gamboaalejandro/trading-bot/internal/risk"
	"github.com/gamboaalejandro/trading-bot/internal/sizing"
	"github.com/gamboaalejandro/trading-bot/internal/strategy"
)

// Config holds environment-sourced configuration.
type Config struct {
	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	JournalPath   string
	MetricsAddr   string

	// Market data
	FeedURL           string
	Symbols           string // comma-separated, canonicalized by ParseSymbols
	CandleIntervalSec int
	WindowSize        int

	// Trading pipeline definition
	PipelinePath string

	// Risk operator secret (optional; empty disables the TOTP reset guard)
	TOTPSecret string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		JournalPath:   getEnv("JOURNAL_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		FeedURL:           mustEnv("FEED_URL"),
		Symbols:           getEnv("SYMBOLS", "BTC/USDT,ETH/USDT"),
		CandleIntervalSec: getEnvInt("CANDLE_INTERVAL_SEC", 60),
		WindowSize:        getEnvInt("WINDOW_SIZE", 100),

		PipelinePath: getEnv("PIPELINE_CONFIG", "config/pipeline.json"),

		TOTPSecret: getEnv("RISK_TOTP_SECRET", ""),
	}
}

// CandleInterval returns the candle interval as a duration.
func (c *Config) CandleInterval() time.Duration {
	return time.Duration(c.CandleIntervalSec) * time.Second
}

// ParseSymbols splits and canonicalizes the configured symbol list,
// dropping empties and duplicates.
func (c *Config) ParseSymbols() []string {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(c.Symbols, ",") {
		s := normalize.CanonicalSymbol(part)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// CorrelationPair is one entry of the correlation matrix in the pipeline file.
type CorrelationPair struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Coefficient float64 `json:"coefficient"`
}

// Pipeline is the JSON trading pipeline definition: which strategies run per
// symbol, how their signals combine, and the sizing and risk parameters.
type Pipeline struct {
	Defaults             engine.SymbolConfig            `json:"defaults"`
	Symbols              map[string]engine.SymbolConfig `json:"symbols,omitempty"`
	Sizing               sizing.Config                  `json:"sizing"`
	Risk                 risk.Config                    `json:"risk"`
	Correlations         []CorrelationPair              `json:"correlations,omitempty"`
	CorrelationThreshold float64                        `json:"correlation_threshold"`
}

// LoadPipeline reads and validates the pipeline definition.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read pipeline: %w", err)
	}
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse pipeline: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate rejects unknown strategies or policies and out-of-range risk
// parameters before anything starts trading on them.
func (p *Pipeline) Validate() error {
	if err := validateSymbolConfig("defaults", p.Defaults); err != nil {
		return err
	}
	for symbol, sc := range p.Symbols {
		if err := validateSymbolConfig(symbol, sc); err != nil {
			return err
		}
	}

	if p.Risk.InitialCapital <= 0 {
		return fmt.Errorf("config: risk.initial_capital must be positive")
	}
	if p.Risk.MaxTotalExposure < 0 || p.Risk.MaxTotalExposure > 1 {
		return fmt.Errorf("config: risk.max_total_exposure %v outside [0,1]", p.Risk.MaxTotalExposure)
	}
	if p.Risk.MaxDailyDrawdown < 0 || p.Risk.MaxDailyDrawdown > 1 {
		return fmt.Errorf("config: risk.max_daily_drawdown %v outside [0,1]", p.Risk.MaxDailyDrawdown)
	}
	if p.Risk.MinConfidence < 0 || p.Risk.MinConfidence > 1 {
		return fmt.Errorf("config: risk.min_confidence %v outside [0,1]", p.Risk.MinConfidence)
	}

	if p.Sizing.WinRate < 0 || p.Sizing.WinRate >= 1 {
		return fmt.Errorf("config: sizing.win_rate %v outside [0,1)", p.Sizing.WinRate)
	}
	if p.Sizing.AvgWin < 0 || p.Sizing.AvgLoss < 0 {
		return fmt.Errorf("config: sizing averages must not be negative")
	}

	for _, pair := range p.Correlations {
		if pair.A == "" || pair.B == "" || pair.A == pair.B {
			return fmt.Errorf("config: malformed correlation pair %q/%q", pair.A, pair.B)
		}
		if pair.Coefficient < -1 || pair.Coefficient > 1 {
			return fmt.Errorf("config: correlation %s/%s coefficient %v outside [-1,1]",
				pair.A, pair.B, pair.Coefficient)
		}
	}
	return nil
}

func validateSymbolConfig(scope string, sc engine.SymbolConfig) error {
	if len(sc.Strategies) == 0 {
		return fmt.Errorf("config: %s: no strategies", scope)
	}
	if _, err := strategy.ParsePolicy(sc.Policy); err != nil {
		return fmt.Errorf("config: %s: %w", scope, err)
	}
	if sc.MinConfidence < 0 || sc.MinConfidence > 1 {
		return fmt.Errorf("config: %s: min_confidence %v outside [0,1]", scope, sc.MinConfidence)
	}
	if sc.WeightedThreshold < 0 || sc.WeightedThreshold > 1 {
		return fmt.Errorf("config: %s: weighted_threshold %v outside [0,1]", scope, sc.WeightedThreshold)
	}
	for _, spec := range sc.Strategies {
		if _, err := strategy.Build(spec); err != nil {
			return fmt.Errorf("config: %s: %w", scope, err)
		}
	}
	return nil
}

// CorrelationMatrix builds the matrix from the file's pairs. A zero
// threshold defaults to 0.7.
func (p *Pipeline) CorrelationMatrix() *portfolio.CorrelationMatrix {
	threshold := p.CorrelationThreshold
	if threshold == 0 {
		threshold = 0.7
	}
	pairs := make(map[[2]string]float64, len(p.Correlations))
	for _, pair := range p.Correlations {
		pairs[[2]string{pair.A, pair.B}] = pair.Coefficient
	}
	return portfolio.NewCorrelationMatrix(pairs, threshold)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("[config] env var %s: invalid integer %q", key, v)
	}
	return n
}
