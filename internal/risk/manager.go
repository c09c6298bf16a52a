// Package risk implements the portfolio risk gate: the final, serialized
// check every position intent passes before any capital is reserved.
package risk

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/gamboaalejandro/trading-bot/internal/model"
	"github.com/gamboaalejandro/trading-bot/internal/portfolio"
)

// Reason codes attached to rejections.
const (
	ReasonInvalidIntent  = "invalid_intent"
	ReasonLowConfidence  = "low_confidence"
	ReasonDuplicate      = "duplicate_position"
	ReasonCircuitBreaker = "circuit_breaker"
	ReasonMaxExposure    = "max_exposure"
	ReasonCorrelation    = "correlation_limit"
)

// Rejection explains why an intent was refused.
type Rejection struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func (r *Rejection) Error() string { return r.Code + ": " + r.Detail }

// Config holds the risk limits. Zero values take the documented defaults.
type Config struct {
	InitialCapital         float64 `json:"initial_capital"`          // quote units
	MaxTotalExposure       float64 `json:"max_total_exposure"`       // of capital, default 0.10
	MaxCorrelatedPositions int     `json:"max_correlated_positions"` // default 2
	MaxDailyDrawdown       float64 `json:"max_daily_drawdown"`       // of capital, default 0.05
	MinConfidence          float64 `json:"min_confidence"`           // global floor, default 0.6; per-symbol floors apply upstream

	// TOTPSecret guards the circuit-breaker reset. Empty disables the
	// check and any operator may reset.
	TOTPSecret string `json:"-"`
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxTotalExposure == 0 {
		out.MaxTotalExposure = 0.10
	}
	if out.MaxCorrelatedPositions == 0 {
		out.MaxCorrelatedPositions = 2
	}
	if out.MaxDailyDrawdown == 0 {
		out.MaxDailyDrawdown = 0.05
	}
	if out.MinConfidence == 0 {
		out.MinConfidence = 0.6
	}
	return out
}

// Manager is the risk gate. One mutex covers the whole read-decide-reserve
// sequence so two intents can never both pass against the same headroom.
type Manager struct {
	mu           sync.Mutex
	cfg          Config
	capital      float64
	dailyPnL     float64
	tripped      bool
	positions    map[string]*portfolio.Position
	correlations *portfolio.CorrelationMatrix

	// Hooks for metrics (optional).
	OnReject      func(symbol, code string)
	OnBreakerTrip func(dailyPnL float64)
}

// NewManager creates a risk manager with the given limits and correlation
// matrix. A nil matrix means no symbols are treated as correlated.
func NewManager(cfg Config, correlations *portfolio.CorrelationMatrix) *Manager {
	c := cfg.withDefaults()
	if correlations == nil {
		correlations = portfolio.NewCorrelationMatrix(nil, 0.7)
	}
	return &Manager{
		cfg:          c,
		capital:      c.InitialCapital,
		positions:    make(map[string]*portfolio.Position),
		correlations: correlations,
	}
}

// Approve runs the gate over an intent. On success the position is booked
// as pending and its risk counts toward exposure immediately; the returned
// rejection is nil. On refusal nothing is reserved.
func (m *Manager) Approve(intent *model.PositionIntent) *Rejection {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rej := m.check(intent); rej != nil {
		log.Printf("[risk] rejected %s: %s", intent.Symbol, rej.Error())
		if m.OnReject != nil {
			m.OnReject(intent.Symbol, rej.Code)
		}
		return rej
	}

	m.positions[intent.Symbol] = &portfolio.Position{
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Quantity:   intent.Quantity,
		Notional:   intent.Notional,
		Entry:      intent.Entry,
		StopLoss:   intent.StopLoss,
		TakeProfit: intent.TakeProfit,
		RiskAmount: intent.RiskAmount,
		Status:     portfolio.StatusPending,
		OpenedAt:   time.Now().UTC(),
	}
	return nil
}

// check evaluates every rule in order. Caller holds the lock.
func (m *Manager) check(intent *model.PositionIntent) *Rejection {
	if intent == nil || !intent.Side.Actionable() || intent.Entry <= 0 || intent.StopLoss <= 0 || intent.RiskAmount <= 0 {
		return &Rejection{Code: ReasonInvalidIntent, Detail: "missing side, levels, or risk"}
	}
	if intent.Confidence < m.cfg.MinConfidence {
		return &Rejection{
			Code:   ReasonLowConfidence,
			Detail: fmt.Sprintf("confidence %.2f under floor %.2f", intent.Confidence, m.cfg.MinConfidence),
		}
	}
	if p, ok := m.positions[intent.Symbol]; ok && p.Live() {
		return &Rejection{Code: ReasonDuplicate, Detail: "live position already held in " + intent.Symbol}
	}
	if m.tripped {
		return &Rejection{
			Code:   ReasonCircuitBreaker,
			Detail: fmt.Sprintf("daily loss %.2f tripped the breaker", m.dailyPnL),
		}
	}

	limit := m.cfg.MaxTotalExposure * m.capital
	exposure := m.liveRisk()
	if exposure+intent.RiskAmount > limit {
		return &Rejection{
			Code: ReasonMaxExposure,
			Detail: fmt.Sprintf("risk %.2f + open %.2f exceeds limit %.2f",
				intent.RiskAmount, exposure, limit),
		}
	}

	correlated := 1 // the candidate counts
	for _, p := range m.positions {
		if p.Live() && m.correlations.Correlated(p.Symbol, intent.Symbol) {
			correlated++
		}
	}
	if correlated >= m.cfg.MaxCorrelatedPositions {
		return &Rejection{
			Code: ReasonCorrelation,
			Detail: fmt.Sprintf("%d correlated positions would reach limit %d",
				correlated, m.cfg.MaxCorrelatedPositions),
		}
	}
	return nil
}

func (m *Manager) liveRisk() float64 {
	total := 0.0
	for _, p := range m.positions {
		if p.Live() {
			total += p.RiskAmount
		}
	}
	return total
}

// MarkOpen confirms the fill of a pending position.
func (m *Manager) MarkOpen(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[symbol]; ok && p.Status == portfolio.StatusPending {
		p.Status = portfolio.StatusOpen
	}
}

// MarkClosed releases a position and books its realized profit or loss
// against the day. A loss past the drawdown limit trips the breaker.
func (m *Manager) MarkClosed(symbol string, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	if !ok || !p.Live() {
		return
	}
	p.Status = portfolio.StatusClosed
	delete(m.positions, symbol)
	m.capital += pnl
	m.recordLocked(pnl)
}

// RecordPnL books profit or loss not tied to closing a position.
func (m *Manager) RecordPnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordLocked(pnl)
}

func (m *Manager) recordLocked(pnl float64) {
	m.dailyPnL += pnl
	if m.tripped {
		return
	}
	// Compare as a ratio of capital so a loss of exactly the limit trips.
	if m.cfg.InitialCapital > 0 && m.dailyPnL/m.cfg.InitialCapital <= -m.cfg.MaxDailyDrawdown {
		m.tripped = true
		log.Printf("[risk] circuit breaker tripped: daily pnl %.2f", m.dailyPnL)
		if m.OnBreakerTrip != nil {
			m.OnBreakerTrip(m.dailyPnL)
		}
	}
}

// ResetDaily clears the daily loss counter and re-arms the breaker. When a
// TOTP secret is configured the operator's one-time code must validate;
// the breaker never resets on its own.
func (m *Manager) ResetDaily(totpCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.TOTPSecret != "" && !totp.Validate(totpCode, m.cfg.TOTPSecret) {
		return fmt.Errorf("risk: invalid reset code")
	}
	m.dailyPnL = 0
	m.tripped = false
	log.Printf("[risk] daily counters reset, breaker re-armed")
	return nil
}

// ReloadCorrelations swaps in a freshly built matrix.
func (m *Manager) ReloadCorrelations(c *portfolio.CorrelationMatrix) {
	if c == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.correlations = c
}

// BreakerTripped reports whether the kill switch is engaged.
func (m *Manager) BreakerTripped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tripped
}

// DailyPnL returns the realized profit or loss booked today.
func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyPnL
}

// Capital returns the current account capital.
func (m *Manager) Capital() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capital
}

// Exposure returns the summed risk of live positions.
func (m *Manager) Exposure() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveRisk()
}

// Positions returns a snapshot of the live book.
func (m *Manager) Positions() []portfolio.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]portfolio.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// Position returns a copy of one live position, if held.
func (m *Manager) Position(symbol string) (portfolio.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	if !ok {
		return portfolio.Position{}, false
	}
	return *p, true
}
