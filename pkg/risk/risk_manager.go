// Package risk watches the portfolio's running equity and raises
// structured alerts — and, past a threshold of critical alerts, an
// emergency stop — independently of the inline gates the portfolio
// manager checks before opening a position. It is the operator-facing
// observability layer for the same two risk knobs the portfolio
// enforces: max daily loss and minimum account balance.
package risk

import (
	"log"
	"sync"
	"time"
)

// AlertLevel distinguishes an advisory alert from one that should
// stop new trading.
type AlertLevel string

const (
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

// Alert is one risk-limit breach.
type Alert struct {
	Timestamp    time.Time
	Level        AlertLevel
	Message      string
	CurrentValue float64
	LimitValue   float64
}

// Config bundles the thresholds the monitor checks on every tick.
type Config struct {
	MaxDailyLossPct        float64
	MinAccountBalance      float64
	EmergencyStopThreshold int // consecutive critical alerts before emergency stop
}

// Monitor tracks daily-loss and minimum-balance breaches and exposes
// an emergency-stop flag the live daemon checks before evaluating new
// signals.
type Monitor struct {
	mu             sync.RWMutex
	cfg            Config
	alerts         []Alert
	criticalStreak int
	emergencyStop  bool
}

// NewMonitor creates a risk monitor from the configured thresholds.
func NewMonitor(cfg Config) *Monitor {
	if cfg.EmergencyStopThreshold <= 0 {
		cfg.EmergencyStopThreshold = 3
	}
	return &Monitor{cfg: cfg}
}

// Check evaluates the current equity against the daily baseline and
// the minimum account balance, appending an alert and updating the
// emergency-stop state when a threshold is breached.
func (m *Monitor) Check(equity, dailyStartEquity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	breached := false

	if equity < m.cfg.MinAccountBalance {
		m.record(LevelCritical, "equity below minimum account balance", equity, m.cfg.MinAccountBalance)
		breached = true
	}

	if dailyStartEquity > 0 {
		dailyPnLPct := (equity - dailyStartEquity) / dailyStartEquity * 100
		if dailyPnLPct <= -m.cfg.MaxDailyLossPct {
			m.record(LevelCritical, "daily loss limit breached", dailyPnLPct, -m.cfg.MaxDailyLossPct)
			breached = true
		}
	}

	if breached {
		m.criticalStreak++
		if m.criticalStreak >= m.cfg.EmergencyStopThreshold {
			m.emergencyStop = true
			log.Printf("[RiskMonitor] emergency stop triggered after %d consecutive critical alerts", m.criticalStreak)
		}
	} else {
		m.criticalStreak = 0
	}
}

func (m *Monitor) record(level AlertLevel, message string, current, limit float64) {
	alert := Alert{
		Timestamp:    time.Now(),
		Level:        level,
		Message:      message,
		CurrentValue: current,
		LimitValue:   limit,
	}
	m.alerts = append(m.alerts, alert)
	log.Printf("[RiskMonitor] %s: %s (current=%.4f limit=%.4f)", level, message, current, limit)
}

// EmergencyStop reports whether the emergency-stop threshold has been
// crossed.
func (m *Monitor) EmergencyStop() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emergencyStop
}

// Reset clears the emergency-stop flag and critical streak.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyStop = false
	m.criticalStreak = 0
}

// Alerts returns a copy of the recorded alert history.
func (m *Monitor) Alerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}
