// Package portfolio tracks at-most-one Position per symbol, enforces
// the risk gates that must pass before a new position opens, and
// accumulates the equity curve and trade log for a run.
package portfolio

import (
	"fmt"
	"log"
	"sync"
	"time"

	"auctioncore/pkg/market"
)

// PositionState is a Position's place in its opening->open->closing->
// closed lifecycle.
type PositionState string

const (
	StateOpening PositionState = "opening"
	StateOpen    PositionState = "open"
	StateClosing PositionState = "closing"
	StateClosed  PositionState = "closed"
)

// Position is an open (or recently closed) holding. Mae <= 0 <= Mfe
// always; BarsHeld is monotonic non-decreasing while open.
type Position struct {
	Symbol            string
	EntryTime         time.Time
	EntryPrice        float64
	Qty               int64
	Side              market.Side
	Stop              float64
	Target            float64
	EntryReason       string
	StateAtEntry      market.State
	AggressionAtEntry float64
	BarsHeld          int
	MAE               float64
	MFE               float64
	State             PositionState
}

// Trade is a closed position, appended to the run's trade log and
// never mutated afterward.
type Trade struct {
	Position
	ExitTime   time.Time
	ExitPrice  float64
	ExitReason string
	PnL        float64
	PnLPct     float64
}

// Config bundles the portfolio's risk gates and starting capital.
type Config struct {
	MaxPositions      int
	MinAccountBalance float64
	MaxDailyLossPct   float64
	InitialCapital    float64
}

// Manager owns the symbol->Position map, cash, equity curve, and
// signal counters for one run (live session or backtest).
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	cash   float64
	equity float64

	positions map[string]*Position
	trades    []Trade

	equityCurve      []EquityPoint
	signalsGenerated map[string]int
	signalsBlocked   map[string]int

	dailyStartEquity float64
	dailyStartDate   string
	brokerBlocked    bool
}

// EquityPoint is one snapshot of the equity curve.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// NewManager creates a manager seeded with the configured initial
// capital.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:              cfg,
		cash:             cfg.InitialCapital,
		equity:           cfg.InitialCapital,
		positions:        make(map[string]*Position),
		signalsGenerated: make(map[string]int),
		signalsBlocked:   make(map[string]int),
		dailyStartEquity: cfg.InitialCapital,
	}
}

// SetBrokerBlocked records whether the broker reports the account or
// trading as blocked; CanOpen consults this gate.
func (m *Manager) SetBrokerBlocked(blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.brokerBlocked = blocked
}

// RollDailyEquity resets the daily-loss baseline at the start of a new
// trading day.
func (m *Manager) RollDailyEquity(day string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dailyStartDate != day {
		m.dailyStartDate = day
		m.dailyStartEquity = m.equity
	}
}

// CanOpen evaluates the §4.H risk gates before a new position opens.
// All must pass; the first failing gate is returned as the reason.
func (m *Manager) CanOpen(symbol string) (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.canOpenLocked(symbol)
}

func (m *Manager) canOpenLocked(symbol string) (bool, string) {
	if m.equity < m.cfg.MinAccountBalance {
		return false, "portfolio value below minimum account balance"
	}
	if m.brokerBlocked {
		return false, "broker account or trading blocked"
	}
	if len(m.positions) >= m.cfg.MaxPositions {
		return false, "max positions reached"
	}
	if _, exists := m.positions[symbol]; exists {
		return false, "position already open for symbol"
	}
	if m.dailyStartEquity > 0 {
		dailyPnLPct := (m.equity - m.dailyStartEquity) / m.dailyStartEquity * 100
		if dailyPnLPct <= -m.cfg.MaxDailyLossPct {
			return false, "daily loss limit reached"
		}
	}
	return true, ""
}

// Open records a new open Position. The live daemon calls this only
// from its order-fill callback, once the broker has acknowledged the
// entry; the backtest runner calls it directly against a bar close,
// where acknowledgement is assumed immediate.
func (m *Manager) Open(symbol string, side market.Side, entryTime time.Time, entryPrice, stop, target float64, qty int64, reason string, stateAtEntry market.State, aggression float64) (*Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, why := m.canOpenLocked(symbol)
	if !ok {
		m.signalsBlocked[symbol]++
		return nil, fmt.Errorf("cannot open position for %s: %s", symbol, why)
	}

	pos := &Position{
		Symbol:            symbol,
		EntryTime:         entryTime,
		EntryPrice:        entryPrice,
		Qty:               qty,
		Side:              side,
		Stop:              stop,
		Target:            target,
		EntryReason:       reason,
		StateAtEntry:      stateAtEntry,
		AggressionAtEntry: aggression,
		State:             StateOpen,
	}
	m.positions[symbol] = pos
	m.cash -= entryPrice * float64(qty)
	m.signalsGenerated[symbol]++

	log.Printf("[Portfolio] opened %s %s qty=%d entry=%.2f stop=%.2f target=%.2f",
		symbol, side, qty, entryPrice, stop, target)

	return pos, nil
}

// MarkClosing transitions an open position to closing, e.g. once a
// stop/target touch has been detected but the fill hasn't been
// confirmed yet.
func (m *Manager) MarkClosing(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos, ok := m.positions[symbol]; ok {
		pos.State = StateClosing
	}
}

// UpdateOpenPosition folds one more bar into an open position's
// excursion tracking (MAE/MFE, bars held).
func (m *Manager) UpdateOpenPosition(symbol string, barHigh, barLow float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return
	}
	pos.BarsHeld++

	var favorable, adverse float64
	if pos.Side == market.SideBuy {
		favorable = barHigh - pos.EntryPrice
		adverse = barLow - pos.EntryPrice
	} else {
		favorable = pos.EntryPrice - barLow
		adverse = pos.EntryPrice - barHigh
	}
	if favorable > pos.MFE {
		pos.MFE = favorable
	}
	if adverse < pos.MAE {
		pos.MAE = adverse
	}
}

// Position returns the open position for a symbol, if any.
func (m *Manager) Position(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// OpenPositions returns a snapshot of every currently open position.
func (m *Manager) OpenPositions() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, *pos)
	}
	return out
}

// Close finalizes a position: computes PnL, appends a Trade, frees the
// symbol slot, and updates cash/equity.
func (m *Manager) Close(symbol string, exitTime time.Time, exitPrice float64, exitReason string) (Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return Trade{}, fmt.Errorf("no open position for %s", symbol)
	}
	pos.State = StateClosed

	var pnl float64
	if pos.Side == market.SideBuy {
		pnl = (exitPrice - pos.EntryPrice) * float64(pos.Qty)
	} else {
		pnl = (pos.EntryPrice - exitPrice) * float64(pos.Qty)
	}
	pnlPct := 0.0
	if pos.EntryPrice > 0 {
		pnlPct = pnl / (pos.EntryPrice * float64(pos.Qty)) * 100
	}

	trade := Trade{
		Position:   *pos,
		ExitTime:   exitTime,
		ExitPrice:  exitPrice,
		ExitReason: exitReason,
		PnL:        pnl,
		PnLPct:     pnlPct,
	}
	m.trades = append(m.trades, trade)

	m.cash += pos.EntryPrice*float64(pos.Qty) + pnl
	delete(m.positions, symbol)
	m.equity = m.cash

	log.Printf("[Portfolio] closed %s reason=%s pnl=%.2f (%.2f%%)", symbol, exitReason, pnl, pnlPct)

	return trade, nil
}

// MarkToMarket recomputes equity from cash plus the unrealized value
// of every open position at its last-seen price.
func (m *Manager) MarkToMarket(lastPrices map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	equity := m.cash
	for symbol, pos := range m.positions {
		price, ok := lastPrices[symbol]
		if !ok {
			price = pos.EntryPrice
		}
		if pos.Side == market.SideBuy {
			equity += price * float64(pos.Qty)
		} else {
			equity += (2*pos.EntryPrice - price) * float64(pos.Qty)
		}
	}
	m.equity = equity
}

// SnapshotEquity appends the current equity to the curve.
func (m *Manager) SnapshotEquity(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equityCurve = append(m.equityCurve, EquityPoint{Time: at, Equity: m.equity})
}

// EquityCurve returns the accumulated equity snapshots.
func (m *Manager) EquityCurve() []EquityPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EquityPoint, len(m.equityCurve))
	copy(out, m.equityCurve)
	return out
}

// Trades returns the closed trade log.
func (m *Manager) Trades() []Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// Equity returns the current mark-to-market equity.
func (m *Manager) Equity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.equity
}

// Cash returns the current uninvested cash balance.
func (m *Manager) Cash() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cash
}

// DailyStartEquity returns the equity baseline RollDailyEquity last
// recorded, used by the live daemon's risk monitor to compute the
// day's running loss percentage.
func (m *Manager) DailyStartEquity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dailyStartEquity
}

// SignalCounts returns a copy of the per-symbol generated/blocked
// signal counters, which the backtest runner copies into its result
// in every mode (and logs as the signal ceiling in unlimited mode).
func (m *Manager) SignalCounts() (generated, blocked map[string]int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	generated = make(map[string]int, len(m.signalsGenerated))
	blocked = make(map[string]int, len(m.signalsBlocked))
	for k, v := range m.signalsGenerated {
		generated[k] = v
	}
	for k, v := range m.signalsBlocked {
		blocked[k] = v
	}
	return generated, blocked
}

// PrintReport prints a run summary in the same box-drawing style used
// elsewhere in this codebase's CLI output.
func (m *Manager) PrintReport() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalPnL := m.equity - m.cfg.InitialCapital
	totalReturn := 0.0
	if m.cfg.InitialCapital > 0 {
		totalReturn = totalPnL / m.cfg.InitialCapital * 100
	}

	fmt.Println("\n╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║                   Portfolio Report                          ║")
	fmt.Println("╠════════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Initial Capital:    %-39.2f║\n", m.cfg.InitialCapital)
	fmt.Printf("║ Equity:             %-39.2f║\n", m.equity)
	fmt.Printf("║ Cash:               %-39.2f║\n", m.cash)
	fmt.Printf("║ Total P&L:          %-39.2f║\n", totalPnL)
	fmt.Printf("║ Return:             %-38.2f%%║\n", totalReturn)
	fmt.Printf("║ Open Positions:     %-39d║\n", len(m.positions))
	fmt.Printf("║ Closed Trades:      %-39d║\n", len(m.trades))
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
}
