// Package execution places bracket orders through a broker, tracks
// their pending lifecycle, and reconciles tracked state against the
// broker's own order list.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"auctioncore/pkg/broker"
	"auctioncore/pkg/market"
)

const (
	defaultMaxOrderAge    = 5 * time.Minute
	defaultMaxSlippagePct = 1.0
)

// CancelReason names why the order monitor canceled a tracked order.
type CancelReason string

const (
	CancelTimeout  CancelReason = "timeout"
	CancelSlippage CancelReason = "slippage"
)

// TrackedOrder is one bracket order's lifecycle state, from
// acceptance through fill or cancellation.
type TrackedOrder struct {
	ID         string
	Symbol     string
	Side       market.Side
	Qty        int64
	EntryPrice float64
	PlacedAt   time.Time
	Status     string
	IsLimit    bool
}

// FillEvent is emitted when the order monitor observes a tracked
// order is no longer open at the broker.
type FillEvent struct {
	Order TrackedOrder
}

// Config bundles the order monitor's tunable thresholds.
type Config struct {
	MaxOrderAge    time.Duration // default 5 minutes
	MaxSlippagePct float64       // default 1.0
	CheckInterval  time.Duration
}

// Monitor places bracket orders and runs the periodic lifecycle and
// reconciliation passes described for the live execution path.
type Monitor struct {
	mu      sync.RWMutex
	broker  broker.Broker
	cfg     Config
	logger  *slog.Logger
	tracked map[string]*TrackedOrder

	onFill func(FillEvent)

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates an order monitor bound to a broker client.
func NewMonitor(b broker.Broker, cfg Config, logger *slog.Logger) *Monitor {
	if cfg.MaxOrderAge <= 0 {
		cfg.MaxOrderAge = defaultMaxOrderAge
	}
	if cfg.MaxSlippagePct <= 0 {
		cfg.MaxSlippagePct = defaultMaxSlippagePct
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	return &Monitor{
		broker:  b,
		cfg:     cfg,
		logger:  logger,
		tracked: make(map[string]*TrackedOrder),
	}
}

// OnFill registers the callback invoked when a tracked order is
// observed filled.
func (m *Monitor) OnFill(cb func(FillEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFill = cb
}

// PlaceBracketOrder submits the bracket and, on acceptance, begins
// tracking its lifecycle.
func (m *Monitor) PlaceBracketOrder(ctx context.Context, req broker.BracketOrderRequest, entryPrice float64) (TrackedOrder, error) {
	ack, err := m.broker.PlaceBracketOrder(ctx, req)
	if err != nil {
		return TrackedOrder{}, err
	}

	order := &TrackedOrder{
		ID:         ack.ID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Qty:        req.Qty,
		EntryPrice: entryPrice,
		PlacedAt:   time.Now(),
		Status:     ack.Status,
		IsLimit:    true,
	}

	m.mu.Lock()
	m.tracked[order.ID] = order
	m.mu.Unlock()

	m.logger.Info("bracket order placed", "id", order.ID, "symbol", order.Symbol, "side", order.Side, "qty", order.Qty)
	return *order, nil
}

// Start begins the periodic lifecycle-check loop. The loop passes no
// current prices to checkOnce, so it applies the broker-status and
// order-age rules; the slippage rule is not applied by this loop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop halts the lifecycle-check loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkOnce(ctx, nil)
		}
	}
}

// checkOnce runs one lifecycle pass over every tracked order:
// treating broker-closed orders as fills, canceling on timeout, and
// canceling limit orders on excess slippage. currentPrices maps
// symbol to mark price for the slippage check; it may be nil, in
// which case the slippage rule is skipped for that cycle.
func (m *Monitor) checkOnce(ctx context.Context, currentPrices map[string]float64) {
	m.mu.RLock()
	orders := make([]*TrackedOrder, 0, len(m.tracked))
	for _, o := range m.tracked {
		orders = append(orders, o)
	}
	m.mu.RUnlock()

	for _, order := range orders {
		m.checkOrder(ctx, order, currentPrices)
	}
}

func (m *Monitor) checkOrder(ctx context.Context, order *TrackedOrder, currentPrices map[string]float64) {
	statuses, err := m.broker.GetOrders(ctx, "")
	if err != nil {
		m.logger.Warn("order monitor: failed to fetch broker orders", "error", err)
		return
	}

	stillOpen := false
	for _, s := range statuses {
		if s.ID == order.ID {
			stillOpen = s.Status == "open" || s.Status == "new" || s.Status == "partially_filled"
			break
		}
	}

	if !stillOpen {
		m.fill(order)
		return
	}

	age := time.Since(order.PlacedAt)
	if age > m.cfg.MaxOrderAge {
		m.cancel(ctx, order, CancelTimeout)
		return
	}

	if order.IsLimit && currentPrices != nil {
		if price, ok := currentPrices[order.Symbol]; ok {
			slippagePct := math.Abs(price-order.EntryPrice) / order.EntryPrice * 100
			if slippagePct > m.cfg.MaxSlippagePct {
				m.cancel(ctx, order, CancelSlippage)
			}
		}
	}
}

func (m *Monitor) fill(order *TrackedOrder) {
	m.mu.Lock()
	delete(m.tracked, order.ID)
	cb := m.onFill
	m.mu.Unlock()

	if cb != nil {
		cb(FillEvent{Order: *order})
	}
}

func (m *Monitor) cancel(ctx context.Context, order *TrackedOrder, reason CancelReason) {
	if err := m.broker.CancelOrder(ctx, order.ID); err != nil {
		m.logger.Error("order monitor: cancel failed", "id", order.ID, "reason", reason, "error", err)
		return
	}
	m.mu.Lock()
	delete(m.tracked, order.ID)
	m.mu.Unlock()
	m.logger.Info("order canceled", "id", order.ID, "symbol", order.Symbol, "reason", reason)
}

// Reconcile fetches the broker's full order list and drops any
// tracked id the broker no longer recognizes.
func (m *Monitor) Reconcile(ctx context.Context) error {
	statuses, err := m.broker.GetOrders(ctx, "")
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	known := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		known[s.ID] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.tracked {
		if !known[id] {
			delete(m.tracked, id)
		}
	}
	return nil
}

// Tracked returns a snapshot of every order the monitor still tracks.
func (m *Monitor) Tracked() []TrackedOrder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TrackedOrder, 0, len(m.tracked))
	for _, o := range m.tracked {
		out = append(out, *o)
	}
	return out
}
