package execution

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"auctioncore/pkg/broker"
	"auctioncore/pkg/market"
)

type fakeBroker struct {
	orders       []broker.OrderStatus
	cancelled    []string
	placeCalls   int
	placeErr     error
}

func (f *fakeBroker) GetAccount(ctx context.Context) (broker.Account, error) { return broker.Account{}, nil }
func (f *fakeBroker) GetPositions(ctx context.Context) ([]broker.Position, error) { return nil, nil }

func (f *fakeBroker) PlaceBracketOrder(ctx context.Context, req broker.BracketOrderRequest) (broker.OrderAck, error) {
	f.placeCalls++
	if f.placeErr != nil {
		return broker.OrderAck{}, f.placeErr
	}
	return broker.OrderAck{ID: "order-1", Status: "open"}, nil
}

func (f *fakeBroker) CancelOrder(ctx context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeBroker) GetOrders(ctx context.Context, status string) ([]broker.OrderStatus, error) {
	return f.orders, nil
}

func (f *fakeBroker) ClosePosition(ctx context.Context, symbol string) error { return nil }

func TestPlaceBracketOrderTracks(t *testing.T) {
	fb := &fakeBroker{}
	m := NewMonitor(fb, Config{}, slog.Default())

	order, err := m.PlaceBracketOrder(context.Background(), broker.BracketOrderRequest{
		Symbol: "ES", Qty: 10, Side: market.SideBuy,
	}, 100)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if order.ID != "order-1" {
		t.Fatalf("id = %v, want order-1", order.ID)
	}
	if len(m.Tracked()) != 1 {
		t.Fatalf("expected 1 tracked order, got %d", len(m.Tracked()))
	}
}

func TestCheckOnceCancelsOnTimeout(t *testing.T) {
	fb := &fakeBroker{orders: []broker.OrderStatus{{ID: "order-1", Status: "open"}}}
	m := NewMonitor(fb, Config{MaxOrderAge: time.Millisecond}, slog.Default())
	m.tracked["order-1"] = &TrackedOrder{ID: "order-1", Symbol: "ES", PlacedAt: time.Now().Add(-time.Hour)}

	time.Sleep(2 * time.Millisecond)
	m.checkOnce(context.Background(), nil)

	if len(fb.cancelled) != 1 {
		t.Fatalf("expected 1 cancellation, got %d", len(fb.cancelled))
	}
	if len(m.Tracked()) != 0 {
		t.Fatal("expected order to be untracked after cancellation")
	}
}

func TestCheckOnceFillsWhenBrokerClosesOrder(t *testing.T) {
	fb := &fakeBroker{orders: []broker.OrderStatus{{ID: "order-1", Status: "filled"}}}
	m := NewMonitor(fb, Config{}, slog.Default())
	m.tracked["order-1"] = &TrackedOrder{ID: "order-1", Symbol: "ES", PlacedAt: time.Now()}

	var filled bool
	m.OnFill(func(FillEvent) { filled = true })

	m.checkOnce(context.Background(), nil)

	if !filled {
		t.Fatal("expected fill callback to run")
	}
	if len(m.Tracked()) != 0 {
		t.Fatal("expected order removed from tracking after fill")
	}
}

func TestReconcileDropsUnknownOrders(t *testing.T) {
	fb := &fakeBroker{orders: []broker.OrderStatus{{ID: "order-2", Status: "open"}}}
	m := NewMonitor(fb, Config{}, slog.Default())
	m.tracked["order-1"] = &TrackedOrder{ID: "order-1"}
	m.tracked["order-2"] = &TrackedOrder{ID: "order-2"}

	if err := m.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(m.Tracked()) != 1 {
		t.Fatalf("expected 1 tracked order after reconcile, got %d", len(m.Tracked()))
	}
}
