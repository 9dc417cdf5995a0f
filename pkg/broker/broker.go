// Package broker defines the external broker contract the live
// execution path depends on, and a REST-backed implementation of it.
package broker

import (
	"context"
	"time"

	"auctioncore/pkg/market"
)

// Account mirrors the broker's account snapshot.
type Account struct {
	PortfolioValue float64
	Equity         float64
	LastEquity     float64
	BuyingPower    float64
	Cash           float64
	AccountBlocked bool
	TradingBlocked bool
}

// Position mirrors one broker-reported open position.
type Position struct {
	Symbol          string
	Qty             float64
	AvgEntryPrice   float64
	CurrentPrice    float64
	UnrealizedPL    float64
	UnrealizedPLPct float64
}

// OrderAck is the broker's response to a placed order.
type OrderAck struct {
	ID     string
	Status string
}

// OrderStatus is one entry from get_orders.
type OrderStatus struct {
	ID        string
	Symbol    string
	Status    string
	Side      market.Side
	Qty       float64
	FilledQty float64
	UpdatedAt time.Time
}

// BracketOrderRequest is a market-entry + limit-take-profit +
// stop-loss bundle managed as one unit by the broker.
type BracketOrderRequest struct {
	Symbol         string
	Qty            int64
	Side           market.Side
	TakeProfitPrice float64
	StopLossPrice   float64
}

// Broker is the external contract consumed by the live execution
// path. It is deliberately narrow: authentication and transport
// retries live in the concrete implementation, not here.
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	PlaceBracketOrder(ctx context.Context, req BracketOrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, id string) error
	GetOrders(ctx context.Context, status string) ([]OrderStatus, error)
	ClosePosition(ctx context.Context, symbol string) error
}
