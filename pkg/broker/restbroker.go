package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"auctioncore/pkg/market"
)

// RESTConfig configures the concrete REST broker client.
type RESTConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RESTBroker implements Broker against a generic bracket-order REST
// API, retrying transient 5xx responses with backoff and authenticating
// via a bearer API key header.
type RESTBroker struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewRESTBroker builds a REST broker client with retry and timeout
// policy matching this codebase's other external-service clients.
func NewRESTBroker(cfg RESTConfig, logger *slog.Logger) *RESTBroker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.APIKey)

	return &RESTBroker{http: httpClient, logger: logger}
}

type accountPayload struct {
	PortfolioValue string `json:"portfolio_value"`
	Equity         string `json:"equity"`
	LastEquity     string `json:"last_equity"`
	BuyingPower    string `json:"buying_power"`
	Cash           string `json:"cash"`
	AccountBlocked bool   `json:"account_blocked"`
	TradingBlocked bool   `json:"trading_blocked"`
}

// GetAccount fetches the current account snapshot.
func (b *RESTBroker) GetAccount(ctx context.Context) (Account, error) {
	var payload accountPayload
	resp, err := b.http.R().SetContext(ctx).SetResult(&payload).Get("/v2/account")
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Account{}, fmt.Errorf("get account: status %d: %s", resp.StatusCode(), resp.String())
	}

	return Account{
		PortfolioValue: parseFloat(payload.PortfolioValue),
		Equity:         parseFloat(payload.Equity),
		LastEquity:     parseFloat(payload.LastEquity),
		BuyingPower:    parseFloat(payload.BuyingPower),
		Cash:           parseFloat(payload.Cash),
		AccountBlocked: payload.AccountBlocked,
		TradingBlocked: payload.TradingBlocked,
	}, nil
}

type positionPayload struct {
	Symbol          string `json:"symbol"`
	Qty             string `json:"qty"`
	AvgEntryPrice   string `json:"avg_entry_price"`
	CurrentPrice    string `json:"current_price"`
	UnrealizedPL    string `json:"unrealized_pl"`
	UnrealizedPLPct string `json:"unrealized_plpc"`
}

// GetPositions fetches every broker-reported open position.
func (b *RESTBroker) GetPositions(ctx context.Context) ([]Position, error) {
	var payload []positionPayload
	resp, err := b.http.R().SetContext(ctx).SetResult(&payload).Get("/v2/positions")
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get positions: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make([]Position, 0, len(payload))
	for _, p := range payload {
		out = append(out, Position{
			Symbol:          p.Symbol,
			Qty:             parseFloat(p.Qty),
			AvgEntryPrice:   parseFloat(p.AvgEntryPrice),
			CurrentPrice:    parseFloat(p.CurrentPrice),
			UnrealizedPL:    parseFloat(p.UnrealizedPL),
			UnrealizedPLPct: parseFloat(p.UnrealizedPLPct),
		})
	}
	return out, nil
}

type bracketOrderPayload struct {
	Symbol          string  `json:"symbol"`
	Qty             int64   `json:"qty"`
	Side            string  `json:"side"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	StopLossPrice   float64 `json:"stop_loss_price"`
	Type            string  `json:"type"`
	OrderClass      string  `json:"order_class"`
}

type orderAckPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// PlaceBracketOrder submits a market-entry order with linked
// take-profit and stop-loss legs. Prices are rounded to two decimals
// per the execution path's documented precision.
func (b *RESTBroker) PlaceBracketOrder(ctx context.Context, req BracketOrderRequest) (OrderAck, error) {
	payload := bracketOrderPayload{
		Symbol:          req.Symbol,
		Qty:             req.Qty,
		Side:            string(req.Side),
		TakeProfitPrice: roundToCents(req.TakeProfitPrice),
		StopLossPrice:   roundToCents(req.StopLossPrice),
		Type:            "market",
		OrderClass:      "bracket",
	}

	var ack orderAckPayload
	resp, err := b.http.R().SetContext(ctx).SetBody(payload).SetResult(&ack).Post("/v2/orders")
	if err != nil {
		return OrderAck{}, fmt.Errorf("place bracket order: %w", err)
	}
	if resp.StatusCode() >= 300 {
		b.logger.Error("broker rejected bracket order", "status", resp.StatusCode(), "body", resp.String())
		return OrderAck{}, fmt.Errorf("place bracket order: status %d: %s", resp.StatusCode(), resp.String())
	}

	return OrderAck{ID: ack.ID, Status: ack.Status}, nil
}

// CancelOrder cancels a pending order by id.
func (b *RESTBroker) CancelOrder(ctx context.Context, id string) error {
	resp, err := b.http.R().SetContext(ctx).Delete("/v2/orders/" + id)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", id, err)
	}
	if resp.StatusCode() >= 300 && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("cancel order %s: status %d: %s", id, resp.StatusCode(), resp.String())
	}
	return nil
}

type orderStatusPayload struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Status    string `json:"status"`
	Side      string `json:"side"`
	Qty       string `json:"qty"`
	FilledQty string `json:"filled_qty"`
}

// GetOrders fetches the broker's full order list, optionally filtered
// by status.
func (b *RESTBroker) GetOrders(ctx context.Context, status string) ([]OrderStatus, error) {
	req := b.http.R().SetContext(ctx)
	if status != "" {
		req = req.SetQueryParam("status", status)
	}

	var payload []orderStatusPayload
	resp, err := req.SetResult(&payload).Get("/v2/orders")
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make([]OrderStatus, 0, len(payload))
	for _, o := range payload {
		out = append(out, OrderStatus{
			ID:        o.ID,
			Symbol:    o.Symbol,
			Status:    o.Status,
			Side:      market.Side(o.Side),
			Qty:       parseFloat(o.Qty),
			FilledQty: parseFloat(o.FilledQty),
			UpdatedAt: time.Now(),
		})
	}
	return out, nil
}

// ClosePosition closes the entire open position for a symbol at
// market.
func (b *RESTBroker) ClosePosition(ctx context.Context, symbol string) error {
	resp, err := b.http.R().SetContext(ctx).Delete("/v2/positions/" + symbol)
	if err != nil {
		return fmt.Errorf("close position %s: %w", symbol, err)
	}
	if resp.StatusCode() >= 300 {
		return fmt.Errorf("close position %s: status %d: %s", symbol, resp.StatusCode(), resp.String())
	}
	return nil
}

// roundToCents rounds a price to two decimal places using shopspring/decimal
// rather than float64 arithmetic, so bracket-order legs never drift off
// the cent grid through binary floating-point rounding.
func roundToCents(v float64) float64 {
	r, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return r
}

func parseFloat(s string) float64 {
	var f float64
	_, _ = fmt.Sscanf(s, "%g", &f)
	return f
}
