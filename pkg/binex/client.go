// Package binex implements the REST client for the binary-market
// venue the arbitrage engine trades against: market metadata, paired
// YES/NO quotes, and the order placement the engine needs to enter
// and unwind a spread position. Prices move as decimal fractions of
// $1, so every price on the wire round-trips through decimal.Decimal
// rather than float64 to avoid rounding drift across a paired entry.
package binex

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"auctioncore/pkg/arbitrage"
)

// Config points the client at one binary-market venue.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is a REST client for the configured binary-market venue,
// with a local cache of each tracked market's token IDs and
// resolution time so PositionLookup queries don't need a metadata
// round trip (CurrentSpread still fetches both books).
type Client struct {
	http *resty.Client

	mu      sync.RWMutex
	markets map[string]arbitrage.BinaryMarket // keyed by Symbol
}

// NewClient builds a venue client with the same retry/timeout policy
// used by this codebase's other external REST clients.
func NewClient(cfg Config) *Client {
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

	return &Client{http: httpClient, markets: make(map[string]arbitrage.BinaryMarket)}
}

type marketPayload struct {
	MarketID string    `json:"market_id"`
	Symbol   string    `json:"symbol"`
	YesToken string    `json:"yes_token_id"`
	NoToken  string    `json:"no_token_id"`
	Question string    `json:"question"`
	Category string    `json:"category"`
	EndDate  time.Time `json:"end_date"`
	Status   string    `json:"status"`
}

// FetchMarket resolves one market ID's metadata and caches it under
// its symbol, so later CurrentSpread/TimeToResolution calls can look
// it up without a fresh request.
func (c *Client) FetchMarket(ctx context.Context, marketID string) (arbitrage.BinaryMarket, error) {
	var payload marketPayload
	resp, err := c.http.R().SetContext(ctx).SetResult(&payload).Get("/markets/" + marketID)
	if err != nil {
		return arbitrage.BinaryMarket{}, fmt.Errorf("fetch market %s: %w", marketID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return arbitrage.BinaryMarket{}, fmt.Errorf("fetch market %s: status %d: %s", marketID, resp.StatusCode(), resp.String())
	}

	m := arbitrage.BinaryMarket{
		MarketID: payload.MarketID,
		Symbol:   payload.Symbol,
		YesToken: payload.YesToken,
		NoToken:  payload.NoToken,
		Question: payload.Question,
		Category: payload.Category,
		EndDate:  payload.EndDate,
		Status:   payload.Status,
	}

	c.mu.Lock()
	c.markets[m.Symbol] = m
	c.mu.Unlock()
	return m, nil
}

func (c *Client) marketBySymbol(symbol string) (arbitrage.BinaryMarket, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[symbol]
	return m, ok
}

type bookPayload struct {
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

func (c *Client) fetchBook(ctx context.Context, tokenID string) (arbitrage.Quote, error) {
	var payload bookPayload
	resp, err := c.http.R().SetContext(ctx).SetQueryParam("token_id", tokenID).SetResult(&payload).Get("/book")
	if err != nil {
		return arbitrage.Quote{}, fmt.Errorf("fetch book %s: %w", tokenID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return arbitrage.Quote{}, fmt.Errorf("fetch book %s: status %d: %s", tokenID, resp.StatusCode(), resp.String())
	}

	bid, err := decimal.NewFromString(payload.BestBid)
	if err != nil {
		return arbitrage.Quote{}, fmt.Errorf("parse bid %q: %w", payload.BestBid, err)
	}
	ask, err := decimal.NewFromString(payload.BestAsk)
	if err != nil {
		return arbitrage.Quote{}, fmt.Errorf("parse ask %q: %w", payload.BestAsk, err)
	}
	return arbitrage.Quote{Bid: bid.InexactFloat64(), Ask: ask.InexactFloat64()}, nil
}

// FetchPrice pulls both legs' current books and joins them into one
// BinaryPrice via the engine's detection rule.
func (c *Client) FetchPrice(ctx context.Context, cfg arbitrage.Config, symbol string) (arbitrage.BinaryPrice, error) {
	m, ok := c.marketBySymbol(symbol)
	if !ok {
		return arbitrage.BinaryPrice{}, fmt.Errorf("unknown market symbol %q", symbol)
	}

	yes, err := c.fetchBook(ctx, m.YesToken)
	if err != nil {
		return arbitrage.BinaryPrice{}, err
	}
	no, err := c.fetchBook(ctx, m.NoToken)
	if err != nil {
		return arbitrage.BinaryPrice{}, err
	}
	return arbitrage.Evaluate(cfg, symbol, yes, no, time.Now().UTC()), nil
}

// CurrentSpread implements arbitrage.PositionLookup for the early-exit
// monitor: today's combined ask cost for a tracked market.
func (c *Client) CurrentSpread(ctx context.Context, symbol string) (float64, error) {
	m, ok := c.marketBySymbol(symbol)
	if !ok {
		return 0, fmt.Errorf("unknown market symbol %q", symbol)
	}
	yes, err := c.fetchBook(ctx, m.YesToken)
	if err != nil {
		return 0, err
	}
	no, err := c.fetchBook(ctx, m.NoToken)
	if err != nil {
		return 0, err
	}
	return yes.Ask + no.Ask, nil
}

// TimeToResolution implements arbitrage.PositionLookup.
func (c *Client) TimeToResolution(_ context.Context, symbol string) (time.Duration, error) {
	m, ok := c.marketBySymbol(symbol)
	if !ok {
		return 0, fmt.Errorf("unknown market symbol %q", symbol)
	}
	return time.Until(m.EndDate), nil
}

type orderRequest struct {
	TokenID string `json:"token_id"`
	Side    string `json:"side"` // "buy"
	Price   string `json:"price"`
	Size    string `json:"size"`
}

type orderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (c *Client) placeLeg(ctx context.Context, tokenID string, price, size float64) (string, error) {
	req := orderRequest{
		TokenID: tokenID,
		Side:    "buy",
		Price:   decimal.NewFromFloat(price).StringFixed(4),
		Size:    decimal.NewFromFloat(size).StringFixed(2),
	}
	var resp orderResponse
	r, err := c.http.R().SetContext(ctx).SetBody(req).SetResult(&resp).Post("/orders")
	if err != nil {
		return "", fmt.Errorf("place order: %w", err)
	}
	if r.StatusCode() >= 300 {
		return "", fmt.Errorf("place order: status %d: %s", r.StatusCode(), r.String())
	}
	return resp.OrderID, nil
}

// EnterPair places both legs of a binary arbitrage entry — a buy on
// the YES token and a buy on the NO token — at the prices the
// detection rule observed, and returns the resulting position. If the
// NO leg fails after the YES leg was placed, EnterPair closes the YES
// leg itself (per UnwindSide) and returns an error.
func (c *Client) EnterPair(ctx context.Context, symbol string, price arbitrage.BinaryPrice, qty float64) (arbitrage.BinaryPosition, error) {
	m, ok := c.marketBySymbol(symbol)
	if !ok {
		return arbitrage.BinaryPosition{}, fmt.Errorf("unknown market symbol %q", symbol)
	}

	fill := arbitrage.LegFillReport{}
	if _, err := c.placeLeg(ctx, m.YesToken, price.YesAsk, qty); err != nil {
		return arbitrage.BinaryPosition{}, fmt.Errorf("enter yes leg: %w", err)
	}
	fill.YesFilled = true

	if _, err := c.placeLeg(ctx, m.NoToken, price.NoAsk, qty); err != nil {
		if side, mustClose := arbitrage.UnwindSide(fill); mustClose {
			pos := arbitrage.BinaryPosition{Symbol: symbol, YesQty: qty, NoQty: qty}
			if unwindErr := c.CloseSingle(ctx, pos, side); unwindErr != nil {
				return arbitrage.BinaryPosition{}, fmt.Errorf("enter no leg: %w (unwind %s leg also failed: %v)", err, side, unwindErr)
			}
		}
		return arbitrage.BinaryPosition{}, fmt.Errorf("enter no leg: %w", err)
	}

	return arbitrage.BinaryPosition{
		Symbol:      symbol,
		MarketID:    m.MarketID,
		YesQty:      qty,
		NoQty:       qty,
		YesEntry:    price.YesAsk,
		NoEntry:     price.NoAsk,
		EntrySpread: price.Spread,
		Status:      arbitrage.PositionOpen,
		OpenedAt:    price.Timestamp,
	}, nil
}

type closeRequest struct {
	TokenID string `json:"token_id"`
	Size    string `json:"size"`
}

func (c *Client) closeLeg(ctx context.Context, tokenID string, size float64) error {
	req := closeRequest{TokenID: tokenID, Size: decimal.NewFromFloat(size).StringFixed(2)}
	r, err := c.http.R().SetContext(ctx).SetBody(req).Post("/positions/close")
	if err != nil {
		return fmt.Errorf("close leg: %w", err)
	}
	if r.StatusCode() >= 300 {
		return fmt.Errorf("close leg: status %d: %s", r.StatusCode(), r.String())
	}
	return nil
}

// CloseBoth implements arbitrage.Closer: sells down both legs of a
// tracked position at best available price.
func (c *Client) CloseBoth(ctx context.Context, pos arbitrage.BinaryPosition) error {
	m, ok := c.marketBySymbol(pos.Symbol)
	if !ok {
		return fmt.Errorf("unknown market symbol %q", pos.Symbol)
	}
	if err := c.closeLeg(ctx, m.YesToken, pos.YesQty); err != nil {
		return fmt.Errorf("close yes leg: %w", err)
	}
	if err := c.closeLeg(ctx, m.NoToken, pos.NoQty); err != nil {
		return fmt.Errorf("close no leg: %w", err)
	}
	return nil
}

// CloseSingle unwinds just one leg of a partially-filled pair, per
// UnwindSide — the strategy never holds unpaired directional exposure.
func (c *Client) CloseSingle(ctx context.Context, pos arbitrage.BinaryPosition, side string) error {
	m, ok := c.marketBySymbol(pos.Symbol)
	if !ok {
		return fmt.Errorf("unknown market symbol %q", pos.Symbol)
	}
	switch side {
	case "yes":
		return c.closeLeg(ctx, m.YesToken, pos.YesQty)
	case "no":
		return c.closeLeg(ctx, m.NoToken, pos.NoQty)
	default:
		return fmt.Errorf("unknown leg side %q", side)
	}
}
