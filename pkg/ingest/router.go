// Package ingest runs one worker per configured market-data provider,
// normalizes whatever each provider emits into candles and ticks, and
// republishes them onto NATS subjects the rest of the platform
// subscribes to.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"auctioncore/pkg/config"
	"auctioncore/pkg/market"
)

const (
	reconnectDelay    = 1 * time.Second
	maxReconnectDelay = 30 * time.Second
)

// CandleSubject returns the NATS subject a symbol's normalized
// candles are published on.
func CandleSubject(symbol string) string { return "md.candle." + symbol }

// TickSubject returns the NATS subject a symbol's normalized ticks
// are published on.
func TickSubject(symbol string) string { return "md.tick." + symbol }

// Source is implemented by one provider-specific adapter. A Polling
// source is polled on an interval; a Streaming source blocks inside
// Stream, reconnecting is the router's responsibility.
type Source interface {
	Name() string
}

// Poller is a Source that is sampled on an interval, returning
// whatever new candles/ticks it has observed since the last poll.
type Poller interface {
	Source
	Poll(ctx context.Context) ([]market.Candle, []market.Tick, error)
}

// Streamer is a Source that holds an open connection and pushes
// candles/ticks through the callback until the connection drops or
// the context is canceled.
type Streamer interface {
	Source
	Stream(ctx context.Context, onCandle func(market.Candle), onTick func(market.Tick)) error
}

// Router owns one goroutine per configured provider and republishes
// every normalized record onto NATS.
type Router struct {
	nc      *nats.Conn
	logger  *slog.Logger
	sources []Source
}

// New connects to NATS and builds a router for the given sources.
func New(natsURL string, sources []Source, logger *slog.Logger) (*Router, error) {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Router{nc: nc, logger: logger, sources: sources}, nil
}

// Close drains and closes the NATS connection.
func (r *Router) Close() {
	r.nc.Drain()
}

// Run starts a worker per source and blocks until every worker returns
// or ctx is canceled. A source that implements neither Poller nor
// Streamer is logged and skipped rather than failing the group, since
// one misconfigured provider shouldn't take down every other feed.
func (r *Router) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range r.sources {
		src := src
		g.Go(func() error {
			switch s := src.(type) {
			case Poller:
				r.runPoller(gctx, s)
			case Streamer:
				r.runStreamer(gctx, s)
			default:
				r.logger.Error("ingest: source implements neither Poller nor Streamer", "source", src.Name())
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *Router) runPoller(ctx context.Context, p Poller) {
	interval := pollIntervalFor(p)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			candles, ticks, err := p.Poll(ctx)
			if err != nil {
				r.logger.Warn("ingest: poll failed", "provider", p.Name(), "error", err)
				continue
			}
			for _, c := range candles {
				r.publishCandle(c)
			}
			for _, t := range ticks {
				r.publishTick(t)
			}
		}
	}
}

// pollIntervalFor lets configurable sources expose their own cadence;
// sources that don't implement the optional interface fall back to a
// one-second default.
func pollIntervalFor(p Poller) time.Duration {
	type intervalAware interface{ PollInterval() time.Duration }
	if ia, ok := p.(intervalAware); ok && ia.PollInterval() > 0 {
		return ia.PollInterval()
	}
	return time.Second
}

func (r *Router) runStreamer(ctx context.Context, s Streamer) {
	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := s.Stream(ctx, r.publishCandle, r.publishTick)
		if err == nil || ctx.Err() != nil {
			return
		}

		r.logger.Warn("ingest: stream error, reconnecting", "provider", s.Name(), "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (r *Router) publishCandle(c market.Candle) {
	if r.nc == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		r.logger.Error("ingest: marshal candle failed", "error", err)
		return
	}
	if err := r.nc.Publish(CandleSubject(c.Symbol), data); err != nil {
		r.logger.Error("ingest: publish candle failed", "symbol", c.Symbol, "error", err)
	}
}

func (r *Router) publishTick(t market.Tick) {
	if r.nc == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		r.logger.Error("ingest: marshal tick failed", "error", err)
		return
	}
	if err := r.nc.Publish(TickSubject(t.Symbol), data); err != nil {
		r.logger.Error("ingest: publish tick failed", "symbol", t.Symbol, "error", err)
	}
}

// WebSocketStreamer is a reusable Streamer base for JSON-over-websocket
// providers: dial once, decode frames until the connection drops.
type WebSocketStreamer struct {
	ProviderName string
	URL          string
	Decode       func(raw []byte, onCandle func(market.Candle), onTick func(market.Tick)) error
}

func (w *WebSocketStreamer) Name() string { return w.ProviderName }

func (w *WebSocketStreamer) Stream(ctx context.Context, onCandle func(market.Candle), onTick func(market.Tick)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.ProviderName, err)
	}
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read %s: %w", w.ProviderName, err)
		}
		if err := w.Decode(raw, onCandle, onTick); err != nil {
			continue
		}
	}
}

// SourcesFromConfig builds WebSocketStreamer instances for every
// provider configured with kind "streaming". Polling providers are
// adapter-specific and constructed by the caller.
func SourcesFromConfig(providers []config.ProviderConfig, decode func(providerName string) func([]byte, func(market.Candle), func(market.Tick)) error) []Source {
	var out []Source
	for _, p := range providers {
		if p.Kind != "streaming" {
			continue
		}
		out = append(out, &WebSocketStreamer{
			ProviderName: p.Name,
			URL:          p.URL,
			Decode:       decode(p.Name),
		})
	}
	return out
}
