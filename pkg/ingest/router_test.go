package ingest

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"auctioncore/pkg/market"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

type fakePoller struct {
	name    string
	candles []market.Candle
	calls   int
}

func (f *fakePoller) Name() string { return f.name }
func (f *fakePoller) Poll(ctx context.Context) ([]market.Candle, []market.Tick, error) {
	f.calls++
	return f.candles, nil, nil
}
func (f *fakePoller) PollInterval() time.Duration { return 5 * time.Millisecond }

func TestRunPollerPollsSource(t *testing.T) {
	fp := &fakePoller{name: "test-provider", candles: []market.Candle{{Symbol: "ES", Close: 100}}}
	r := &Router{logger: testLogger(), sources: []Source{fp}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r.runPoller(ctx, fp)

	if fp.calls == 0 {
		t.Fatal("expected poller to be invoked at least once")
	}
}

func TestPollIntervalForFallsBackToDefault(t *testing.T) {
	p := &noIntervalPoller{}
	if got := pollIntervalFor(p); got != time.Second {
		t.Fatalf("pollIntervalFor = %v, want 1s default", got)
	}
}

type noIntervalPoller struct{}

func (noIntervalPoller) Name() string { return "x" }
func (noIntervalPoller) Poll(ctx context.Context) ([]market.Candle, []market.Tick, error) {
	return nil, nil, nil
}
