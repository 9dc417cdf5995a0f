package arbitrage

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

type fakeLookup struct {
	spread float64
	ttr    time.Duration
}

func (f fakeLookup) CurrentSpread(ctx context.Context, symbol string) (float64, error) {
	return f.spread, nil
}
func (f fakeLookup) TimeToResolution(ctx context.Context, symbol string) (time.Duration, error) {
	return f.ttr, nil
}

type fakeCloser struct{ closed []string }

func (f *fakeCloser) CloseBoth(ctx context.Context, pos BinaryPosition) error {
	f.closed = append(f.closed, pos.Symbol)
	return nil
}

func TestScanOnceClosesPositionOnLockProfit(t *testing.T) {
	lookup := fakeLookup{spread: 1.0, ttr: 48 * time.Hour}
	closer := &fakeCloser{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	m := NewEarlyExitMonitor(lookup, closer, logger)

	m.Track(BinaryPosition{Symbol: "ELECTION-2026", Status: PositionOpen})
	m.scanOnce(context.Background())

	if len(closer.closed) != 1 || closer.closed[0] != "ELECTION-2026" {
		t.Fatalf("expected position closed, got %v", closer.closed)
	}
	m2 := m.positions
	if _, ok := m2["ELECTION-2026"]; ok {
		t.Fatal("expected position untracked after close")
	}
}

func TestScanOnceLeavesPositionOpenWhenNoExitRuleMatches(t *testing.T) {
	lookup := fakeLookup{spread: 0.97, ttr: 72 * time.Hour}
	closer := &fakeCloser{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	m := NewEarlyExitMonitor(lookup, closer, logger)

	m.Track(BinaryPosition{Symbol: "X", Status: PositionOpen})
	m.scanOnce(context.Background())

	if len(closer.closed) != 0 {
		t.Fatalf("expected no close, got %v", closer.closed)
	}
}
