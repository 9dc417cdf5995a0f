package aggression

import (
	"testing"

	"auctioncore/pkg/market"
)

func TestScoreIsAggressiveAboveThreshold(t *testing.T) {
	r := Score(300, 100, 2500, 85, 15)
	if !r.IsAggressive {
		t.Fatalf("expected aggressive reading, got score %v", r.Score)
	}
	if r.Direction != market.DirectionBuy {
		t.Fatalf("direction = %v, want BUY", r.Direction)
	}
}

func TestScoreNeutralOnQuietFlow(t *testing.T) {
	r := Score(100, 100, 10, 50, 50)
	if r.IsAggressive {
		t.Fatalf("did not expect aggressive reading, score=%v", r.Score)
	}
	if r.Direction != market.DirectionNeutral {
		t.Fatalf("direction = %v, want NEUTRAL", r.Direction)
	}
}
