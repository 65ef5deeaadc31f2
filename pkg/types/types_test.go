package types

import (
	"testing"
	"time"
)

func TestOutcomeOpposite(t *testing.T) {
	t.Parallel()

	if OutcomeUp.Opposite() != OutcomeDown {
		t.Error("up.Opposite() != down")
	}
	if OutcomeDown.Opposite() != OutcomeUp {
		t.Error("down.Opposite() != up")
	}
}

func TestMarketSpread(t *testing.T) {
	t.Parallel()

	m := &Market{BestBid: 0.45, BestAsk: 0.52}
	if got := m.Spread(); got < 0.0699 || got > 0.0701 {
		t.Errorf("Spread() = %v, want 0.07", got)
	}
}

func TestMarketRemainingSeconds(t *testing.T) {
	t.Parallel()

	now := time.Now()
	m := &Market{EndTime: now.Add(90 * time.Second)}

	if got := m.RemainingSeconds(now); got < 89.9 || got > 90.1 {
		t.Errorf("RemainingSeconds = %v, want ~90", got)
	}

	// Expired markets report zero, never negative.
	if got := m.RemainingSeconds(now.Add(5 * time.Minute)); got != 0 {
		t.Errorf("RemainingSeconds past expiry = %v, want 0", got)
	}
}

func TestMarketOutcomeAccessors(t *testing.T) {
	t.Parallel()

	m := &Market{
		UpTokenID:   "token-up",
		DownTokenID: "token-down",
		UpPrice:     0.62,
		DownPrice:   0.38,
	}

	if m.OutcomePrice(OutcomeUp) != 0.62 || m.OutcomePrice(OutcomeDown) != 0.38 {
		t.Errorf("OutcomePrice: up=%v down=%v", m.OutcomePrice(OutcomeUp), m.OutcomePrice(OutcomeDown))
	}
	if m.TokenID(OutcomeUp) != "token-up" || m.TokenID(OutcomeDown) != "token-down" {
		t.Errorf("TokenID: up=%q down=%q", m.TokenID(OutcomeUp), m.TokenID(OutcomeDown))
	}
}

func TestPortfolioWinRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		total int
		wins  int
		want  float64
	}{
		{"no trades", 0, 0, 0},
		{"half wins", 10, 5, 0.5},
		{"all wins", 4, 4, 1},
	}

	for _, tt := range tests {
		p := Portfolio{TotalTrades: tt.total, WinningTrades: tt.wins}
		if got := p.WinRate(); got != tt.want {
			t.Errorf("%s: WinRate() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestPortfolioPnLPercent(t *testing.T) {
	t.Parallel()

	p := Portfolio{InitialBalance: 10000, PnLToday: 250}
	if got := p.PnLPercent(); got != 2.5 {
		t.Errorf("PnLPercent() = %v, want 2.5", got)
	}

	zero := Portfolio{}
	if got := zero.PnLPercent(); got != 0 {
		t.Errorf("PnLPercent() with zero balance = %v, want 0", got)
	}
}

func TestCompositePriceAge(t *testing.T) {
	t.Parallel()

	now := time.Now()
	c := CompositePrice{Value: 90000, UpdatedAt: now.Add(-3 * time.Second)}
	if got := c.Age(now); got < 2900*time.Millisecond || got > 3100*time.Millisecond {
		t.Errorf("Age() = %v, want ~3s", got)
	}
}
