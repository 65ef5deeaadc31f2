package market

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"polymarket-sniper/internal/config"
	"polymarket-sniper/pkg/types"
)

func testDiscoveryConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		PollInterval: 3 * time.Second,
		TagSlug:      "15M",
		Limit:        100,
		MaxSlugAge:   time.Hour,
	}
}

func newTestDiscovery(priceAt PriceAtFunc) *Discovery {
	return &Discovery{
		cfg:     testDiscoveryConfig(),
		logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		priceAt: priceAt,
	}
}

func baseEvent(now time.Time) GammaEvent {
	slugTS := now.Add(-5 * time.Minute).Unix()
	return GammaEvent{
		Slug:      fmt.Sprintf("btc-updown-15m-%d", slugTS),
		StartDate: now.Add(-5 * time.Minute).Format(time.RFC3339),
		Tags:      []GammaTag{{Slug: "15M", Label: "15M"}},
		Markets: []GammaMarket{{
			ID:              "m1",
			ConditionID:     "cond1",
			Question:        "Bitcoin Up or Down?",
			Description:     "Resolves Up if BTC is higher than $90,000.00 at close.",
			Outcomes:        `["Up","Down"]`,
			OutcomePrices:   `["0.55","0.45"]`,
			ClobTokenIds:    `["up-token","down-token"]`,
			EndDate:         now.Add(10 * time.Minute).Format(time.RFC3339),
			StartDate:       now.Add(-5 * time.Minute).Format(time.RFC3339),
			BestBid:         0.54,
			BestAsk:         0.56,
			Active:          true,
			AcceptingOrders: true,
		}},
	}
}

func TestAcceptEventCanonicalSlug(t *testing.T) {
	t.Parallel()
	d := newTestDiscovery(nil)

	ev := baseEvent(time.Now())
	ev.Tags = nil
	if !d.acceptEvent(&ev) {
		t.Error("canonical slug should be accepted without tags")
	}
}

func TestAcceptEventFallbackNeedsTagAndBTC(t *testing.T) {
	t.Parallel()
	d := newTestDiscovery(nil)
	now := time.Now()

	ev := baseEvent(now)
	ev.Slug = "renamed-crypto-sprint"
	if !d.acceptEvent(&ev) {
		t.Error("15M tag + bitcoin question should pass the fallback")
	}

	noTag := baseEvent(now)
	noTag.Slug = "renamed-crypto-sprint"
	noTag.Tags = nil
	if d.acceptEvent(&noTag) {
		t.Error("fallback without the 15M tag should be rejected")
	}

	noBTC := baseEvent(now)
	noBTC.Slug = "eth-updown-15m"
	noBTC.Markets[0].Question = "Ethereum Up or Down?"
	noBTC.Markets[0].Description = "Resolves on ETH price."
	if d.acceptEvent(&noBTC) {
		t.Error("fallback without a BTC mention should be rejected")
	}
}

func TestConvertMarketHappyPath(t *testing.T) {
	t.Parallel()
	d := newTestDiscovery(nil)
	now := time.Now()

	ev := baseEvent(now)
	m, err := d.convertMarket(context.Background(), &ev, &ev.Markets[0], now)
	if err != nil {
		t.Fatalf("convertMarket: %v", err)
	}
	if m.UpTokenID != "up-token" || m.DownTokenID != "down-token" {
		t.Errorf("tokens = %q/%q", m.UpTokenID, m.DownTokenID)
	}
	if m.UpPrice != 0.55 || m.DownPrice != 0.45 {
		t.Errorf("prices = %v/%v", m.UpPrice, m.DownPrice)
	}
	if m.Strike != 90000 {
		t.Errorf("strike = %v, want 90000 from description", m.Strike)
	}
	if m.StrikeSource != types.StrikeFromQuestion {
		t.Errorf("strike source = %v", m.StrikeSource)
	}
}

func TestConvertMarketFlippedOutcomeLabels(t *testing.T) {
	t.Parallel()
	d := newTestDiscovery(nil)
	now := time.Now()

	ev := baseEvent(now)
	ev.Markets[0].Outcomes = `["No","Yes"]`
	ev.Markets[0].OutcomePrices = `["0.45","0.55"]`
	ev.Markets[0].ClobTokenIds = `["no-token","yes-token"]`

	m, err := d.convertMarket(context.Background(), &ev, &ev.Markets[0], now)
	if err != nil {
		t.Fatalf("convertMarket: %v", err)
	}
	if m.UpTokenID != "yes-token" || m.DownTokenID != "no-token" {
		t.Errorf("labels not remapped: up=%q down=%q", m.UpTokenID, m.DownTokenID)
	}
	if m.UpPrice != 0.55 || m.DownPrice != 0.45 {
		t.Errorf("prices not remapped: %v/%v", m.UpPrice, m.DownPrice)
	}
}

func TestConvertMarketRejections(t *testing.T) {
	t.Parallel()
	d := newTestDiscovery(nil)
	now := time.Now()

	cases := []struct {
		name   string
		mutate func(*GammaEvent)
	}{
		{"missing outcome prices", func(ev *GammaEvent) { ev.Markets[0].OutcomePrices = "" }},
		{"sum out of band", func(ev *GammaEvent) { ev.Markets[0].OutcomePrices = `["0.40","0.30"]` }},
		{"duplicate tokens", func(ev *GammaEvent) { ev.Markets[0].ClobTokenIds = `["tok","tok"]` }},
		{"expired", func(ev *GammaEvent) {
			ev.Markets[0].EndDate = now.Add(-time.Minute).Format(time.RFC3339)
		}},
		{"stale slug", func(ev *GammaEvent) {
			ev.Slug = fmt.Sprintf("btc-updown-15m-%d", now.Add(-2*time.Hour).Unix())
		}},
		{"no strike anywhere", func(ev *GammaEvent) {
			ev.Markets[0].Description = "Resolves by the official oracle."
			ev.Markets[0].Question = "Bitcoin Up or Down?"
		}},
	}
	for _, tc := range cases {
		ev := baseEvent(now)
		tc.mutate(&ev)
		if _, err := d.convertMarket(context.Background(), &ev, &ev.Markets[0], now); err == nil {
			t.Errorf("%s: expected rejection", tc.name)
		}
	}
}

func TestConvertMarketStrikeFromKlines(t *testing.T) {
	t.Parallel()
	now := time.Now()

	var askedFor time.Time
	d := newTestDiscovery(func(ctx context.Context, at time.Time) (float64, error) {
		askedFor = at
		return 90123.45, nil
	})

	ev := baseEvent(now)
	ev.Markets[0].Description = "Resolves by the official oracle."
	ev.Markets[0].Question = "Bitcoin Up or Down?"

	m, err := d.convertMarket(context.Background(), &ev, &ev.Markets[0], now)
	if err != nil {
		t.Fatalf("convertMarket: %v", err)
	}
	if m.Strike != 90123.45 {
		t.Errorf("strike = %v, want klines open", m.Strike)
	}
	if m.StrikeSource != types.StrikeFromKlines {
		t.Errorf("strike source = %v, want klines", m.StrikeSource)
	}
	if askedFor.IsZero() {
		t.Error("priceAt never consulted")
	}
}

func TestOutcomeIndexes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		outcomes string
		up, down int
	}{
		{`["Up","Down"]`, 0, 1},
		{`["Yes","No"]`, 0, 1},
		{`["No","Yes"]`, 1, 0},
		{`["Short","Long"]`, 1, 0},
		{`["Foo","Bar"]`, 0, 1}, // unknown labels keep venue order
		{``, 0, 1},
	}
	for _, tc := range cases {
		up, down := outcomeIndexes(tc.outcomes)
		if up != tc.up || down != tc.down {
			t.Errorf("outcomeIndexes(%q) = %d,%d want %d,%d", tc.outcomes, up, down, tc.up, tc.down)
		}
	}
}

func TestParseStrikeFromQuestion(t *testing.T) {
	t.Parallel()

	cases := []struct {
		question string
		want     float64
		ok       bool
	}{
		{"Will BTC be above $95,000 at 12:00 UTC?", 95000, true},
		{"Bitcoin above 94500?", 94500, true},
		{"Bitcoin Up or Down?", 0, false},
		{"Will BTC hit $5?", 0, false}, // below the sanity floor
	}
	for _, tc := range cases {
		got, ok := ParseStrikeFromQuestion(tc.question)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("ParseStrikeFromQuestion(%q) = %v,%v want %v,%v", tc.question, got, ok, tc.want, tc.ok)
		}
	}
}
