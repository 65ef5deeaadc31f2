// Package market discovers active 15-minute BTC up/down binaries from the
// Gamma API and normalizes them into the internal Market type: outcome
// labels mapped to up/down, outcome prices validated, strike resolved.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-sniper/internal/config"
	"polymarket-sniper/pkg/types"
)

// slugPattern is the canonical slug shape: btc-updown-15m-{unix start ts}.
var slugPattern = regexp.MustCompile(`^btc-updown-15m-(\d+)$`)

// strikePattern pulls a dollar strike out of the market description, e.g.
// "... price to beat is $90,000.00 ...".
var strikePattern = regexp.MustCompile(`(?i)(?:higher than|above|price to beat|strike|target).*?\$([\d,]+\.?\d*)`)

// questionPricePattern is the looser fallback used when backfilling a
// strike from the question text alone.
var questionPricePattern = regexp.MustCompile(`\$?([\d,]+(?:\.\d+)?)`)

// Plausible BTC strike band. Anything outside is a mis-parse.
const (
	strikeSanityMin = 10000
	strikeSanityMax = 500000
)

// GammaTag is one tag on a Gamma event.
type GammaTag struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`
}

// GammaMarket is the JSON shape of one market inside a Gamma event.
// Outcomes, OutcomePrices and ClobTokenIds are JSON arrays encoded as
// strings, which is how the Gamma API ships them.
type GammaMarket struct {
	ID              string  `json:"id"`
	ConditionID     string  `json:"conditionId"`
	Question        string  `json:"question"`
	Description     string  `json:"description"`
	Slug            string  `json:"slug"`
	Outcomes        string  `json:"outcomes"`
	OutcomePrices   string  `json:"outcomePrices"`
	ClobTokenIds    string  `json:"clobTokenIds"`
	EndDate         string  `json:"endDate"`
	StartDate       string  `json:"startDate"`
	BestBid         float64 `json:"bestBid"`
	BestAsk         float64 `json:"bestAsk"`
	Active          bool    `json:"active"`
	Closed          bool    `json:"closed"`
	AcceptingOrders bool    `json:"acceptingOrders"`
}

// GammaEvent is the JSON shape returned by GET /events.
type GammaEvent struct {
	Slug      string        `json:"slug"`
	StartDate string        `json:"startDate"`
	Tags      []GammaTag    `json:"tags"`
	Markets   []GammaMarket `json:"markets"`
}

// Snapshot is one discovery pass: the normalized tradeable set, sorted by
// expiry ascending.
type Snapshot struct {
	Markets   []types.Market
	ScannedAt time.Time
}

// PriceAtFunc resolves the BTC 1-minute open at a given time, for strike
// backfill on markets whose metadata carries no strike.
type PriceAtFunc func(ctx context.Context, t time.Time) (float64, error)

// Discovery periodically polls the Gamma API for 15-minute BTC markets.
type Discovery struct {
	httpClient *resty.Client
	cfg        config.DiscoveryConfig
	logger     *slog.Logger
	priceAt    PriceAtFunc
	resultCh   chan Snapshot
}

// NewDiscovery creates a market discovery poller. priceAt may be nil, in
// which case started markets without a parseable strike are dropped.
func NewDiscovery(cfg config.Config, priceAt PriceAtFunc, logger *slog.Logger) *Discovery {
	client := resty.New().
		SetBaseURL(cfg.API.GammaBaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Discovery{
		httpClient: client,
		cfg:        cfg.Discovery,
		logger:     logger.With("component", "discovery"),
		priceAt:    priceAt,
		resultCh:   make(chan Snapshot, 1),
	}
}

// Results returns the channel the engine reads snapshots from. Only the
// latest snapshot is retained when the consumer falls behind.
func (d *Discovery) Results() <-chan Snapshot {
	return d.resultCh
}

// Run starts the polling loop. Blocks until ctx is cancelled.
func (d *Discovery) Run(ctx context.Context) {
	d.scan(ctx)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scan(ctx)
		}
	}
}

func (d *Discovery) scan(ctx context.Context) {
	events, err := d.fetchEvents(ctx)
	if err != nil {
		d.logger.Error("discovery scan failed", "error", err)
		return
	}

	now := time.Now()
	var markets []types.Market
	for _, ev := range events {
		if !d.acceptEvent(&ev) {
			continue
		}
		if len(ev.Markets) == 0 {
			continue
		}
		m, err := d.convertMarket(ctx, &ev, &ev.Markets[0], now)
		if err != nil {
			d.logger.Debug("market rejected", "event", ev.Slug, "reason", err)
			continue
		}
		markets = append(markets, m)
	}

	sort.Slice(markets, func(i, j int) bool {
		return markets[i].EndTime.Before(markets[j].EndTime)
	})

	d.logger.Info("discovery complete", "events", len(events), "tradeable", len(markets))

	// Non-blocking send, replacing any stale snapshot.
	snap := Snapshot{Markets: markets, ScannedAt: now}
	select {
	case d.resultCh <- snap:
	default:
		select {
		case <-d.resultCh:
		default:
		}
		d.resultCh <- snap
	}
}

func (d *Discovery) fetchEvents(ctx context.Context) ([]GammaEvent, error) {
	var events []GammaEvent
	resp, err := d.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"tag_slug": d.cfg.TagSlug,
			"active":   "true",
			"closed":   "false",
			"limit":    strconv.Itoa(d.cfg.Limit),
		}).
		SetResult(&events).
		Get("/events")
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch events: status %d", resp.StatusCode())
	}
	return events, nil
}

// acceptEvent matches the canonical slug, falling back to tag plus BTC
// keyword when the venue renames its slugs.
func (d *Discovery) acceptEvent(ev *GammaEvent) bool {
	if slugPattern.MatchString(ev.Slug) {
		return true
	}

	has15mTag := false
	for _, t := range ev.Tags {
		if t.Slug == d.cfg.TagSlug || t.Label == d.cfg.TagSlug {
			has15mTag = true
			break
		}
	}
	if !has15mTag || len(ev.Markets) == 0 {
		return false
	}

	text := strings.ToLower(ev.Markets[0].Question + " " + ev.Markets[0].Description)
	return strings.Contains(text, "btc") || strings.Contains(text, "bitcoin")
}

// convertMarket normalizes one Gamma market, rejecting anything the
// evaluator could misprice: missing outcome prices, broken quote sums,
// duplicate tokens, stale slugs, unresolvable strikes, past expiries.
func (d *Discovery) convertMarket(ctx context.Context, ev *GammaEvent, gm *GammaMarket, now time.Time) (types.Market, error) {
	var zero types.Market

	slug := ev.Slug
	if match := slugPattern.FindStringSubmatch(slug); match != nil {
		ts, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return zero, fmt.Errorf("slug timestamp: %w", err)
		}
		if age := now.Sub(time.Unix(ts, 0)); age > d.cfg.MaxSlugAge {
			return zero, fmt.Errorf("slug %s is %s old", slug, age.Round(time.Second))
		}
	}

	endTime, err := parseGammaTime(gm.EndDate)
	if err != nil {
		return zero, fmt.Errorf("end date: %w", err)
	}
	if !endTime.After(now) {
		return zero, fmt.Errorf("expired at %s", endTime.Format(time.RFC3339))
	}

	startTime, _ := parseGammaTime(firstNonEmpty(gm.StartDate, ev.StartDate))

	upIdx, downIdx := outcomeIndexes(gm.Outcomes)

	var tokenIDs []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIds), &tokenIDs); err != nil || len(tokenIDs) < 2 {
		return zero, fmt.Errorf("token ids unparseable")
	}
	upToken, downToken := tokenIDs[upIdx], tokenIDs[downIdx]
	if upToken == downToken || upToken == "" || downToken == "" {
		return zero, fmt.Errorf("outcome tokens not distinct")
	}

	// Missing prices are a hard reject. Substituting 0.5 here manufactures
	// phantom edge against whatever the model says.
	var rawPrices []string
	if err := json.Unmarshal([]byte(gm.OutcomePrices), &rawPrices); err != nil || len(rawPrices) < 2 {
		return zero, fmt.Errorf("outcome prices missing")
	}
	upPrice, err1 := strconv.ParseFloat(rawPrices[upIdx], 64)
	downPrice, err2 := strconv.ParseFloat(rawPrices[downIdx], 64)
	if err1 != nil || err2 != nil {
		return zero, fmt.Errorf("outcome prices unparseable")
	}
	if sum := upPrice + downPrice; sum < 0.95 || sum > 1.05 {
		return zero, fmt.Errorf("outcome prices sum to %.3f", sum)
	}

	strike, source, err := d.resolveStrike(ctx, gm, startTime, now)
	if err != nil {
		return zero, fmt.Errorf("strike: %w", err)
	}

	return types.Market{
		ID:              gm.ID,
		ConditionID:     gm.ConditionID,
		Slug:            slug,
		Question:        gm.Question,
		Description:     gm.Description,
		UpTokenID:       upToken,
		DownTokenID:     downToken,
		Strike:          strike,
		StrikeSource:    source,
		StartTime:       startTime,
		EndTime:         endTime,
		UpPrice:         upPrice,
		DownPrice:       downPrice,
		BestBid:         gm.BestBid,
		BestAsk:         gm.BestAsk,
		Active:          gm.Active,
		AcceptingOrders: gm.AcceptingOrders,
	}, nil
}

// resolveStrike tries the description regex first, then the 1-minute open
// at start time for markets already underway.
func (d *Discovery) resolveStrike(ctx context.Context, gm *GammaMarket, startTime, now time.Time) (float64, types.StrikeSource, error) {
	if strike, ok := parseStrikeText(gm.Description, strikePattern); ok {
		return strike, types.StrikeFromQuestion, nil
	}
	if strike, ok := parseStrikeText(gm.Question, strikePattern); ok {
		return strike, types.StrikeFromQuestion, nil
	}

	if d.priceAt != nil && !startTime.IsZero() && !startTime.After(now) {
		strike, err := d.priceAt(ctx, startTime)
		if err != nil {
			return 0, "", fmt.Errorf("klines open at start: %w", err)
		}
		return strike, types.StrikeFromKlines, nil
	}
	return 0, "", fmt.Errorf("unresolvable")
}

// outcomeIndexes maps outcome labels onto (up, down) indexes. Unknown
// labels keep the venue's convention of index 0 = up, 1 = down.
func outcomeIndexes(outcomesJSON string) (up, down int) {
	up, down = 0, 1

	var labels []string
	if err := json.Unmarshal([]byte(outcomesJSON), &labels); err != nil || len(labels) < 2 {
		return up, down
	}
	for i, label := range labels[:2] {
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "yes", "up", "long":
			up = i
		case "no", "down", "short":
			down = i
		}
	}
	if up == down {
		up, down = 0, 1
	}
	return up, down
}

func parseStrikeText(text string, pattern *regexp.Regexp) (float64, bool) {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	raw := strings.ReplaceAll(match[1], ",", "")
	strike, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if strike <= strikeSanityMin || strike >= strikeSanityMax {
		return 0, false
	}
	return strike, true
}

// ParseStrikeFromQuestion extracts a plausible BTC strike from free-form
// question text. Used by the store to backfill strikes on legacy snapshots.
func ParseStrikeFromQuestion(question string) (float64, bool) {
	return parseStrikeText(question, questionPricePattern)
}

func parseGammaTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(time.RFC3339, s)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
