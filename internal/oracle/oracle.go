// Package oracle blends BTC/USD spot prices from several exchanges into a
// single composite feed and estimates realized volatility from Binance
// klines. The composite is what positions settle against, so it carries an
// explicit freshness timestamp that consumers must check.
package oracle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"polymarket-sniper/internal/config"
	"polymarket-sniper/pkg/types"
)

// Oracle polls every source in parallel each tick and keeps the arithmetic
// mean of whichever sources answered. A tick where every source fails leaves
// the previous composite in place; its age keeps growing until a consumer's
// staleness check trips.
type Oracle struct {
	cfg     config.OracleConfig
	sources []Source
	logger  *slog.Logger

	mu        sync.RWMutex
	composite types.CompositePrice
	history   []float64

	// updates carries the freshest composite to the engine. Buffered with
	// capacity 1; a stale unread value is replaced, never queued behind.
	updates chan types.CompositePrice
}

// New builds an Oracle over the given sources. Pass DefaultSources for
// production use.
func New(cfg config.OracleConfig, sources []Source, logger *slog.Logger) *Oracle {
	return &Oracle{
		cfg:     cfg,
		sources: sources,
		logger:  logger.With("component", "oracle"),
		updates: make(chan types.CompositePrice, 1),
	}
}

// Updates returns the channel carrying fresh composites. Only the latest
// value is retained when the consumer falls behind.
func (o *Oracle) Updates() <-chan types.CompositePrice {
	return o.updates
}

// Run polls all sources on the configured interval until ctx is cancelled.
func (o *Oracle) Run(ctx context.Context) {
	o.logger.Info("oracle started",
		"sources", len(o.sources),
		"interval", o.cfg.TickInterval)

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	o.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("oracle stopped")
			return
		case <-ticker.C:
			o.Tick(ctx)
		}
	}
}

// Tick fans out one fetch to every source and folds the successes into a new
// composite. Returns the number of sources that contributed.
func (o *Oracle) Tick(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
	defer cancel()

	type result struct {
		sample types.PriceSample
		err    error
	}

	results := make(chan result, len(o.sources))
	for _, src := range o.sources {
		go func(src Source) {
			price, err := src.Fetch(ctx)
			results <- result{
				sample: types.PriceSample{Source: src.Name(), Price: price, At: time.Now()},
				err:    err,
			}
		}(src)
	}

	var samples []types.PriceSample
	for range o.sources {
		r := <-results
		if r.err != nil {
			o.logger.Debug("source fetch failed", "source", r.sample.Source, "error", r.err)
			continue
		}
		samples = append(samples, r.sample)
	}

	if len(samples) == 0 {
		o.logger.Warn("all price sources failed this tick")
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += s.Price
	}
	composite := types.CompositePrice{
		Value:     sum / float64(len(samples)),
		Sources:   samples,
		UpdatedAt: time.Now(),
	}

	o.mu.Lock()
	o.composite = composite
	o.history = append(o.history, composite.Value)
	if len(o.history) > o.cfg.HistorySize {
		o.history = o.history[len(o.history)-o.cfg.HistorySize:]
	}
	o.mu.Unlock()

	o.publish(composite)
	return len(samples)
}

// publish replaces any unread update with the fresh one.
func (o *Oracle) publish(c types.CompositePrice) {
	for {
		select {
		case o.updates <- c:
			return
		default:
			select {
			case <-o.updates:
			default:
			}
		}
	}
}

// Snapshot returns the latest composite. A zero-valued composite means no
// tick has succeeded yet.
func (o *Oracle) Snapshot() types.CompositePrice {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.composite
}

// History returns a copy of the rolling composite window, oldest first.
func (o *Oracle) History() []float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]float64, len(o.history))
	copy(out, o.history)
	return out
}

// Fresh reports whether the composite is recent enough to settle against.
func (o *Oracle) Fresh(now time.Time) bool {
	c := o.Snapshot()
	if c.UpdatedAt.IsZero() {
		return false
	}
	return c.Age(now) <= o.cfg.StaleAfter
}

// Valid reports whether the composite clears the garbage-read floor.
func (o *Oracle) Valid() bool {
	return o.Snapshot().Value >= o.cfg.MinValidPrice
}
