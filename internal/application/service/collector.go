package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"futsync/internal/application/port"
	"futsync/internal/domain/contract"
)

// connGate is the slice of ConnectionMonitor the loops depend on.
type connGate interface {
	Connected() bool
	Epoch() uint64
}

// TrackedSymbol is the runtime state for one roster member. LastTs mirrors
// the store's max timestamp and advances on every successful write.
type TrackedSymbol struct {
	Symbol string
	LastTs int64
	HasTs  bool
}

// BarCollector keeps the roster's bar series current: one backfill per
// tracked symbol once the feed is up, then grid-aligned incremental polling.
// For a single symbol at most one fetch/write is in flight at a time.
type BarCollector struct {
	repo     port.BarRepository
	backfill *BackfillEngine
	poller   *IncrementalPoller
	gate     connGate

	mu      sync.Mutex
	active  string
	order   []string
	tracked map[string]*TrackedSymbol

	now func() time.Time
}

func NewBarCollector(repo port.BarRepository, backfill *BackfillEngine, poller *IncrementalPoller, gate connGate, activeSymbol string) *BarCollector {
	return &BarCollector{
		repo:     repo,
		backfill: backfill,
		poller:   poller,
		gate:     gate,
		active:   activeSymbol,
		tracked:  make(map[string]*TrackedSymbol),
		now:      time.Now,
	}
}

// SetActive switches the active contract. The roster is recomputed on the
// next tick; a malformed symbol rejects the switch and keeps the old roster.
func (c *BarCollector) SetActive(symbol string) error {
	if _, err := contract.New(symbol); err != nil {
		return err
	}
	c.mu.Lock()
	c.active = symbol
	c.mu.Unlock()
	return nil
}

// Tracked returns the current roster members in poll order.
func (c *BarCollector) Tracked() []TrackedSymbol {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TrackedSymbol, 0, len(c.order))
	for _, sym := range c.order {
		out = append(out, *c.tracked[sym])
	}
	return out
}

// refreshRoster reconciles the tracked set with the desired roster. Symbols
// leaving the set are dropped (their stored bars are retained); symbols
// entering are seeded with the store's tail.
func (c *BarCollector) refreshRoster(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	r, err := contract.New(active)
	if err != nil {
		return err
	}
	desired := make(map[string]bool, 3)
	for _, sym := range r.Symbols() {
		desired[sym] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for sym := range c.tracked {
		if !desired[sym] {
			delete(c.tracked, sym)
			log.Info().Str("symbol", sym).Msg("symbol left roster, bars retained")
		}
	}
	for _, sym := range r.Symbols() {
		if _, exists := c.tracked[sym]; exists {
			continue
		}
		if err := c.repo.EnsureSymbol(ctx, sym); err != nil {
			return &port.StorageError{Op: "ensure symbol", Err: err}
		}
		ts, ok, err := c.repo.LastTimestamp(ctx, sym)
		if err != nil {
			return &port.StorageError{Op: "last timestamp", Err: err}
		}
		c.tracked[sym] = &TrackedSymbol{Symbol: sym, LastTs: ts, HasTs: ok}
		log.Info().Str("symbol", sym).Bool("has_tail", ok).Int64("tail", ts).Msg("symbol entered roster")
	}
	c.order = r.Symbols()
	return nil
}

// Run executes the collector loop until ctx is done: roster setup, one
// backfill pass per symbol once connected, then the incremental poll loop.
func (c *BarCollector) Run(ctx context.Context) error {
	if err := c.refreshRoster(ctx); err != nil {
		return err
	}

	// backfill waits for the first connect
	for !c.gate.Connected() {
		if !sleepCtx(ctx, 500*time.Millisecond) {
			return ctx.Err()
		}
	}
	c.backfillAll(ctx)

	for {
		if !sleepCtx(ctx, NextGridDelay(c.now())) {
			return ctx.Err()
		}
		if err := c.refreshRoster(ctx); err != nil {
			// storage hiccup or a bad SetActive race; retried next tick
			log.Warn().Err(err).Msg("roster refresh failed")
			continue
		}
		if !c.gate.Connected() {
			continue
		}
		c.pollOnce(ctx)
	}
}

func (c *BarCollector) backfillAll(ctx context.Context) {
	for _, sym := range c.snapshotOrder() {
		if ctx.Err() != nil {
			return
		}
		c.mu.Lock()
		t, exists := c.tracked[sym]
		var last int64
		var has bool
		if exists {
			last, has = t.LastTs, t.HasTs
		}
		c.mu.Unlock()
		if !exists {
			continue
		}
		last, has = c.backfill.Backfill(ctx, sym, last, has)
		c.advanceTail(sym, last, has)
	}
}

// pollOnce polls every tracked symbol sequentially within the tick. The
// serial order bounds the feed's concurrent-request load; correctness does
// not depend on it.
func (c *BarCollector) pollOnce(ctx context.Context) {
	for _, sym := range c.snapshotOrder() {
		if ctx.Err() != nil {
			return
		}
		c.mu.Lock()
		t, exists := c.tracked[sym]
		var last int64
		var has bool
		if exists {
			last, has = t.LastTs, t.HasTs
		}
		c.mu.Unlock()
		if !exists {
			continue
		}
		last, has = c.poller.PollSymbol(ctx, sym, last, has)
		c.advanceTail(sym, last, has)
	}
}

func (c *BarCollector) snapshotOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

func (c *BarCollector) advanceTail(symbol string, last int64, has bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, exists := c.tracked[symbol]; exists && has && (!t.HasTs || last > t.LastTs) {
		t.LastTs, t.HasTs = last, true
	}
}
