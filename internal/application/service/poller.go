package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"futsync/internal/application/port"
	"futsync/internal/domain/model"
)

// PollerConfig tunes the incremental re-fetch.
type PollerConfig struct {
	ShortWindow  time.Duration // trailing window per tick, floored at 30s
	FetchTimeout time.Duration
}

// IncrementalPoller re-fetches a short trailing window on every bar-grid tick
// to capture bars the feed finalizes slightly late. Idempotent storage makes
// the overlap safe.
type IncrementalPoller struct {
	repo  port.BarRepository
	fetch port.BarFetcher
	cfg   PollerConfig
	now   func() time.Time
}

func NewIncrementalPoller(repo port.BarRepository, fetch port.BarFetcher, cfg PollerConfig) *IncrementalPoller {
	return &IncrementalPoller{repo: repo, fetch: fetch, cfg: cfg, now: time.Now}
}

// PollSymbol fetches the trailing window for one symbol and persists whatever
// came back, returning the advanced tail. An empty result is normal: a newly
// listed neighbor contract may simply have no trades yet.
func (p *IncrementalPoller) PollSymbol(ctx context.Context, symbol string, last int64, ok bool) (int64, bool) {
	dur := p.cfg.ShortWindow
	if dur < minFetchDuration {
		dur = minFetchDuration
	}

	fctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	bars, err := p.fetch.FetchBars(fctx, symbol, p.now().UTC(), dur)
	cancel()
	if err != nil {
		if errors.Is(err, port.ErrNotConnected) {
			log.Debug().Str("symbol", symbol).Msg("poll skipped, not connected")
		} else {
			log.Warn().Err(&port.FetchError{Symbol: symbol, Err: err}).Msg("incremental fetch failed")
		}
		return last, ok
	}
	// off-grid timestamps never enter the store
	rows := make([]model.Bar, 0, len(bars))
	for _, b := range bars {
		if b.GridAligned() {
			rows = append(rows, b)
		}
	}
	if len(rows) == 0 {
		return last, ok
	}

	if err := p.repo.InsertBars(ctx, symbol, rows); err != nil {
		log.Error().Err(&port.StorageError{Op: "insert bars", Err: err}).
			Str("symbol", symbol).Msg("poll write skipped")
		return last, ok
	}
	for _, b := range rows {
		if !ok || b.Ts > last {
			last, ok = b.Ts, true
		}
	}
	return last, ok
}

// NextGridDelay computes the wait until the next multiple-of-BarSize
// wall-clock boundary. Waking is computed from "now" each tick, so one slow
// cycle does not shift every later tick.
func NextGridDelay(now time.Time) time.Duration {
	step := int64(model.BarSize)
	next := (now.Unix()/step + 1) * step
	return time.Unix(next, 0).Sub(now)
}
