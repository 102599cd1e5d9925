package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"futsync/internal/application/port"
	"futsync/internal/domain/model"
)

// minFetchDuration is the smallest range the feed accepts per request.
const minFetchDuration = 30 * time.Second

// BackfillConfig bounds the catch-up fetch.
type BackfillConfig struct {
	MaxWindow    time.Duration // how far back a backfill may reach
	WindowSlice  time.Duration // per-request slice, default one day
	WindowPause  time.Duration // politeness pause between slices
	FetchTimeout time.Duration
}

// BackfillEngine closes the gap between a symbol's stored tail and now, in
// bounded slices. Progress is persisted slice by slice, so an interrupted run
// resumes from wherever it got to.
type BackfillEngine struct {
	repo    port.BarRepository
	fetch   port.BarFetcher
	cfg     BackfillConfig
	limiter *rate.Limiter
	now     func() time.Time
}

func NewBackfillEngine(repo port.BarRepository, fetch port.BarFetcher, cfg BackfillConfig) *BackfillEngine {
	if cfg.WindowSlice <= 0 {
		cfg.WindowSlice = 24 * time.Hour
	}
	if cfg.WindowPause <= 0 {
		cfg.WindowPause = 200 * time.Millisecond
	}
	return &BackfillEngine{
		repo:    repo,
		fetch:   fetch,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.WindowPause), 1),
		now:     time.Now,
	}
}

// Backfill fetches and persists all bars between the stored tail and now for
// one symbol, returning the advanced tail. A failed slice ends the run; the
// tail already persisted stands and the next run resumes from it. Errors are
// absorbed here, this is the loop boundary that owns the retry policy.
func (e *BackfillEngine) Backfill(ctx context.Context, symbol string, last int64, ok bool) (int64, bool) {
	now := e.now().UTC()

	var start time.Time
	if ok {
		start = time.Unix(last+model.BarSize, 0).UTC()
	} else {
		// never seen: a conservative one-day pull, not unbounded history
		depth := 24 * time.Hour
		if e.cfg.MaxWindow < depth {
			depth = e.cfg.MaxWindow
		}
		start = now.Add(-depth)
	}
	if floor := now.Add(-e.cfg.MaxWindow); start.Before(floor) {
		start = floor
	}
	if !start.Before(now) {
		return last, ok
	}

	log.Info().Str("symbol", symbol).Time("from", start).Msg("backfill started")

	winStart := start
	for winStart.Before(now) {
		winEnd := winStart.Add(e.cfg.WindowSlice)
		if winEnd.After(now) {
			winEnd = now
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return last, ok
		}

		dur := winEnd.Sub(winStart)
		if dur < minFetchDuration {
			dur = minFetchDuration
		}
		fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
		bars, err := e.fetch.FetchBars(fctx, symbol, winEnd, dur)
		cancel()
		if err != nil {
			ferr := &port.FetchError{Symbol: symbol, Err: err}
			log.Warn().Err(ferr).Time("window_end", winEnd).Msg("backfill slice failed, run ends")
			return last, ok
		}

		// the feed may return bars slightly before the requested start;
		// off-grid timestamps never enter the store
		cut := winStart.Unix()
		rows := make([]model.Bar, 0, len(bars))
		for _, b := range bars {
			if b.Ts >= cut && b.GridAligned() {
				rows = append(rows, b)
			}
		}

		if len(rows) > 0 {
			if err := e.repo.InsertBars(ctx, symbol, rows); err != nil {
				serr := &port.StorageError{Op: "insert bars", Err: err}
				log.Error().Err(serr).Str("symbol", symbol).Msg("backfill write skipped, run ends")
				return last, ok
			}
			for _, b := range rows {
				if !ok || b.Ts > last {
					last, ok = b.Ts, true
				}
			}
		}

		winStart = winEnd.Add(time.Second)
	}

	log.Info().Str("symbol", symbol).Int64("tail", last).Msg("backfill done")
	return last, ok
}
