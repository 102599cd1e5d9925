package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"futsync/internal/domain/model"
)

func testBackfillCfg() BackfillConfig {
	return BackfillConfig{
		MaxWindow:    10 * 24 * time.Hour,
		WindowSlice:  24 * time.Hour,
		WindowPause:  time.Millisecond,
		FetchTimeout: time.Second,
	}
}

func barsAt(symbol string, ts ...int64) []model.Bar {
	out := make([]model.Bar, 0, len(ts))
	for _, t := range ts {
		out = append(out, model.Bar{Symbol: symbol, Ts: t, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1})
	}
	return out
}

func TestBackfillResumesFromTail(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	last := now.Unix() - 100

	repo := newFakeRepo()
	fetch := &fakeFetcher{}
	e := NewBackfillEngine(repo, fetch, testBackfillCfg())
	e.now = func() time.Time { return now }

	gotLast, gotOk := e.Backfill(context.Background(), "MNQZ5", last, true)

	if fetch.callCount() != 1 {
		t.Fatalf("fetch calls = %d, want 1", fetch.callCount())
	}
	c := fetch.call(0)
	if !c.end.Equal(now) {
		t.Errorf("window end = %v, want %v", c.end, now)
	}
	// requested range starts exactly at L+5: already-stored bars are never re-requested
	start := c.end.Add(-c.duration)
	if start.Unix() != last+model.BarSize {
		t.Errorf("window start = %d, want %d", start.Unix(), last+model.BarSize)
	}
	if gotLast != last || gotOk != true {
		t.Errorf("tail = (%d,%v), want unchanged (%d,true) on empty result", gotLast, gotOk, last)
	}
}

func TestBackfillDropsOffGridBars(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	last := now.Unix() - 100

	repo := newFakeRepo()
	fetch := &fakeFetcher{
		respond: func(call fetchCall) ([]model.Bar, error) {
			return barsAt(call.symbol, last+5, last+7, last+10), nil
		},
	}
	e := NewBackfillEngine(repo, fetch, testBackfillCfg())
	e.now = func() time.Time { return now }

	gotLast, gotOk := e.Backfill(context.Background(), "MNQZ5", last, true)
	if !gotOk || gotLast != last+10 {
		t.Errorf("tail = (%d,%v), want (%d,true)", gotLast, gotOk, last+10)
	}
	if repo.rowCount("MNQZ5") != 2 {
		t.Errorf("stored rows = %d, want the off-grid bar dropped", repo.rowCount("MNQZ5"))
	}
}

func TestBackfillFirstSightIsOneDay(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	fetch := &fakeFetcher{}
	e := NewBackfillEngine(newFakeRepo(), fetch, testBackfillCfg())
	e.now = func() time.Time { return now }

	e.Backfill(context.Background(), "MNQH6", 0, false)

	if fetch.callCount() != 1 {
		t.Fatalf("fetch calls = %d, want 1", fetch.callCount())
	}
	c := fetch.call(0)
	if c.duration != 24*time.Hour {
		t.Errorf("first-sight duration = %v, want 24h", c.duration)
	}
}

func TestBackfillFiltersBeforeWindowStart(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	last := now.Unix() - 100
	start := last + model.BarSize

	repo := newFakeRepo()
	fetch := &fakeFetcher{
		respond: func(call fetchCall) ([]model.Bar, error) {
			// the feed redelivers one bar from before the requested start
			return barsAt(call.symbol, last, start, start+5, start+10), nil
		},
	}
	e := NewBackfillEngine(repo, fetch, testBackfillCfg())
	e.now = func() time.Time { return now }

	gotLast, gotOk := e.Backfill(context.Background(), "MNQZ5", last, true)

	if n := repo.rowCount("MNQZ5"); n != 3 {
		t.Errorf("stored rows = %d, want 3 (pre-window bar dropped)", n)
	}
	if !gotOk || gotLast != start+10 {
		t.Errorf("tail = (%d,%v), want (%d,true)", gotLast, gotOk, start+10)
	}
}

func TestBackfillWalksWindows(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	last := now.Unix() - 150

	cfg := testBackfillCfg()
	cfg.WindowSlice = time.Minute

	fetch := &fakeFetcher{}
	e := NewBackfillEngine(newFakeRepo(), fetch, cfg)
	e.now = func() time.Time { return now }

	e.Backfill(context.Background(), "MNQZ5", last, true)

	if fetch.callCount() != 3 {
		t.Fatalf("fetch calls = %d, want 3", fetch.callCount())
	}
	for i := 0; i < fetch.callCount(); i++ {
		if c := fetch.call(i); c.duration < minFetchDuration {
			t.Errorf("call %d duration %v below floor", i, c.duration)
		}
	}
}

func TestBackfillFetchFailureEndsRun(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	last := now.Unix() - 150

	cfg := testBackfillCfg()
	cfg.WindowSlice = time.Minute

	repo := newFakeRepo()
	nCall := 0
	fetch := &fakeFetcher{
		respond: func(call fetchCall) ([]model.Bar, error) {
			nCall++
			if nCall == 2 {
				return nil, errors.New("timeout")
			}
			start := call.end.Add(-call.duration).Unix()
			ts := (start/model.BarSize + 1) * model.BarSize
			return barsAt(call.symbol, ts), nil
		},
	}
	e := NewBackfillEngine(repo, fetch, cfg)
	e.now = func() time.Time { return now }

	gotLast, gotOk := e.Backfill(context.Background(), "MNQZ5", last, true)

	if fetch.callCount() != 2 {
		t.Errorf("fetch calls = %d, want 2 (run ends at failed slice)", fetch.callCount())
	}
	// first slice's progress is retained
	if !gotOk || gotLast <= last {
		t.Errorf("tail = (%d,%v), want advanced past %d", gotLast, gotOk, last)
	}
	if repo.rowCount("MNQZ5") != 1 {
		t.Errorf("stored rows = %d, want 1", repo.rowCount("MNQZ5"))
	}
}

func TestBackfillStorageFailureKeepsTail(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	last := now.Unix() - 100

	repo := newFakeRepo()
	repo.insertErr = errors.New("disk full")
	fetch := &fakeFetcher{
		respond: func(call fetchCall) ([]model.Bar, error) {
			return barsAt(call.symbol, last+5), nil
		},
	}
	e := NewBackfillEngine(repo, fetch, testBackfillCfg())
	e.now = func() time.Time { return now }

	gotLast, gotOk := e.Backfill(context.Background(), "MNQZ5", last, true)
	if gotLast != last || !gotOk {
		t.Errorf("tail advanced despite storage failure: (%d,%v)", gotLast, gotOk)
	}
}

func TestBackfillClampsToMaxWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	// tail far older than the max window
	last := now.Add(-30 * 24 * time.Hour).Unix()

	cfg := testBackfillCfg()
	fetch := &fakeFetcher{}
	e := NewBackfillEngine(newFakeRepo(), fetch, cfg)
	e.now = func() time.Time { return now }

	e.Backfill(context.Background(), "MNQZ5", last, true)

	if fetch.callCount() == 0 {
		t.Fatal("no fetch issued")
	}
	first := fetch.call(0)
	start := first.end.Add(-first.duration)
	floor := now.Add(-cfg.MaxWindow)
	if start.Before(floor) {
		t.Errorf("window start %v precedes max-window floor %v", start, floor)
	}
}
