package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"futsync/internal/application/port"
	"futsync/internal/domain/model"
)

type fakeRepo struct {
	mu        sync.Mutex
	bars      map[string]map[int64]model.Bar
	events    []model.PositionEvent
	insertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{bars: make(map[string]map[int64]model.Bar)}
}

func (r *fakeRepo) EnsureSymbol(ctx context.Context, symbol string) error { return nil }

func (r *fakeRepo) LastTimestamp(ctx context.Context, symbol string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows, ok := r.bars[symbol]
	if !ok || len(rows) == 0 {
		return 0, false, nil
	}
	var max int64
	for ts := range rows {
		if ts > max {
			max = ts
		}
	}
	return max, true, nil
}

func (r *fakeRepo) InsertBars(ctx context.Context, symbol string, bars []model.Bar) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	rows := r.bars[symbol]
	if rows == nil {
		rows = make(map[int64]model.Bar)
		r.bars[symbol] = rows
	}
	for _, b := range bars {
		if _, dup := rows[b.Ts]; !dup {
			rows[b.Ts] = b
		}
	}
	return nil
}

func (r *fakeRepo) InsertPositionEvent(ctx context.Context, ev model.PositionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRepo) Close() error { return nil }

func (r *fakeRepo) rowCount(symbol string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bars[symbol])
}

func (r *fakeRepo) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *fakeRepo) event(i int) model.PositionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[i]
}

func (r *fakeRepo) seed(symbol string, ts ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := r.bars[symbol]
	if rows == nil {
		rows = make(map[int64]model.Bar)
		r.bars[symbol] = rows
	}
	for _, t := range ts {
		rows[t] = model.Bar{Symbol: symbol, Ts: t, Open: 1, High: 1, Low: 1, Close: 1}
	}
}

type fetchCall struct {
	symbol   string
	end      time.Time
	duration time.Duration
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	// respond builds the reply for one call; nil means empty result
	respond func(call fetchCall) ([]model.Bar, error)
}

func (f *fakeFetcher) FetchBars(ctx context.Context, symbol string, end time.Time, duration time.Duration) ([]model.Bar, error) {
	f.mu.Lock()
	call := fetchCall{symbol: symbol, end: end, duration: duration}
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(call)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) call(i int) fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type fakeGate struct {
	mu        sync.Mutex
	connected bool
	epoch     uint64
}

func (g *fakeGate) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

func (g *fakeGate) Epoch() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

func (g *fakeGate) set(connected bool, epoch uint64) {
	g.mu.Lock()
	g.connected = connected
	g.epoch = epoch
	g.mu.Unlock()
}

type fakeStream struct {
	mu        sync.Mutex
	snapshot  []model.PositionUpdate
	snapErr   error
	snapCalls int
	ch        chan model.PositionUpdate
}

func newFakeStream(snapshot ...model.PositionUpdate) *fakeStream {
	return &fakeStream{snapshot: snapshot, ch: make(chan model.PositionUpdate, 16)}
}

func (s *fakeStream) RequestPositions(ctx context.Context) ([]model.PositionUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapCalls++
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return s.snapshot, nil
}

func (s *fakeStream) snapshotCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapCalls
}

func (s *fakeStream) Updates() <-chan model.PositionUpdate { return s.ch }

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
	fail bool
}

func (n *fakeNotifier) Deliver(ctx context.Context, to port.Destination, text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
	return !n.fail
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

type fakeConnector struct {
	mu       sync.Mutex
	failures int // connect attempts that fail before the first success
	attempts int
	alive    bool
}

var errConnectRefused = errors.New("connection refused")

func (c *fakeConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.attempts <= c.failures {
		return errConnectRefused
	}
	c.alive = true
	return nil
}

func (c *fakeConnector) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *fakeConnector) Close() error {
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
	return nil
}

func (c *fakeConnector) drop() {
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
}

func (c *fakeConnector) attemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}
