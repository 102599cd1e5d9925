package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"futsync/internal/application/port"
	"futsync/internal/domain/model"
)

// Repo is a cache tier: it keeps the latest bar per symbol in a hash and
// fans position events out over a stream plus pub/sub. Durable history
// stays in the primary store, so tail lookups report "no data".
type Repo struct {
	rdb        *redis.Client
	prefix     string
	ttl        time.Duration
	keyLatest  string // prefix + ":latest"
	eventsKey  string
	eventsChan string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, eventsStream, eventsChan string) *Repo {
	if strings.TrimSpace(eventsStream) == "" {
		eventsStream = prefix + ":events"
	}
	if strings.TrimSpace(eventsChan) == "" {
		eventsChan = prefix + ":events:pub"
	}
	return &Repo{
		rdb:        rdb,
		prefix:     prefix,
		ttl:        ttl,
		keyLatest:  prefix + ":latest",
		eventsKey:  eventsStream,
		eventsChan: eventsChan,
	}
}

func (r *Repo) Close() error { return r.rdb.Close() }

func (r *Repo) EnsureSymbol(ctx context.Context, symbol string) error {
	return nil
}

func (r *Repo) LastTimestamp(ctx context.Context, symbol string) (int64, bool, error) {
	return 0, false, nil
}

// InsertBars caches only the newest bar of the batch per symbol.
func (r *Repo) InsertBars(ctx context.Context, symbol string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	latest := bars[0]
	for _, b := range bars[1:] {
		if b.Ts > latest.Ts {
			latest = b
		}
	}
	b, _ := json.Marshal(latest)

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, symbol, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) InsertPositionEvent(ctx context.Context, ev model.PositionEvent) error {
	payload, _ := json.Marshal(ev)

	// 1) Stream: XADD <stream> * id kind symbol payload
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.eventsKey,
		Values: map[string]any{
			"id":      ev.ID.String(),
			"ts":      ev.Ts,
			"kind":    string(ev.Kind),
			"symbol":  ev.Symbol,
			"payload": string(payload),
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	return r.rdb.Publish(ctx, r.eventsChan, string(payload)).Err()
}

var _ port.Repository = (*Repo)(nil)
