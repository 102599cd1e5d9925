package port

import (
	"context"
	"time"

	"futsync/internal/domain/model"
)

// Connector owns the feed session lifecycle. Consumers check IsConnected
// before fetching; a fetch attempted while disconnected fails fast with
// ErrNotConnected.
type Connector interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Close() error
}

// BarFetcher fetches historical bars for one symbol over a trailing range
// ending at end. An empty result means no bars exist in range, not an error.
type BarFetcher interface {
	FetchBars(ctx context.Context, symbol string, end time.Time, duration time.Duration) ([]model.Bar, error)
}

// PositionStream delivers portfolio state: a full snapshot on demand
// (used to re-baseline after a connect) and pushed incremental updates.
type PositionStream interface {
	RequestPositions(ctx context.Context) ([]model.PositionUpdate, error)
	Updates() <-chan model.PositionUpdate
}

// Feed is the complete market-data gateway surface.
type Feed interface {
	Connector
	BarFetcher
	PositionStream
}
