package port

import (
	"context"

	"futsync/internal/domain/model"
)

// BarRepository is the persistence boundary for the bar time series. The
// store is append-only and keyed by (symbol, ts); duplicate timestamps are
// skipped, never overwritten.
type BarRepository interface {
	// EnsureSymbol idempotently provisions storage for a symbol.
	EnsureSymbol(ctx context.Context, symbol string) error

	// LastTimestamp returns the max stored timestamp for a symbol, with
	// ok=false when the symbol has no rows yet (including storage not
	// provisioned).
	LastTimestamp(ctx context.Context, symbol string) (ts int64, ok bool, err error)

	// InsertBars bulk-inserts bars; rows whose timestamp is already present
	// are silently skipped.
	InsertBars(ctx context.Context, symbol string, bars []model.Bar) error
}

// EventRepository records classified position events.
type EventRepository interface {
	InsertPositionEvent(ctx context.Context, ev model.PositionEvent) error
}

// Repository is the full storage surface shared by the loops.
type Repository interface {
	BarRepository
	EventRepository
	Close() error
}
