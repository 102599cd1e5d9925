package composite

import (
	"context"

	"futsync/internal/application/port"
	"futsync/internal/domain/model"
)

// Repo fans writes out to every configured backend. Reads (tail lookups)
// come from the first repo, which is the durable primary.
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	// nil repos are allowed; filter in constructor for safety
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

func (r *Repo) EnsureSymbol(ctx context.Context, symbol string) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.EnsureSymbol(ctx, symbol); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) LastTimestamp(ctx context.Context, symbol string) (int64, bool, error) {
	if len(r.repos) == 0 {
		return 0, false, nil
	}
	return r.repos[0].LastTimestamp(ctx, symbol)
}

func (r *Repo) InsertBars(ctx context.Context, symbol string, bars []model.Bar) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.InsertBars(ctx, symbol, bars); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) InsertPositionEvent(ctx context.Context, ev model.PositionEvent) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.InsertPositionEvent(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) Close() error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Repository = (*Repo)(nil)
