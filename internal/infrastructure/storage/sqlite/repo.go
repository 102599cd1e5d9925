package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"futsync/internal/application/port"
	"futsync/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// single writer: concurrent loops serialize on the pool
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
	} {
		if _, err := r.db.ExecContext(ctx, pragma); err != nil {
			return err
		}
	}

	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS bars (
  symbol TEXT NOT NULL,
  ts INTEGER NOT NULL,
  open REAL NOT NULL,
  high REAL NOT NULL,
  low REAL NOT NULL,
  close REAL NOT NULL,
  volume REAL NOT NULL,
  wap REAL NOT NULL,
  count INTEGER NOT NULL,
  PRIMARY KEY(symbol, ts)
);
CREATE INDEX IF NOT EXISTS idx_bars_ts ON bars(ts);

CREATE TABLE IF NOT EXISTS position_events (
  id TEXT PRIMARY KEY,
  ts INTEGER NOT NULL,
  kind TEXT NOT NULL,
  instrument_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  prev_quantity REAL NOT NULL,
  quantity REAL NOT NULL,
  side TEXT NOT NULL,
  realized_pnl REAL NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_position_events_ts ON position_events(ts);
CREATE INDEX IF NOT EXISTS idx_position_events_symbol ON position_events(symbol);
`)
	return err
}

// EnsureSymbol is part of the repository contract; the symbol is a partition
// key in the bars table, so there is nothing per-symbol to provision.
func (r *Repo) EnsureSymbol(ctx context.Context, symbol string) error {
	return nil
}

func (r *Repo) LastTimestamp(ctx context.Context, symbol string) (int64, bool, error) {
	var ts sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM bars WHERE symbol=?`, symbol).Scan(&ts)
	if err != nil {
		return 0, false, err
	}
	if !ts.Valid {
		return 0, false, nil
	}
	return ts.Int64, true, nil
}

func (r *Repo) InsertBars(ctx context.Context, symbol string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars(symbol, ts, open, high, low, close, volume, wap, count)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, ts) DO NOTHING
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.Ts, b.Open, b.High, b.Low, b.Close, b.Volume, b.Wap, b.Count); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) InsertPositionEvent(ctx context.Context, ev model.PositionEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO position_events(id, ts, kind, instrument_id, symbol, prev_quantity, quantity, side, realized_pnl, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ev.ID.String(), ev.Ts, string(ev.Kind), ev.InstrumentID, ev.Symbol, ev.PrevQuantity, ev.Quantity, string(ev.Side), ev.RealizedPnL, ev.Ts)
	return err
}

var _ port.Repository = (*Repo)(nil)
