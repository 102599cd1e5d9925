package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"futsync/internal/application/port"
	"futsync/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS bars (
  symbol TEXT NOT NULL,
  ts BIGINT NOT NULL,
  open DOUBLE PRECISION NOT NULL,
  high DOUBLE PRECISION NOT NULL,
  low DOUBLE PRECISION NOT NULL,
  close DOUBLE PRECISION NOT NULL,
  volume DOUBLE PRECISION NOT NULL,
  wap DOUBLE PRECISION NOT NULL,
  count BIGINT NOT NULL,
  PRIMARY KEY(symbol, ts)
);
CREATE INDEX IF NOT EXISTS idx_bars_ts ON bars(ts);

CREATE TABLE IF NOT EXISTS position_events (
  id TEXT PRIMARY KEY,
  ts BIGINT NOT NULL,
  kind TEXT NOT NULL,
  instrument_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  prev_quantity DOUBLE PRECISION NOT NULL,
  quantity DOUBLE PRECISION NOT NULL,
  side TEXT NOT NULL,
  realized_pnl DOUBLE PRECISION NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_position_events_ts ON position_events(ts);
CREATE INDEX IF NOT EXISTS idx_position_events_symbol ON position_events(symbol);
`)
	return err
}

func (r *Repo) EnsureSymbol(ctx context.Context, symbol string) error {
	return nil
}

func (r *Repo) LastTimestamp(ctx context.Context, symbol string) (int64, bool, error) {
	var ts sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM bars WHERE symbol=$1`, symbol).Scan(&ts)
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
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)
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
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT(id) DO NOTHING
	`, ev.ID.String(), ev.Ts, string(ev.Kind), ev.InstrumentID, ev.Symbol, ev.PrevQuantity, ev.Quantity, string(ev.Side), ev.RealizedPnL, ev.Ts)
	return err
}

var _ port.Repository = (*Repo)(nil)
