package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/dividendlab/screener-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects to the given DSN with a bounded pool.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse dsn")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id             BIGSERIAL PRIMARY KEY,
	run_date       TIMESTAMPTZ NOT NULL,
	selected_count INTEGER NOT NULL,
	rule_version   TEXT NOT NULL,
	column_version TEXT NOT NULL,
	notes          TEXT
);

CREATE TABLE IF NOT EXISTS selection_results (
	run_id                  BIGINT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
	ticker                  TEXT NOT NULL,
	selection_payload       JSONB NOT NULL,
	informational_payload   JSONB NOT NULL,
	yield_gross             DOUBLE PRECISION,
	yield_net               DOUBLE PRECISION,
	current_price           DOUBLE PRECISION,
	breakeven_price         DOUBLE PRECISION,
	oscillator_1m           DOUBLE PRECISION,
	oscillator_1w           DOUBLE PRECISION,
	secondary_signal_passed BOOLEAN NOT NULL DEFAULT FALSE,
	price_error             TEXT
);

CREATE TABLE IF NOT EXISTS rule_versions (
	version     TEXT PRIMARY KEY,
	payload     JSONB NOT NULL,
	description TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS column_versions (
	version     TEXT PRIMARY KEY,
	payload     JSONB NOT NULL,
	description TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS price_bars (
	ticker    TEXT NOT NULL,
	date      DATE NOT NULL,
	timeframe TEXT NOT NULL,
	open      DOUBLE PRECISION NOT NULL,
	high      DOUBLE PRECISION NOT NULL,
	low       DOUBLE PRECISION NOT NULL,
	close     DOUBLE PRECISION NOT NULL,
	volume    BIGINT,
	UNIQUE(ticker, date, timeframe)
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_run_date ON analysis_runs(run_date);
CREATE INDEX IF NOT EXISTS idx_selection_results_run_id ON selection_results(run_id);
CREATE INDEX IF NOT EXISTS idx_selection_results_ticker ON selection_results(ticker);
CREATE INDEX IF NOT EXISTS idx_price_bars_ticker_tf_date ON price_bars(ticker, timeframe, date);
CREATE INDEX IF NOT EXISTS idx_price_bars_date ON price_bars(date);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run, results []model.SelectionResult) (*model.Run, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin save run")
	}
	defer tx.Rollback(ctx)

	day := run.RunDate.UTC().Truncate(24 * time.Hour)
	if _, err := tx.Exec(ctx,
		`DELETE FROM selection_results WHERE run_id IN
		   (SELECT id FROM analysis_runs WHERE run_date >= $1 AND run_date < $2)`,
		day, day.Add(24*time.Hour),
	); err != nil {
		return nil, eris.Wrap(err, "postgres: delete prior results")
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM analysis_runs WHERE run_date >= $1 AND run_date < $2`,
		day, day.Add(24*time.Hour),
	); err != nil {
		return nil, eris.Wrap(err, "postgres: delete prior run")
	}

	var id int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO analysis_runs (run_date, selected_count, rule_version, column_version, notes)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		run.RunDate.UTC(), run.SelectedCount, run.RuleVersion, run.ColumnVersion, run.Notes,
	).Scan(&id); err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	for _, r := range results {
		selJSON, infJSON, err := marshalPayloads(r)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO selection_results
			   (run_id, ticker, selection_payload, informational_payload,
			    yield_gross, yield_net, current_price, breakeven_price,
			    oscillator_1m, oscillator_1w, secondary_signal_passed, price_error)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			id, r.Ticker, selJSON, infJSON,
			r.YieldGross, r.YieldNet, r.CurrentPrice, r.BreakevenPrice,
			r.Oscillator1M, r.Oscillator1W, r.SecondarySignalPassed, r.PriceError,
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: insert result %s", r.Ticker)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit save run")
	}

	saved := *run
	saved.ID = id
	return &saved, nil
}

const pgRunColumns = `id, run_date, selected_count, rule_version, column_version, notes`

func (s *PostgresStore) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM analysis_runs WHERE id = $1`, id)
	return scanPGRun(row)
}

func (s *PostgresStore) GetRunByDate(ctx context.Context, date time.Time) (*model.Run, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM analysis_runs WHERE run_date >= $1 AND run_date < $2`,
		day, day.Add(24*time.Hour))
	return scanPGRun(row)
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM analysis_runs ORDER BY run_date DESC LIMIT 1`)
	return scanPGRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgRunColumns+` FROM analysis_runs ORDER BY run_date DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var notes *string
		if err := rows.Scan(&r.ID, &r.RunDate, &r.SelectedCount, &r.RuleVersion, &r.ColumnVersion, &notes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if notes != nil {
			r.Notes = *notes
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

const pgResultColumns = `run_id, ticker, selection_payload, informational_payload,
	yield_gross, yield_net, current_price, breakeven_price,
	oscillator_1m, oscillator_1w, secondary_signal_passed, price_error`

func (s *PostgresStore) Results(ctx context.Context, runID int64) ([]model.SelectionResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgResultColumns+` FROM selection_results WHERE run_id = $1 ORDER BY ticker`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query results")
	}
	defer rows.Close()

	var out []model.SelectionResult
	for rows.Next() {
		r, err := scanPGResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: results iterate")
}

func (s *PostgresStore) TickerHistory(ctx context.Context, ticker string, limit int) ([]model.TickerHistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT ar.id, ar.run_date, ar.rule_version, ar.column_version, `+pgResultColumns+`
		 FROM selection_results sr
		 JOIN analysis_runs ar ON ar.id = sr.run_id
		 WHERE sr.ticker = $1
		 ORDER BY ar.run_date DESC
		 LIMIT $2`, ticker, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ticker history %s", ticker)
	}
	defer rows.Close()

	var out []model.TickerHistoryEntry
	for rows.Next() {
		var e model.TickerHistoryEntry
		var selJSON, infJSON []byte
		var priceErr *string
		if err := rows.Scan(
			&e.RunID, &e.RunDate, &e.RuleVersion, &e.ColumnVersion,
			&e.Result.RunID, &e.Result.Ticker, &selJSON, &infJSON,
			&e.Result.YieldGross, &e.Result.YieldNet,
			&e.Result.CurrentPrice, &e.Result.BreakevenPrice,
			&e.Result.Oscillator1M, &e.Result.Oscillator1W,
			&e.Result.SecondarySignalPassed, &priceErr,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan history")
		}
		if err := unmarshalPayloads(&e.Result, string(selJSON), string(infJSON)); err != nil {
			return nil, err
		}
		if priceErr != nil {
			e.Result.PriceError = *priceErr
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: history iterate")
}

func (s *PostgresStore) LatestVersion(ctx context.Context, kind model.VersionKind) (*model.ConfigVersion, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT version, payload, description, created_at FROM `+versionTable(kind)+
			` ORDER BY created_at DESC LIMIT 1`)

	var v model.ConfigVersion
	var payload []byte
	var desc *string
	err := row.Scan(&v.Version, &payload, &desc, &v.CreatedAt)
	if err == pgx.ErrNoRows || err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest %s version", kind)
	}
	v.Kind = kind
	v.Payload = payload
	if desc != nil {
		v.Description = *desc
	}
	return &v, nil
}

func (s *PostgresStore) InsertVersion(ctx context.Context, v model.ConfigVersion) error {
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+versionTable(v.Kind)+` (version, payload, description, created_at)
		 VALUES ($1, $2, $3, $4)`,
		v.Version, v.Payload, v.Description, createdAt.UTC())
	return eris.Wrapf(err, "postgres: insert %s version %s", v.Kind, v.Version)
}

func (s *PostgresStore) UpsertBars(ctx context.Context, bars []model.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin upsert bars")
	}
	defer tx.Rollback(ctx)

	for _, b := range bars {
		if _, err := tx.Exec(ctx,
			`INSERT INTO price_bars (ticker, date, timeframe, open, high, low, close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (ticker, date, timeframe) DO UPDATE SET
			   open = EXCLUDED.open, high = EXCLUDED.high,
			   low = EXCLUDED.low, close = EXCLUDED.close,
			   volume = EXCLUDED.volume`,
			b.Ticker, b.Date.UTC().Truncate(24*time.Hour), string(b.Timeframe),
			b.Open, b.High, b.Low, b.Close, b.Volume,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert bar %s %s", b.Ticker, b.Date.Format(dateFormat))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit upsert bars")
	}
	return len(bars), nil
}

func (s *PostgresStore) LastBarDate(ctx context.Context, ticker string, tf model.Timeframe) (time.Time, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT MAX(date) FROM price_bars WHERE ticker = $1 AND timeframe = $2`,
		ticker, string(tf))

	var d *time.Time
	if err := row.Scan(&d); err != nil {
		return time.Time{}, false, eris.Wrapf(err, "postgres: last bar date %s", ticker)
	}
	if d == nil {
		return time.Time{}, false, nil
	}
	return d.UTC(), true, nil
}

func (s *PostgresStore) Bars(ctx context.Context, ticker string, tf model.Timeframe, limit int) ([]model.PriceBar, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT date, open, high, low, close, volume FROM price_bars
		 WHERE ticker = $1 AND timeframe = $2
		 ORDER BY date DESC LIMIT $3`,
		ticker, string(tf), limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query bars %s", ticker)
	}
	defer rows.Close()

	var bars []model.PriceBar
	for rows.Next() {
		var b model.PriceBar
		var vol *int64
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &vol); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bar")
		}
		b.Ticker = ticker
		b.Date = b.Date.UTC()
		b.Timeframe = tf
		if vol != nil {
			b.Volume = *vol
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: bars iterate")
	}
	reverse(bars)
	return bars, nil
}

func (s *PostgresStore) DeleteBarsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM price_bars WHERE date < $1`, cutoff.UTC().Truncate(24*time.Hour))
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete old bars")
	}
	return int(tag.RowsAffected()), nil
}

func scanPGRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var notes *string
	err := row.Scan(&r.ID, &r.RunDate, &r.SelectedCount, &r.RuleVersion, &r.ColumnVersion, &notes)
	if err == pgx.ErrNoRows || err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	r.RunDate = r.RunDate.UTC()
	if notes != nil {
		r.Notes = *notes
	}
	return &r, nil
}

func scanPGResult(rows pgx.Rows) (*model.SelectionResult, error) {
	var r model.SelectionResult
	var selJSON, infJSON []byte
	var priceErr *string

	if err := rows.Scan(
		&r.RunID, &r.Ticker, &selJSON, &infJSON,
		&r.YieldGross, &r.YieldNet, &r.CurrentPrice, &r.BreakevenPrice,
		&r.Oscillator1M, &r.Oscillator1W, &r.SecondarySignalPassed, &priceErr,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: scan result")
	}
	if err := unmarshalPayloads(&r, string(selJSON), string(infJSON)); err != nil {
		return nil, err
	}
	if priceErr != nil {
		r.PriceError = *priceErr
	}
	return &r, nil
}
