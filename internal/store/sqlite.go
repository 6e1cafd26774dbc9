package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/dividendlab/screener-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_date       TEXT NOT NULL,
	selected_count INTEGER NOT NULL,
	rule_version   TEXT NOT NULL,
	column_version TEXT NOT NULL,
	notes          TEXT
);

CREATE TABLE IF NOT EXISTS selection_results (
	run_id                  INTEGER NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
	ticker                  TEXT NOT NULL,
	selection_payload       TEXT NOT NULL,
	informational_payload   TEXT NOT NULL,
	yield_gross             REAL,
	yield_net               REAL,
	current_price           REAL,
	breakeven_price         REAL,
	oscillator_1m           REAL,
	oscillator_1w           REAL,
	secondary_signal_passed INTEGER NOT NULL DEFAULT 0,
	price_error             TEXT
);

CREATE TABLE IF NOT EXISTS rule_versions (
	version     TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	description TEXT,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS column_versions (
	version     TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	description TEXT,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS price_bars (
	ticker    TEXT NOT NULL,
	date      TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	open      REAL NOT NULL,
	high      REAL NOT NULL,
	low       REAL NOT NULL,
	close     REAL NOT NULL,
	volume    INTEGER,
	UNIQUE(ticker, date, timeframe)
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_run_date ON analysis_runs(run_date);
CREATE INDEX IF NOT EXISTS idx_selection_results_run_id ON selection_results(run_id);
CREATE INDEX IF NOT EXISTS idx_selection_results_ticker ON selection_results(ticker);
CREATE INDEX IF NOT EXISTS idx_price_bars_ticker_tf_date ON price_bars(ticker, timeframe, date);
CREATE INDEX IF NOT EXISTS idx_price_bars_date ON price_bars(date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run, results []model.SelectionResult) (*model.Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin save run")
	}
	defer tx.Rollback()

	// Replace semantics: at most one run per calendar day.
	day := run.RunDate.UTC().Format(dateFormat)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM selection_results WHERE run_id IN
		   (SELECT id FROM analysis_runs WHERE substr(run_date, 1, 10) = ?)`,
		day,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: delete prior results")
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM analysis_runs WHERE substr(run_date, 1, 10) = ?`,
		day,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: delete prior run")
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO analysis_runs (run_date, selected_count, rule_version, column_version, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		run.RunDate.UTC().Format(timeFormat), run.SelectedCount,
		run.RuleVersion, run.ColumnVersion, run.Notes,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: run id")
	}

	for _, r := range results {
		selJSON, infJSON, err := marshalPayloads(r)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO selection_results
			   (run_id, ticker, selection_payload, informational_payload,
			    yield_gross, yield_net, current_price, breakeven_price,
			    oscillator_1m, oscillator_1w, secondary_signal_passed, price_error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, r.Ticker, selJSON, infJSON,
			nullFloat(r.YieldGross), nullFloat(r.YieldNet),
			nullFloat(r.CurrentPrice), nullFloat(r.BreakevenPrice),
			nullFloat(r.Oscillator1M), nullFloat(r.Oscillator1W),
			boolInt(r.SecondarySignalPassed), r.PriceError,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert result %s", r.Ticker)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit save run")
	}

	saved := *run
	saved.ID = id
	return &saved, nil
}

const sqliteRunColumns = `id, run_date, selected_count, rule_version, column_version, notes`

func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM analysis_runs WHERE id = ?`, id)
	return scanSQLiteRun(row)
}

func (s *SQLiteStore) GetRunByDate(ctx context.Context, date time.Time) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM analysis_runs WHERE substr(run_date, 1, 10) = ?`,
		date.UTC().Format(dateFormat))
	return scanSQLiteRun(row)
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM analysis_runs ORDER BY run_date DESC LIMIT 1`)
	return scanSQLiteRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM analysis_runs ORDER BY run_date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

const sqliteResultColumns = `run_id, ticker, selection_payload, informational_payload,
	yield_gross, yield_net, current_price, breakeven_price,
	oscillator_1m, oscillator_1w, secondary_signal_passed, price_error`

func (s *SQLiteStore) Results(ctx context.Context, runID int64) ([]model.SelectionResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteResultColumns+` FROM selection_results WHERE run_id = ? ORDER BY ticker`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query results")
	}
	defer rows.Close()

	var out []model.SelectionResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: results iterate")
}

func (s *SQLiteStore) TickerHistory(ctx context.Context, ticker string, limit int) ([]model.TickerHistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ar.id, ar.run_date, ar.rule_version, ar.column_version, `+sqliteResultColumns+`
		 FROM selection_results sr
		 JOIN analysis_runs ar ON ar.id = sr.run_id
		 WHERE sr.ticker = ?
		 ORDER BY ar.run_date DESC
		 LIMIT ?`, ticker, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ticker history %s", ticker)
	}
	defer rows.Close()

	var out []model.TickerHistoryEntry
	for rows.Next() {
		var e model.TickerHistoryEntry
		var runDate string
		var selJSON, infJSON string
		var yg, yn, cp, bp, o1m, o1w sql.NullFloat64
		var passed int
		var priceErr sql.NullString
		if err := rows.Scan(
			&e.RunID, &runDate, &e.RuleVersion, &e.ColumnVersion,
			&e.Result.RunID, &e.Result.Ticker, &selJSON, &infJSON,
			&yg, &yn, &cp, &bp, &o1m, &o1w, &passed, &priceErr,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history")
		}
		t, err := time.Parse(timeFormat, runDate)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse run_date")
		}
		e.RunDate = t
		if err := unmarshalPayloads(&e.Result, selJSON, infJSON); err != nil {
			return nil, err
		}
		e.Result.YieldGross = floatPtr(yg)
		e.Result.YieldNet = floatPtr(yn)
		e.Result.CurrentPrice = floatPtr(cp)
		e.Result.BreakevenPrice = floatPtr(bp)
		e.Result.Oscillator1M = floatPtr(o1m)
		e.Result.Oscillator1W = floatPtr(o1w)
		e.Result.SecondarySignalPassed = passed != 0
		e.Result.PriceError = priceErr.String
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: history iterate")
}

func versionTable(kind model.VersionKind) string {
	if kind == model.VersionKindColumns {
		return "column_versions"
	}
	return "rule_versions"
}

func (s *SQLiteStore) LatestVersion(ctx context.Context, kind model.VersionKind) (*model.ConfigVersion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT version, payload, description, created_at FROM `+versionTable(kind)+
			` ORDER BY created_at DESC LIMIT 1`)

	var v model.ConfigVersion
	var payload, createdAt string
	var desc sql.NullString
	err := row.Scan(&v.Version, &payload, &desc, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest %s version", kind)
	}
	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse version created_at")
	}
	v.Kind = kind
	v.Payload = []byte(payload)
	v.Description = desc.String
	v.CreatedAt = t
	return &v, nil
}

func (s *SQLiteStore) InsertVersion(ctx context.Context, v model.ConfigVersion) error {
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO `+versionTable(v.Kind)+` (version, payload, description, created_at)
		 VALUES (?, ?, ?, ?)`,
		v.Version, string(v.Payload), v.Description, createdAt.UTC().Format(timeFormat))
	return eris.Wrapf(err, "sqlite: insert %s version %s", v.Kind, v.Version)
}

func (s *SQLiteStore) UpsertBars(ctx context.Context, bars []model.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert bars")
	}
	defer tx.Rollback()

	for _, b := range bars {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO price_bars (ticker, date, timeframe, open, high, low, close, volume)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			b.Ticker, b.Date.UTC().Format(dateFormat), string(b.Timeframe),
			b.Open, b.High, b.Low, b.Close, b.Volume,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert bar %s %s", b.Ticker, b.Date.Format(dateFormat))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert bars")
	}
	return len(bars), nil
}

func (s *SQLiteStore) LastBarDate(ctx context.Context, ticker string, tf model.Timeframe) (time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM price_bars WHERE ticker = ? AND timeframe = ?`,
		ticker, string(tf))

	var d sql.NullString
	if err := row.Scan(&d); err != nil {
		return time.Time{}, false, eris.Wrapf(err, "sqlite: last bar date %s", ticker)
	}
	if !d.Valid || d.String == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(dateFormat, d.String)
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "sqlite: parse bar date")
	}
	return t, true, nil
}

func (s *SQLiteStore) Bars(ctx context.Context, ticker string, tf model.Timeframe, limit int) ([]model.PriceBar, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, open, high, low, close, volume FROM price_bars
		 WHERE ticker = ? AND timeframe = ?
		 ORDER BY date DESC LIMIT ?`,
		ticker, string(tf), limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query bars %s", ticker)
	}
	defer rows.Close()

	var bars []model.PriceBar
	for rows.Next() {
		var b model.PriceBar
		var date string
		var vol sql.NullInt64
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &vol); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bar")
		}
		t, err := time.Parse(dateFormat, date)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse bar date")
		}
		b.Ticker = ticker
		b.Date = t
		b.Timeframe = tf
		b.Volume = vol.Int64
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: bars iterate")
	}

	// Query is newest-first for the LIMIT; callers get oldest-first.
	reverse(bars)
	return bars, nil
}

func (s *SQLiteStore) DeleteBarsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM price_bars WHERE date < ?`, cutoff.UTC().Format(dateFormat))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete old bars")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var r model.Run
	var runDate string
	var notes sql.NullString

	err := row.Scan(&r.ID, &runDate, &r.SelectedCount, &r.RuleVersion, &r.ColumnVersion, &notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	t, err := time.Parse(timeFormat, runDate)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse run_date")
	}
	r.RunDate = t
	r.Notes = notes.String
	return &r, nil
}

func scanResult(row scannable) (*model.SelectionResult, error) {
	var r model.SelectionResult
	var selJSON, infJSON string
	var yg, yn, cp, bp, o1m, o1w sql.NullFloat64
	var passed int
	var priceErr sql.NullString

	if err := row.Scan(
		&r.RunID, &r.Ticker, &selJSON, &infJSON,
		&yg, &yn, &cp, &bp, &o1m, &o1w, &passed, &priceErr,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan result")
	}
	if err := unmarshalPayloads(&r, selJSON, infJSON); err != nil {
		return nil, err
	}
	r.YieldGross = floatPtr(yg)
	r.YieldNet = floatPtr(yn)
	r.CurrentPrice = floatPtr(cp)
	r.BreakevenPrice = floatPtr(bp)
	r.Oscillator1M = floatPtr(o1m)
	r.Oscillator1W = floatPtr(o1w)
	r.SecondarySignalPassed = passed != 0
	r.PriceError = priceErr.String
	return &r, nil
}

func marshalPayloads(r model.SelectionResult) (selJSON, infJSON string, err error) {
	sel, err := json.Marshal(orEmpty(r.SelectionPayload))
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal selection payload")
	}
	inf, err := json.Marshal(orEmpty(r.InformationalPayload))
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal informational payload")
	}
	return string(sel), string(inf), nil
}

func unmarshalPayloads(r *model.SelectionResult, selJSON, infJSON string) error {
	if err := json.Unmarshal([]byte(selJSON), &r.SelectionPayload); err != nil {
		return eris.Wrap(err, "store: unmarshal selection payload")
	}
	if err := json.Unmarshal([]byte(infJSON), &r.InformationalPayload); err != nil {
		return eris.Wrap(err, "store: unmarshal informational payload")
	}
	return nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	f := n.Float64
	return &f
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func reverse(bars []model.PriceBar) {
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
}
