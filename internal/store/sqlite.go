package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS lookups (
	id          TEXT PRIMARY KEY,
	address     TEXT NOT NULL,
	lon         REAL NOT NULL,
	lat         REAL NOT NULL,
	data_source TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	selection   TEXT NOT NULL DEFAULT '',
	size_sq_ft  INTEGER NOT NULL,
	attempts    TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_lookups_data_source ON lookups(data_source);
CREATE INDEX IF NOT EXISTS idx_lookups_created_at ON lookups(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordLookup(ctx context.Context, l Lookup) error {
	attemptsJSON, err := json.Marshal(l.Attempts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal attempts")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lookups (id, address, lon, lat, data_source, strategy, selection, size_sq_ft, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Address, l.Lon, l.Lat, string(l.DataSource), l.Strategy, string(l.Selection),
		l.SizeSqFt, string(attemptsJSON), l.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert lookup %s", l.ID)
}

func (s *SQLiteStore) ListLookups(ctx context.Context, filter LookupFilter) ([]Lookup, error) {
	query := `SELECT id, address, lon, lat, data_source, strategy, selection, size_sq_ft, attempts, created_at
		FROM lookups WHERE 1=1`
	var args []any

	if filter.DataSource != "" {
		query += ` AND data_source = ?`
		args = append(args, filter.DataSource)
	}
	if filter.Strategy != "" {
		query += ` AND strategy = ?`
		args = append(args, filter.Strategy)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list lookups")
	}
	defer rows.Close() //nolint:errcheck

	var out []Lookup
	for rows.Next() {
		l, err := scanLookup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list lookups iterate")
}

func (s *SQLiteStore) CountBySource(ctx context.Context) (map[string]int, error) {
	return s.CountBySourceSince(ctx, time.Time{})
}

func (s *SQLiteStore) CountBySourceSince(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data_source, COUNT(*) FROM lookups WHERE created_at >= ? GROUP BY data_source`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by source")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[source] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count by source iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanLookup(row scannable) (*Lookup, error) {
	var l Lookup
	var attemptsJSON string

	err := row.Scan(&l.ID, &l.Address, &l.Lon, &l.Lat, &l.DataSource, &l.Strategy,
		&l.Selection, &l.SizeSqFt, &attemptsJSON, &l.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan lookup")
	}
	if err := unmarshalAttempts([]byte(attemptsJSON), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func unmarshalAttempts(data []byte, l *Lookup) error {
	if len(data) == 0 {
		return nil
	}
	return eris.Wrapf(json.Unmarshal(data, &l.Attempts), "store: unmarshal attempts for %s", l.ID)
}
