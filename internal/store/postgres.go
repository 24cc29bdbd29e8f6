package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the ledger uses. pgxmock satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_lookup":   `INSERT INTO lookups (id, address, lon, lat, data_source, strategy, selection, size_sq_ft, attempts, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"count_by_source": `SELECT data_source, COUNT(*) FROM lookups WHERE created_at >= $1 GROUP BY data_source`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS lookups (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	address     TEXT NOT NULL,
	lon         DOUBLE PRECISION NOT NULL,
	lat         DOUBLE PRECISION NOT NULL,
	data_source TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	selection   TEXT NOT NULL DEFAULT '',
	size_sq_ft  INTEGER NOT NULL,
	attempts    JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lookups_data_source ON lookups(data_source);
CREATE INDEX IF NOT EXISTS idx_lookups_created_at ON lookups(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) RecordLookup(ctx context.Context, l Lookup) error {
	attemptsJSON, err := json.Marshal(l.Attempts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal attempts")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO lookups (id, address, lon, lat, data_source, strategy, selection, size_sq_ft, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.Address, l.Lon, l.Lat, string(l.DataSource), l.Strategy, string(l.Selection),
		l.SizeSqFt, attemptsJSON, l.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert lookup %s", l.ID)
}

func (s *PostgresStore) ListLookups(ctx context.Context, filter LookupFilter) ([]Lookup, error) {
	query := `SELECT id, address, lon, lat, data_source, strategy, selection, size_sq_ft, attempts, created_at
		FROM lookups WHERE 1=1`
	var args []any

	if filter.DataSource != "" {
		args = append(args, filter.DataSource)
		query += ` AND data_source = $` + strconv.Itoa(len(args))
	}
	if filter.Strategy != "" {
		args = append(args, filter.Strategy)
		query += ` AND strategy = $` + strconv.Itoa(len(args))
	}
	args = append(args, filter.limit())
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list lookups")
	}
	defer rows.Close()

	var out []Lookup
	for rows.Next() {
		var l Lookup
		var attemptsJSON []byte
		if err := rows.Scan(&l.ID, &l.Address, &l.Lon, &l.Lat, &l.DataSource, &l.Strategy,
			&l.Selection, &l.SizeSqFt, &attemptsJSON, &l.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lookup")
		}
		if err := unmarshalAttempts(attemptsJSON, &l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list lookups iterate")
}

func (s *PostgresStore) CountBySource(ctx context.Context) (map[string]int, error) {
	return s.CountBySourceSince(ctx, time.Time{})
}

func (s *PostgresStore) CountBySourceSince(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data_source, COUNT(*) FROM lookups WHERE created_at >= $1 GROUP BY data_source`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by source")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[source] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count by source iterate")
}
