// Package store records resolved lookups for usage tracking. It never stores polygons.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-resolver/internal/parcel"
)

// Lookup is one ledger row: a finished resolution without its geometry.
type Lookup struct {
	ID         string            `json:"id"`
	Address    string            `json:"address"`
	Lon        float64           `json:"lon"`
	Lat        float64           `json:"lat"`
	DataSource parcel.DataSource `json:"data_source"`
	Strategy   string            `json:"strategy"`
	Selection  parcel.Selection  `json:"selection,omitempty"`
	SizeSqFt   int               `json:"size_sq_ft"`
	Attempts   []parcel.Attempt  `json:"attempts,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewLookup builds a ledger row for a resolution.
func NewLookup(q parcel.Query, res parcel.ResolvedProperty) Lookup {
	return Lookup{
		ID:         uuid.New().String(),
		Address:    q.Address,
		Lon:        q.Coordinate.Lon,
		Lat:        q.Coordinate.Lat,
		DataSource: res.DataSource,
		Strategy:   res.Strategy,
		Selection:  res.Selection,
		SizeSqFt:   res.SizeSqFt,
		Attempts:   res.Attempts,
		CreatedAt:  time.Now().UTC(),
	}
}

// LookupFilter specifies criteria for listing lookups.
type LookupFilter struct {
	DataSource string `json:"data_source,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

func (f LookupFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store defines the persistence interface for the lookup ledger.
type Store interface {
	RecordLookup(ctx context.Context, l Lookup) error
	ListLookups(ctx context.Context, filter LookupFilter) ([]Lookup, error)
	// CountBySource returns lookup totals keyed by data source.
	CountBySource(ctx context.Context) (map[string]int, error)
	// CountBySourceSince is CountBySource restricted to lookups created at or after since.
	CountBySourceSince(ctx context.Context, since time.Time) (map[string]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the Store for a driver ("sqlite", "postgres" or "none") and migrates it.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		s   Store
		err error
	)
	switch driver {
	case "sqlite":
		s, err = NewSQLite(dsn)
	case "postgres":
		s, err = NewPostgres(ctx, dsn, nil)
	case "none", "":
		return Nop{}, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Nop discards every lookup.
type Nop struct{}

func (Nop) RecordLookup(context.Context, Lookup) error { return nil }

func (Nop) ListLookups(context.Context, LookupFilter) ([]Lookup, error) { return nil, nil }

func (Nop) CountBySource(context.Context) (map[string]int, error) { return map[string]int{}, nil }

func (Nop) CountBySourceSince(context.Context, time.Time) (map[string]int, error) {
	return map[string]int{}, nil
}

func (Nop) Migrate(context.Context) error { return nil }

func (Nop) Close() error { return nil }
