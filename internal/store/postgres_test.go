package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-resolver/internal/parcel"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var lookupColumns = []string{"id", "address", "lon", "lat", "data_source", "strategy", "selection", "size_sq_ft", "attempts", "created_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS lookups`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordLookup(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	l := sampleLookup("42 Elm St", parcel.SourceCadastre, "statewide")
	mock.ExpectExec(`INSERT INTO lookups`).
		WithArgs(l.ID, "42 Elm St", -72.6, 41.76, "cadastre", "statewide", "contains_point",
			10890, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.RecordLookup(context.Background(), l))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordLookup_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO lookups`).
		WillReturnError(errors.New("connection reset"))

	err := s.RecordLookup(context.Background(), sampleLookup("a", parcel.SourceEstimate, "estimate"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert lookup")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLookups(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := mock.NewRows(lookupColumns).
		AddRow("id-1", "42 Elm St", -72.6, 41.76, "cadastre", "regrid", "perfect_match", 10890,
			[]byte(`[{"strategy":"regrid","outcome":"hit","duration_ms":210}]`), now)

	mock.ExpectQuery(`SELECT id, address, lon, lat, data_source, strategy, selection, size_sq_ft, attempts, created_at\s+FROM lookups WHERE 1=1 AND data_source = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("cadastre", 10, 5).
		WillReturnRows(rows)

	got, err := s.ListLookups(context.Background(), LookupFilter{DataSource: "cadastre", Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "id-1", got[0].ID)
	assert.Equal(t, parcel.SourceCadastre, got[0].DataSource)
	assert.Equal(t, parcel.SelectPerfect, got[0].Selection)
	require.Len(t, got[0].Attempts, 1)
	assert.Equal(t, int64(210), got[0].Attempts[0].DurationMS)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLookups_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`LIMIT \$1`).
		WithArgs(100).
		WillReturnRows(mock.NewRows(lookupColumns))

	got, err := s.ListLookups(context.Background(), LookupFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountBySource(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data_source, COUNT\(\*\) FROM lookups WHERE created_at >= \$1 GROUP BY data_source`).
		WithArgs(time.Time{}).
		WillReturnRows(mock.NewRows([]string{"data_source", "count"}).
			AddRow("cadastre", int64(7)).
			AddRow("estimate", int64(2)))

	counts, err := s.CountBySource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cadastre": 7, "estimate": 2}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountBySourceSince(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE created_at >= \$1`).
		WithArgs(since).
		WillReturnRows(mock.NewRows([]string{"data_source", "count"}).AddRow("building", int64(3)))

	counts, err := s.CountBySourceSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"building": 3}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountBySource_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data_source`).WillReturnError(errors.New("boom"))

	_, err := s.CountBySource(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count by source")
}

func TestPostgresStore_CloseWithoutPool(t *testing.T) {
	s := &PostgresStore{}
	assert.NoError(t, s.Close())
}
