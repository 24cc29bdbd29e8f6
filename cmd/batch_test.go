package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parcel-resolver/internal/parcel"
	"github.com/sells-group/parcel-resolver/internal/store"
)

func TestParseQueriesCSV(t *testing.T) {
	in := `Lat,Address,Lon
41.76,"42 Elm St, Hartford, CT",-72.6
not-a-number,"1 Bad Row",-72.6
41.77, "9 Main St, Vernon, CT", -72.45
`
	queries, err := parseQueriesCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "42 Elm St, Hartford, CT", queries[0].Address)
	assert.Equal(t, parcel.Coordinate{Lon: -72.6, Lat: 41.76}, queries[0].Coordinate)
	assert.Equal(t, "9 Main St, Vernon, CT", queries[1].Address)
	assert.InDelta(t, -72.45, queries[1].Coordinate.Lon, 1e-12)
}

func TestParseQueriesCSV_Errors(t *testing.T) {
	_, err := parseQueriesCSV(strings.NewReader("address,lon,lat\n"))
	assert.ErrorContains(t, err, "no data rows")

	_, err = parseQueriesCSV(strings.NewReader("address,lon\nx,1\n"))
	assert.ErrorContains(t, err, `missing required column "lat"`)
}

func TestRunBatch_PreservesOrderAndRecords(t *testing.T) {
	env := newTestEnv(t)

	queries := []parcel.Query{
		{Address: "a", Coordinate: parcel.Coordinate{Lon: -72.6, Lat: 41.76}},
		{Address: "b", Coordinate: parcel.Coordinate{Lon: -72.5, Lat: 41.70}},
		{Address: "c", Coordinate: parcel.Coordinate{Lon: -72.4, Lat: 41.80}},
	}
	rows := runBatch(context.Background(), env, queries, 2)

	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.Equal(t, queries[i].Address, r.Address)
		assert.Equal(t, parcel.SourceEstimate, r.Result.DataSource)
		assert.Equal(t, 9600, r.Result.SizeSqFt)
		assert.InDelta(t, queries[i].Coordinate.Lon, parcel.Centroid(r.Result.Polygon).Lon, 1e-9)
	}

	counts, err := env.Store.CountBySource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts["estimate"])

	lookups, err := env.Store.ListLookups(context.Background(), store.LookupFilter{})
	require.NoError(t, err)
	assert.Len(t, lookups, 3)
}
