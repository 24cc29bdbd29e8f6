package parcel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandoff(t *testing.T) {
	q := Query{Address: "42 Elm St, Hartford, CT", Coordinate: hartford}
	p := ResolvedProperty{
		Polygon:    square(hartford, 0.0001)[:4],
		SizeSqFt:   10890,
		SizeAcres:  "0.25",
		DataSource: SourceCadastre,
	}

	h, err := NewHandoff(q, p)
	require.NoError(t, err)
	assert.Equal(t, "0.25", h.PropertySize.Acres)
	assert.Equal(t, SourceCadastre, h.DataSource)

	var body map[string]any
	raw, err := json.Marshal(h)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "cadastre", body["dataSource"])
	geometry, ok := body["parcelGeometry"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Polygon", geometry["type"])

	rings, err := RingsFromGeoJSON(h.ParcelGeometry)
	require.NoError(t, err)
	require.Len(t, rings, 1)
	assert.Equal(t, p.Polygon.Closed(), rings[0], "open polygons are closed on encode")
}

func TestRingsFromGeoJSON_MultiPolygon(t *testing.T) {
	data := []byte(`{"type":"MultiPolygon","coordinates":[
		[[[-72.6,41.76],[-72.599,41.76],[-72.599,41.761],[-72.6,41.76]]],
		[[[-72.5,41.7],[-72.499,41.7],[-72.499,41.701],[-72.5,41.7]]]
	]}`)

	rings, err := RingsFromGeoJSON(data)
	require.NoError(t, err)
	require.Len(t, rings, 2)
	assert.Equal(t, Coordinate{Lon: -72.5, Lat: 41.7}, rings[1][0])
}

func TestRingsFromGeoJSON_Unsupported(t *testing.T) {
	_, err := RingsFromGeoJSON([]byte(`{"type":"Point","coordinates":[-72.6,41.76]}`))
	assert.Error(t, err)

	_, err = RingsFromGeoJSON([]byte(`not json`))
	assert.Error(t, err)
}
