package parcel

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hartford = Coordinate{Lon: -72.6, Lat: 41.76}

func square(c Coordinate, half float64) Ring {
	return Ring{
		{Lon: c.Lon - half, Lat: c.Lat - half},
		{Lon: c.Lon + half, Lat: c.Lat - half},
		{Lon: c.Lon + half, Lat: c.Lat + half},
		{Lon: c.Lon - half, Lat: c.Lat + half},
		{Lon: c.Lon - half, Lat: c.Lat - half},
	}
}

func TestContains(t *testing.T) {
	r := square(hartford, 0.001)

	assert.True(t, Contains(r, hartford), "centroid is inside")
	assert.False(t, Contains(r, Coordinate{Lon: -72.5, Lat: 41.9}), "far outside bbox")
	assert.False(t, Contains(r, Coordinate{Lon: -72.6, Lat: 41.7615}), "just above top edge")
	assert.False(t, Contains(Ring{{0, 0}, {1, 1}}, Coordinate{}), "degenerate ring")
}

func TestContains_EdgeIsDeterministic(t *testing.T) {
	r := square(hartford, 0.001)
	edge := Coordinate{Lon: hartford.Lon + 0.001, Lat: hartford.Lat}

	first := Contains(r, edge)
	for range 20 {
		assert.Equal(t, first, Contains(r, edge))
	}
}

func TestContains_OpenRing(t *testing.T) {
	r := square(hartford, 0.001)
	assert.True(t, Contains(r[:4], hartford))
}

func TestAreaSqFt_Rectangle(t *testing.T) {
	r := DefaultScale.Rectangle(hartford, 100, 50)
	assert.InDelta(t, 5000.0, DefaultScale.AreaSqFt(r), 1e-6)
}

func TestAreaSqFt_StartVertexAndWindingInvariant(t *testing.T) {
	ring := Ring{
		{Lon: -72.6000, Lat: 41.7600},
		{Lon: -72.5995, Lat: 41.7601},
		{Lon: -72.5994, Lat: 41.7606},
		{Lon: -72.5999, Lat: 41.7608},
		{Lon: -72.6002, Lat: 41.7604},
	}
	want := DefaultScale.AreaSqFt(ring)
	require.Greater(t, want, 0.0)

	for shift := 1; shift < len(ring); shift++ {
		rotated := append(slices.Clone(ring[shift:]), ring[:shift]...)
		assert.InDelta(t, want, DefaultScale.AreaSqFt(rotated), 1e-6, "shift %d", shift)
	}

	reversed := slices.Clone(ring)
	slices.Reverse(reversed)
	assert.InDelta(t, want, DefaultScale.AreaSqFt(reversed), 1e-6)
	assert.InDelta(t, want, DefaultScale.AreaSqFt(ring.Closed()), 1e-6)
}

func TestAreaSqFt_Degenerate(t *testing.T) {
	assert.Zero(t, DefaultScale.AreaSqFt(nil))
	assert.Zero(t, DefaultScale.AreaSqFt(Ring{{0, 0}, {1, 1}, {0, 0}}))
}

func TestRectangle_ClosedAndCentered(t *testing.T) {
	r := DefaultScale.Rectangle(hartford, 80, 120)
	require.Len(t, r, 5)
	assert.Equal(t, r[0], r[4])

	c := Centroid(r)
	assert.InDelta(t, hartford.Lon, c.Lon, 1e-12)
	assert.InDelta(t, hartford.Lat, c.Lat, 1e-12)
}

func TestAcresString(t *testing.T) {
	assert.Equal(t, "0.25", AcresString(10890))
	assert.Equal(t, "0.22", AcresString(9600))
	assert.Equal(t, "1.00", AcresString(43560))
	assert.Equal(t, "0.00", AcresString(0))
}

func TestRingClosed(t *testing.T) {
	open := Ring{{0, 0}, {1, 0}, {1, 1}}
	closed := open.Closed()
	assert.Len(t, closed, 4)
	assert.Len(t, open, 3, "input not mutated")
	assert.Equal(t, closed, closed.Closed())
	assert.True(t, closed.Valid())
	assert.False(t, Ring{{0, 0}, {1, 0}, {0, 0}}.Valid())
}

func TestBounds(t *testing.T) {
	b := Bounds(square(hartford, 0.002))
	assert.InDelta(t, -72.602, b.MinLon, 1e-9)
	assert.InDelta(t, -72.598, b.MaxLon, 1e-9)
	assert.InDelta(t, 41.758, b.MinLat, 1e-9)
	assert.InDelta(t, 41.762, b.MaxLat, 1e-9)
	assert.Equal(t, BBox{}, Bounds(nil))
}
