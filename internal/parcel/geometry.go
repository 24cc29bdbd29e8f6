package parcel

import (
	"fmt"
	"math"
)

// SqFtPerAcre converts square feet to acres.
const SqFtPerAcre = 43560.0

// Scale converts degree offsets to feet for one service region. It is a flat
// approximation: results skew proportionally outside the calibrated latitude band.
type Scale struct {
	FeetPerDegreeLat float64
	FeetPerDegreeLon float64
}

// DefaultScale is calibrated for central Connecticut (about 41.7N).
var DefaultScale = Scale{
	FeetPerDegreeLat: 364000,
	FeetPerDegreeLon: 272000,
}

// AreaSqFt returns the absolute Shoelace area of the ring in square feet.
// Vertices are translated to the first vertex before summing to keep precision.
func (s Scale) AreaSqFt(r Ring) float64 {
	pts := r.open()
	n := len(pts)
	if n < 3 {
		return 0
	}
	origin := pts[0]
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		xi, yi := pts[i].Lon-origin.Lon, pts[i].Lat-origin.Lat
		xj, yj := pts[j].Lon-origin.Lon, pts[j].Lat-origin.Lat
		sum += xi*yj - xj*yi
	}
	return math.Abs(sum) / 2 * s.FeetPerDegreeLat * s.FeetPerDegreeLon
}

// Rectangle returns a closed five-point ring of the given size centered on c.
func (s Scale) Rectangle(c Coordinate, widthFt, depthFt float64) Ring {
	dLon := widthFt / s.FeetPerDegreeLon / 2
	dLat := depthFt / s.FeetPerDegreeLat / 2
	return Ring{
		{Lon: c.Lon - dLon, Lat: c.Lat - dLat},
		{Lon: c.Lon + dLon, Lat: c.Lat - dLat},
		{Lon: c.Lon + dLon, Lat: c.Lat + dLat},
		{Lon: c.Lon - dLon, Lat: c.Lat + dLat},
		{Lon: c.Lon - dLon, Lat: c.Lat - dLat},
	}
}

// AcresString formats square feet as acres with two decimals.
func AcresString(sqFt int) string {
	return fmt.Sprintf("%.2f", float64(sqFt)/SqFtPerAcre)
}

// Contains reports whether pt lies inside the ring using planar ray casting.
// Points exactly on an edge resolve deterministically but to either side.
func Contains(r Ring, pt Coordinate) bool {
	pts := r.open()
	n := len(pts)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pts[i], pts[j]
		if (a.Lat > pt.Lat) != (b.Lat > pt.Lat) {
			x := (b.Lon-a.Lon)*(pt.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if pt.Lon < x {
				inside = !inside
			}
		}
	}
	return inside
}

// Centroid returns the vertex average of the ring.
func Centroid(r Ring) Coordinate {
	pts := r.open()
	if len(pts) == 0 {
		return Coordinate{}
	}
	var c Coordinate
	for _, p := range pts {
		c.Lon += p.Lon
		c.Lat += p.Lat
	}
	c.Lon /= float64(len(pts))
	c.Lat /= float64(len(pts))
	return c
}

// Distance is the planar distance in degrees between two coordinates.
func Distance(a, b Coordinate) float64 {
	return math.Hypot(a.Lon-b.Lon, a.Lat-b.Lat)
}

// BBox is an axis-aligned bounding box in degrees.
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Bounds returns the bounding box of the ring.
func Bounds(r Ring) BBox {
	if len(r) == 0 {
		return BBox{}
	}
	b := BBox{MinLon: r[0].Lon, MaxLon: r[0].Lon, MinLat: r[0].Lat, MaxLat: r[0].Lat}
	for _, p := range r[1:] {
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
	}
	return b
}

// Center returns the midpoint of the box.
func (b BBox) Center() Coordinate {
	return Coordinate{Lon: (b.MinLon + b.MaxLon) / 2, Lat: (b.MinLat + b.MaxLat) / 2}
}
