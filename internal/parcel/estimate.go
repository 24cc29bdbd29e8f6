package parcel

import "math"

// BufferFootprint estimates a lot from a building footprint: the footprint's bounding
// box scaled by multiplier in both directions, centered on the box center.
func BufferFootprint(footprint Ring, multiplier float64, s Scale) Ring {
	b := Bounds(footprint)
	widthFt := (b.MaxLon - b.MinLon) * s.FeetPerDegreeLon * multiplier
	depthFt := (b.MaxLat - b.MinLat) * s.FeetPerDegreeLat * multiplier
	return s.Rectangle(b.Center(), widthFt, depthFt)
}

// NearestFootprint picks the footprint containing pt, or else the one whose centroid
// is closest. Invalid rings are skipped.
func NearestFootprint(pt Coordinate, footprints []Ring) (Ring, bool) {
	var best Ring
	bestDist := math.Inf(1)
	for _, f := range footprints {
		if !f.Valid() {
			continue
		}
		if Contains(f, pt) {
			return f, true
		}
		if d := Distance(Centroid(f), pt); d < bestDist {
			best, bestDist = f, d
		}
	}
	return best, best != nil
}

// webMercatorSqFt converts a Web Mercator square-meter area to ground square feet at
// the given latitude.
func webMercatorSqFt(sqm, lat float64) float64 {
	c := math.Cos(lat * math.Pi / 180)
	return sqm * c * c * 10.7639104
}

// AcreageSqFt returns square feet from the first positive acreage attribute.
func AcreageSqFt(attrs Attributes, fields []string) (float64, bool) {
	for _, f := range fields {
		if v, ok := attrs.Float(f); ok && v > 0 {
			return v * SqFtPerAcre, true
		}
	}
	return 0, false
}

// ShapeAreaSqFt reads an ArcGIS hosted-layer Shape__Area attribute, which is in Web
// Mercator square meters.
func ShapeAreaSqFt(attrs Attributes, lat float64) (float64, bool) {
	v, ok := attrs.Float("Shape__Area")
	if !ok || v <= 0 {
		return 0, false
	}
	return webMercatorSqFt(v, lat), true
}
