package parcel

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// PropertySize is the size block of a quote handoff.
type PropertySize struct {
	SqFt  int    `json:"sqFt"`
	Acres string `json:"acres"`
}

// Handoff is the payload passed from the property map to quote continuation.
type Handoff struct {
	Address        string          `json:"address"`
	Coordinates    Coordinate      `json:"coordinates"`
	PropertySize   PropertySize    `json:"propertySize"`
	ParcelGeometry json.RawMessage `json:"parcelGeometry"`
	DataSource     DataSource      `json:"dataSource"`
}

// NewHandoff builds the quote handoff with the polygon encoded as GeoJSON.
func NewHandoff(q Query, p ResolvedProperty) (*Handoff, error) {
	raw, err := RingGeoJSON(p.Polygon)
	if err != nil {
		return nil, err
	}
	return &Handoff{
		Address:        q.Address,
		Coordinates:    q.Coordinate,
		PropertySize:   PropertySize{SqFt: p.SizeSqFt, Acres: p.SizeAcres},
		ParcelGeometry: raw,
		DataSource:     p.DataSource,
	}, nil
}

// RingGeoJSON encodes a ring as a GeoJSON Polygon.
func RingGeoJSON(r Ring) (json.RawMessage, error) {
	closed := r.Closed()
	coords := make([]geom.Coord, len(closed))
	for i, c := range closed {
		coords[i] = geom.Coord{c.Lon, c.Lat}
	}
	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{coords})
	if err != nil {
		return nil, eris.Wrap(err, "parcel: build polygon")
	}
	data, err := geojson.Marshal(poly)
	if err != nil {
		return nil, eris.Wrap(err, "parcel: encode geojson")
	}
	return data, nil
}

// RingsFromGeoJSON decodes a GeoJSON Polygon or MultiPolygon into exterior rings.
func RingsFromGeoJSON(data []byte) ([]Ring, error) {
	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, eris.Wrap(err, "parcel: decode geojson")
	}
	switch t := g.(type) {
	case *geom.Polygon:
		if t.NumLinearRings() == 0 {
			return nil, nil
		}
		return []Ring{ringFromCoords(t.LinearRing(0).Coords())}, nil
	case *geom.MultiPolygon:
		rings := make([]Ring, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			p := t.Polygon(i)
			if p.NumLinearRings() == 0 {
				continue
			}
			rings = append(rings, ringFromCoords(p.LinearRing(0).Coords()))
		}
		return rings, nil
	default:
		return nil, eris.Errorf("parcel: unsupported geometry %T", g)
	}
}

func ringFromCoords(coords []geom.Coord) Ring {
	r := make(Ring, 0, len(coords))
	for _, c := range coords {
		r = append(r, Coordinate{Lon: c.X(), Lat: c.Y()})
	}
	return r.Closed()
}
