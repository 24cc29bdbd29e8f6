package source

import (
	"context"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-resolver/internal/parcel"
)

// DefaultProximityMeters is the radius of the fallback proximity query.
const DefaultProximityMeters = 10

type arcgisFeature struct {
	Geometry struct {
		Rings [][][]float64 `json:"rings"`
	} `json:"geometry"`
	Attributes parcel.Attributes `json:"attributes"`
}

type arcgisResponse struct {
	Features []arcgisFeature `json:"features"`
	Error    *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// arcgisLayer queries one ArcGIS REST feature layer.
type arcgisLayer struct {
	fetch *fetcher
	// endpoint is the layer's .../query URL.
	endpoint string
	// where is an optional attribute filter; "1=1" when empty.
	where string
	proxy *Proxy
}

// candidateFunc turns raw features into the candidates a strategy can rank.
type candidateFunc func([]arcgisFeature) []parcel.Candidate

// queryWithFallback runs a point "contains" query and, when that leaves no usable
// candidates, a proximity query of radius meters around the point. A point on a
// road or boundary often intersects only a right-of-way parcel, which toCandidates
// drops.
func (l arcgisLayer) queryWithFallback(ctx context.Context, pt parcel.Coordinate, meters float64, toCandidates candidateFunc) ([]parcel.Candidate, error) {
	features, err := l.query(ctx, pt, 0)
	if err != nil {
		return nil, err
	}
	candidates := toCandidates(features)
	if len(candidates) > 0 || meters <= 0 {
		return candidates, nil
	}

	if features, err = l.query(ctx, pt, meters); err != nil {
		return nil, err
	}
	return toCandidates(features), nil
}

// query issues one point query. A positive distance turns it into a proximity query.
func (l arcgisLayer) query(ctx context.Context, pt parcel.Coordinate, distance float64) ([]arcgisFeature, error) {
	where := l.where
	if where == "" {
		where = "1=1"
	}
	params := url.Values{
		"where":          {where},
		"geometry":       {strconv.FormatFloat(pt.Lon, 'f', -1, 64) + "," + strconv.FormatFloat(pt.Lat, 'f', -1, 64)},
		"geometryType":   {"esriGeometryPoint"},
		"spatialRel":     {"esriSpatialRelIntersects"},
		"inSR":           {"4326"},
		"outSR":          {"4326"},
		"outFields":      {"*"},
		"returnGeometry": {"true"},
		"f":              {"json"},
	}
	if distance > 0 {
		params.Set("distance", strconv.FormatFloat(distance, 'f', -1, 64))
		params.Set("units", "esriSRUnit_Meter")
	}

	target, err := withQuery(l.endpoint, params)
	if err != nil {
		return nil, err
	}
	if target, err = l.proxy.Wrap(target); err != nil {
		return nil, err
	}

	var resp arcgisResponse
	if err := l.fetch.getJSON(ctx, target, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, eris.Errorf("%s: arcgis error %d: %s", l.fetch.service, resp.Error.Code, resp.Error.Message)
	}
	return resp.Features, nil
}

// ring picks the feature's exterior ring: the one containing pt when the parcel
// has several parts, else the first.
func (f arcgisFeature) ring(pt parcel.Coordinate) parcel.Ring {
	var first parcel.Ring
	for i, raw := range f.Geometry.Rings {
		r := ringFromPairs(raw)
		if i == 0 {
			first = r
		}
		if parcel.Contains(r, pt) {
			return r
		}
	}
	return first
}

// ringFromPairs converts [[lon, lat], ...] into a closed ring. Short pairs are
// dropped.
func ringFromPairs(pairs [][]float64) parcel.Ring {
	r := make(parcel.Ring, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			continue
		}
		r = append(r, parcel.Coordinate{Lon: p[0], Lat: p[1]})
	}
	return r.Closed()
}
