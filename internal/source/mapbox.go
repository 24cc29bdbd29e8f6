package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-resolver/internal/parcel"
)

// DefaultMapboxURL is the Mapbox Tilequery base for the streets tileset.
const DefaultMapboxURL = "https://api.mapbox.com/v4/mapbox.mapbox-streets-v8/tilequery"

// MapboxConfig configures the tile building footprint strategy.
type MapboxConfig struct {
	URL          string
	Token        string
	RadiusMeters float64
	HTTP         HTTPOptions
}

// MapboxBuildings queries building polygons from Mapbox vector tiles.
type MapboxBuildings struct {
	url    string
	token  string
	radius float64
	fetch  *fetcher
}

// NewMapboxBuildings creates the Mapbox building strategy.
func NewMapboxBuildings(cfg MapboxConfig) *MapboxBuildings {
	if cfg.URL == "" {
		cfg.URL = DefaultMapboxURL
	}
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = 30
	}
	return &MapboxBuildings{
		url:    cfg.URL,
		token:  cfg.Token,
		radius: cfg.RadiusMeters,
		fetch:  newFetcher("mapbox_buildings", cfg.HTTP),
	}
}

func (s *MapboxBuildings) Name() string            { return "mapbox_buildings" }
func (s *MapboxBuildings) Tier() parcel.DataSource { return parcel.SourceBuilding }

type mapboxResponse struct {
	Features []struct {
		Geometry json.RawMessage `json:"geometry"`
	} `json:"features"`
}

func (s *MapboxBuildings) Resolve(ctx context.Context, q parcel.Query) (*parcel.Match, error) {
	if s.token == "" {
		return nil, eris.New("mapbox_buildings: access token not configured")
	}

	base := fmt.Sprintf("%s/%s,%s.json", s.url,
		strconv.FormatFloat(q.Coordinate.Lon, 'f', -1, 64),
		strconv.FormatFloat(q.Coordinate.Lat, 'f', -1, 64),
	)
	target, err := withQuery(base, url.Values{
		"layers":       {"building"},
		"radius":       {strconv.FormatFloat(s.radius, 'f', -1, 64)},
		"limit":        {"10"},
		"geometry":     {"polygon"},
		"access_token": {s.token},
	})
	if err != nil {
		return nil, err
	}

	var resp mapboxResponse
	if err := s.fetch.getJSON(ctx, target, nil, &resp); err != nil {
		return nil, err
	}

	var footprints []parcel.Ring
	for _, f := range resp.Features {
		if len(f.Geometry) == 0 {
			continue
		}
		rings, err := parcel.RingsFromGeoJSON(f.Geometry)
		if err != nil {
			// Tilequery returns points for some layers.
			continue
		}
		footprints = append(footprints, rings...)
	}
	return footprintMatch(q.Coordinate, footprints), nil
}
