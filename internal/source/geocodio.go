package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-resolver/internal/parcel"
)

// DefaultGeocodioURL is the Geocodio geocode endpoint.
const DefaultGeocodioURL = "https://api.geocod.io/v1.7/geocode"

// GeocodioConfig configures the secondary commercial parcel API.
type GeocodioConfig struct {
	URL    string
	Key    string
	Ranker *parcel.Ranker
	HTTP   HTTPOptions
}

// Geocodio looks up the parcel field appended to a Geocodio geocode result.
type Geocodio struct {
	url    string
	key    string
	ranker *parcel.Ranker
	fetch  *fetcher
}

// NewGeocodio creates the Geocodio strategy.
func NewGeocodio(cfg GeocodioConfig) *Geocodio {
	if cfg.URL == "" {
		cfg.URL = DefaultGeocodioURL
	}
	if cfg.Ranker == nil {
		cfg.Ranker = parcel.NewRanker(0)
	}
	return &Geocodio{
		url:    cfg.URL,
		key:    cfg.Key,
		ranker: cfg.Ranker,
		fetch:  newFetcher("geocodio", cfg.HTTP),
	}
}

func (s *Geocodio) Name() string            { return "geocodio" }
func (s *Geocodio) Tier() parcel.DataSource { return parcel.SourceCadastre }

type geocodioResponse struct {
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Fields           struct {
			Parcel *struct {
				ParcelGeometry json.RawMessage `json:"parcel_geometry"`
				AreaSqFt       json.Number     `json:"area_sq_ft"`
				LandUse        string          `json:"land_use"`
			} `json:"parcel"`
		} `json:"fields"`
	} `json:"results"`
}

// Resolve geocodes the address text; it falls back to the coordinate when the
// address is empty.
func (s *Geocodio) Resolve(ctx context.Context, q parcel.Query) (*parcel.Match, error) {
	if s.key == "" {
		return nil, eris.New("geocodio: api key not configured")
	}

	query := q.Address
	if query == "" {
		query = strconv.FormatFloat(q.Coordinate.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(q.Coordinate.Lon, 'f', -1, 64)
	}
	target, err := withQuery(s.url, url.Values{
		"q":       {query},
		"fields":  {"parcel"},
		"api_key": {s.key},
	})
	if err != nil {
		return nil, err
	}

	var resp geocodioResponse
	if err := s.fetch.getJSON(ctx, target, nil, &resp); err != nil {
		return nil, err
	}

	candidates := make([]parcel.Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		p := r.Fields.Parcel
		if p == nil {
			continue
		}
		geometry, err := unquoteGeometry(p.ParcelGeometry)
		if err != nil || len(geometry) == 0 {
			continue
		}
		rings, err := parcel.RingsFromGeoJSON(geometry)
		if err != nil {
			continue
		}
		c := parcel.Candidate{
			Ring:        pickRing(rings, q.Coordinate),
			SiteAddress: r.FormattedAddress,
			UseCode:     p.LandUse,
		}
		if sqFt, err := p.AreaSqFt.Float64(); err == nil && sqFt > 0 {
			c.SizeSqFt = sqFt
		}
		candidates = append(candidates, c)
	}
	return s.ranker.Select(q, candidates), nil
}

// unquoteGeometry accepts a GeoJSON object or a JSON string holding one.
func unquoteGeometry(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, eris.Wrap(err, "geocodio: decode parcel_geometry")
	}
	return []byte(s), nil
}
