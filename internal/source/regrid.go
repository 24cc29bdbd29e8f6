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

// DefaultRegridURL is the Regrid point search endpoint.
const DefaultRegridURL = "https://app.regrid.com/api/v1/search.json"

var regridAcreageFields = []string{"ll_gisacre", "gisacre", "deeded_acres"}

// RegridConfig configures the primary commercial parcel API.
type RegridConfig struct {
	URL    string
	Token  string
	Ranker *parcel.Ranker
	HTTP   HTTPOptions
}

// Regrid queries the Regrid parcel API by coordinate.
type Regrid struct {
	url    string
	token  string
	ranker *parcel.Ranker
	fetch  *fetcher
}

// NewRegrid creates the Regrid strategy.
func NewRegrid(cfg RegridConfig) *Regrid {
	if cfg.URL == "" {
		cfg.URL = DefaultRegridURL
	}
	if cfg.Ranker == nil {
		cfg.Ranker = parcel.NewRanker(0)
	}
	return &Regrid{
		url:    cfg.URL,
		token:  cfg.Token,
		ranker: cfg.Ranker,
		fetch:  newFetcher("regrid", cfg.HTTP),
	}
}

func (s *Regrid) Name() string            { return "regrid" }
func (s *Regrid) Tier() parcel.DataSource { return parcel.SourceCadastre }

type regridFeature struct {
	Geometry   json.RawMessage `json:"geometry"`
	Properties struct {
		Headline string            `json:"headline"`
		Fields   parcel.Attributes `json:"fields"`
	} `json:"properties"`
}

// regridResponse accepts {parcels: [...]}, {parcels: {features: [...]}},
// {results: [...]} or a bare feature.
type regridResponse struct {
	Parcels json.RawMessage `json:"parcels"`
	Results []regridFeature `json:"results"`
	regridFeature
}

func (r regridResponse) features() ([]regridFeature, error) {
	if p := bytes.TrimSpace(r.Parcels); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		if p[0] == '[' {
			var list []regridFeature
			if err := json.Unmarshal(p, &list); err != nil {
				return nil, eris.Wrap(err, "regrid: decode parcels")
			}
			return list, nil
		}
		var fc struct {
			Features []regridFeature `json:"features"`
		}
		if err := json.Unmarshal(p, &fc); err != nil {
			return nil, eris.Wrap(err, "regrid: decode parcels collection")
		}
		return fc.Features, nil
	}
	if len(r.Results) > 0 {
		return r.Results, nil
	}
	if len(r.Geometry) > 0 {
		return []regridFeature{r.regridFeature}, nil
	}
	return nil, nil
}

func (s *Regrid) Resolve(ctx context.Context, q parcel.Query) (*parcel.Match, error) {
	if s.token == "" {
		return nil, eris.New("regrid: token not configured")
	}

	target, err := withQuery(s.url, url.Values{
		"lat":   {strconv.FormatFloat(q.Coordinate.Lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(q.Coordinate.Lon, 'f', -1, 64)},
		"token": {s.token},
		"limit": {"10"},
	})
	if err != nil {
		return nil, err
	}

	var resp regridResponse
	if err := s.fetch.getJSON(ctx, target, nil, &resp); err != nil {
		return nil, err
	}
	features, err := resp.features()
	if err != nil {
		return nil, err
	}

	candidates := make([]parcel.Candidate, 0, len(features))
	for _, f := range features {
		if len(f.Geometry) == 0 {
			continue
		}
		rings, err := parcel.RingsFromGeoJSON(f.Geometry)
		if err != nil {
			continue
		}
		fields := f.Properties.Fields
		c := parcel.Candidate{
			Ring:        pickRing(rings, q.Coordinate),
			Attributes:  fields,
			SiteAddress: fields.String("address"),
			UseCode:     fields.String("usedesc"),
		}
		if c.SiteAddress == "" {
			c.SiteAddress = f.Properties.Headline
		}
		if sqFt, ok := parcel.AcreageSqFt(fields, regridAcreageFields); ok {
			c.SizeSqFt = sqFt
		} else if sqFt, ok := fields.Float("ll_gissqft"); ok && sqFt > 0 {
			c.SizeSqFt = sqFt
		}
		candidates = append(candidates, c)
	}
	return s.ranker.Select(q, candidates), nil
}

// pickRing returns the ring containing pt, or the first ring.
func pickRing(rings []parcel.Ring, pt parcel.Coordinate) parcel.Ring {
	for _, r := range rings {
		if parcel.Contains(r, pt) {
			return r
		}
	}
	if len(rings) == 0 {
		return nil
	}
	return rings[0]
}
