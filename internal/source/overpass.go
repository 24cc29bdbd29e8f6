package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sells-group/parcel-resolver/internal/parcel"
)

// DefaultOverpassURL is the public Overpass API interpreter.
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// OverpassConfig configures both Overpass strategies.
type OverpassConfig struct {
	URL string
	// RadiusMeters bounds the around: filter. Default 25.
	RadiusMeters float64
	Ranker       *parcel.Ranker
	HTTP         HTTPOptions
}

type overpassPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type overpassMember struct {
	Type     string          `json:"type"`
	Role     string          `json:"role"`
	Geometry []overpassPoint `json:"geometry"`
}

type overpassElement struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []overpassPoint   `json:"geometry"`
	Members  []overpassMember  `json:"members"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// overpassClient runs Overpass QL queries that end in "out geom".
type overpassClient struct {
	url    string
	radius float64
	fetch  *fetcher
}

func newOverpassClient(service string, cfg OverpassConfig) overpassClient {
	if cfg.URL == "" {
		cfg.URL = DefaultOverpassURL
	}
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = 25
	}
	return overpassClient{url: cfg.URL, radius: cfg.RadiusMeters, fetch: newFetcher(service, cfg.HTTP)}
}

// query fills the %s placeholders of filters with the around: clause and runs it.
func (c overpassClient) query(ctx context.Context, pt parcel.Coordinate, timeoutSecs int, filters ...string) ([]overpassElement, error) {
	around := fmt.Sprintf("(around:%g,%f,%f)", c.radius, pt.Lat, pt.Lon)
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];(", timeoutSecs)
	for _, f := range filters {
		fmt.Fprintf(&b, f, around)
		b.WriteByte(';')
	}
	b.WriteString(");out geom;")

	target, err := withQuery(c.url, url.Values{"data": {b.String()}})
	if err != nil {
		return nil, err
	}
	var resp overpassResponse
	if err := c.fetch.getJSON(ctx, target, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Elements, nil
}

// rings returns the closed outer rings of a way or multipolygon relation.
func (e overpassElement) rings() []parcel.Ring {
	switch e.Type {
	case "way":
		r := pointsRing(e.Geometry)
		if !r.Valid() {
			return nil
		}
		return []parcel.Ring{r}
	case "relation":
		var parts [][]overpassPoint
		for _, m := range e.Members {
			if m.Type == "way" && (m.Role == "outer" || m.Role == "") && len(m.Geometry) > 1 {
				parts = append(parts, m.Geometry)
			}
		}
		return stitch(parts)
	default:
		return nil
	}
}

func (e overpassElement) address() string {
	n, street := e.Tags["addr:housenumber"], e.Tags["addr:street"]
	return strings.TrimSpace(n + " " + street)
}

func pointsRing(pts []overpassPoint) parcel.Ring {
	r := make(parcel.Ring, len(pts))
	for i, p := range pts {
		r[i] = parcel.Coordinate{Lon: p.Lon, Lat: p.Lat}
	}
	return r.Closed()
}

// stitch joins relation member ways end to end into closed rings. Ways that are
// already closed form rings by themselves.
func stitch(parts [][]overpassPoint) []parcel.Ring {
	var rings []parcel.Ring
	used := make([]bool, len(parts))
	for i := range parts {
		if used[i] {
			continue
		}
		used[i] = true
		line := append([]overpassPoint(nil), parts[i]...)
		for line[0] != line[len(line)-1] {
			extended := false
			for j := range parts {
				if used[j] {
					continue
				}
				p := parts[j]
				switch line[len(line)-1] {
				case p[0]:
					line = append(line, p[1:]...)
				case p[len(p)-1]:
					for k := len(p) - 2; k >= 0; k-- {
						line = append(line, p[k])
					}
				default:
					continue
				}
				used[j] = true
				extended = true
				break
			}
			if !extended {
				break
			}
		}
		if r := pointsRing(line); r.Valid() {
			rings = append(rings, r)
		}
	}
	return rings
}

// OverpassCadastre looks for mapped cadastral boundaries around the point.
type OverpassCadastre struct {
	client overpassClient
	ranker *parcel.Ranker
}

// NewOverpassCadastre creates the open cadastre strategy.
func NewOverpassCadastre(cfg OverpassConfig) *OverpassCadastre {
	if cfg.Ranker == nil {
		cfg.Ranker = parcel.NewRanker(0)
	}
	return &OverpassCadastre{client: newOverpassClient("overpass_cadastre", cfg), ranker: cfg.Ranker}
}

func (s *OverpassCadastre) Name() string            { return "overpass_cadastre" }
func (s *OverpassCadastre) Tier() parcel.DataSource { return parcel.SourceCadastre }

func (s *OverpassCadastre) Resolve(ctx context.Context, q parcel.Query) (*parcel.Match, error) {
	elements, err := s.client.query(ctx, q.Coordinate, 8,
		`way%s["boundary"="cadastral"]`,
		`relation%s["boundary"="cadastral"]`,
	)
	if err != nil {
		return nil, err
	}

	var candidates []parcel.Candidate
	for _, e := range elements {
		rings := e.rings()
		if len(rings) == 0 {
			continue
		}
		candidates = append(candidates, parcel.Candidate{
			Ring:        pickRing(rings, q.Coordinate),
			SiteAddress: e.address(),
			UseCode:     e.Tags["landuse"],
		})
	}
	return s.ranker.Select(q, candidates), nil
}

// OverpassBuildings finds the building footprint at or nearest to the point. The
// resolver turns the footprint into a lot estimate.
type OverpassBuildings struct {
	client overpassClient
}

// NewOverpassBuildings creates the open building footprint strategy.
func NewOverpassBuildings(cfg OverpassConfig) *OverpassBuildings {
	return &OverpassBuildings{client: newOverpassClient("overpass_buildings", cfg)}
}

func (s *OverpassBuildings) Name() string            { return "overpass_buildings" }
func (s *OverpassBuildings) Tier() parcel.DataSource { return parcel.SourceBuilding }

func (s *OverpassBuildings) Resolve(ctx context.Context, q parcel.Query) (*parcel.Match, error) {
	elements, err := s.client.query(ctx, q.Coordinate, 8, `way%s["building"]`)
	if err != nil {
		return nil, err
	}
	var footprints []parcel.Ring
	for _, e := range elements {
		footprints = append(footprints, e.rings()...)
	}
	return footprintMatch(q.Coordinate, footprints), nil
}

// footprintMatch picks the footprint for a building-tier strategy.
func footprintMatch(pt parcel.Coordinate, footprints []parcel.Ring) *parcel.Match {
	f, ok := parcel.NearestFootprint(pt, footprints)
	if !ok {
		return nil
	}
	sel := parcel.SelectNearest
	if parcel.Contains(f, pt) {
		sel = parcel.SelectContains
	}
	return &parcel.Match{Candidate: parcel.Candidate{Ring: f}, Selection: sel}
}
