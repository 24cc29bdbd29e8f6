package source

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/parcel"
)

// TownGISConfig configures the town assessor strategy.
type TownGISConfig struct {
	Matcher *parcel.TownMatcher
	Ranker  *parcel.Ranker
	// Proxy is used for towns flagged RequiresProxy.
	Proxy           *Proxy
	ProximityMeters float64
	HTTP            HTTPOptions
}

// TownGIS queries the assessor GIS of the town named in the address.
type TownGIS struct {
	matcher   *parcel.TownMatcher
	ranker    *parcel.Ranker
	proxy     *Proxy
	proximity float64
	fetch     *fetcher
}

// NewTownGIS creates the town GIS strategy.
func NewTownGIS(cfg TownGISConfig) *TownGIS {
	if cfg.Ranker == nil {
		cfg.Ranker = parcel.NewRanker(0)
	}
	return &TownGIS{
		matcher:   cfg.Matcher,
		ranker:    cfg.Ranker,
		proxy:     cfg.Proxy,
		proximity: cfg.ProximityMeters,
		fetch:     newFetcher("town_gis", cfg.HTTP),
	}
}

func (s *TownGIS) Name() string            { return "town_gis" }
func (s *TownGIS) Tier() parcel.DataSource { return parcel.SourceCadastre }

// Resolve misses immediately when the address names no configured town.
func (s *TownGIS) Resolve(ctx context.Context, q parcel.Query) (*parcel.Match, error) {
	town, ok := s.matcher.Match(q.Address)
	if !ok {
		return nil, nil
	}

	layer := arcgisLayer{fetch: s.fetch, endpoint: town.Endpoint}
	if town.RequiresProxy {
		layer.proxy = s.proxy
	}
	candidates, err := layer.queryWithFallback(ctx, q.Coordinate, s.proximity, func(features []arcgisFeature) []parcel.Candidate {
		return townCandidates(town, q, features)
	})
	if err != nil {
		return nil, err
	}
	zap.L().Debug("town_gis: candidates",
		zap.String("town", town.Name),
		zap.Int("count", len(candidates)),
	)
	return s.ranker.Select(q, candidates), nil
}

// townCandidates maps features through the town's field names. Features without a
// usable ring are dropped.
func townCandidates(town parcel.TownGIS, q parcel.Query, features []arcgisFeature) []parcel.Candidate {
	out := make([]parcel.Candidate, 0, len(features))
	for _, f := range features {
		c := parcel.Candidate{
			Ring:        f.ring(q.Coordinate),
			Attributes:  f.Attributes,
			SiteAddress: f.Attributes.String(town.AddressField),
			UseCode:     f.Attributes.String(town.UseCodeField),
		}
		if !c.Ring.Valid() {
			continue
		}
		if sqFt, ok := parcel.AcreageSqFt(f.Attributes, town.AcreageFields); ok {
			c.SizeSqFt = sqFt
		}
		out = append(out, c)
	}
	return out
}
