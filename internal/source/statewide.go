package source

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/parcel"
)

// DefaultMaxParcelAcres is the statewide size ceiling; larger parcels are treated
// as non-residential outliers.
const DefaultMaxParcelAcres = 25

var statewideAcreageFields = []string{"Calculated_Acres", "Total_Acres", "Land_Acres"}

// excludedParcelTypes are Parcel_Type fragments that never describe a lot.
var excludedParcelTypes = []string{"right of way", "right-of-way", "row", "utility", "road", "railroad", "water body"}

// StatewideConfig configures the statewide cadastre strategy.
type StatewideConfig struct {
	URL             string
	Matcher         *parcel.TownMatcher
	Ranker          *parcel.Ranker
	ProximityMeters float64
	MaxParcelAcres  float64
	Scale           parcel.Scale
	HTTP            HTTPOptions
}

// Statewide queries the statewide parcel layer, filtered to the assessor town.
type Statewide struct {
	layer     arcgisLayer
	matcher   *parcel.TownMatcher
	ranker    *parcel.Ranker
	proximity float64
	maxSqFt   float64
	scale     parcel.Scale
}

// NewStatewide creates the statewide strategy.
func NewStatewide(cfg StatewideConfig) *Statewide {
	if cfg.Ranker == nil {
		cfg.Ranker = parcel.NewRanker(0)
	}
	if cfg.MaxParcelAcres <= 0 {
		cfg.MaxParcelAcres = DefaultMaxParcelAcres
	}
	if cfg.Scale.FeetPerDegreeLat <= 0 || cfg.Scale.FeetPerDegreeLon <= 0 {
		cfg.Scale = parcel.DefaultScale
	}
	return &Statewide{
		layer:     arcgisLayer{fetch: newFetcher("statewide", cfg.HTTP), endpoint: cfg.URL},
		matcher:   cfg.Matcher,
		ranker:    cfg.Ranker,
		proximity: cfg.ProximityMeters,
		maxSqFt:   cfg.MaxParcelAcres * parcel.SqFtPerAcre,
		scale:     cfg.Scale,
	}
}

func (s *Statewide) Name() string            { return "statewide" }
func (s *Statewide) Tier() parcel.DataSource { return parcel.SourceCadastre }

func (s *Statewide) Resolve(ctx context.Context, q parcel.Query) (*parcel.Match, error) {
	layer := s.layer
	if s.matcher != nil {
		if town := s.matcher.AssessorTown(q.Address); town != "" {
			layer.where = "Town_Name = '" + strings.ReplaceAll(town, "'", "''") + "'"
		}
	}

	candidates, err := layer.queryWithFallback(ctx, q.Coordinate, s.proximity, func(features []arcgisFeature) []parcel.Candidate {
		return s.candidates(q, features)
	})
	if err != nil {
		return nil, err
	}
	return s.ranker.Select(q, candidates), nil
}

// candidates drops right-of-way, unusable and oversize parcels.
func (s *Statewide) candidates(q parcel.Query, features []arcgisFeature) []parcel.Candidate {
	out := make([]parcel.Candidate, 0, len(features))
	for _, f := range features {
		if excludedParcelType(f.Attributes.String("Parcel_Type")) {
			continue
		}
		c := parcel.Candidate{
			Ring:        f.ring(q.Coordinate),
			Attributes:  f.Attributes,
			SiteAddress: f.Attributes.String("Location"),
			UseCode:     f.Attributes.String("Use_Code_Desc"),
		}
		if !c.Ring.Valid() {
			continue
		}
		c.SizeSqFt = s.sizeSqFt(f.Attributes, c.Ring, q.Coordinate.Lat)
		if c.SizeSqFt > s.maxSqFt {
			zap.L().Debug("statewide: dropped oversize parcel",
				zap.String("location", c.SiteAddress),
				zap.Float64("sq_ft", c.SizeSqFt),
			)
			continue
		}
		out = append(out, c)
	}
	return out
}

// sizeSqFt prefers assessor acreage, then the layer's Shape__Area, then the
// Shoelace area of the ring.
func (s *Statewide) sizeSqFt(attrs parcel.Attributes, ring parcel.Ring, lat float64) float64 {
	if sqFt, ok := parcel.AcreageSqFt(attrs, statewideAcreageFields); ok {
		return sqFt
	}
	if sqFt, ok := parcel.ShapeAreaSqFt(attrs, lat); ok {
		return sqFt
	}
	return s.scale.AreaSqFt(ring)
}

func excludedParcelType(t string) bool {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return false
	}
	for _, x := range excludedParcelTypes {
		if t == x || (len(x) > 3 && strings.Contains(t, x)) {
			return true
		}
	}
	return false
}
