// Package parcel resolves a geocoded address to a best-effort property lot polygon.
//
// Resolution walks an ordered list of Strategy implementations (town GIS, statewide
// cadastre, commercial parcel APIs, open cadastre, building footprints) and falls back
// to a fixed-size synthetic lot, so a caller always gets a result.
package parcel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Coordinate is a WGS84 (longitude, latitude) pair in degrees.
type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Ring is an ordered polygon ring. A closed ring repeats its first vertex at the end.
type Ring []Coordinate

// Closed returns the ring with its first vertex appended when it is not already closed.
func (r Ring) Closed() Ring {
	if len(r) == 0 || r[0] == r[len(r)-1] {
		return r
	}
	out := make(Ring, len(r), len(r)+1)
	copy(out, r)
	return append(out, r[0])
}

// open returns the ring without its closing vertex.
func (r Ring) open() Ring {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}

// Valid reports whether the ring has at least three distinct vertices.
func (r Ring) Valid() bool {
	return len(r.open()) >= 3
}

// DataSource is the confidence tier of a resolved property.
type DataSource string

const (
	// SourceCadastre is authoritative parcel data.
	SourceCadastre DataSource = "cadastre"
	// SourceBuilding is a lot inferred from a building footprint.
	SourceBuilding DataSource = "building"
	// SourceEstimate is the synthetic fixed-size lot.
	SourceEstimate DataSource = "estimate"
)

// Selection records which ranking rule picked the winning candidate.
type Selection string

const (
	SelectPerfect     Selection = "perfect_match"
	SelectContains    Selection = "contains_point"
	SelectHouseNumber Selection = "house_number"
	SelectNearest     Selection = "nearest"
	SelectSingle      Selection = "single"
)

// Attributes is the raw provider-specific attribute bag of a candidate.
type Attributes map[string]any

// lookup finds a key exactly, then case-insensitively.
func (a Attributes) lookup(key string) (any, bool) {
	if v, ok := a[key]; ok {
		return v, true
	}
	for k, v := range a {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// String returns the attribute as a string, or "" when missing.
func (a Attributes) String(key string) string {
	v, ok := a.lookup(key)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Float returns the attribute as a number. Numeric strings are parsed.
func (a Attributes) Float(key string) (float64, bool) {
	v, ok := a.lookup(key)
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(t, ",", "")), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Candidate is one polygon returned by a strategy before ranking.
type Candidate struct {
	Ring       Ring
	Attributes Attributes

	// SiteAddress is the candidate's own street address, if the provider has one.
	SiteAddress string
	// UseCode is the provider's land-use or parcel-type description.
	UseCode string
	// SizeSqFt is an authoritative size from provider attributes; zero when unknown.
	SizeSqFt float64
}

// Query is the cascade input.
type Query struct {
	Address    string
	Coordinate Coordinate
}

// Match is a strategy's accepted candidate.
type Match struct {
	Candidate Candidate
	Selection Selection
}

// Strategy is one tier of the resolution cascade.
type Strategy interface {
	// Name identifies the strategy in logs, metrics and attempt traces.
	Name() string
	// Tier is the data source a hit from this strategy produces.
	Tier() DataSource
	// Resolve returns the selected candidate, nil on a miss, or an error on
	// transport failure.
	Resolve(ctx context.Context, q Query) (*Match, error)
}

// Outcome of a single strategy attempt.
type Outcome string

const (
	OutcomeHit     Outcome = "hit"
	OutcomeMiss    Outcome = "miss"
	OutcomeError   Outcome = "error"
	OutcomeSkipped Outcome = "skipped"
	OutcomeAborted Outcome = "aborted"
)

// Attempt records one strategy invocation.
type Attempt struct {
	Strategy   string  `json:"strategy"`
	Outcome    Outcome `json:"outcome"`
	Error      string  `json:"error,omitempty"`
	DurationMS int64   `json:"duration_ms"`
}

// ResolvedProperty is the cascade output.
type ResolvedProperty struct {
	Polygon    Ring       `json:"polygon"`
	SizeSqFt   int        `json:"sizeSqFt"`
	SizeAcres  string     `json:"sizeAcres"`
	DataSource DataSource `json:"dataSource"`
	Strategy   string     `json:"strategy"`
	Selection  Selection  `json:"selection,omitempty"`
	Attempts   []Attempt  `json:"attempts,omitempty"`
}
