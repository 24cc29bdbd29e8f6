package parcel

import (
	"math"
	"regexp"
	"slices"
	"strings"
)

// DefaultNearTieEpsilon is the centroid distance, in degrees, under which two
// candidates count as equally near.
const DefaultNearTieEpsilon = 0.00002

var residentialCodeRe = regexp.MustCompile(`^1\d{2}$`)

var residentialWords = []string{"resid", "single fam", "two fam", "three fam", "1 fam", "2 fam", "3 fam", "condo", "dwelling"}

// Scored is a candidate annotated with the facts the tie-break rules compare.
type Scored struct {
	Candidate   Candidate
	Contains    bool
	HouseMatch  bool
	Distance    float64
	Residential bool
}

// Rule is one tie-break in the composite comparator. Decides reports whether the
// rule separates a and b; Compare orders them (negative means a wins).
type Rule struct {
	Name    string
	Decides func(a, b *Scored) bool
	Compare func(a, b *Scored) int
}

// preferTrue builds a rule that ranks candidates with flag set ahead of the rest.
func preferTrue(name string, flag func(*Scored) bool) Rule {
	return Rule{
		Name:    name,
		Decides: func(a, b *Scored) bool { return flag(a) != flag(b) },
		Compare: func(a, _ *Scored) int {
			if flag(a) {
				return -1
			}
			return 1
		},
	}
}

// DefaultRules returns the tie-breaks in priority order: perfect match, containment,
// house number, distance beyond epsilon, residential use, then raw distance.
func DefaultRules(epsilon float64) []Rule {
	return []Rule{
		preferTrue(string(SelectPerfect), func(s *Scored) bool { return s.Contains && s.HouseMatch }),
		preferTrue(string(SelectContains), func(s *Scored) bool { return s.Contains }),
		preferTrue(string(SelectHouseNumber), func(s *Scored) bool { return s.HouseMatch }),
		{
			Name:    "distance",
			Decides: func(a, b *Scored) bool { return math.Abs(a.Distance-b.Distance) > epsilon },
			Compare: func(a, b *Scored) int { return cmpFloat(a.Distance, b.Distance) },
		},
		preferTrue("residential", func(s *Scored) bool { return s.Residential }),
		{
			Name:    "nearest",
			Decides: func(a, b *Scored) bool { return a.Distance != b.Distance },
			Compare: func(a, b *Scored) int { return cmpFloat(a.Distance, b.Distance) },
		},
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Ranker selects one candidate from a strategy's result set.
type Ranker struct {
	Rules []Rule
}

// NewRanker returns a ranker with the default rules.
func NewRanker(epsilon float64) *Ranker {
	if epsilon <= 0 {
		epsilon = DefaultNearTieEpsilon
	}
	return &Ranker{Rules: DefaultRules(epsilon)}
}

// Compare applies the rules in order; the first rule that decides wins.
func (r *Ranker) Compare(a, b *Scored) int {
	for _, rule := range r.Rules {
		if rule.Decides(a, b) {
			return rule.Compare(a, b)
		}
	}
	return 0
}

// Score annotates a candidate against the query.
func Score(q Query, c Candidate) Scored {
	qn := HouseNumber(q.Address)
	return Scored{
		Candidate:   c,
		Contains:    Contains(c.Ring, q.Coordinate),
		HouseMatch:  qn != "" && HouseNumber(c.SiteAddress) == qn,
		Distance:    Distance(Centroid(c.Ring), q.Coordinate),
		Residential: IsResidential(c.UseCode),
	}
}

// Select returns the best candidate and how it was chosen. Candidates without a
// valid ring are ignored. It returns nil when nothing usable remains.
func (r *Ranker) Select(q Query, candidates []Candidate) *Match {
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if !c.Ring.Valid() {
			continue
		}
		scored = append(scored, Score(q, c))
	}
	if len(scored) == 0 {
		return nil
	}

	slices.SortStableFunc(scored, func(a, b Scored) int { return r.Compare(&a, &b) })
	best := scored[0]

	sel := SelectNearest
	switch {
	case best.Contains && best.HouseMatch:
		sel = SelectPerfect
	case best.Contains:
		sel = SelectContains
	case best.HouseMatch:
		sel = SelectHouseNumber
	case len(scored) == 1:
		sel = SelectSingle
	}
	return &Match{Candidate: best.Candidate, Selection: sel}
}

// IsResidential reports whether a use code or description denotes residential use.
func IsResidential(useCode string) bool {
	u := normalize(useCode)
	if u == "" {
		return false
	}
	if residentialCodeRe.MatchString(u) {
		return true
	}
	for _, w := range residentialWords {
		if strings.Contains(u, w) {
			return true
		}
	}
	return false
}
