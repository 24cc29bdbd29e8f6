package parcel

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/metrics"
	"github.com/sells-group/parcel-resolver/internal/resilience"
)

// Options configures the cascade controller.
type Options struct {
	Scale Scale
	// CallTimeout bounds each strategy call.
	CallTimeout time.Duration
	// BuildingMultiplier scales a footprint bounding box into a lot estimate.
	BuildingMultiplier float64
	EstimateWidthFt    float64
	EstimateDepthFt    float64
	// Breakers is optional; strategies run unguarded when nil.
	Breakers *resilience.Breakers
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Scale:              DefaultScale,
		CallTimeout:        8 * time.Second,
		BuildingMultiplier: 2.5,
		EstimateWidthFt:    80,
		EstimateDepthFt:    120,
	}
}

// Resolver walks strategies in order until one produces an accepted polygon.
type Resolver struct {
	strategies []Strategy
	opts       Options
}

// NewResolver creates a Resolver. Strategies are tried in the given order.
func NewResolver(strategies []Strategy, opts Options) *Resolver {
	def := DefaultOptions()
	if opts.Scale.FeetPerDegreeLat <= 0 || opts.Scale.FeetPerDegreeLon <= 0 {
		opts.Scale = def.Scale
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = def.CallTimeout
	}
	if opts.BuildingMultiplier <= 0 {
		opts.BuildingMultiplier = def.BuildingMultiplier
	}
	if opts.EstimateWidthFt <= 0 || opts.EstimateDepthFt <= 0 {
		opts.EstimateWidthFt, opts.EstimateDepthFt = def.EstimateWidthFt, def.EstimateDepthFt
	}
	return &Resolver{strategies: strategies, opts: opts}
}

// Strategies returns the strategy names in cascade order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// Resolve runs the cascade. It always returns a result: strategy failures are
// logged and skipped, and the estimate tier ends the cascade when nothing else hits
// or when ctx is cancelled between strategies.
func (r *Resolver) Resolve(ctx context.Context, q Query) ResolvedProperty {
	attempts := make([]Attempt, 0, len(r.strategies))

	for i, s := range r.strategies {
		if ctx.Err() != nil {
			zap.L().Info("parcel: cascade aborted",
				zap.String("address", q.Address),
				zap.String("next_strategy", s.Name()),
			)
			for _, rest := range r.strategies[i:] {
				attempts = append(attempts, Attempt{Strategy: rest.Name(), Outcome: OutcomeAborted})
			}
			break
		}

		m, att := r.try(ctx, s, q)
		if m != nil {
			if res, ok := r.accept(s, m); ok {
				attempts = append(attempts, att)
				res.Attempts = attempts
				r.finish(q, res)
				return res
			}
			att.Outcome = OutcomeMiss
			zap.L().Debug("parcel: rejected degenerate polygon",
				zap.String("strategy", s.Name()),
				zap.String("address", q.Address),
			)
		}
		attempts = append(attempts, att)
	}

	res := r.estimate(q)
	res.Attempts = attempts
	r.finish(q, res)
	return res
}

// try invokes one strategy behind its breaker and timeout. Panics inside a strategy
// count as errors.
func (r *Resolver) try(ctx context.Context, s Strategy, q Query) (m *Match, att Attempt) {
	att = Attempt{Strategy: s.Name()}
	start := time.Now()
	defer func() {
		att.DurationMS = time.Since(start).Milliseconds()
		metrics.ObserveAttempt(s.Name(), string(att.Outcome), time.Since(start))
	}()

	var cb *resilience.CircuitBreaker
	if r.opts.Breakers != nil {
		cb = r.opts.Breakers.Get(s.Name())
		if err := cb.Allow(); err != nil {
			att.Outcome = OutcomeSkipped
			att.Error = err.Error()
			zap.L().Debug("parcel: strategy skipped, breaker open", zap.String("strategy", s.Name()))
			return nil, att
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = eris.Errorf("parcel: strategy panic: %v", p)
			}
		}()
		m, err = s.Resolve(callCtx, q)
	}()

	// A caller cancellation says nothing about upstream health.
	if cb != nil && ctx.Err() == nil {
		cb.Record(err)
	}

	switch {
	case err != nil:
		att.Outcome = OutcomeError
		att.Error = err.Error()
		zap.L().Warn("parcel: strategy failed, trying next",
			zap.String("strategy", s.Name()),
			zap.String("address", q.Address),
			zap.Error(err),
		)
		return nil, att
	case m == nil:
		att.Outcome = OutcomeMiss
		zap.L().Debug("parcel: strategy miss",
			zap.String("strategy", s.Name()),
			zap.String("address", q.Address),
		)
		return nil, att
	default:
		att.Outcome = OutcomeHit
		return m, att
	}
}

// accept converts a strategy match into a result for the strategy's tier.
func (r *Resolver) accept(s Strategy, m *Match) (ResolvedProperty, bool) {
	ring := m.Candidate.Ring.Closed()
	if !ring.Valid() {
		return ResolvedProperty{}, false
	}

	res := ResolvedProperty{
		DataSource: s.Tier(),
		Strategy:   s.Name(),
		Selection:  m.Selection,
	}

	var sqFt float64
	switch s.Tier() {
	case SourceBuilding:
		res.Polygon = BufferFootprint(ring, r.opts.BuildingMultiplier, r.opts.Scale)
		sqFt = r.opts.Scale.AreaSqFt(res.Polygon)
	default:
		res.DataSource = SourceCadastre
		res.Polygon = ring
		sqFt = m.Candidate.SizeSqFt
		if sqFt <= 0 {
			sqFt = r.opts.Scale.AreaSqFt(ring)
		}
	}

	res.SizeSqFt = int(math.Round(sqFt))
	if res.SizeSqFt <= 0 {
		return ResolvedProperty{}, false
	}
	res.SizeAcres = AcresString(res.SizeSqFt)
	return res, true
}

// estimate builds the synthetic fixed-size lot centered on the query point.
func (r *Resolver) estimate(q Query) ResolvedProperty {
	sqFt := int(math.Round(r.opts.EstimateWidthFt * r.opts.EstimateDepthFt))
	return ResolvedProperty{
		Polygon:    r.opts.Scale.Rectangle(q.Coordinate, r.opts.EstimateWidthFt, r.opts.EstimateDepthFt),
		SizeSqFt:   sqFt,
		SizeAcres:  AcresString(sqFt),
		DataSource: SourceEstimate,
		Strategy:   "estimate",
	}
}

func (r *Resolver) finish(q Query, res ResolvedProperty) {
	metrics.ObserveResolution(string(res.DataSource))
	zap.L().Info("parcel: resolved",
		zap.String("address", q.Address),
		zap.String("data_source", string(res.DataSource)),
		zap.String("strategy", res.Strategy),
		zap.String("selection", string(res.Selection)),
		zap.Int("size_sq_ft", res.SizeSqFt),
	)
}
