package main

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/config"
	"github.com/sells-group/parcel-resolver/internal/metrics"
	"github.com/sells-group/parcel-resolver/internal/parcel"
	"github.com/sells-group/parcel-resolver/internal/resilience"
	"github.com/sells-group/parcel-resolver/internal/source"
	"github.com/sells-group/parcel-resolver/internal/store"
)

// resolverEnv holds the initialized cascade and its ledger.
type resolverEnv struct {
	Resolver *parcel.Resolver
	Breakers *resilience.Breakers
	Store    store.Store
}

// Close releases the ledger.
func (e *resolverEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

// resolve runs the cascade and records the lookup. Ledger failures are logged
// and never change the result.
func (e *resolverEnv) resolve(ctx context.Context, q parcel.Query) parcel.ResolvedProperty {
	res := e.Resolver.Resolve(ctx, q)
	if e.Store != nil {
		// Record even when the caller has gone away.
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.Store.RecordLookup(recCtx, store.NewLookup(q, res)); err != nil {
			zap.L().Warn("record lookup", zap.String("address", q.Address), zap.Error(err))
		}
	}
	return res
}

// initResolver builds the cascade from config and opens the ledger.
func initResolver(ctx context.Context) (*resolverEnv, error) {
	breakerCfg := resilience.FromBreakerConfig(cfg.Resolver.BreakerFailures, cfg.Resolver.BreakerResetSecs)
	breakerCfg.OnStateChange = func(name string, from, to resilience.CircuitState) {
		zap.L().Warn("circuit breaker state change",
			zap.String("strategy", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		metrics.SetBreakerOpen(name, to == resilience.CircuitOpen)
	}
	breakers := resilience.NewBreakers(breakerCfg)

	strategies, err := buildStrategies(cfg, &http.Client{})
	if err != nil {
		return nil, err
	}

	opts := resolverOptions(cfg.Resolver)
	opts.Breakers = breakers
	r := parcel.NewResolver(strategies, opts)

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	zap.L().Info("resolver ready",
		zap.Strings("strategies", r.Strategies()),
		zap.String("store", cfg.Store.Driver),
	)
	return &resolverEnv{Resolver: r, Breakers: breakers, Store: st}, nil
}

func resolverOptions(rc config.ResolverConfig) parcel.Options {
	return parcel.Options{
		Scale: parcel.Scale{
			FeetPerDegreeLat: rc.FeetPerDegreeLat,
			FeetPerDegreeLon: rc.FeetPerDegreeLon,
		},
		CallTimeout:        time.Duration(rc.CallTimeoutSecs) * time.Second,
		BuildingMultiplier: rc.BuildingMultiplier,
		EstimateWidthFt:    rc.EstimateWidthFt,
		EstimateDepthFt:    rc.EstimateDepthFt,
	}
}

// buildStrategies returns the cascade in priority order, leaving out disabled
// strategies.
func buildStrategies(c *config.Config, client *http.Client) ([]parcel.Strategy, error) {
	rc := c.Resolver

	table := parcel.DefaultTownTable()
	if rc.TownsFile != "" {
		t, err := parcel.LoadTownTable(rc.TownsFile)
		if err != nil {
			return nil, err
		}
		table = t
	}
	matcher := parcel.NewTownMatcher(table)
	ranker := parcel.NewRanker(rc.NearTieEpsilon)
	scale := parcel.Scale{FeetPerDegreeLat: rc.FeetPerDegreeLat, FeetPerDegreeLon: rc.FeetPerDegreeLon}

	httpOpts := func(rps float64) source.HTTPOptions {
		return source.HTTPOptions{Client: client, RPS: rps, Burst: 1}
	}

	var proxy *source.Proxy
	if c.Proxy.URL != "" {
		proxy = &source.Proxy{BaseURL: c.Proxy.URL, Param: c.Proxy.Param}
	}

	overpass := source.OverpassConfig{
		URL:          c.Overpass.URL,
		RadiusMeters: c.Overpass.RadiusMeters,
		Ranker:       ranker,
		HTTP:         httpOpts(c.Overpass.RPS),
	}

	all := []parcel.Strategy{
		source.NewTownGIS(source.TownGISConfig{
			Matcher:         matcher,
			Ranker:          ranker,
			Proxy:           proxy,
			ProximityMeters: rc.ProximityMeters,
			HTTP:            httpOpts(0),
		}),
		source.NewStatewide(source.StatewideConfig{
			URL:             c.Statewide.URL,
			Matcher:         matcher,
			Ranker:          ranker,
			ProximityMeters: rc.ProximityMeters,
			MaxParcelAcres:  rc.MaxParcelAcres,
			Scale:           scale,
			HTTP:            httpOpts(c.Statewide.RPS),
		}),
		source.NewRegrid(source.RegridConfig{
			URL:    c.Regrid.URL,
			Token:  c.Regrid.Token,
			Ranker: ranker,
			HTTP:   httpOpts(c.Regrid.RPS),
		}),
		source.NewGeocodio(source.GeocodioConfig{
			URL:    c.Geocodio.URL,
			Key:    c.Geocodio.Key,
			Ranker: ranker,
			HTTP:   httpOpts(c.Geocodio.RPS),
		}),
		source.NewOverpassCadastre(overpass),
		source.NewOverpassBuildings(overpass),
		source.NewMapboxBuildings(source.MapboxConfig{
			URL:          c.Mapbox.URL,
			Token:        c.Mapbox.Token,
			RadiusMeters: c.Mapbox.RadiusMeters,
			HTTP:         httpOpts(c.Mapbox.RPS),
		}),
	}

	// Paid APIs without credentials would only ever error.
	missingCreds := map[string]bool{
		"regrid":           c.Regrid.Token == "",
		"geocodio":         c.Geocodio.Key == "",
		"mapbox_buildings": c.Mapbox.Token == "",
	}

	strategies := make([]parcel.Strategy, 0, len(all))
	for _, s := range all {
		if slices.Contains(rc.Disabled, s.Name()) {
			continue
		}
		if missingCreds[s.Name()] {
			zap.L().Info("strategy disabled: no credentials", zap.String("strategy", s.Name()))
			continue
		}
		strategies = append(strategies, s)
	}
	return strategies, nil
}
