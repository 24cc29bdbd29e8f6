package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parcel-resolver/internal/parcel"
	"github.com/sells-group/parcel-resolver/internal/resilience"
)

// Snapshot holds a point-in-time view of resolver health.
type Snapshot struct {
	// Ledger counts within the lookback window.
	Total        int            `json:"total"`
	BySource     map[string]int `json:"by_source"`
	EstimateRate float64        `json:"estimate_rate"`

	OpenBreakers []string `json:"open_breakers,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// LedgerCounter abstracts the store query needed by the collector.
type LedgerCounter interface {
	CountBySourceSince(ctx context.Context, since time.Time) (map[string]int, error)
}

// BreakerStates abstracts the breaker registry.
type BreakerStates interface {
	States() map[string]resilience.CircuitState
}

// Collector gathers health data from the lookup ledger and the breakers.
type Collector struct {
	ledger   LedgerCounter
	breakers BreakerStates
}

// NewCollector creates a new collector. breakers may be nil.
func NewCollector(ledger LedgerCounter, breakers BreakerStates) *Collector {
	return &Collector{ledger: ledger, breakers: breakers}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := time.Now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	counts, err := c.ledger.CountBySourceSince(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count lookups")
	}

	snap.BySource = counts
	for _, n := range counts {
		snap.Total += n
	}
	if snap.Total > 0 {
		snap.EstimateRate = float64(counts[string(parcel.SourceEstimate)]) / float64(snap.Total)
	}

	if c.breakers != nil {
		for name, state := range c.breakers.States() {
			if state == resilience.CircuitOpen {
				snap.OpenBreakers = append(snap.OpenBreakers, name)
			}
		}
		sort.Strings(snap.OpenBreakers)
	}

	return snap, nil
}
