package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/parcel-resolver/internal/config"
)

// Checker periodically snapshots the ledger and breakers and raises degradation
// alerts. An alert is sent when its condition starts, not on every tick it holds.
// Run and check must not be called concurrently.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	// active holds the alert types raised on the previous tick.
	active map[AlertType]bool
}

// NewChecker creates a background degradation checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		active:    make(map[AlertType]bool),
	}
}

// Run checks on every interval tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting degradation checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
		zap.Float64("estimate_rate_threshold", c.cfg.EstimateRateThreshold),
		zap.Bool("webhook", c.cfg.WebhookURL != ""),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("degradation checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check runs one tick and returns how many newly raised alerts were delivered.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect snapshot", zap.Error(err))
		return 0
	}

	log.Debug("monitoring: snapshot",
		zap.Int("lookups", snap.Total),
		zap.Any("by_source", snap.BySource),
		zap.Float64("estimate_rate", snap.EstimateRate),
		zap.Strings("open_breakers", snap.OpenBreakers),
	)
	if len(snap.OpenBreakers) > 0 {
		log.Warn("monitoring: strategies skipped by open breakers",
			zap.Strings("open_breakers", snap.OpenBreakers),
		)
	}

	raised := c.transition(c.alerter.Evaluate(snap), log)
	if len(raised) == 0 {
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, raised)
	log.Info("monitoring: alerts raised",
		zap.Int("alerts_raised", len(raised)),
		zap.Int("alerts_sent", sent),
	)
	return sent
}

// transition records the current alert set and returns the alerts that were not
// active on the previous tick. Types that stopped firing are logged as cleared.
func (c *Checker) transition(alerts []Alert, log *zap.Logger) []Alert {
	current := make(map[AlertType]bool, len(alerts))
	var raised []Alert
	for _, a := range alerts {
		current[a.Type] = true
		if !c.active[a.Type] {
			raised = append(raised, a)
		}
	}
	for t := range c.active {
		if !current[t] {
			log.Info("monitoring: alert cleared", zap.String("type", string(t)))
		}
	}
	c.active = current
	return raised
}
