package resilience

import (
	"time"
)

// FromBreakerConfig converts config values to a breaker Config that trips on
// transient upstream failures only.
func FromBreakerConfig(failureThreshold, resetTimeoutSecs int) Config {
	cfg := DefaultConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	cfg.ShouldTrip = IsTransient
	return cfg
}
