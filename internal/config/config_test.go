package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "parcel.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, 8, cfg.Resolver.CallTimeoutSecs)
	assert.InDelta(t, 0.00002, cfg.Resolver.NearTieEpsilon, 1e-12)
	assert.InDelta(t, 10.0, cfg.Resolver.ProximityMeters, 1e-9)
	assert.InDelta(t, 25.0, cfg.Resolver.MaxParcelAcres, 1e-9)
	assert.InDelta(t, 2.5, cfg.Resolver.BuildingMultiplier, 1e-9)
	assert.InDelta(t, 80.0, cfg.Resolver.EstimateWidthFt, 1e-9)
	assert.InDelta(t, 120.0, cfg.Resolver.EstimateDepthFt, 1e-9)
	assert.InDelta(t, 364000.0, cfg.Resolver.FeetPerDegreeLat, 1e-9)
	assert.InDelta(t, 272000.0, cfg.Resolver.FeetPerDegreeLon, 1e-9)
	assert.Equal(t, 5, cfg.Resolver.BreakerFailures)
	assert.Equal(t, 60, cfg.Resolver.BreakerResetSecs)
	assert.Equal(t, "https://app.regrid.com/api/v1/search.json", cfg.Regrid.URL)
	assert.Equal(t, "https://api.geocod.io/v1.7/geocode", cfg.Geocodio.URL)
	assert.InDelta(t, 25.0, cfg.Overpass.RadiusMeters, 1e-9)
	assert.InDelta(t, 30.0, cfg.Mapbox.RadiusMeters, 1e-9)
	assert.Equal(t, "url", cfg.Proxy.Param)
	assert.Empty(t, cfg.Proxy.URL)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.InDelta(t, 0.5, cfg.Monitoring.EstimateRateThreshold, 1e-9)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 1, cfg.Monitoring.LookbackWindowHours)
	assert.Equal(t, 10, cfg.Monitoring.MinLookups)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/parcels
log:
  level: debug
  format: console
server:
  port: 9090
resolver:
  near_tie_epsilon: 0.0001
  disabled:
    - mapbox_buildings
proxy:
  url: https://proxy.example.com/
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/parcels", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 0.0001, cfg.Resolver.NearTieEpsilon, 1e-12)
	assert.Equal(t, []string{"mapbox_buildings"}, cfg.Resolver.Disabled)
	assert.Equal(t, "https://proxy.example.com/", cfg.Proxy.URL)
	// Defaults still apply for unset values
	assert.Equal(t, 8, cfg.Resolver.CallTimeoutSecs)
	assert.Equal(t, "url", cfg.Proxy.Param)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("PARCEL_STORE_DRIVER", "sqlite")
	t.Setenv("PARCEL_LOG_LEVEL", "warn")
	t.Setenv("PARCEL_REGRID_TOKEN", "rg-token")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "rg-token", cfg.Regrid.Token)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("PARCEL_SERVER_PORT", "3000")
	t.Setenv("PARCEL_RESOLVER_CALL_TIMEOUT_SECS", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Resolver.CallTimeoutSecs)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "parcel.db"
	cfg.Resolver.CallTimeoutSecs = 8
	cfg.Resolver.NearTieEpsilon = 0.00002
	cfg.Resolver.BuildingMultiplier = 2.5
	cfg.Resolver.EstimateWidthFt = 80
	cfg.Resolver.EstimateDepthFt = 120
	cfg.Resolver.FeetPerDegreeLat = 364000
	cfg.Resolver.FeetPerDegreeLon = 272000
	cfg.Batch.Concurrency = 4
	cfg.Server.Port = 8080
	cfg.Monitoring.EstimateRateThreshold = 0.5
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"resolve", "batch", "serve", "lookups"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_EstimateRateThreshold(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.EstimateRateThreshold = 1.5

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.estimate_rate_threshold")

	// Only serve runs the checker.
	assert.NoError(t, cfg.Validate("resolve"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate("batch")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 32")

	cfg.Batch.Concurrency = 33
	assert.Error(t, cfg.Validate("batch"))

	cfg.Batch.Concurrency = 32
	assert.NoError(t, cfg.Validate("batch"))

	// Only batch cares about concurrency.
	cfg.Batch.Concurrency = 0
	assert.NoError(t, cfg.Validate("resolve"))
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	err := cfg.Validate("resolve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite, postgres or none")

	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""
	err = cfg.Validate("resolve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.Driver = "none"
	assert.NoError(t, cfg.Validate("resolve"))
}

func TestValidateResolverTunables(t *testing.T) {
	cfg := validDefaults()
	cfg.Resolver.CallTimeoutSecs = 0
	cfg.Resolver.NearTieEpsilon = -1
	cfg.Resolver.BuildingMultiplier = 0.5
	cfg.Resolver.FeetPerDegreeLon = 0

	err := cfg.Validate("resolve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "call_timeout_secs")
	assert.Contains(t, err.Error(), "near_tie_epsilon")
	assert.Contains(t, err.Error(), "building_multiplier")
	assert.Contains(t, err.Error(), "feet_per_degree_lon")
}
