package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Resolver   ResolverConfig   `yaml:"resolver" mapstructure:"resolver"`
	Statewide  StatewideConfig  `yaml:"statewide" mapstructure:"statewide"`
	Regrid     RegridConfig     `yaml:"regrid" mapstructure:"regrid"`
	Geocodio   GeocodioConfig   `yaml:"geocodio" mapstructure:"geocodio"`
	Overpass   OverpassConfig   `yaml:"overpass" mapstructure:"overpass"`
	Mapbox     MapboxConfig     `yaml:"mapbox" mapstructure:"mapbox"`
	Proxy      ProxyConfig      `yaml:"proxy" mapstructure:"proxy"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the lookup ledger backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ResolverConfig holds the cascade tunables.
type ResolverConfig struct {
	// TownsFile overrides the built-in town GIS and village alias tables.
	TownsFile          string  `yaml:"towns_file" mapstructure:"towns_file"`
	CallTimeoutSecs    int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	NearTieEpsilon     float64 `yaml:"near_tie_epsilon" mapstructure:"near_tie_epsilon"`
	ProximityMeters    float64 `yaml:"proximity_meters" mapstructure:"proximity_meters"`
	MaxParcelAcres     float64 `yaml:"max_parcel_acres" mapstructure:"max_parcel_acres"`
	BuildingMultiplier float64 `yaml:"building_multiplier" mapstructure:"building_multiplier"`
	EstimateWidthFt    float64 `yaml:"estimate_width_ft" mapstructure:"estimate_width_ft"`
	EstimateDepthFt    float64 `yaml:"estimate_depth_ft" mapstructure:"estimate_depth_ft"`
	FeetPerDegreeLat   float64 `yaml:"feet_per_degree_lat" mapstructure:"feet_per_degree_lat"`
	FeetPerDegreeLon   float64 `yaml:"feet_per_degree_lon" mapstructure:"feet_per_degree_lon"`
	BreakerFailures    int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs   int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	// Disabled lists strategy names to leave out of the cascade.
	Disabled []string `yaml:"disabled" mapstructure:"disabled"`
}

// StatewideConfig configures the statewide parcel layer.
type StatewideConfig struct {
	URL string  `yaml:"url" mapstructure:"url"`
	RPS float64 `yaml:"rps" mapstructure:"rps"`
}

// RegridConfig holds Regrid API settings.
type RegridConfig struct {
	URL   string  `yaml:"url" mapstructure:"url"`
	Token string  `yaml:"token" mapstructure:"token"`
	RPS   float64 `yaml:"rps" mapstructure:"rps"`
}

// GeocodioConfig holds Geocodio API settings.
type GeocodioConfig struct {
	URL string  `yaml:"url" mapstructure:"url"`
	Key string  `yaml:"key" mapstructure:"key"`
	RPS float64 `yaml:"rps" mapstructure:"rps"`
}

// OverpassConfig holds Overpass API settings.
type OverpassConfig struct {
	URL          string  `yaml:"url" mapstructure:"url"`
	RadiusMeters float64 `yaml:"radius_meters" mapstructure:"radius_meters"`
	RPS          float64 `yaml:"rps" mapstructure:"rps"`
}

// MapboxConfig holds Mapbox Tilequery settings.
type MapboxConfig struct {
	URL          string  `yaml:"url" mapstructure:"url"`
	Token        string  `yaml:"token" mapstructure:"token"`
	RadiusMeters float64 `yaml:"radius_meters" mapstructure:"radius_meters"`
	RPS          float64 `yaml:"rps" mapstructure:"rps"`
}

// ProxyConfig configures the CORS pass-through proxy for town GIS services.
type ProxyConfig struct {
	URL   string `yaml:"url" mapstructure:"url"`
	Param string `yaml:"param" mapstructure:"param"`
}

// BatchConfig configures batch resolution.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures upstream degradation alerting.
type MonitoringConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	// EstimateRateThreshold is the share of lookups answered by the estimate
	// tier above which an alert fires.
	EstimateRateThreshold float64 `yaml:"estimate_rate_threshold" mapstructure:"estimate_rate_threshold"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	MinLookups            int     `yaml:"min_lookups" mapstructure:"min_lookups"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PARCEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "parcel.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("resolver.towns_file", "")
	v.SetDefault("resolver.call_timeout_secs", 8)
	v.SetDefault("resolver.near_tie_epsilon", 0.00002)
	v.SetDefault("resolver.proximity_meters", 10)
	v.SetDefault("resolver.max_parcel_acres", 25)
	v.SetDefault("resolver.building_multiplier", 2.5)
	v.SetDefault("resolver.estimate_width_ft", 80)
	v.SetDefault("resolver.estimate_depth_ft", 120)
	v.SetDefault("resolver.feet_per_degree_lat", 364000)
	v.SetDefault("resolver.feet_per_degree_lon", 272000)
	v.SetDefault("resolver.breaker_failures", 5)
	v.SetDefault("resolver.breaker_reset_secs", 60)
	v.SetDefault("resolver.disabled", []string{})
	v.SetDefault("statewide.url", "https://services3.arcgis.com/3FL1kr7L4LvwA2Kb/arcgis/rest/services/Connecticut_CAMA_and_Parcel_Layer/FeatureServer/0/query")
	v.SetDefault("statewide.rps", 5)
	v.SetDefault("regrid.url", "https://app.regrid.com/api/v1/search.json")
	v.SetDefault("regrid.token", "")
	v.SetDefault("regrid.rps", 2)
	v.SetDefault("geocodio.url", "https://api.geocod.io/v1.7/geocode")
	v.SetDefault("geocodio.key", "")
	v.SetDefault("geocodio.rps", 2)
	v.SetDefault("overpass.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.radius_meters", 25)
	v.SetDefault("overpass.rps", 1)
	v.SetDefault("mapbox.url", "https://api.mapbox.com/v4/mapbox.mapbox-streets-v8/tilequery")
	v.SetDefault("mapbox.token", "")
	v.SetDefault("mapbox.radius_meters", 30)
	v.SetDefault("mapbox.rps", 5)
	v.SetDefault("proxy.url", "")
	v.SetDefault("proxy.param", "url")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.estimate_rate_threshold", 0.5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 1)
	v.SetDefault("monitoring.min_lookups", 10)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is the command name.
func (c *Config) Validate(mode string) error {
	var errs []string

	r := c.Resolver
	if r.CallTimeoutSecs <= 0 {
		errs = append(errs, "resolver.call_timeout_secs must be > 0")
	}
	if r.NearTieEpsilon < 0 {
		errs = append(errs, "resolver.near_tie_epsilon must be >= 0")
	}
	if r.BuildingMultiplier < 1 {
		errs = append(errs, "resolver.building_multiplier must be >= 1")
	}
	if r.EstimateWidthFt <= 0 || r.EstimateDepthFt <= 0 {
		errs = append(errs, "resolver.estimate_width_ft and estimate_depth_ft must be > 0")
	}
	if r.FeetPerDegreeLat <= 0 || r.FeetPerDegreeLon <= 0 {
		errs = append(errs, "resolver.feet_per_degree_lat and feet_per_degree_lon must be > 0")
	}

	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, "store.driver must be sqlite, postgres or none")
	}
	if c.Store.Driver != "none" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "resolve", "lookups":
	case "batch":
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 32 {
			errs = append(errs, "batch.concurrency must be between 1 and 32")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if t := c.Monitoring.EstimateRateThreshold; t <= 0 || t > 1 {
			errs = append(errs, "monitoring.estimate_rate_threshold must be in (0, 1]")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
