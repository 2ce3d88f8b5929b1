package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/place-resolver/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Cache     CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Resolve   ResolveConfig    `yaml:"resolve" mapstructure:"resolve"`
	Batch     BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Providers []ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// CacheConfig configures the provider result cache.
type CacheConfig struct {
	// Driver is one of memory, redis, sqlite, postgres.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	RedisAddr   string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB     int    `yaml:"redis_db" mapstructure:"redis_db"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	L1Size      int    `yaml:"l1_size" mapstructure:"l1_size"`
	L1TTLSecs   int    `yaml:"l1_ttl_secs" mapstructure:"l1_ttl_secs"`
	// TTLHours overrides the per-level lifetimes, keyed by level name.
	TTLHours map[string]int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// ResolveConfig configures the resolution engine.
type ResolveConfig struct {
	MaxInFlight      int     `yaml:"max_in_flight" mapstructure:"max_in_flight"`
	OverallTimeoutMs int     `yaml:"overall_timeout_ms" mapstructure:"overall_timeout_ms"`
	CacheWriteMs     int     `yaml:"cache_write_ms" mapstructure:"cache_write_ms"`
	AnchorRadiusKm   float64 `yaml:"anchor_radius_km" mapstructure:"anchor_radius_km"`
	// Defaults holds per-kind sizing applied to requests that leave counts unset.
	Defaults map[string]model.Limits `yaml:"defaults" mapstructure:"defaults"`
}

// LimitsFor returns the configured sizing for kind, falling back to the
// built-in values field by field.
func (r ResolveConfig) LimitsFor(kind model.ArtifactKind) model.Limits {
	l := model.DefaultLimits(kind)
	c, ok := r.Defaults[string(kind)]
	if !ok {
		return l
	}
	if c.TargetCount > 0 {
		l.TargetCount = c.TargetCount
	}
	if c.MinPerLevel > 0 {
		l.MinPerLevel = c.MinPerLevel
	}
	if c.MaxPerLevel > 0 {
		l.MaxPerLevel = c.MaxPerLevel
	}
	return l
}

// BatchConfig configures the batch command.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ProviderConfig configures one provider adapter. Zero values fall back to
// the provider's built-in defaults.
type ProviderConfig struct {
	Name          string  `yaml:"name" mapstructure:"name"`
	Enabled       *bool   `yaml:"enabled" mapstructure:"enabled"`
	Priority      int     `yaml:"priority" mapstructure:"priority"`
	TimeoutMs     int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	RPS           float64 `yaml:"rps" mapstructure:"rps"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
	BackoffBaseMs int     `yaml:"backoff_base_ms" mapstructure:"backoff_base_ms"`
	BackoffMaxMs  int     `yaml:"backoff_max_ms" mapstructure:"backoff_max_ms"`
	Retries       *int    `yaml:"retries" mapstructure:"retries"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent     string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// IsEnabled reports whether the provider should be registered. Unset means enabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

var cacheDrivers = []string{"memory", "redis", "sqlite", "postgres"}

// Validate checks the fields required by the given command mode
// ("resolve", "serve", "sweep").
func (c *Config) Validate(mode string) error {
	var problems []string

	if !contains(cacheDrivers, c.Cache.Driver) {
		problems = append(problems, fmt.Sprintf("cache.driver must be one of %s", strings.Join(cacheDrivers, ", ")))
	}
	switch c.Cache.Driver {
	case "redis":
		if c.Cache.RedisAddr == "" {
			problems = append(problems, "cache.redis_addr is required for the redis driver")
		}
	case "sqlite", "postgres":
		if c.Cache.DatabaseURL == "" {
			problems = append(problems, "cache.database_url is required for the "+c.Cache.Driver+" driver")
		}
	}
	if c.Resolve.MaxInFlight <= 0 {
		problems = append(problems, "resolve.max_in_flight must be positive")
	}
	if c.Resolve.OverallTimeoutMs <= 0 {
		problems = append(problems, "resolve.overall_timeout_ms must be positive")
	}
	if c.Resolve.AnchorRadiusKm < 0 {
		problems = append(problems, "resolve.anchor_radius_km must not be negative")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
	case "sweep":
		if c.Cache.Driver != "sqlite" && c.Cache.Driver != "postgres" {
			problems = append(problems, "cache sweep requires a sqlite or postgres cache.driver")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.database_url", "place-resolver.db")
	v.SetDefault("cache.max_conns", 10)
	v.SetDefault("cache.l1_size", 4096)
	v.SetDefault("cache.l1_ttl_secs", 600)
	v.SetDefault("resolve.max_in_flight", 6)
	v.SetDefault("resolve.overall_timeout_ms", 15000)
	v.SetDefault("resolve.cache_write_ms", 2000)
	v.SetDefault("resolve.anchor_radius_km", 0)
	for _, kind := range model.ArtifactKinds {
		l := model.DefaultLimits(kind)
		prefix := "resolve.defaults." + string(kind) + "."
		v.SetDefault(prefix+"target_count", l.TargetCount)
		v.SetDefault(prefix+"min_per_level", l.MinPerLevel)
		v.SetDefault(prefix+"max_per_level", l.MaxPerLevel)
	}
	v.SetDefault("batch.concurrency", 4)

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
