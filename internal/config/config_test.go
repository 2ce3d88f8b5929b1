package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/place-resolver/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Cache.Driver, "the default cache survives restarts")
	assert.Equal(t, "place-resolver.db", cfg.Cache.DatabaseURL)
	assert.Equal(t, 4096, cfg.Cache.L1Size)
	assert.Equal(t, 6, cfg.Resolve.MaxInFlight)
	assert.Equal(t, 15000, cfg.Resolve.OverallTimeoutMs)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Empty(t, cfg.Providers)

	assert.Equal(t, model.Limits{TargetCount: 20, MinPerLevel: 3, MaxPerLevel: 5}, cfg.Resolve.LimitsFor(model.KindImage))
	assert.Equal(t, model.Limits{TargetCount: 10, MinPerLevel: 3, MaxPerLevel: 5}, cfg.Resolve.LimitsFor(model.KindPOI))

	assert.NoError(t, cfg.Validate("resolve"))
	assert.NoError(t, cfg.Validate("serve"))
	assert.NoError(t, cfg.Validate("sweep"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
server:
  port: 9090
cache:
  driver: sqlite
  database_url: /tmp/resolver.db
  ttl_hours:
    local: 6
resolve:
  max_in_flight: 3
  anchor_radius_km: 50
  defaults:
    route:
      target_count: 4
providers:
  - name: flickr
    enabled: false
  - name: reddit
    priority: 1
    rps: 0.5
    retries: 0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, 6, cfg.Cache.TTLHours["local"])
	assert.Equal(t, 3, cfg.Resolve.MaxInFlight)
	assert.InDelta(t, 50.0, cfg.Resolve.AnchorRadiusKm, 0.001)

	route := cfg.Resolve.LimitsFor(model.KindRoute)
	assert.Equal(t, 4, route.TargetCount)
	assert.Equal(t, 3, route.MinPerLevel, "defaults still apply for unset values")

	require.Len(t, cfg.Providers, 2)
	assert.False(t, cfg.Providers[0].IsEnabled())
	assert.True(t, cfg.Providers[1].IsEnabled())
	assert.Equal(t, 1, cfg.Providers[1].Priority)
	require.NotNil(t, cfg.Providers[1].Retries)
	assert.Equal(t, 0, *cfg.Providers[1].Retries)

	assert.NoError(t, cfg.Validate("sweep"))
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
cache:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("RESOLVER_CACHE_DRIVER", "redis")
	t.Setenv("RESOLVER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("RESOLVER_SERVER_PORT", "3000")
	t.Setenv("RESOLVER_RESOLVE_MAX_IN_FLIGHT", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Resolve.MaxInFlight)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read file")
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
	cfg.Cache.Driver = "memory"
	cfg.Resolve.MaxInFlight = 6
	cfg.Resolve.OverallTimeoutMs = 15000
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.Driver = "memcached"

	err := cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.driver must be one of")
}

func TestValidate_DriverRequirements(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.Driver = "postgres"
	err := cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.database_url is required for the postgres driver")

	cfg.Cache.Driver = "redis"
	err = cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.redis_addr")
}

func TestValidate_ResolveLimits(t *testing.T) {
	cfg := validDefaults()
	cfg.Resolve.MaxInFlight = 0
	cfg.Resolve.OverallTimeoutMs = -1
	cfg.Resolve.AnchorRadiusKm = -5

	err := cfg.Validate("resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_in_flight")
	assert.Contains(t, err.Error(), "overall_timeout_ms")
	assert.Contains(t, err.Error(), "anchor_radius_km")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateSweep_RequiresSQL(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("sweep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache sweep requires")
}

func TestProviderConfig_IsEnabled(t *testing.T) {
	yes, no := true, false
	assert.True(t, ProviderConfig{}.IsEnabled())
	assert.True(t, ProviderConfig{Enabled: &yes}.IsEnabled())
	assert.False(t, ProviderConfig{Enabled: &no}.IsEnabled())
}
