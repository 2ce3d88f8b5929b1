package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/place-resolver/internal/cache"
	"github.com/sells-group/place-resolver/internal/config"
	"github.com/sells-group/place-resolver/internal/db"
	"github.com/sells-group/place-resolver/internal/provider"
	"github.com/sells-group/place-resolver/internal/resolve"
	"github.com/sells-group/place-resolver/internal/store"
	"github.com/sells-group/place-resolver/internal/validate"
)

// resolverEnv holds the engine and everything it was built from, shared by
// the resolve, batch and serve commands.
type resolverEnv struct {
	Engine   *resolve.Engine
	Registry *provider.Registry
	// Store is the durable backend, nil for the memory and redis drivers.
	Store store.Store

	closers []func() error
}

// Close releases the cache backends.
func (e *resolverEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// cacheBackend is the outcome of opening the configured cache driver.
type cacheBackend struct {
	Cache   cache.Store
	Store   store.Store
	closers []func() error
}

// initEnv validates the config for mode, opens the cache, builds the
// provider registry and wires the engine. A nil reg leaves metrics
// unregistered. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string, reg prometheus.Registerer) (*resolverEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	backend, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	env := &resolverEnv{Store: backend.Store, closers: backend.closers}

	registry, err := provider.Build(cfg.Providers, &http.Client{})
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Registry = registry

	ec := resolve.Config{
		MaxInFlight:       cfg.Resolve.MaxInFlight,
		OverallTimeout:    time.Duration(cfg.Resolve.OverallTimeoutMs) * time.Millisecond,
		CacheWriteTimeout: time.Duration(cfg.Resolve.CacheWriteMs) * time.Millisecond,
		TTL:               cache.DefaultTTLPolicy().WithHours(cfg.Cache.TTLHours),
		Limits:            cfg.Resolve.LimitsFor,
		Validator:         validate.New(cfg.Resolve.AnchorRadiusKm),
		Metrics:           resolve.NewMetrics(reg),
	}
	if backend.Store != nil {
		ec.Audit = backend.Store
	}
	env.Engine = resolve.New(registry, backend.Cache, ec)

	zap.L().Debug("resolver initialized",
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.Int("providers", registry.Len()),
	)
	return env, nil
}

// openCache builds the cache for the configured driver. Every driver gets an
// in-process L1; redis and the SQL drivers add a shared L2 behind it.
func openCache(ctx context.Context, cc config.CacheConfig) (*cacheBackend, error) {
	l1 := cache.NewMemory(cc.L1Size, time.Duration(cc.L1TTLSecs)*time.Second)

	switch cc.Driver {
	case "", "memory":
		zap.L().Warn("memory cache selected; provider results are lost on restart",
			zap.Int("l1_size", cc.L1Size),
		)
		return &cacheBackend{Cache: l1}, nil
	case "redis":
		r, client, err := cache.DialRedis(ctx, cc.RedisAddr, cc.RedisDB)
		if err != nil {
			return nil, err
		}
		return &cacheBackend{Cache: cache.NewTiered(l1, r), closers: []func() error{client.Close}}, nil
	case "sqlite", "postgres":
		st, err := openStore(ctx, cc)
		if err != nil {
			return nil, err
		}
		return &cacheBackend{Cache: cache.NewTiered(l1, st), Store: st, closers: []func() error{st.Close}}, nil
	default:
		return nil, eris.Errorf("unsupported cache driver: %s", cc.Driver)
	}
}

// openStore opens and migrates the SQL backend.
func openStore(ctx context.Context, cc config.CacheConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cc.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cc.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cc.DatabaseURL, &db.PoolConfig{MaxConns: cc.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cc.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
