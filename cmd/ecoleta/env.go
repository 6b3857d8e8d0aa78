package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/erazemk/ecoleta/assets"
	"github.com/erazemk/ecoleta/internal/cache"
	"github.com/erazemk/ecoleta/internal/catalog"
	"github.com/erazemk/ecoleta/internal/db"
	"github.com/erazemk/ecoleta/internal/metrics"
	"github.com/erazemk/ecoleta/internal/model"
	"github.com/erazemk/ecoleta/internal/store"
	"github.com/erazemk/ecoleta/internal/uploads"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		database, err := db.Open(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewSQLite(database), nil
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// appEnv holds everything a serving process needs.
type appEnv struct {
	Store   store.Store
	Storage *uploads.Storage
	Redis   *redis.Client
	Metrics *metrics.Metrics
	Service *catalog.Service
}

// initApp opens the store, prepares schema, catalog and icons, and connects
// the optional item cache.
func initApp(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st}

	if err := prepare(ctx, env.Store); err != nil {
		env.Close()
		return nil, err
	}

	env.Storage, err = uploads.NewStorage(cfg.Uploads.Dir, cfg.Uploads.MaxBytes, cfg.Uploads.MaxDimension, cfg.Uploads.MaxPixels)
	if err != nil {
		env.Close()
		return nil, err
	}
	if err := assets.InstallIcons(env.Storage); err != nil {
		env.Close()
		return nil, err
	}

	env.Metrics = metrics.New()
	opts := []catalog.Option{catalog.WithMetrics(env.Metrics)}

	env.Redis, err = cache.Open(ctx, cfg.Redis.URL)
	if err != nil {
		env.Close()
		return nil, err
	}
	if env.Redis != nil {
		itemCache := cache.NewItemCache(env.Redis, cfg.Redis.TTL)
		// Seeding may have changed the catalog.
		if err := itemCache.Invalidate(ctx); err != nil {
			zap.L().Warn("item cache invalidate failed", zap.Error(err))
		}
		opts = append(opts, catalog.WithItemCache(itemCache))
		zap.L().Info("item cache enabled", zap.Duration("ttl", cfg.Redis.TTL))
	}

	env.Service = catalog.New(env.Store, opts...)
	return env, nil
}

// prepare migrates the schema and seeds the default item catalog.
func prepare(ctx context.Context, st store.Store) error {
	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate")
	}
	if err := st.SeedItems(ctx, model.DefaultItems); err != nil {
		return eris.Wrap(err, "seed items")
	}
	return nil
}

// Close releases the store and cache connections.
func (e *appEnv) Close() {
	if e.Redis != nil {
		if err := e.Redis.Close(); err != nil {
			zap.L().Warn("close redis", zap.Error(err))
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}
