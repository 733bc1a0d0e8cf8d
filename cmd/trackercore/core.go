package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/tracker-core/internal/assignment"
	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/fencing"
	"github.com/nerrad567/tracker-core/internal/firmware"
	"github.com/nerrad567/tracker-core/internal/geofence"
	"github.com/nerrad567/tracker-core/internal/infrastructure/cache"
	"github.com/nerrad567/tracker-core/internal/infrastructure/config"
	"github.com/nerrad567/tracker-core/internal/infrastructure/database"
	"github.com/nerrad567/tracker-core/internal/infrastructure/logging"
	"github.com/nerrad567/tracker-core/internal/notify"
	"github.com/nerrad567/tracker-core/internal/quota"
	"github.com/nerrad567/tracker-core/internal/reconcile"
	"github.com/nerrad567/tracker-core/internal/siteconfig"
	"github.com/nerrad567/tracker-core/internal/user"
)

// core is the wired domain layer shared by every command.
type core struct {
	db     *database.DB
	store  cache.Store
	outbox *notify.Outbox
	log    *logging.Logger

	settings   *siteconfig.Resolver
	devices    *device.Registry
	assignment *assignment.Service
	fencing    *fencing.Engine
	firmware   *firmware.Service
	reconciler *reconcile.Reconciler
}

// openDatabase opens the configured SQLite file without migrating it.
func openDatabase(cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)
	return db, nil
}

// openStore connects the configured cache backend.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (cache.Store, error) {
	if strings.EqualFold(cfg.Cache.Backend, "redis") {
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Address:  cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		log.Info("redis cache connected", "address", cfg.Cache.Redis.Address)
		return store, nil
	}
	log.Info("in-memory cache enabled")
	return cache.NewMemoryStore(), nil
}

// openCore opens and migrates the database, connects the cache and wires
// every domain service. Close releases both stores.
func openCore(ctx context.Context, cfg *config.Config, log *logging.Logger) (*core, error) {
	db, err := openDatabase(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, err
	}

	c, err := wire(db, store, cfg, log)
	if err != nil {
		store.Close() //nolint:errcheck // Already failing
		db.Close()    //nolint:errcheck // Already failing
		return nil, err
	}
	return c, nil
}

func wire(db *database.DB, store cache.Store, cfg *config.Config, log *logging.Logger) (*core, error) {
	aside := cache.NewAside(store, cfg.CacheTTL())
	aside.SetLogger(log.WithComponent("cache"))
	aside.SetRetryAttempts(cfg.Fleet.RetryAttempts)

	outbox := notify.NewOutbox(cfg.Fleet.NotificationBuffer)
	outbox.SetLogger(log.WithComponent("notify"))

	users := user.NewRegistry(user.NewSQLiteRepository(db), aside)
	users.SetLogger(log.WithComponent("users"))

	settings := siteconfig.NewResolver(siteconfig.NewSQLiteRepository(db), aside, users)
	settings.SetLogger(log.WithComponent("siteconfig"))

	pools := device.NewSQLitePoolRepository(db)
	devices := device.NewSQLiteRepository(db)
	deviceRegistry := device.NewRegistry(pools, devices, aside)
	deviceRegistry.SetLogger(log.WithComponent("devices"))

	fences := geofence.NewSQLiteRepository(db)
	fenceRegistry := geofence.NewRegistry(fences, aside)
	fenceRegistry.SetLogger(log.WithComponent("geofences"))

	quotas := quota.NewResolver(users, settings, deviceRegistry)

	assign, err := assignment.New(assignment.Deps{
		DB:            db,
		Pools:         pools,
		Devices:       devices,
		History:       device.NewSQLiteHistoryRepository(db),
		Fences:        fences,
		Registry:      deviceRegistry,
		FenceRegistry: fenceRegistry,
		Quota:         quotas,
		Users:         users,
		Admins:        settings,
		Outbox:        outbox,
		SerialPrefix:  cfg.Fleet.SerialPrefix,
		RetryAttempts: cfg.Fleet.RetryAttempts,
		Logger:        log.WithComponent("assignment"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating assignment service: %w", err)
	}

	engine := fencing.NewEngine(db, devices, fences, deviceRegistry, fenceRegistry, quotas)
	engine.SetLogger(log.WithComponent("fencing"))
	engine.SetRetryAttempts(cfg.Fleet.RetryAttempts)

	firmwareRepo := firmware.NewSQLiteRepository(db)
	firmwareSvc := firmware.NewService(db, firmwareRepo, deviceRegistry, aside, outbox)
	firmwareSvc.SetLogger(log.WithComponent("firmware"))
	firmwareSvc.SetRetryAttempts(cfg.Fleet.RetryAttempts)

	reconciler, err := reconcile.New(reconcile.Deps{
		DB:             db,
		Devices:        devices,
		Fences:         fences,
		Firmware:       firmwareRepo,
		Latest:         firmwareSvc,
		DeviceRegistry: deviceRegistry,
		FenceRegistry:  fenceRegistry,
		RetryAttempts:  cfg.Fleet.RetryAttempts,
		Logger:         log.WithComponent("reconcile"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating reconciler: %w", err)
	}

	return &core{
		db:         db,
		store:      store,
		outbox:     outbox,
		log:        log,
		settings:   settings,
		devices:    deviceRegistry,
		assignment: assign,
		fencing:    engine,
		firmware:   firmwareSvc,
		reconciler: reconciler,
	}, nil
}

// Close releases the cache and the database, logging failures.
func (c *core) Close() {
	if err := c.store.Close(); err != nil {
		c.log.Error("error closing cache", "error", err)
	}
	c.log.Info("closing database")
	if err := c.db.Close(); err != nil {
		c.log.Error("error closing database", "error", err)
	}
}
