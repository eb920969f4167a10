package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/imstore/internal/api"
	"github.com/matheus3301/imstore/internal/bus"
	"github.com/matheus3301/imstore/internal/config"
	"github.com/matheus3301/imstore/internal/lock"
	"github.com/matheus3301/imstore/internal/logging"
	"github.com/matheus3301/imstore/internal/outbox"
	"github.com/matheus3301/imstore/internal/profile"
	"github.com/matheus3301/imstore/internal/resolver"
	"github.com/matheus3301/imstore/internal/status"
	"github.com/matheus3301/imstore/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	Config     *config.Config
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideRedis,
			provideResolver,
			provideBridge,
			provideSender,
			provideTracker,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile, p.Config.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.Int("pid", l.Owner().PID), zap.Time("since", l.Owner().Since))
	return l, nil
}

// provideStore takes the lock so the database is never opened unlocked.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath, profile.VolatileDBPath(p.Profile), store.Options{
		BusyTimeout: p.Config.Store.BusyTimeout(),
		Logger:      logger.Named("store"),
	})
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version), zap.Bool("recreated", result.Recreated))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

// provideRedis returns nil when no Redis address is configured.
func provideRedis(p Params) *redis.Client {
	rc := p.Config.Redis
	if rc.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
}

func provideResolver(db *store.DB, b *bus.Bus, logger *zap.Logger) *resolver.Resolver {
	return resolver.New(db, b, logger.Named("resolver"))
}

func provideBridge(p Params, b *bus.Bus, rdb *redis.Client, logger *zap.Logger) *bus.Bridge {
	if rdb == nil {
		return nil
	}
	return bus.NewBridge(b, rdb, p.Config.Redis.Channel, logger.Named("bridge"))
}

// provideSender always returns a sender so entries can be queued. Without
// Redis it has no transport and is never started.
func provideSender(p Params, res *resolver.Resolver, rdb *redis.Client, logger *zap.Logger) (*outbox.Sender, error) {
	interval, err := p.Config.Outbox.Interval()
	if err != nil {
		return nil, err
	}
	var transport outbox.Transport
	if rdb != nil {
		transport = outbox.NewStreamTransport(rdb, p.Config.Redis.Stream, 0)
	}
	return outbox.NewSender(res, transport, outbox.Options{
		Interval:  interval,
		BatchSize: p.Config.Outbox.BatchSize,
	}, logger.Named("outbox")), nil
}

func provideTracker(res *resolver.Resolver, logger *zap.Logger) *status.Tracker {
	return status.NewTracker(res, logger.Named("status"))
}

func provideService(res *resolver.Resolver, b *bus.Bus, t *status.Tracker, s *outbox.Sender, logger *zap.Logger) *api.Service {
	return api.NewService(res, b, t, s, logger.Named("api"))
}

type lifecycleDeps struct {
	fx.In

	Server  *Server
	Lock    *lock.Lock
	DB      *store.DB
	Redis   *redis.Client
	Bridge  *bus.Bridge
	Sender  *outbox.Sender
	Tracker *status.Tracker
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	logger := d.Logger
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// No connection survives a restart.
			if err := d.Tracker.Reset(ctx); err != nil {
				return err
			}

			if d.Redis != nil {
				if err := d.Redis.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis ping: %w", err)
				}
				if err := d.Bridge.Start(ctx); err != nil {
					return err
				}
			}

			// Start gRPC server in background.
			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if d.Redis != nil {
				d.Sender.Start(context.Background())
			} else {
				logger.Info("no redis configured, outgoing queue sender disabled")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Sender.Stop()
			d.Server.Stop(ctx)
			if d.Bridge != nil {
				d.Bridge.Stop()
			}
			if d.Redis != nil {
				_ = d.Redis.Close()
			}
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
