package daemon

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"time"

	"github.com/wacrm/wacrm/internal/api"
	"github.com/wacrm/wacrm/internal/auth"
	"github.com/wacrm/wacrm/internal/bot"
	"github.com/wacrm/wacrm/internal/broadcast"
	"github.com/wacrm/wacrm/internal/bus"
	"github.com/wacrm/wacrm/internal/config"
	"github.com/wacrm/wacrm/internal/inbox"
	"github.com/wacrm/wacrm/internal/lock"
	"github.com/wacrm/wacrm/internal/logging"
	"github.com/wacrm/wacrm/internal/outbox"
	"github.com/wacrm/wacrm/internal/report"
	"github.com/wacrm/wacrm/internal/status"
	"github.com/wacrm/wacrm/internal/storage"
	"github.com/wacrm/wacrm/internal/store"
	intsync "github.com/wacrm/wacrm/internal/sync"
	"github.com/wacrm/wacrm/internal/wa"
	"github.com/wacrm/wacrm/internal/workspace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved workspace configuration passed to the fx module.
type Params struct {
	WorkspaceName string
	HTTPAddr      string // optional override; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideAdapter,
			provideSyncEngine,
			provideReconciler,
			provideInboxState,
			provideDispatcher,
			provideChannel,
			provideSender,
			provideResponder,
			provideBroadcastRunner,
			provideAuthService,
			provideReportService,
			provideMediaStore,
			provideAPIServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(workspace.LogPath(p.WorkspaceName), p.WorkspaceName)
}

// provideConfig loads the global config, minting and persisting a JWT secret
// on first run so tokens survive daemon restarts.
func provideConfig(logger *zap.Logger) (*config.Config, error) {
	path := workspace.ConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = config.Default()
	}
	if cfg.JWTSecret == "" {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		cfg.JWTSecret = hex.EncodeToString(raw)
		if err := config.Save(path, cfg); err != nil {
			return nil, err
		}
		logger.Info("generated signing secret", zap.String("config", path))
	}
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := workspace.EnsureDir(p.WorkspaceName); err != nil {
		return nil, err
	}
	logger.Info("acquiring workspace lock", zap.String("workspace", p.WorkspaceName))
	l, err := lock.Acquire(workspace.Dir(p.WorkspaceName))
	if err != nil {
		return nil, err
	}
	logger.Info("workspace lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := workspace.AppDBPath(p.WorkspaceName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideAdapter(p Params, b *bus.Bus, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), p.WorkspaceName, b, logger)
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideReconciler(db *store.DB, b *bus.Bus, adapter *wa.Adapter, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, b, adapter, logger)
}

func provideInboxState() *inbox.State {
	return inbox.NewState()
}

func provideDispatcher(state *inbox.State, db *store.DB, b *bus.Bus, logger *zap.Logger) *inbox.Dispatcher {
	return inbox.NewDispatcher(state, &inbox.StoreRemote{DB: db}, &inbox.BusNotifier{Bus: b}, b, logger)
}

func provideChannel(state *inbox.State, db *store.DB, b *bus.Bus, logger *zap.Logger) *inbox.Channel {
	return inbox.NewChannel(state, db, b, logger)
}

func provideSender(db *store.DB, adapter *wa.Adapter, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, outbox.NewAdapterSender(adapter), b, logger)
}

func provideResponder(db *store.DB, channel *inbox.Channel, b *bus.Bus, logger *zap.Logger) *bot.Responder {
	return bot.NewResponder(db, channel, b, logger)
}

func provideBroadcastRunner(db *store.DB, b *bus.Bus, logger *zap.Logger) *broadcast.Runner {
	return broadcast.NewRunner(db, b, logger)
}

func provideAuthService(cfg *config.Config) *auth.Service {
	return auth.NewService(cfg.JWTSecret, 24*time.Hour)
}

func provideReportService(db *store.DB) *report.Service {
	return report.NewService(db)
}

// provideMediaStore is nil when no bucket is configured; media endpoints then
// report 503 and attachment sends must carry externally hosted URLs.
func provideMediaStore(cfg *config.Config, logger *zap.Logger) (*storage.MediaStore, error) {
	if cfg.Media.Bucket == "" {
		logger.Info("media storage not configured")
		return nil, nil
	}
	return storage.NewMediaStore(context.Background(), cfg.Media, logger)
}

func provideAPIServer(
	db *store.DB,
	b *bus.Bus,
	logger *zap.Logger,
	authSvc *auth.Service,
	state *inbox.State,
	dispatcher *inbox.Dispatcher,
	channel *inbox.Channel,
	runner *broadcast.Runner,
	machine *status.Machine,
	adapter *wa.Adapter,
	media *storage.MediaStore,
	reports *report.Service,
) *api.Server {
	return api.NewServer(api.Deps{
		DB:         db,
		Bus:        b,
		Logger:     logger,
		Auth:       authSvc,
		State:      state,
		Dispatcher: dispatcher,
		Channel:    channel,
		Broadcasts: runner,
		Machine:    machine,
		Device:     adapter,
		Media:      media,
		Reports:    reports,
	})
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	adapter *wa.Adapter,
	engine *intsync.Engine,
	reconciler *intsync.Reconciler,
	sender *outbox.Sender,
	channel *inbox.Channel,
	responder *bot.Responder,
	runner *broadcast.Runner,
	media *storage.MediaStore,
	machine *status.Machine,
	b *bus.Bus,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Sync engine subscribes to wa.* bus events; the reconciler
			// tracks checkpoints and the device account row.
			engine.Start(context.Background())
			reconciler.Start(context.Background())

			// Ack listeners reconcile placeholders and broadcast counters.
			channel.Start(context.Background())
			responder.Start(context.Background())
			runner.Start(context.Background())

			handler := wa.NewEventHandler(b, machine, logger)
			adapter.RegisterEventHandler(handler.Handle)

			if media != nil {
				if err := media.EnsureBucket(context.Background()); err != nil {
					logger.Warn("media bucket check failed", zap.Error(err))
				}
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			sender.Start(context.Background())

			if adapter.IsLoggedIn() {
				_ = machine.Transition(status.Connecting)
				go func() {
					if err := adapter.Connect(); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
						_ = machine.Transition(status.Error)
					}
				}()
			} else {
				logger.Info("no credentials found, auth required")
				_ = machine.Transition(status.AuthRequired)
				if _, err := adapter.StartQRAuth(context.Background()); err != nil {
					logger.Error("qr auth failed to start", zap.Error(err))
				}
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			sender.Stop()
			runner.Stop()
			responder.Stop()
			channel.Stop()
			reconciler.Stop()
			engine.Stop()
			adapter.Disconnect()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
