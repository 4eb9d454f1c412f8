package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vault-guard/internal/alerting"
	"vault-guard/internal/api"
	"vault-guard/internal/config"
	"vault-guard/internal/fetcher"
	"vault-guard/internal/registry"
	"vault-guard/internal/risk"
	"vault-guard/internal/scheduler"
	"vault-guard/internal/service"
	"vault-guard/internal/storage"
	"vault-guard/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output; defaults to stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// runtime holds everything a command needs for one invocation.
type runtime struct {
	service    *service.Service
	store      *storage.Store
	dispatcher *alerting.Dispatcher
	feed       *alerting.Feed
	closers    []func()
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (a *App) newEngine() (*risk.Engine, *risk.ActivityWindow, func(), error) {
	reg := registry.New(a.Config.RegistryOptions())
	engine, err := risk.NewEngine(reg, a.Config.EngineOptions(), a.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	var window *risk.ActivityWindow
	if a.Config.Engine.TrackActivity {
		window = risk.NewActivityWindow(a.Config.Engine.ActivityWindow, nil)
		engine = engine.WithActivity(window)
	}
	closer := func() {}
	if a.Config.Ethereum.RPCURL != "" {
		balances := fetcher.NewBalances(fetcher.BalanceOptions{
			RPCURL:  a.Config.Ethereum.RPCURL,
			Timeout: a.Config.Ethereum.RequestTimeout,
		}, a.Logger)
		engine = engine.WithBalances(balances)
		closer = balances.Close
	}
	return engine, window, closer, nil
}

// newSinks builds the enabled notification channels and the functions that
// release them.
func (a *App) newSinks() ([]alerting.Notifier, []func()) {
	var sinks []alerting.Notifier
	var closers []func()

	if a.Config.ChannelEnabled("log") {
		sinks = append(sinks, alerting.NewLogNotifier(a.Logger))
	}
	if a.Config.ChannelEnabled("telegram") {
		cfg := a.Config.Alerting.Telegram
		sinks = append(sinks, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Alerting.SinkTimeout, a.Logger))
	}
	if a.Config.ChannelEnabled("redis") {
		cfg := a.Config.Alerting.Redis
		redis := alerting.NewRedisNotifier(alerting.RedisOptions{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			Channel:  cfg.Channel,
		})
		sinks = append(sinks, redis)
		closers = append(closers, func() {
			if err := redis.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close redis notifier")
			}
		})
	}
	return sinks, closers
}

func (a *App) newDispatcher() (*alerting.Dispatcher, []func()) {
	if !a.Config.Alerting.Enabled {
		return nil, nil
	}
	sinks, closers := a.newSinks()
	if len(sinks) == 0 {
		return nil, closers
	}
	d := alerting.NewDispatcher(alerting.DispatcherOptions{
		BufferSize:  a.Config.Alerting.BufferSize,
		MinPriority: alerting.ParsePriority(a.Config.Alerting.MinPriority),
		SinkTimeout: a.Config.Alerting.SinkTimeout,
	}, a.Logger, sinks...)
	return d, closers
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	if a.Config.Database.AutoMigrate {
		if err := storage.Migrate(ctx, a.Config.Database.DSN, "up"); err != nil {
			return nil, nil, err
		}
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newRuntime opens storage, notification sinks and the vault service. The
// dispatcher is started on ctx and drained by close.
func (a *App) newRuntime(ctx context.Context, sched *scheduler.Scheduler) (*runtime, error) {
	rt := &runtime{}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		rt.closers = append(rt.closers, closeStore)
	}
	rt.store = store

	engine, window, closeEngine, err := a.newEngine()
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.closers = append(rt.closers, closeEngine)

	dispatcher, sinkClosers := a.newDispatcher()
	rt.closers = append(rt.closers, sinkClosers...)
	if dispatcher != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			dispatcher.Run(ctx)
		}()
		rt.closers = append(rt.closers, func() {
			dispatcher.Close()
			<-done
		})
		rt.dispatcher = dispatcher
	}

	rt.feed = alerting.NewFeed(a.Config.Alerting.FeedSize)

	deps := service.Deps{
		Engine:    engine,
		Feed:      rt.feed,
		Scheduler: sched,
		Activity:  window,
	}
	if dispatcher != nil {
		deps.Publisher = dispatcher
	}
	if store != nil {
		deps.Vaults = store
		deps.Assessments = store
		deps.Locker = store
	}

	rt.service = service.New(deps, service.Options{
		Defaults:       a.Config.DefaultSettings(),
		StrictExecute:  a.Config.Timelock.StrictExecute,
		MaxFreezeHours: a.Config.Timelock.MaxFreezeHours,
		LockKey:        a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger)
	return rt, nil
}

// withService runs fn against a freshly wired service and tears it down.
func (a *App) withService(ctx context.Context, fn func(*service.Service) error) error {
	rt, err := a.newRuntime(ctx, nil)
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(rt.service)
}

// Run executes the long-running vault service: HTTP API plus polling sweep.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	rt, err := a.newRuntime(ctx, sched)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}

	var health api.Pinger
	if rt.store != nil {
		health = rt.store
	}
	router := api.NewRouter(rt.service, health, a.Logger)
	server := api.NewServer(a.Config.Server, router, a.Logger)

	a.Logger.Info().
		Str("version", version.String()).
		Str("addr", a.Config.Server.Addr).
		Dur("interval", sched.Interval()).
		Msg("starting vault service")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.service.Run(gctx)
	})
	g.Go(func() error {
		return server.Run(gctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("vault service stopped")
	return nil
}

// Migrate applies goose migrations against the configured database.
func (a *App) Migrate(ctx context.Context, command string, args ...string) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database.dsn not configured; cannot migrate")
	}
	if err := storage.Migrate(ctx, a.Config.Database.DSN, command, args...); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	a.Logger.Info().Str("command", command).Msg("migration finished")
	return nil
}

// ExportOptions hold parameters for exporting the assessment audit trail.
type ExportOptions struct {
	Account   string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Account string
	Limit   int
}
