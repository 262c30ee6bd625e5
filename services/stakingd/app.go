package stakingd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakegov/core"
	"stakegov/core/events"
	"stakegov/ledger"
	"stakegov/native/common"
	"stakegov/native/conviction"
	"stakegov/native/delegation"
	"stakegov/native/governance"
	"stakegov/native/staking"
	"stakegov/observability"
	"stakegov/services/stakingd/config"
	"stakegov/services/stakingd/server"
	"stakegov/storage/cache"
	"stakegov/storage/journal"
	"stakegov/storage/memstore"
	"stakegov/storage/sqlstore"
)

// backend is the persistence surface every engine shares.
type backend interface {
	conviction.State
	delegation.State
	staking.State
	staking.Directory
	governance.State
}

type pinger interface {
	Ping(ctx context.Context) error
}

// App holds the wired daemon. Close releases every resource opened by Build.
type App struct {
	cfg         config.Config
	logger      *slog.Logger
	coordinator *core.Coordinator
	handler     http.Handler
	finalizer   *Finalizer
	closers     []func() error
}

// Build opens the configured store, cache, journal and ledger client and wires
// the engines behind a coordinator. A non-nil client replaces the JSON-RPC
// ledger connection.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, client ledger.Client) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{cfg: cfg, logger: logger}
	if err := app.wire(ctx, client); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, client ledger.Client) error {
	cfg := a.cfg
	metrics := observability.Engine()

	store, err := a.openStore(cfg.Database)
	if err != nil {
		return err
	}
	cacheStore, err := a.openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	reconcile, err := a.openJournal(cfg.Journal.Path)
	if err != nil {
		return err
	}
	if client == nil {
		rpcClient, err := ledger.DialRPC(ctx, ledger.RPCConfig{
			Endpoint: cfg.Ledger.Endpoint,
			Timeout:  cfg.Ledger.Timeout.Duration,
			Headers:  cfg.Ledger.Headers,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { rpcClient.Close(); return nil })
		client = rpcClient
	}
	instrumented := ledger.Instrument(client, metrics)

	policy, err := cfg.GovernancePolicy()
	if err != nil {
		return err
	}
	reporter := &common.Reporter{Logger: a.logger, Journal: reconcile, Metrics: metrics}
	pauses := common.NewStaticPauses(cfg.PausedModules)
	emitter := observability.CountingEmitter{
		Next:    events.LogEmitter{Logger: a.logger},
		Metrics: observability.Events(),
	}

	locks := conviction.NewManager(store, instrumented)
	locks.SetEmitter(emitter)

	stakingEngine := staking.NewEngine(store, store, instrumented, cfg.StakingParams())
	stakingEngine.SetRewardsConfig(cfg.RewardParams())
	stakingEngine.SetReporter(reporter)
	stakingEngine.SetPauses(pauses)
	stakingEngine.SetEmitter(emitter)

	delegationEngine := delegation.NewEngine(store, locks, instrumented)
	delegationEngine.SetReporter(reporter)
	delegationEngine.SetPauses(pauses)
	delegationEngine.SetEmitter(emitter)

	governanceEngine := governance.NewEngine(store, locks, instrumented, policy)
	governanceEngine.SetReporter(reporter)
	governanceEngine.SetPauses(pauses)
	governanceEngine.SetEmitter(emitter)

	a.coordinator = core.NewCoordinator(core.Engines{
		Staking:    stakingEngine,
		Delegation: delegationEngine,
		Governance: governanceEngine,
		Locks:      locks,
	}, cacheStore, cfg.TTLs())
	a.coordinator.SetLogger(a.logger)
	a.coordinator.SetMetrics(metrics)

	api := server.New(server.Config{
		Coordinator: a.coordinator,
		Metrics:     metrics,
		Logger:      a.logger,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Ready: readiness(store, cacheStore),
	})
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", otelhttp.NewHandler(api.Handler(), "stakingd"))
	a.handler = mux

	if interval := cfg.Governance.FinalizeInterval.Duration; interval > 0 {
		a.finalizer = NewFinalizer(a.coordinator, interval, a.logger)
	}
	return nil
}

func (a *App) openStore(cfg config.DatabaseConfig) (backend, error) {
	if cfg.Driver == config.DatabaseMemory {
		return memstore.New(), nil
	}
	store, err := sqlstore.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *App) openCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Driver {
	case config.CacheNone:
		return nil, nil
	case config.CacheRedis:
		redis, err := cache.NewRedis(ctx, cache.RedisConfig{
			Address:  cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redis.Close)
		return redis, nil
	default:
		memory, err := cache.NewMemory(cfg.Size)
		if err != nil {
			return nil, err
		}
		return memory, nil
	}
}

func (a *App) openJournal(path string) (*journal.Journal, error) {
	var (
		j   *journal.Journal
		err error
	)
	if strings.TrimSpace(path) == "" {
		j, err = journal.OpenMemory()
	} else {
		j, err = journal.Open(path)
	}
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, j.Close)
	return j, nil
}

func readiness(store backend, cacheStore cache.Store) func(*http.Request) error {
	return func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if p, ok := store.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
		}
		if p, ok := cacheStore.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("cache: %w", err)
			}
		}
		return nil
	}
}

// Coordinator exposes the wired coordinator.
func (a *App) Coordinator() *core.Coordinator { return a.coordinator }

// Handler exposes the root HTTP handler including /metrics.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP and the finalizer sweep until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         a.cfg.Listen,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serve(ctx, httpServer, a.finalizer, a.logger)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
