// Package control wires the image matching service together and manages its
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/imagematch/internal/api"
	"github.com/vietddude/imagematch/internal/core/config"
	"github.com/vietddude/imagematch/internal/core/worker"
	"github.com/vietddude/imagematch/internal/infra/genai/credential"
	"github.com/vietddude/imagematch/internal/infra/genai/gemini"
	"github.com/vietddude/imagematch/internal/infra/genai/routing"
	"github.com/vietddude/imagematch/internal/infra/genai/usage"
	redisclient "github.com/vietddude/imagematch/internal/infra/redis"
	"github.com/vietddude/imagematch/internal/infra/storage"
	"github.com/vietddude/imagematch/internal/infra/storage/memory"
	"github.com/vietddude/imagematch/internal/infra/storage/postgres"
	"github.com/vietddude/imagematch/internal/matching/batch"
	"github.com/vietddude/imagematch/internal/matching/health"
)

// App owns every long-lived component of the service.
type App struct {
	cfg        *config.AppConfig
	configPath string

	pool         *credential.Pool
	reporter     *health.Reporter
	orchestrator *batch.Orchestrator
	results      storage.SearchResultRepository
	monitor      *health.Monitor
	pruner       *worker.Pruner
	server       *api.Server

	db          *postgres.DB
	redisClient *redisclient.Client

	mu   sync.Mutex
	keys []string

	wg  sync.WaitGroup
	log *slog.Logger
}

// Option configures an App.
type Option func(*options)

type options struct {
	configPath string
	invoker    gemini.Invoker
}

// WithConfigWatch reloads the API keys whenever the file at path changes.
func WithConfigWatch(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithInvoker replaces the Gemini client.
func WithInvoker(inv gemini.Invoker) Option {
	return func(o *options) {
		o.invoker = inv
	}
}

// NewApp creates the service from cfg. It fails when no API key is
// configured or a configured database cannot be reached.
func NewApp(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// 1. Key pool
	pool := credential.NewPool(credential.WithFailureThreshold(cfg.GenAI.FailureThreshold))
	if err := pool.Initialize(cfg.GenAI.APIKeys); err != nil {
		return nil, fmt.Errorf("%w: set genai.api_keys or %s", err, config.APIKeysEnv)
	}
	policy := routing.NewPolicy(pool)

	app := &App{
		cfg:        cfg,
		configPath: o.configPath,
		pool:       pool,
		keys:       cfg.GenAI.APIKeys,
		log:        slog.Default(),
	}

	// 2. Usage ledger
	var ledger usage.Ledger = usage.NewMemoryLedger()
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, counting usage in memory", "error", err)
		} else {
			app.redisClient = client
			ledger = redisclient.NewUsageLedger(client)
			slog.Info("Using Redis usage ledger")
		}
	}

	// 3. Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			app.closeRedis()
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			app.closeRedis()
			return nil, err
		}
		app.db = db
		app.results = postgres.NewResultRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		app.results = memory.NewResultRepo()
		slog.Info("Using Memory storage")
	}

	if cfg.Archive.Retention > 0 {
		app.pruner = worker.NewPruner(cfg.Archive.Retention, app.results)
	}

	// 4. Rating
	invoker := o.invoker
	if invoker == nil {
		invoker = gemini.NewClient(cfg.GenAI.Endpoint, cfg.GenAI.Model, cfg.GenAI.RequestTimeout)
	}
	app.orchestrator = batch.NewOrchestrator(pool, policy, invoker,
		batch.WithConcurrency(cfg.GenAI.Concurrency),
		batch.WithCallTimeout(cfg.GenAI.CallTimeout),
		batch.WithLedger(ledger),
	)

	// 5. Health
	app.reporter = health.NewReporter(pool, policy, ledger)
	if cfg.Monitoring.Enabled {
		app.monitor = health.NewMonitor(app.reporter, health.MonitorConfig{
			Interval:          cfg.Monitoring.Interval,
			AutoReset:         cfg.Monitoring.AutoReset,
			AutoResetInterval: cfg.Monitoring.AutoResetInterval,
		})
	}

	// 6. HTTP API
	var serverOpts []api.Option
	if app.db != nil {
		serverOpts = append(serverOpts, api.WithDBHealth(app.db.Health))
	}
	app.server = api.NewServer(api.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		MaxBodyMB:   cfg.Server.MaxBodyMB,
	}, app.reporter, app.orchestrator, app.results, serverOpts...)

	return app, nil
}

// Server returns the HTTP API server.
func (a *App) Server() *api.Server {
	return a.server
}

// Reporter returns the key pool reporter.
func (a *App) Reporter() *health.Reporter {
	return a.reporter
}

// Orchestrator returns the batch orchestrator.
func (a *App) Orchestrator() *batch.Orchestrator {
	return a.orchestrator
}

// Start launches the HTTP server and background workers. It does not block.
func (a *App) Start(ctx context.Context) error {
	a.goRun(func() {
		if err := a.server.Start(); err != nil {
			a.log.Error("HTTP server failed", "error", err)
		}
	})

	if a.monitor != nil {
		a.goRun(func() { a.monitor.Run(ctx) })
	}

	if a.pruner != nil {
		a.goRun(func() { a.pruner.Start(ctx) })
	}

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	if a.configPath != "" {
		a.goRun(func() {
			if err := config.Watch(ctx, a.configPath, a.applyConfig); err != nil {
				a.log.Warn("Config watch stopped", "path", a.configPath, "error", err)
			}
		})
	}

	a.log.Info("Service started",
		"port", a.cfg.Server.Port,
		"keys", a.pool.Size(),
		"model", a.cfg.GenAI.Model,
	)
	return nil
}

// applyConfig reloads the key pool when the configured keys changed. Other
// settings need a restart.
func (a *App) applyConfig(cfg *config.AppConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !config.KeysChanged(a.keys, cfg.GenAI.APIKeys) {
		return
	}
	if err := a.reporter.Reload(cfg.GenAI.APIKeys); err != nil {
		a.log.Error("Failed to reload API keys, keeping previous keys", "error", err)
		return
	}
	a.keys = cfg.GenAI.APIKeys
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Stop shuts the server down, waits for background workers to exit and
// releases connections. ctx must be cancelled by the caller for workers
// started with it to return.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping service...")

	err := a.server.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("Timed out waiting for background workers")
	}

	a.closeRedis()
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil {
			a.log.Warn("Failed to close database", "error", cerr)
		}
	}
	return err
}

func (a *App) closeRedis() {
	if a.redisClient == nil {
		return
	}
	if err := a.redisClient.Close(); err != nil {
		a.log.Warn("Failed to close Redis", "error", err)
	}
}
