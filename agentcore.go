// Package agentcore assembles the orchestration core: session store,
// agent registry, policy engine, tool server, scheduler, and the
// transport server, constructed once and wired explicitly.
package agentcore

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/agentcore-dev/agentcore/internal/scheduler"
	"github.com/agentcore-dev/agentcore/internal/stream"
	"github.com/agentcore-dev/agentcore/pkg/a2a"
	"github.com/agentcore-dev/agentcore/pkg/config"
	"github.com/agentcore-dev/agentcore/pkg/llm"
	"github.com/agentcore-dev/agentcore/pkg/observability"
	"github.com/agentcore-dev/agentcore/pkg/policy"
	"github.com/agentcore-dev/agentcore/pkg/registry"
	"github.com/agentcore-dev/agentcore/pkg/session"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
	"github.com/agentcore-dev/agentcore/pkg/toolserver"
)

// App is the assembled orchestration core.
type App struct {
	Config    *config.Config
	Store     *session.Store
	Registry  *registry.Registry
	Engine    *policy.Engine
	Tools     *toolserver.Server
	Scheduler *scheduler.Scheduler
	Logger    telemetry.Logger

	httpServer  *http.Server
	maintenance *cron.Cron
	redisClient *redis.Client
	auditSink   *policy.FirestoreSink
}

// New constructs the core from configuration. Subsystems are built
// leaves-first and injected; nothing is global.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := telemetry.NewStdLogger()
	observability.InitMetrics()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
	}

	var backend session.Backend
	if redisClient != nil {
		backend = session.NewRedisBackendFromClient(redisClient, session.RedisOptions{
			TTL:           cfg.SessionTTL(),
			EventCapacity: cfg.Session.EventQueueCapacity,
		})
	} else {
		backend = session.NewMemoryBackend()
	}
	store := session.NewStore(backend, session.Options{
		TTL:                cfg.SessionTTL(),
		IdleTimeout:        cfg.IdleTimeout(),
		EventQueueCapacity: cfg.Session.EventQueueCapacity,
		Logger:             logger,
	})

	var mirror registry.Mirror
	if redisClient != nil {
		mirror = registry.NewRedisMirror(redisClient, cfg.HeartbeatTimeout())
	}
	reg := registry.New(registry.Options{
		HeartbeatTimeout: cfg.HeartbeatTimeout(),
		Mirror:           mirror,
		Logger:           logger,
	})

	var counters policy.RateCounters
	if redisClient != nil {
		counters = policy.NewRedisRateCounters(redisClient, time.Hour)
	} else {
		counters = policy.NewMemoryRateCounters(time.Hour)
	}

	var auditSink *policy.FirestoreSink
	var sink policy.Sink
	if cfg.Audit.FirestoreProject != "" {
		fs, err := policy.NewFirestoreSink(ctx, cfg.Audit.FirestoreProject, cfg.Audit.FirestoreCollection, "")
		if err != nil {
			return nil, fmt.Errorf("audit sink: %w", err)
		}
		auditSink = fs
		sink = fs
	}
	trail := policy.NewTrail(cfg.Audit.MaxEntries, sink, logger)

	sources := []policy.Source{}
	if cfg.Policy.Path != "" {
		sources = append(sources, policy.FileSource{Path: cfg.Policy.Path})
	}
	sources = append(sources, policy.StaticSource{
		Doc:        policy.DefaultDocument(cfg.Policy.Default),
		SourceName: "defaults",
	})
	engine, err := policy.NewEngine(ctx, policy.EngineOptions{
		Sources:  sources,
		Counters: counters,
		Trail:    trail,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	planner, err := llm.NewPlanner(ctx, cfg.Planner.Provider, cfg.Planner.Model, cfg.Planner.APIKey)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	tools := toolserver.NewServer(toolserver.ServerOptions{
		Authenticator: toolserver.NewTokenAuthenticator(),
		Engine:        engine,
		Logger:        logger,
		Metrics:       toolMetrics{},
	})

	sched := scheduler.New(scheduler.Options{
		Registry: reg,
		Engine:   engine,
		Client: a2a.NewClient(a2a.ClientOptions{
			MaxRetries:  cfg.AgentClient.MaxRetries,
			BackoffBase: time.Duration(cfg.AgentClient.BackoffBaseMS) * time.Millisecond,
			BackoffCap:  time.Duration(cfg.AgentClient.BackoffCapMS) * time.Millisecond,
			Logger:      logger,
		}),
		Planner:             planner,
		Store:               store,
		Logger:              logger,
		ParallelMaxInFlight: cfg.Scheduler.ParallelMaxInFlight,
		ProcessMaxInFlight:  cfg.Scheduler.ProcessMaxInFlight,
		QueueOverflow:       cfg.Scheduler.QueueOverflow,
		DefaultTimeout:      cfg.DefaultTimeout(),
	})

	app := &App{
		Config:      cfg,
		Store:       store,
		Registry:    reg,
		Engine:      engine,
		Tools:       tools,
		Scheduler:   sched,
		Logger:      logger,
		redisClient: redisClient,
		auditSink:   auditSink,
	}
	app.buildHTTPServer()
	app.buildMaintenance()
	return app, nil
}

func (a *App) buildHTTPServer() {
	checker := observability.NewHealthChecker()
	checker.RegisterCheck(observability.PingCheck())
	if a.redisClient != nil {
		client := a.redisClient
		checker.RegisterCheck(&observability.HealthCheck{
			Name:     "redis",
			Critical: true,
			CheckFunc: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
		})
	}

	transport := stream.New(stream.Options{
		Store:     a.Store,
		Registry:  a.Registry,
		Scheduler: a.Scheduler,
		Engine:    a.Engine,
		Tools:     a.Tools,
		Checker:   checker,
		Logger:    a.Logger,
	})
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.HTTPPort),
		Handler:      transport.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming transports manage their own lifetimes
		IdleTimeout:  120 * time.Second,
	}
}

// buildMaintenance schedules the background jobs: session TTL sweep,
// stale-agent reaping, and audit retention pruning.
func (a *App) buildMaintenance() {
	c := cron.New()
	sweepSpec := fmt.Sprintf("@every %ds", a.Config.Session.SweepSeconds)

	_, _ = c.AddFunc(sweepSpec, func() {
		ctx := context.Background()
		if removed := a.Store.Sweep(ctx); removed > 0 {
			a.Logger.Info(ctx, "session sweep", "removed", removed)
		}
	})
	_, _ = c.AddFunc("@every 60s", func() {
		ctx := context.Background()
		if reaped := a.Registry.Reap(ctx); reaped > 0 {
			a.Logger.Info(ctx, "registry reap", "removed", reaped)
		}
	})
	_, _ = c.AddFunc("@every 10m", func() {
		a.Engine.Trail().Prune(24 * time.Hour)
	})
	a.maintenance = c
}

// Run starts the core and blocks until the context is cancelled or a
// termination signal arrives. Shutdown is orderly: stop accepting,
// drain in-flight requests, then release resources.
func (a *App) Run(ctx context.Context) error {
	if err := telemetry.InitTracingFromEnv(); err != nil {
		a.Logger.Warn(ctx, "tracing init failed", "error", err)
	}
	a.maintenance.Start()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info(ctx, "transport server listening", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if a.Config.Policy.ReloadsOnSignal() {
		hupCh := make(chan os.Signal, 1)
		signal.Notify(hupCh, syscall.SIGHUP)
		defer signal.Stop(hupCh)
		go func() {
			for range hupCh {
				if err := a.Engine.Reload(context.Background()); err != nil {
					a.Logger.Error(context.Background(), "policy reload on SIGHUP failed", "error", err)
				}
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	case <-ctx.Done():
	}
	return a.Shutdown()
}

// Shutdown drains and stops everything.
func (a *App) Shutdown() error {
	a.Logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = err
	}
	<-a.maintenance.Stop().Done()
	if err := a.Store.Shutdown(); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.auditSink != nil {
		_ = a.auditSink.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if err := telemetry.ShutdownTracing(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Run loads configuration and runs the core until interrupted.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

// toolMetrics adapts the observability package to the tool server's
// observer interface.
type toolMetrics struct{}

func (toolMetrics) ToolCall(tool string, status toolserver.ResultStatus, duration time.Duration) {
	observability.RecordToolCall(tool, string(status), duration)
}
