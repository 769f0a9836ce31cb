package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/canopy-network/backlog-autoscaler/pkg/backlog"
	"github.com/canopy-network/backlog-autoscaler/pkg/config"
	"github.com/canopy-network/backlog-autoscaler/pkg/logging"
	"github.com/canopy-network/backlog-autoscaler/pkg/orchestrator"
	"github.com/canopy-network/backlog-autoscaler/pkg/redis"
	"github.com/canopy-network/backlog-autoscaler/pkg/retry"
	"github.com/canopy-network/backlog-autoscaler/pkg/scaling"
)

// QueueStore is the connection behind the backlog sampler.
type QueueStore interface {
	Health(ctx context.Context) error
	Close() error
}

var _ QueueStore = (*redis.Client)(nil)

// App sizes every configured worker pool to its queue backlog, once per Cron tick.
type App struct {
	Config *config.Config

	// Pools own their state for the process lifetime.
	Pools  []*scaling.Pool
	Engine *scaling.Engine

	Orchestrator orchestrator.Orchestrator
	// Queue is the backlog store connection; nil when the sampler was injected.
	Queue QueueStore

	// Workers evaluates pools; its size is MAX_CONCURRENT_POOLS (1 = sequential).
	Workers pond.Pool

	// Cron is the scheduler that triggers a sweep over all pools, according to CronSpec.
	Cron     *cron.Cron
	CronSpec string

	// Status holds the last decision per pool, keyed by group/name.
	Status *xsync.Map[string, scaling.Decision]

	Logger *zap.Logger

	// Server is the HTTP server that serves health, status and metrics.
	Server *http.Server

	ready  atomic.Bool
	closed atomic.Bool
	now   func() time.Time
}

// Initialize connects to the queue store and the orchestrator and builds the App.
// Connectivity is retried a few times; failure is returned and is fatal for the caller.
func Initialize(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	startup := retry.StartupConfig(cfg.StartupRetries)

	var rc *redis.Client
	err := retry.Do(ctx, startup, logger, "redis connect", func(ctx context.Context) error {
		var err error
		rc, err = redis.NewClient(ctx, redis.Options{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			ScanCount: cfg.Redis.ScanCount,
		}, logger)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("startup connectivity: %w", err)
	}

	orch, err := newOrchestrator(cfg.Orchestrator, logger)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	err = retry.Do(ctx, startup, logger, "orchestrator ping", func(ctx context.Context) error {
		return orch.Ping(ctx)
	})
	if err != nil {
		_ = rc.Close()
		_ = orch.Close()
		return nil, fmt.Errorf("startup connectivity: %w", err)
	}

	engine := scaling.NewEngine(
		backlog.NewSampler(rc, cfg.Redis.SampleTimeout, logger),
		scaling.NewReplicaInspector(orch, logger),
		scaling.NewScaleExecutor(orch, logger),
		cfg.Orchestrator.ErrorPolicy,
		logger,
	)

	app := New(cfg, engine, orch, logger)
	app.Queue = rc

	if err := app.SetupScheduler(ctx, logging.NewCronLogger(logger), app.CronSpec); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

// New builds an App around an already wired engine.
func New(cfg *config.Config, engine *scaling.Engine, orch orchestrator.Orchestrator, logger *zap.Logger) *App {
	pools := make([]*scaling.Pool, 0, len(cfg.Pools))
	for _, pc := range cfg.Pools {
		pools = append(pools, scaling.NewPool(pc))
	}
	workers := cfg.MaxConcurrentPools
	if workers < 1 {
		workers = 1
	}
	return &App{
		Config:       cfg,
		Pools:        pools,
		Engine:       engine,
		Orchestrator: orch,
		Workers:      pond.NewPool(workers),
		CronSpec:     fmt.Sprintf("@every %s", cfg.PollInterval),
		Status:       xsync.NewMap[string, scaling.Decision](),
		Logger:       logger,
		now:          time.Now,
	}
}

func newOrchestrator(cfg config.OrchestratorConfig, logger *zap.Logger) (orchestrator.Orchestrator, error) {
	switch cfg.Kind {
	case config.OrchestratorCompose:
		return orchestrator.NewCompose(orchestrator.ComposeConfig{
			DockerBin:   cfg.DockerBin,
			ComposeFile: cfg.ComposeFile,
			Timeout:     cfg.Timeout,
		}, nil, logger), nil
	case config.OrchestratorKubernetes:
		return orchestrator.NewKubernetesFromConfig(orchestrator.KubernetesConfig{
			Namespace:    cfg.Namespace,
			ServiceLabel: cfg.ServiceLabel,
			Kubeconfig:   cfg.Kubeconfig,
		}, logger)
	case config.OrchestratorFake:
		return orchestrator.NewFake(logger), nil
	default:
		return nil, fmt.Errorf("unknown orchestrator %q", cfg.Kind)
	}
}

// SetupScheduler sets up the cron scheduler. Sweeps never overlap: a tick that fires
// while the previous sweep still runs is skipped.
func (a *App) SetupScheduler(ctx context.Context, logger cron.Logger, cronSpec string) error {
	a.Cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := a.Cron.AddFunc(cronSpec, func() {
		a.Reconcile(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", cronSpec, err)
	}
	return nil
}

// StartCron starts the cron scheduler.
func (a *App) StartCron() {
	a.Cron.Start()
	a.Logger.Info("[controller] Cron started", zap.String("cronSpec", a.CronSpec))
}

// StopCron stops the cron scheduler and waits for a running sweep.
func (a *App) StopCron() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
}

// LogPools writes one startup line per pool.
func (a *App) LogPools() {
	for _, p := range a.Pools {
		c := p.Config
		a.Logger.Info("[controller] monitoring pool",
			zap.String("pool", c.Name),
			zap.String("group", c.Group),
			zap.Strings("queue_patterns", c.QueuePatterns),
			zap.Int("min", c.MinReplicas),
			zap.Int("max", c.MaxReplicas),
			zap.Int("sma_window", c.SMAWindow),
			zap.Float64("up_threshold", c.UpThreshold),
			zap.Float64("down_threshold", c.DownThreshold),
			zap.Float64("rate_down_threshold", c.RateDownThreshold),
			zap.Duration("cooldown_up", c.CooldownUp),
			zap.Duration("cooldown_down", c.CooldownDown),
			zap.Duration("min_lifetime", c.MinLifetime),
			zap.Int("step_up", c.StepUp),
			zap.Int("step_down", c.StepDown),
		)
	}
}

// Reconcile runs one sweep over all pools. A failure in one pool is logged and does
// not affect the others.
func (a *App) Reconcile(ctx context.Context) {
	start := time.Now()

	group := a.Workers.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, pool := range a.Pools {
		group.Submit(func() {
			a.evaluate(groupCtx, pool)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		a.Logger.Warn("[controller] sweep incomplete", zap.Error(err))
	}

	a.ready.Store(true)
	a.Logger.Debug("[controller] sweep finished",
		zap.Int("pools", len(a.Pools)),
		zap.Duration("elapsed", time.Since(start)))
}

// ReconcileOnce is a convenience wrapper for an immediate sweep before the first tick.
func (a *App) ReconcileOnce(ctx context.Context) {
	a.Reconcile(ctx)
}

func (a *App) evaluate(ctx context.Context, pool *scaling.Pool) (d scaling.Decision) {
	key := statusKey(pool.Config)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			a.Logger.Error("[controller] pool evaluation failed",
				zap.String("pool", pool.Config.Name),
				zap.Error(err),
				zap.Stack("stack"))
			d = scaling.Decision{Pool: pool.Config.Name, At: a.now(), Err: err, Reason: "evaluation failed"}
			a.Status.Store(key, d)
		}
	}()

	if err := ctx.Err(); err != nil {
		return scaling.Decision{Pool: pool.Config.Name, At: a.now(), Err: err, Reason: "sweep cancelled"}
	}

	ctx, cancel := context.WithTimeout(ctx, a.Config.EvalTimeout)
	defer cancel()

	d = a.Engine.Evaluate(ctx, pool, a.now())
	a.Status.Store(key, d)
	return d
}

const readyTimeout = 2 * time.Second

func statusKey(c scaling.PoolConfig) string { return c.Group + "/" + c.Name }

// Ready reports whether at least one sweep has completed and the queue store answers.
func (a *App) Ready(ctx context.Context) bool {
	if !a.ready.Load() {
		return false
	}
	if a.Queue == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := a.Queue.Health(ctx); err != nil {
		a.Logger.Warn("[controller] queue store unreachable", zap.Error(err))
		return false
	}
	return true
}

// Alive is false once Close has started.
func (a *App) Alive() bool { return !a.closed.Load() }

// Close releases the worker pool and backend connections.
func (a *App) Close() error {
	a.closed.Store(true)
	a.Workers.StopAndWait()
	var errs []error
	if a.Orchestrator != nil {
		errs = append(errs, a.Orchestrator.Close())
	}
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	return multierr.Combine(errs...)
}

// Start serves HTTP until ctx is done, then shuts everything down.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("[controller] http server failed", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)

	a.Logger.Info("[controller] shutting down…")
	a.StopCron()
	if err := a.Close(); err != nil {
		a.Logger.Warn("[controller] close failed", zap.Error(err))
	}
	a.Logger.Info("さようなら!")
}
