package scaling

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/canopy-network/backlog-autoscaler/pkg/orchestrator"
)

// ErrorPolicy decides how an orchestrator query failure is treated.
type ErrorPolicy string

const (
	// PolicyAssumeEmpty treats a failed query as zero running instances, which
	// triggers baseline enforcement.
	PolicyAssumeEmpty ErrorPolicy = "assume-empty"
	// PolicySkip leaves the pool untouched for the tick.
	PolicySkip ErrorPolicy = "skip"
)

// ParseErrorPolicy parses a policy name; empty means PolicyAssumeEmpty.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case "", PolicyAssumeEmpty:
		return PolicyAssumeEmpty, nil
	case PolicySkip:
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown orchestrator error policy %q", s)
	}
}

// BacklogSampler sums the queue lengths matching a pool's patterns.
type BacklogSampler interface {
	Sample(ctx context.Context, patterns []string) int64
}

// Inspector reports the running replicas of a pool.
type Inspector interface {
	Inspect(ctx context.Context, service, group string) Replicas
}

// Executor issues scale commands.
type Executor interface {
	Execute(ctx context.Context, req orchestrator.ScaleRequest) error
}

// Engine runs the per-pool, per-tick scaling algorithm.
type Engine struct {
	Sampler   BacklogSampler
	Inspector Inspector
	Executor  Executor
	Policy    ErrorPolicy
	Logger    *zap.Logger
}

// NewEngine creates an engine.
func NewEngine(sampler BacklogSampler, inspector Inspector, executor Executor, policy ErrorPolicy, logger *zap.Logger) *Engine {
	return &Engine{
		Sampler:   sampler,
		Inspector: inspector,
		Executor:  executor,
		Policy:    policy,
		Logger:    logger.With(zap.String("component", "engine")),
	}
}

// Evaluate runs one tick for the pool. Rules are checked in order and the first one
// that fires ends the tick:
//
//  1. baseline: running below min is corrected to min, ignoring cooldown and backlog
//  2. the backlog sample is pushed into the window and the rate computed
//  3. scale up when the cooldown elapsed, below max and sma >= up threshold
//  4. scale down when the cooldown elapsed, above min, sma <= down threshold,
//     rate <= rate threshold and no instance is younger than the min lifetime
//
// Cooldown timestamps only move when the orchestrator accepted the command.
func (e *Engine) Evaluate(ctx context.Context, pool *Pool, now time.Time) Decision {
	pool.State.mu.Lock()
	defer pool.State.mu.Unlock()

	cfg := pool.Config
	st := pool.State
	d := Decision{Pool: cfg.Name, At: now, Action: ActionNone}

	reps := e.Inspector.Inspect(ctx, cfg.Name, cfg.Group)
	if reps.Err != nil && e.Policy == PolicySkip {
		d.Err = reps.Err
		d.Reason = "orchestrator unavailable, skipping"
		return e.finish(d)
	}
	d.Current = reps.Running
	d.Target = reps.Running
	if reps.HasUptime {
		up := reps.MinUptime
		d.MinUptime = &up
	}

	if d.Current < cfg.MinReplicas {
		d.Action = ActionBaseline
		d.Target = cfg.MinReplicas
		d.Reason = fmt.Sprintf("running %d below min %d", d.Current, cfg.MinReplicas)
		if e.scale(ctx, cfg, &d) {
			st.markScaleUp(now)
		}
		return e.finish(d)
	}

	d.Backlog = e.Sampler.Sample(ctx, cfg.QueuePatterns)
	d.SMA, d.Rate = st.observe(now, d.Backlog)
	d.Sampled = true

	if now.Sub(st.LastScaleUp) >= cfg.CooldownUp && d.Current < cfg.MaxReplicas && d.SMA >= cfg.UpThreshold {
		target := min(d.Current+cfg.StepUp, cfg.MaxReplicas)
		if target != d.Current {
			d.Action = ActionScaleUp
			d.Target = target
			d.Reason = fmt.Sprintf("sma %.2f >= up threshold %g", d.SMA, cfg.UpThreshold)
			// The tick ends here even if the command failed.
			if e.scale(ctx, cfg, &d) {
				st.markScaleUp(now)
			}
			return e.finish(d)
		}
	}

	youngBlock := reps.HasUptime && reps.MinUptime < cfg.MinLifetime
	if now.Sub(st.LastScaleDown) >= cfg.CooldownDown &&
		d.Current > cfg.MinReplicas &&
		d.SMA <= cfg.DownThreshold &&
		d.Rate <= cfg.RateDownThreshold &&
		!youngBlock {
		target := max(d.Current-cfg.StepDown, cfg.MinReplicas)
		if target != d.Current {
			d.Action = ActionScaleDown
			d.Target = target
			d.Reason = fmt.Sprintf("sma %.2f <= down threshold %g, rate %.3f/s", d.SMA, cfg.DownThreshold, d.Rate)
			if e.scale(ctx, cfg, &d) {
				st.markScaleDown(now)
			}
			return e.finish(d)
		}
	}

	if youngBlock && d.SMA <= cfg.DownThreshold && d.Current > cfg.MinReplicas {
		d.Reason = "young instance blocks scale down"
	}
	return e.finish(d)
}

// scale invokes the executor; it must only be called when target != current.
func (e *Engine) scale(ctx context.Context, cfg PoolConfig, d *Decision) bool {
	err := e.Executor.Execute(ctx, orchestrator.ScaleRequest{
		Service:  cfg.Name,
		Group:    cfg.Group,
		Replicas: d.Target,
	})
	if err != nil {
		d.Err = err
		return false
	}
	d.Scaled = true
	return true
}

func (e *Engine) finish(d Decision) Decision {
	fields := []zap.Field{
		zap.String("pool", d.Pool),
		zap.String("action", d.Action.String()),
		zap.Int("current", d.Current),
		zap.Int("target", d.Target),
		zap.Bool("scaled", d.Scaled),
	}
	if d.Sampled {
		fields = append(fields,
			zap.Int64("backlog", d.Backlog),
			zap.Float64("sma", d.SMA),
			zap.Float64("rate", d.Rate),
		)
	}
	if d.MinUptime != nil {
		fields = append(fields, zap.Duration("min_uptime", *d.MinUptime))
	}
	if d.Reason != "" {
		fields = append(fields, zap.String("reason", d.Reason))
	}
	if d.Err != nil {
		fields = append(fields, zap.Error(d.Err))
		e.Logger.Warn("pool evaluated", fields...)
	} else {
		e.Logger.Info("pool evaluated", fields...)
	}
	recordDecision(d)
	return d
}
