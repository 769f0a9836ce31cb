package scaling

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/canopy-network/backlog-autoscaler/pkg/orchestrator"
)

// Replicas is what the orchestrator reports for a pool this tick.
type Replicas struct {
	Running int
	// MinUptime is the youngest running instance's age; only meaningful if HasUptime.
	MinUptime time.Duration
	HasUptime bool
	// Err is set when the query failed; Running is then 0.
	Err error
}

// ReplicaInspector counts running instances and finds the minimum uptime.
type ReplicaInspector struct {
	orch   orchestrator.Orchestrator
	logger *zap.Logger
	now    func() time.Time
}

// NewReplicaInspector creates an inspector over the orchestrator.
func NewReplicaInspector(orch orchestrator.Orchestrator, logger *zap.Logger) *ReplicaInspector {
	return &ReplicaInspector{
		orch:   orch,
		logger: logger.With(zap.String("component", "replica_inspector")),
		now:    time.Now,
	}
}

// Inspect never fails: an orchestrator error yields zero running instances with Err set.
func (i *ReplicaInspector) Inspect(ctx context.Context, service, group string) Replicas {
	instances, err := i.orch.ListInstances(ctx, service, group)
	if err != nil {
		i.logger.Error("error reading current replicas",
			zap.String("service", service),
			zap.String("group", group),
			zap.Error(err))
		return Replicas{Err: err}
	}

	now := i.now()
	var out Replicas
	for _, inst := range instances {
		if inst.Status != orchestrator.StatusRunning {
			continue
		}
		out.Running++
		if inst.StartedAt.IsZero() {
			continue
		}
		uptime := now.Sub(inst.StartedAt)
		if !out.HasUptime || uptime < out.MinUptime {
			out.MinUptime = uptime
			out.HasUptime = true
		}
	}
	return out
}
