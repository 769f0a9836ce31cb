package scaling

import (
	"context"

	"go.uber.org/zap"

	"github.com/canopy-network/backlog-autoscaler/pkg/orchestrator"
)

// ScaleExecutor issues a single scale command. It never retries; the next tick does.
type ScaleExecutor struct {
	orch   orchestrator.Orchestrator
	logger *zap.Logger
}

// NewScaleExecutor creates an executor over the orchestrator.
func NewScaleExecutor(orch orchestrator.Orchestrator, logger *zap.Logger) *ScaleExecutor {
	return &ScaleExecutor{orch: orch, logger: logger.With(zap.String("component", "scale_executor"))}
}

// Execute scales the service and logs the diagnostic on failure.
func (e *ScaleExecutor) Execute(ctx context.Context, req orchestrator.ScaleRequest) error {
	if err := e.orch.SetReplicas(ctx, req); err != nil {
		e.logger.Error("scale failed",
			zap.String("service", req.Service),
			zap.String("group", req.Group),
			zap.Int("replicas", req.Replicas),
			zap.Error(err))
		return err
	}
	return nil
}
