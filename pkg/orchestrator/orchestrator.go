package orchestrator

import (
	"context"
	"time"
)

// StatusRunning is the only instance status counted as capacity.
const StatusRunning = "running"

// Instance is one worker process as reported by the orchestrator.
type Instance struct {
	ID     string
	Status string
	Labels map[string]string
	// StartedAt is zero when the orchestrator timestamp could not be parsed.
	StartedAt time.Time
}

// ScaleRequest asks the orchestrator to run exactly Replicas instances of Service.
type ScaleRequest struct {
	Service  string
	Group    string
	Replicas int
}

// Orchestrator abstracts the platform running the worker pools.
// Implementations may talk to docker compose, Kubernetes, etc.
type Orchestrator interface {
	// ListInstances returns the running instances of service within group.
	ListInstances(ctx context.Context, service, group string) ([]Instance, error)
	// SetReplicas sets the desired replica count. Calling it with the current count is a no-op.
	SetReplicas(ctx context.Context, req ScaleRequest) error
	// Ping checks the orchestrator is reachable.
	Ping(ctx context.Context) error
	// Close releases any resources.
	Close() error
}
