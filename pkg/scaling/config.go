package scaling

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// PoolConfig is the immutable configuration of one managed worker pool.
type PoolConfig struct {
	// Name is the orchestrator service identifier.
	Name string
	// Group is the project (compose) or namespace (kubernetes) the service lives in.
	Group string
	// QueuePatterns are glob patterns whose matching list lengths sum to the pool backlog.
	QueuePatterns []string

	MinReplicas int
	MaxReplicas int

	// SMAWindow is the number of backlog samples averaged for smoothing.
	SMAWindow int

	UpThreshold   float64
	DownThreshold float64
	// RateDownThreshold is the backlog-per-second rate the backlog must be at or below
	// before a scale-down is allowed.
	RateDownThreshold float64

	CooldownUp   time.Duration
	CooldownDown time.Duration
	// MinLifetime protects freshly started workers from scale-down.
	MinLifetime time.Duration

	StepUp   int
	StepDown int
}

// Validate reports every problem with the configuration at once.
func (c PoolConfig) Validate() error {
	var errs error
	if c.Name == "" {
		errs = multierr.Append(errs, fmt.Errorf("pool name is required"))
	}
	if len(c.QueuePatterns) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("pool %q: at least one queue pattern is required", c.Name))
	}
	for _, p := range c.QueuePatterns {
		if p == "" {
			errs = multierr.Append(errs, fmt.Errorf("pool %q: empty queue pattern", c.Name))
			break
		}
	}
	if c.MinReplicas < 0 {
		errs = multierr.Append(errs, fmt.Errorf("pool %q: min replicas %d must be >= 0", c.Name, c.MinReplicas))
	}
	if c.MaxReplicas < c.MinReplicas {
		errs = multierr.Append(errs, fmt.Errorf("pool %q: max replicas %d must be >= min replicas %d", c.Name, c.MaxReplicas, c.MinReplicas))
	}
	if c.SMAWindow < 1 {
		errs = multierr.Append(errs, fmt.Errorf("pool %q: sma window %d must be >= 1", c.Name, c.SMAWindow))
	}
	// Trigger bands must not overlap.
	if c.DownThreshold > c.UpThreshold {
		errs = multierr.Append(errs, fmt.Errorf("pool %q: down threshold %g must be <= up threshold %g", c.Name, c.DownThreshold, c.UpThreshold))
	}
	if c.CooldownUp < 0 || c.CooldownDown < 0 {
		errs = multierr.Append(errs, fmt.Errorf("pool %q: cooldowns must be >= 0", c.Name))
	}
	if c.MinLifetime < 0 {
		errs = multierr.Append(errs, fmt.Errorf("pool %q: min lifetime must be >= 0", c.Name))
	}
	if c.StepUp < 1 {
		errs = multierr.Append(errs, fmt.Errorf("pool %q: scale up step %d must be >= 1", c.Name, c.StepUp))
	}
	if c.StepDown < 1 {
		errs = multierr.Append(errs, fmt.Errorf("pool %q: scale down step %d must be >= 1", c.Name, c.StepDown))
	}
	return errs
}
