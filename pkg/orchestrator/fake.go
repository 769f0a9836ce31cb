package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fake is an in-memory orchestrator. It is used by the "fake" provider mode and by tests.
type Fake struct {
	mu        sync.Mutex
	logger    *zap.Logger
	now       func() time.Time
	instances map[string][]Instance
	seq       int

	// ListErr, when set, is returned by ListInstances.
	ListErr error
	// ScaleErr, when set, is returned by SetReplicas and nothing changes.
	ScaleErr error
	// Calls records every SetReplicas request, successful or not.
	Calls []ScaleRequest
}

var _ Orchestrator = (*Fake)(nil)

// NewFake creates an empty fake orchestrator.
func NewFake(logger *zap.Logger) *Fake {
	return &Fake{
		logger:    logger.With(zap.String("component", "fake_orchestrator")),
		now:       time.Now,
		instances: map[string][]Instance{},
	}
}

// WithClock overrides the clock used to stamp new instances.
func (f *Fake) WithClock(now func() time.Time) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
	return f
}

// Seed adds count running instances started at startedAt.
func (f *Fake) Seed(service, group string, count int, startedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < count; i++ {
		f.addLocked(service, group, startedAt)
	}
}

// Replicas returns the number of instances currently held for service.
func (f *Fake) Replicas(service, group string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.instances[key(service, group)])
}

// ListInstances returns copies of the held instances.
func (f *Fake) ListInstances(_ context.Context, service, group string) ([]Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	src := f.instances[key(service, group)]
	out := make([]Instance, len(src))
	copy(out, src)
	return out, nil
}

// SetReplicas adds fresh instances or removes the youngest ones.
func (f *Fake) SetReplicas(_ context.Context, req ScaleRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, req)
	if f.ScaleErr != nil {
		return f.ScaleErr
	}
	if req.Replicas < 0 {
		return fmt.Errorf("invalid replica count %d", req.Replicas)
	}

	k := key(req.Service, req.Group)
	for len(f.instances[k]) < req.Replicas {
		f.addLocked(req.Service, req.Group, f.now())
	}
	if len(f.instances[k]) > req.Replicas {
		list := f.instances[k]
		sort.SliceStable(list, func(i, j int) bool { return list[i].StartedAt.Before(list[j].StartedAt) })
		f.instances[k] = list[:req.Replicas]
	}
	f.logger.Info("scaled", zap.String("service", req.Service), zap.String("group", req.Group), zap.Int("replicas", req.Replicas))
	return nil
}

// Ping always succeeds.
func (f *Fake) Ping(context.Context) error { return nil }

// Close is a no-op.
func (f *Fake) Close() error { return nil }

func (f *Fake) addLocked(service, group string, startedAt time.Time) {
	f.seq++
	k := key(service, group)
	f.instances[k] = append(f.instances[k], Instance{
		ID:     fmt.Sprintf("%s-%d", service, f.seq),
		Status: StatusRunning,
		Labels: map[string]string{
			ComposeServiceLabel: service,
			ComposeProjectLabel: group,
		},
		StartedAt: startedAt,
	})
}

func key(service, group string) string { return group + "/" + service }
