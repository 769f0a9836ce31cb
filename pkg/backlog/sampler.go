package backlog

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store is the queue backend: key discovery by glob pattern and list length.
type Store interface {
	// ScanKeys returns the keys matching pattern. No match is an empty result, not an error.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	// ListLen returns the length of the list at key. Non-list keys return an error.
	ListLen(ctx context.Context, key string) (int64, error)
}

// DefaultTimeout bounds a whole Sample call.
const DefaultTimeout = 10 * time.Second

// Sampler sums list lengths of every key matching any of a pool's patterns.
type Sampler struct {
	store   Store
	logger  *zap.Logger
	timeout time.Duration
}

// NewSampler creates a sampler. A non-positive timeout uses DefaultTimeout.
func NewSampler(store Store, timeout time.Duration, logger *zap.Logger) *Sampler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sampler{
		store:   store,
		logger:  logger.With(zap.String("component", "backlog_sampler")),
		timeout: timeout,
	}
}

// Sample returns the backlog for the patterns. A key matched by several patterns is
// counted once. Failing patterns or keys contribute 0 and are logged.
func (s *Sampler) Sample(ctx context.Context, patterns []string) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	seen := make(map[string]struct{})
	var total int64
	for _, pattern := range patterns {
		keys, err := s.store.ScanKeys(ctx, pattern)
		if err != nil {
			s.logger.Warn("queue key scan failed", zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		for _, key := range keys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			n, err := s.store.ListLen(ctx, key)
			if err != nil {
				s.logger.Warn("queue length check failed", zap.String("key", key), zap.Error(err))
				continue
			}
			if n > 0 {
				total += n
			}
		}
	}
	s.logger.Debug("backlog sampled",
		zap.Strings("patterns", patterns),
		zap.Int("keys", len(seen)),
		zap.Int64("backlog", total))
	return total
}
