package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFakeRemovesYoungestFirst(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(zaptest.NewLogger(t)).WithClock(func() time.Time { return now })
	f.Seed("w", "g", 2, now.Add(-time.Hour))

	ctx := context.Background()
	require.NoError(t, f.SetReplicas(ctx, ScaleRequest{Service: "w", Group: "g", Replicas: 4}))
	assert.Equal(t, 4, f.Replicas("w", "g"))

	require.NoError(t, f.SetReplicas(ctx, ScaleRequest{Service: "w", Group: "g", Replicas: 2}))
	list, err := f.ListInstances(ctx, "w", "g")
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, inst := range list {
		assert.Equal(t, now.Add(-time.Hour), inst.StartedAt)
		assert.Equal(t, "w", inst.Labels[ComposeServiceLabel])
	}
}

func TestFakeErrors(t *testing.T) {
	f := NewFake(zaptest.NewLogger(t))
	f.ListErr = errors.New("list")
	f.ScaleErr = errors.New("scale")
	ctx := context.Background()

	_, err := f.ListInstances(ctx, "w", "g")
	require.Error(t, err)
	require.Error(t, f.SetReplicas(ctx, ScaleRequest{Service: "w", Group: "g", Replicas: 1}))
	assert.Zero(t, f.Replicas("w", "g"))
	assert.Len(t, f.Calls, 1)
}
