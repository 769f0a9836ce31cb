package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-network/backlog-autoscaler/pkg/scaling"
)

func load(t *testing.T, values map[string]any) (*Config, error) {
	t.Helper()
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return FromViper(v)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(t, nil)
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.EvalTimeout)
	assert.Equal(t, 1, cfg.MaxConcurrentPools)
	assert.Equal(t, OrchestratorCompose, cfg.Orchestrator.Kind)
	assert.Equal(t, scaling.PolicyAssumeEmpty, cfg.Orchestrator.ErrorPolicy)
	assert.Equal(t, "redis", cfg.Redis.Host)
	assert.Equal(t, "6379", cfg.Redis.Port)

	require.Len(t, cfg.Pools, 1, "SECONDARY is skipped without a service name")
	p := cfg.Pools[0]
	assert.Equal(t, "n8n-worker", p.Name)
	assert.Equal(t, "n8n", p.Group)
	assert.Equal(t, []string{"bull:jobs:wait", "bull:jobs:waiting", "bull:jobs"}, p.QueuePatterns)
	assert.Equal(t, 1, p.MinReplicas)
	assert.Equal(t, 6, p.MaxReplicas)
	assert.Equal(t, 5, p.SMAWindow)
	assert.InDelta(t, 5.0, p.UpThreshold, 1e-9)
	assert.InDelta(t, 1.0, p.DownThreshold, 1e-9)
	assert.Equal(t, 2*time.Minute, p.CooldownUp)
	assert.Equal(t, 2*time.Minute, p.CooldownDown)
	assert.Equal(t, time.Minute, p.MinLifetime)
}

func TestSecondaryPoolOverrides(t *testing.T) {
	cfg, err := load(t, map[string]any{
		"SCALE_DOWN_COOLDOWN_SECONDS":           "300",
		"SECONDARY_SERVICE_NAME":                "n8n-worker-priority",
		"SECONDARY_MAX_REPLICAS":                "3",
		"SECONDARY_QUEUE_PATTERNS":              "bull:priority:wait, bull:priority:*",
		"SECONDARY_SCALE_UP_COOLDOWN_SECONDS":   "30",
		"SECONDARY_MIN_WORKER_LIFETIME_SECONDS": "15.5",
	})
	require.NoError(t, err)
	require.Len(t, cfg.Pools, 2)

	primary, secondary := cfg.Pools[0], cfg.Pools[1]
	assert.Equal(t, 6, primary.MaxReplicas)
	assert.Equal(t, 5*time.Minute, primary.CooldownDown)
	assert.Equal(t, 2*time.Minute, primary.CooldownUp)

	assert.Equal(t, "n8n-worker-priority", secondary.Name)
	assert.Equal(t, "n8n", secondary.Group)
	assert.Equal(t, 3, secondary.MaxReplicas)
	assert.Equal(t, 1, secondary.MinReplicas)
	assert.Equal(t, []string{"bull:priority:wait", "bull:priority:*"}, secondary.QueuePatterns)
	assert.Equal(t, 30*time.Second, secondary.CooldownUp)
	assert.Equal(t, 5*time.Minute, secondary.CooldownDown)
	assert.Equal(t, 15500*time.Millisecond, secondary.MinLifetime)
}

func TestSharedQueuePatterns(t *testing.T) {
	cfg, err := load(t, map[string]any{"QUEUE_PATTERNS": "bull:*:wait"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bull:*:wait"}, cfg.Pools[0].QueuePatterns)
}

func TestKubernetesGroupDefaultsToNamespace(t *testing.T) {
	cfg, err := load(t, map[string]any{
		"ORCHESTRATOR":  "Kubernetes",
		"K8S_NAMESPACE": "workers",
	})
	require.NoError(t, err)
	assert.Equal(t, OrchestratorKubernetes, cfg.Orchestrator.Kind)
	assert.Equal(t, "workers", cfg.Pools[0].Group)
}

func TestPoolProjectOverride(t *testing.T) {
	cfg, err := load(t, map[string]any{"PRIMARY_PROJECT": "automation"})
	require.NoError(t, err)
	assert.Equal(t, "automation", cfg.Pools[0].Group)
}

func TestInvalidConfigurations(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{"down threshold above up", map[string]any{"SCALE_DOWN_QUEUE_THRESHOLD": "10"}},
		{"missing compose project", map[string]any{"COMPOSE_PROJECT_NAME": ""}},
		{"unknown orchestrator", map[string]any{"ORCHESTRATOR": "nomad"}},
		{"unknown error policy", map[string]any{"ORCHESTRATOR_ERROR_POLICY": "retry"}},
		{"zero poll interval", map[string]any{"POLLING_INTERVAL_SECONDS": "0"}},
		{"max below min", map[string]any{"PRIMARY_MIN_REPLICAS": "4", "PRIMARY_MAX_REPLICAS": "2"}},
		{"no pools", map[string]any{"POOLS": ""}},
		{"duplicate pool", map[string]any{"POOLS": "PRIMARY,PRIMARY"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.values)
			require.Error(t, err)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(""))
}
