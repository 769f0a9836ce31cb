package scaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func testConfig() PoolConfig {
	return PoolConfig{
		Name:              "n8n-worker",
		Group:             "n8n",
		QueuePatterns:     []string{"bull:jobs:wait"},
		MinReplicas:       1,
		MaxReplicas:       6,
		SMAWindow:         5,
		UpThreshold:       5,
		DownThreshold:     1,
		RateDownThreshold: 0,
		CooldownUp:        time.Minute,
		CooldownDown:      2 * time.Minute,
		MinLifetime:       time.Minute,
		StepUp:            1,
		StepDown:          1,
	}
}

func TestPoolConfigValidate(t *testing.T) {
	require.NoError(t, testConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *PoolConfig)
	}{
		{"missing name", func(c *PoolConfig) { c.Name = "" }},
		{"no patterns", func(c *PoolConfig) { c.QueuePatterns = nil }},
		{"empty pattern", func(c *PoolConfig) { c.QueuePatterns = []string{"a", ""} }},
		{"negative min", func(c *PoolConfig) { c.MinReplicas = -1 }},
		{"max below min", func(c *PoolConfig) { c.MinReplicas, c.MaxReplicas = 3, 2 }},
		{"zero window", func(c *PoolConfig) { c.SMAWindow = 0 }},
		{"down above up", func(c *PoolConfig) { c.DownThreshold, c.UpThreshold = 6, 5 }},
		{"negative cooldown", func(c *PoolConfig) { c.CooldownDown = -time.Second }},
		{"negative lifetime", func(c *PoolConfig) { c.MinLifetime = -time.Second }},
		{"zero step up", func(c *PoolConfig) { c.StepUp = 0 }},
		{"zero step down", func(c *PoolConfig) { c.StepDown = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig()
			tt.mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestPoolConfigValidateReportsEverything(t *testing.T) {
	c := testConfig()
	c.Name = ""
	c.SMAWindow = 0
	c.StepUp = 0
	err := c.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
}

func TestEqualThresholdsAllowed(t *testing.T) {
	c := testConfig()
	c.UpThreshold, c.DownThreshold = 3, 3
	require.NoError(t, c.Validate())
}
