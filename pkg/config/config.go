package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/canopy-network/backlog-autoscaler/pkg/scaling"
)

// Orchestrator kinds.
const (
	OrchestratorCompose    = "compose"
	OrchestratorKubernetes = "kubernetes"
	OrchestratorFake       = "fake"
)

// PrimaryPool is always enabled; other pool prefixes need <PREFIX>_SERVICE_NAME.
const PrimaryPool = "PRIMARY"

// Config is the validated process configuration.
type Config struct {
	PollInterval       time.Duration
	EvalTimeout        time.Duration
	MaxConcurrentPools int
	Addr               string
	StartupRetries     int

	Log          LogConfig
	Redis        RedisConfig
	Orchestrator OrchestratorConfig

	Pools []scaling.PoolConfig
}

type LogConfig struct {
	Level    string
	Encoding string
}

type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	ScanCount int64
	// SampleTimeout bounds one backlog sample of a pool.
	SampleTimeout time.Duration
}

type OrchestratorConfig struct {
	Kind        string
	ErrorPolicy scaling.ErrorPolicy

	// docker compose
	Project     string
	ComposeFile string
	DockerBin   string
	Timeout     time.Duration

	// kubernetes
	Namespace    string
	ServiceLabel string
	Kubeconfig   string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("POLLING_INTERVAL_SECONDS", 20)
	v.SetDefault("POOL_EVAL_TIMEOUT_SECONDS", 120)
	v.SetDefault("MAX_CONCURRENT_POOLS", 1)
	v.SetDefault("ADDR", ":3002")
	v.SetDefault("STARTUP_RETRIES", 3)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_ENCODING", "json")

	v.SetDefault("REDIS_HOST", "redis")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_SCAN_COUNT", 100)
	v.SetDefault("REDIS_SAMPLE_TIMEOUT_SECONDS", 10)

	v.SetDefault("ORCHESTRATOR", OrchestratorCompose)
	v.SetDefault("ORCHESTRATOR_ERROR_POLICY", string(scaling.PolicyAssumeEmpty))
	v.SetDefault("COMPOSE_PROJECT_NAME", "n8n")
	v.SetDefault("COMPOSE_FILE_PATH", "/app/docker-compose.yml")
	v.SetDefault("DOCKER_BIN", "docker")
	v.SetDefault("SCALE_TIMEOUT_SECONDS", 120)
	v.SetDefault("K8S_NAMESPACE", "default")
	v.SetDefault("K8S_SERVICE_LABEL", "app")
	v.SetDefault("KUBECONFIG", "")

	v.SetDefault("POOLS", "PRIMARY,SECONDARY")
	v.SetDefault("N8N_WORKER_SERVICE_NAME", "n8n-worker")
	v.SetDefault("QUEUE_NAME_PREFIX", "bull")
	v.SetDefault("QUEUE_NAME", "jobs")

	// Pool defaults; every key can be overridden per pool with a <PREFIX>_ prefix.
	v.SetDefault("MIN_REPLICAS", 1)
	v.SetDefault("MAX_REPLICAS", 6)
	v.SetDefault("SMA_WINDOW", 5)
	v.SetDefault("SCALE_UP_QUEUE_THRESHOLD", 5)
	v.SetDefault("SCALE_DOWN_QUEUE_THRESHOLD", 1)
	v.SetDefault("SCALE_DOWN_RATE_THRESHOLD", 0)
	v.SetDefault("COOLDOWN_PERIOD_SECONDS", 120)
	v.SetDefault("MIN_WORKER_LIFETIME_SECONDS", 60)
	v.SetDefault("SCALE_UP_STEP", 1)
	v.SetDefault("SCALE_DOWN_STEP", 1)
}

// Load reads configuration from the environment and, if CONFIG_FILE is set, from that file.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load configuration file %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper builds and validates a Config from v. Defaults are applied to v.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	policy, policyErr := scaling.ParseErrorPolicy(v.GetString("ORCHESTRATOR_ERROR_POLICY"))

	cfg := &Config{
		PollInterval:       seconds(v, "POLLING_INTERVAL_SECONDS"),
		EvalTimeout:        seconds(v, "POOL_EVAL_TIMEOUT_SECONDS"),
		MaxConcurrentPools: v.GetInt("MAX_CONCURRENT_POOLS"),
		Addr:               v.GetString("ADDR"),
		StartupRetries:     v.GetInt("STARTUP_RETRIES"),
		Log: LogConfig{
			Level:    v.GetString("LOG_LEVEL"),
			Encoding: v.GetString("LOG_ENCODING"),
		},
		Redis: RedisConfig{
			Host:          v.GetString("REDIS_HOST"),
			Port:          v.GetString("REDIS_PORT"),
			Password:      v.GetString("REDIS_PASSWORD"),
			DB:            v.GetInt("REDIS_DB"),
			ScanCount:     v.GetInt64("REDIS_SCAN_COUNT"),
			SampleTimeout: seconds(v, "REDIS_SAMPLE_TIMEOUT_SECONDS"),
		},
		Orchestrator: OrchestratorConfig{
			Kind:         strings.ToLower(v.GetString("ORCHESTRATOR")),
			ErrorPolicy:  policy,
			Project:      v.GetString("COMPOSE_PROJECT_NAME"),
			ComposeFile:  v.GetString("COMPOSE_FILE_PATH"),
			DockerBin:    v.GetString("DOCKER_BIN"),
			Timeout:      seconds(v, "SCALE_TIMEOUT_SECONDS"),
			Namespace:    v.GetString("K8S_NAMESPACE"),
			ServiceLabel: v.GetString("K8S_SERVICE_LABEL"),
			Kubeconfig:   v.GetString("KUBECONFIG"),
		},
	}

	for _, prefix := range splitList(v.GetString("POOLS")) {
		prefix = strings.ToUpper(prefix)
		pool, ok := loadPool(v, prefix, cfg.Orchestrator)
		if ok {
			cfg.Pools = append(cfg.Pools, pool)
		}
	}

	if err := multierr.Append(policyErr, cfg.Validate()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadPool(v *viper.Viper, prefix string, orch OrchestratorConfig) (scaling.PoolConfig, bool) {
	name := v.GetString(prefix + "_SERVICE_NAME")
	if name == "" {
		if prefix != PrimaryPool {
			return scaling.PoolConfig{}, false
		}
		name = v.GetString("N8N_WORKER_SERVICE_NAME")
	}

	group := v.GetString(prefix + "_PROJECT")
	if group == "" {
		if orch.Kind == OrchestratorKubernetes {
			group = orch.Namespace
		} else {
			group = orch.Project
		}
	}

	patterns := splitList(v.GetString(prefix + "_QUEUE_PATTERNS"))
	if len(patterns) == 0 {
		patterns = splitList(v.GetString("QUEUE_PATTERNS"))
	}
	if len(patterns) == 0 {
		patterns = DefaultQueuePatterns(v.GetString("QUEUE_NAME_PREFIX"), v.GetString("QUEUE_NAME"))
	}

	cooldownKey := "COOLDOWN_PERIOD_SECONDS"
	return scaling.PoolConfig{
		Name:              name,
		Group:             group,
		QueuePatterns:     patterns,
		MinReplicas:       poolInt(v, prefix, "MIN_REPLICAS"),
		MaxReplicas:       poolInt(v, prefix, "MAX_REPLICAS"),
		SMAWindow:         poolInt(v, prefix, "SMA_WINDOW"),
		UpThreshold:       poolFloat(v, prefix, "SCALE_UP_QUEUE_THRESHOLD"),
		DownThreshold:     poolFloat(v, prefix, "SCALE_DOWN_QUEUE_THRESHOLD"),
		RateDownThreshold: poolFloat(v, prefix, "SCALE_DOWN_RATE_THRESHOLD"),
		CooldownUp:        poolSeconds(v, prefix, "SCALE_UP_COOLDOWN_SECONDS", cooldownKey),
		CooldownDown:      poolSeconds(v, prefix, "SCALE_DOWN_COOLDOWN_SECONDS", cooldownKey),
		MinLifetime:       poolSeconds(v, prefix, "MIN_WORKER_LIFETIME_SECONDS", "MIN_WORKER_LIFETIME_SECONDS"),
		StepUp:            poolInt(v, prefix, "SCALE_UP_STEP"),
		StepDown:          poolInt(v, prefix, "SCALE_DOWN_STEP"),
	}, true
}

// DefaultQueuePatterns are the BullMQ wait list names across versions.
func DefaultQueuePatterns(prefix, queue string) []string {
	base := prefix + ":" + queue
	return []string{
		base + ":wait",
		base + ":waiting", // v4+
		base,              // legacy
	}
}

// Validate checks the global settings and every pool.
func (c *Config) Validate() error {
	var errs error
	if c.PollInterval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("polling interval must be > 0"))
	}
	if c.EvalTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("pool evaluation timeout must be > 0"))
	}
	if c.MaxConcurrentPools < 1 {
		errs = multierr.Append(errs, fmt.Errorf("max concurrent pools must be >= 1"))
	}
	switch c.Orchestrator.Kind {
	case OrchestratorCompose:
		if c.Orchestrator.Project == "" {
			errs = multierr.Append(errs, fmt.Errorf("COMPOSE_PROJECT_NAME is required"))
		}
		if c.Orchestrator.ComposeFile == "" {
			errs = multierr.Append(errs, fmt.Errorf("COMPOSE_FILE_PATH is required"))
		}
	case OrchestratorKubernetes, OrchestratorFake:
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown orchestrator %q", c.Orchestrator.Kind))
	}
	if len(c.Pools) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("no pools configured"))
	}
	seen := map[string]bool{}
	for _, p := range c.Pools {
		if seen[p.Group+"/"+p.Name] {
			errs = multierr.Append(errs, fmt.Errorf("pool %q configured twice", p.Name))
		}
		seen[p.Group+"/"+p.Name] = true
		errs = multierr.Append(errs, p.Validate())
	}
	return errs
}

func poolKey(v *viper.Viper, prefix, key string) string {
	if k := prefix + "_" + key; v.IsSet(k) {
		return k
	}
	return key
}

func poolInt(v *viper.Viper, prefix, key string) int {
	return v.GetInt(poolKey(v, prefix, key))
}

func poolFloat(v *viper.Viper, prefix, key string) float64 {
	return v.GetFloat64(poolKey(v, prefix, key))
}

// poolSeconds reads <prefix>_key, then key, then fallback.
func poolSeconds(v *viper.Viper, prefix, key, fallback string) time.Duration {
	k := prefix + "_" + key
	switch {
	case v.IsSet(k):
	case v.IsSet(key):
		k = key
	default:
		k = fallback
	}
	return seconds(v, k)
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetFloat64(key) * float64(time.Second))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
