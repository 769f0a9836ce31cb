package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Labels docker compose puts on every container it manages.
const (
	ComposeServiceLabel = "com.docker.compose.service"
	ComposeProjectLabel = "com.docker.compose.project"
)

// Runner executes an external command and returns its output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run runs the command; a non-zero exit is returned as *exec.ExitError.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ComposeConfig holds the docker compose deployment coordinates.
type ComposeConfig struct {
	DockerBin   string
	ComposeFile string
	// Timeout bounds every docker invocation.
	Timeout time.Duration
}

// Compose drives worker pools through the docker CLI.
type Compose struct {
	Logger *zap.Logger
	runner Runner
	cfg    ComposeConfig
}

var _ Orchestrator = (*Compose)(nil)

// NewCompose creates a docker compose orchestrator. A nil runner uses ExecRunner.
func NewCompose(cfg ComposeConfig, runner Runner, logger *zap.Logger) *Compose {
	if cfg.DockerBin == "" {
		cfg.DockerBin = "docker"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Compose{
		Logger: logger.With(zap.String("component", "compose_orchestrator")),
		runner: runner,
		cfg:    cfg,
	}
}

// inspectEntry is the subset of `docker inspect` output we read.
type inspectEntry struct {
	ID    string `json:"Id"`
	State struct {
		Status    string `json:"Status"`
		StartedAt string `json:"StartedAt"`
	} `json:"State"`
	Config struct {
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
}

// ListInstances lists running containers labelled with the compose service and project.
func (c *Compose) ListInstances(ctx context.Context, service, group string) ([]Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	stdout, stderr, err := c.runner.Run(ctx, c.cfg.DockerBin,
		"ps", "-q", "--no-trunc",
		"--filter", fmt.Sprintf("label=%s=%s", ComposeServiceLabel, service),
		"--filter", fmt.Sprintf("label=%s=%s", ComposeProjectLabel, group),
		"--filter", "status=running",
	)
	if err != nil {
		return nil, fmt.Errorf("docker ps: %w: %s", err, strings.TrimSpace(string(stderr)))
	}
	ids := strings.Fields(string(stdout))
	if len(ids) == 0 {
		return nil, nil
	}

	stdout, stderr, err = c.runner.Run(ctx, c.cfg.DockerBin, append([]string{"inspect"}, ids...)...)
	if err != nil {
		return nil, fmt.Errorf("docker inspect: %w: %s", err, strings.TrimSpace(string(stderr)))
	}
	var entries []inspectEntry
	if err := json.Unmarshal(stdout, &entries); err != nil {
		return nil, fmt.Errorf("decode docker inspect: %w", err)
	}

	out := make([]Instance, 0, len(entries))
	for _, e := range entries {
		inst := Instance{
			ID:     e.ID,
			Status: strings.ToLower(e.State.Status),
			Labels: e.Config.Labels,
		}
		if ts, err := time.Parse(time.RFC3339Nano, e.State.StartedAt); err == nil {
			inst.StartedAt = ts
		} else {
			c.Logger.Debug("unparseable container start time",
				zap.String("container", e.ID),
				zap.String("started_at", e.State.StartedAt),
				zap.Error(err))
		}
		out = append(out, inst)
	}
	return out, nil
}

// SetReplicas runs `docker compose up --scale` for the service.
func (c *Compose) SetReplicas(ctx context.Context, req ScaleRequest) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	args := []string{
		"compose",
		"-f", c.cfg.ComposeFile,
		"--project-name", req.Group,
		"up", "-d", "--no-deps",
		"--scale", req.Service + "=" + strconv.Itoa(req.Replicas),
		req.Service,
	}
	c.Logger.Info("scaling", zap.String("cmd", c.cfg.DockerBin+" "+strings.Join(args, " ")))

	stdout, stderr, err := c.runner.Run(ctx, c.cfg.DockerBin, args...)
	if out := strings.TrimSpace(string(stdout)); out != "" {
		c.Logger.Info("docker compose stdout", zap.String("service", req.Service), zap.String("output", out))
	}
	if err != nil {
		return fmt.Errorf("docker compose scale %s=%d: %w: %s", req.Service, req.Replicas, err, strings.TrimSpace(string(stderr)))
	}
	// compose writes progress to stderr even on success
	if out := strings.TrimSpace(string(stderr)); out != "" {
		c.Logger.Info("docker compose stderr", zap.String("service", req.Service), zap.String("output", out))
	}
	return nil
}

// Ping checks the docker daemon answers.
func (c *Compose) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	stdout, stderr, err := c.runner.Run(ctx, c.cfg.DockerBin, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return fmt.Errorf("docker daemon unreachable: %w: %s", err, strings.TrimSpace(string(stderr)))
	}
	c.Logger.Info("docker daemon reachable", zap.String("server_version", strings.TrimSpace(string(stdout))))
	return nil
}

// Close is a no-op.
func (c *Compose) Close() error { return nil }
