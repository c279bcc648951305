package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog/log"

	"mockyard/engine"
	"mockyard/process"
	"mockyard/types"
)

// Defaults for ContainerOptions.
const (
	DefaultControlTimeout  = 2 * time.Minute
	DefaultGraceDelay      = 10 * time.Second
	DefaultReadinessWindow = 5 * time.Second
	DefaultPollInterval    = time.Second
	DefaultLogTail         = 50
	DefaultServicePort     = "8080"
)

// ContainerOptions tunes the lifecycle controller.
type ContainerOptions struct {
	ControlTimeout  time.Duration // Bound on each control script run
	GraceDelay      time.Duration // Wait after a successful start before the first readiness check
	ReadinessWindow time.Duration // How long to keep polling for a running instance
	PollInterval    time.Duration
	LogTail         int      // Log lines embedded in a did-not-start error
	ServicePort     nat.Port // Port the mock service listens on inside the container
}

func (o ContainerOptions) withDefaults() ContainerOptions {
	if o.ControlTimeout <= 0 {
		o.ControlTimeout = DefaultControlTimeout
	}
	if o.GraceDelay < 0 {
		o.GraceDelay = 0
	}
	if o.ReadinessWindow < 0 {
		o.ReadinessWindow = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.LogTail <= 0 {
		o.LogTail = DefaultLogTail
	}
	if o.ServicePort == "" {
		o.ServicePort = DefaultServicePort
	}
	return o
}

// ContainerManager starts, stops and inspects project containers through the external
// control program and the engine. It holds no container state of its own: every decision
// re-queries the engine.
type ContainerManager struct {
	scripts *ScriptHost
	engine  engine.Client
	locks   *ProjectLocks
	states  *StateManager
	metrics MetricsCollector
	opts    ContainerOptions
}

// NewContainerManager creates a new ContainerManager.
func NewContainerManager(scripts *ScriptHost, client engine.Client, states *StateManager, metrics MetricsCollector, opts ContainerOptions) *ContainerManager {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if states == nil {
		states = NewStateManager(metrics)
	}
	return &ContainerManager{
		scripts: scripts,
		engine:  client,
		locks:   NewProjectLocks(),
		states:  states,
		metrics: metrics,
		opts:    opts.withDefaults(),
	}
}

// States exposes the transition journal.
func (cm *ContainerManager) States() *StateManager {
	return cm.states
}

// Start launches the project's container and verifies it is running. It fails with
// types.ErrOrchestrationTimeout when the control script outlives its timeout, a
// *types.ScriptError when the script exits non-zero, and a *types.StartError carrying the
// container's recent logs when the script succeeded but no running instance appeared.
func (cm *ContainerManager) Start(ctx context.Context, project string) error {
	unlock := cm.locks.Lock(project)
	defer unlock()
	return cm.start(ctx, project)
}

// Stop stops the project's container. Stopping a project that has no instance succeeds.
func (cm *ContainerManager) Stop(ctx context.Context, project string) error {
	unlock := cm.locks.Lock(project)
	defer unlock()
	return cm.stop(ctx, project)
}

// Restart stops then starts the container under one lock acquisition. A failed stop is
// logged and ignored; the start error is returned.
func (cm *ContainerManager) Restart(ctx context.Context, project string) error {
	unlock := cm.locks.Lock(project)
	defer unlock()

	if err := cm.stop(ctx, project); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("project", project).Str("action", "restart").Msg("stop before restart failed, starting anyway")
	}
	return cm.start(ctx, project)
}

// Status returns the engine's state string for the project's container ("running",
// "exited", ...), types.StatusNotFound when there is none, or types.StatusUnknown when the
// engine could not be queried.
func (cm *ContainerManager) Status(ctx context.Context, project string) string {
	name := types.ContainerName(project)
	inst, err := cm.engine.Inspect(ctx, name)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("project", project).Str("container", name).Msg("container status query failed")
		return types.StatusUnknown
	}
	if inst == nil {
		return types.StatusNotFound
	}
	return inst.State
}

func (cm *ContainerManager) start(ctx context.Context, project string) error {
	name := types.ContainerName(project)
	logger := log.Ctx(ctx).With().Str("project", project).Str("action", "start").Str("container", name).Logger()

	workspace := cm.scripts.WorkspaceDir(project)
	if info, err := os.Stat(workspace); err != nil || !info.IsDir() {
		err := fmt.Errorf("%w: %s", types.ErrWorkspaceMissing, workspace)
		cm.metrics.OrchestrationError("start", err)
		return err
	}

	cm.states.Transition(ctx, project, types.StateStarting)
	logger.Info().Str("port", cm.opts.ServicePort.Port()).Msg("starting container")

	args := []string{"start", project, "--port=" + cm.opts.ServicePort.Port()}
	res, err := cm.scripts.Run(ctx, "start", ControlScript, args, cm.opts.ControlTimeout)
	if err = cm.scriptOutcome("start", project, res, err); err != nil {
		cm.fail(ctx, project, "start", err)
		return err
	}

	logger.Info().Dur("grace", cm.opts.GraceDelay).Msg("control script finished, waiting for container")
	if err := sleepCtx(ctx, cm.opts.GraceDelay); err != nil {
		cm.fail(ctx, project, "start", err)
		return err
	}

	if cm.waitRunning(ctx, name) {
		cm.states.Transition(ctx, project, types.StateRunning)
		logger.Info().Msg("container is running")
		return nil
	}
	if ctx.Err() != nil {
		cm.fail(ctx, project, "start", ctx.Err())
		return ctx.Err()
	}

	startErr := &types.StartError{Container: name, Logs: cm.recentLogs(ctx, name)}
	cm.fail(ctx, project, "start", startErr)
	logger.Error().Str("logs", startErr.Logs).Msg("container did not start")
	return startErr
}

func (cm *ContainerManager) stop(ctx context.Context, project string) error {
	name := types.ContainerName(project)
	logger := log.Ctx(ctx).With().Str("project", project).Str("action", "stop").Str("container", name).Logger()

	cm.states.Transition(ctx, project, types.StateStopping)
	logger.Info().Msg("stopping container")

	res, err := cm.scripts.Run(ctx, "stop", ControlScript, []string{"stop", project}, cm.opts.ControlTimeout)
	err = cm.scriptOutcome("stop", project, res, err)

	var scriptErr *types.ScriptError
	if errors.As(err, &scriptErr) {
		// The control program fails on containers that do not exist; that is a stopped project.
		inst, inspectErr := cm.engine.Inspect(ctx, name)
		if inspectErr == nil && inst == nil {
			logger.Info().Int("exit_code", scriptErr.ExitCode).Msg("no container to stop")
			err = nil
		}
	}
	if err != nil {
		cm.metrics.OrchestrationError("stop", err)
		logger.Error().Err(err).Msg("stop failed")
		return err
	}

	cm.states.Transition(ctx, project, types.StateStopped)
	logger.Info().Msg("container stopped")
	return nil
}

// scriptOutcome maps a control script run onto the orchestrator's error kinds.
func (cm *ContainerManager) scriptOutcome(action, project string, res process.Result, err error) error {
	switch {
	case errors.Is(err, process.ErrTimeout):
		return fmt.Errorf("%w: %s %s after %s, output: %s", types.ErrOrchestrationTimeout, action, project, cm.opts.ControlTimeout, res.Output)
	case err != nil:
		return fmt.Errorf("%s %s: %w", action, project, err)
	case !res.Success():
		return &types.ScriptError{Action: action, Project: project, ExitCode: res.ExitCode, Output: res.Output}
	}
	return nil
}

func (cm *ContainerManager) fail(ctx context.Context, project, action string, err error) {
	cm.states.Transition(ctx, project, types.StateFailed)
	cm.metrics.OrchestrationError(action, err)
}

// waitRunning polls the engine until a running instance named name shows up or the
// readiness window closes. Engine errors count as "not yet".
func (cm *ContainerManager) waitRunning(ctx context.Context, name string) bool {
	retries := uint64(cm.opts.ReadinessWindow / cm.opts.PollInterval)
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(cm.opts.PollInterval), retries), ctx)

	err := backoff.Retry(func() error {
		running, err := cm.engine.ListRunning(ctx, name)
		if err != nil {
			log.Ctx(ctx).Debug().Err(err).Str("container", name).Msg("readiness check failed")
			return err
		}
		for _, inst := range running {
			if inst.Running() {
				return nil
			}
		}
		return errNotRunning
	}, b)
	return err == nil
}

var errNotRunning = errors.New("container not running")

// recentLogs returns the last lines the container wrote. It never returns an empty string so
// a did-not-start error always carries something to look at.
func (cm *ContainerManager) recentLogs(ctx context.Context, name string) string {
	logs, err := cm.engine.Logs(ctx, name, cm.opts.LogTail)
	logs = strings.TrimSpace(logs)
	switch {
	case err != nil && logs != "":
		return logs + "\nERROR: " + err.Error()
	case err != nil:
		return "ERROR: could not fetch logs: " + err.Error()
	case logs == "":
		return "(container produced no log output)"
	}
	return logs
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
