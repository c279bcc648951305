package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mockyard/process"
	"mockyard/types"
)

// Script file names expected in the script directory.
const (
	GenerateScript = "generate.py"
	ControlScript  = "docker_control.py"
)

// ScriptHost runs the external helper programs with the resolved runtime. Every invocation
// gets the script directory as working directory and BASE_DIR/DOCKER_NETWORK in its
// environment.
type ScriptHost struct {
	runner  *process.Runner
	runtime string
	dir     string
	baseDir string
	network string
	metrics MetricsCollector
}

// NewScriptHost resolves dir and baseDir to absolute paths. runtime is the interpreter found
// by process.ResolveInterpreter.
func NewScriptHost(runner *process.Runner, runtime, dir, baseDir, network string, metrics MetricsCollector) (*ScriptHost, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve script dir %s: %w", dir, err)
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir %s: %w", baseDir, err)
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &ScriptHost{
		runner:  runner,
		runtime: runtime,
		dir:     absDir,
		baseDir: absBase,
		network: network,
		metrics: metrics,
	}, nil
}

// Runtime returns the interpreter used for every script.
func (h *ScriptHost) Runtime() string {
	return h.runtime
}

// BaseDir returns the absolute workspace root.
func (h *ScriptHost) BaseDir() string {
	return h.baseDir
}

// WorkspaceDir returns the absolute workspace directory of a project.
func (h *ScriptHost) WorkspaceDir(project string) string {
	return filepath.Join(h.baseDir, project)
}

// Path returns the absolute path of a script.
func (h *ScriptHost) Path(script string) string {
	return filepath.Join(h.dir, script)
}

// Check fails with types.ErrScriptMissing if the script is not a regular file.
func (h *ScriptHost) Check(script string) error {
	info, err := os.Stat(h.Path(script))
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", types.ErrScriptMissing, h.Path(script))
	}
	return nil
}

// Run executes script with args. A zero timeout leaves the run bounded only by ctx. The
// result is returned even on error so callers can embed partial output.
func (h *ScriptHost) Run(ctx context.Context, action, script string, args []string, timeout time.Duration) (process.Result, error) {
	if err := h.Check(script); err != nil {
		return process.Result{ExitCode: -1}, err
	}

	argv := append([]string{h.runtime, h.Path(script)}, args...)
	res, err := h.runner.Run(ctx, process.Invocation{
		Args:    argv,
		Dir:     h.dir,
		Env:     map[string]string{"BASE_DIR": h.baseDir, "DOCKER_NETWORK": h.network},
		Timeout: timeout,
		Tag:     action,
	})
	if err == nil && !res.Success() {
		h.metrics.ScriptDuration(action, res.Duration, errors.New("non-zero exit"))
	} else {
		h.metrics.ScriptDuration(action, res.Duration, err)
	}
	return res, err
}
