package types

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the orchestrator. Match them with errors.Is; the typed errors below
// carry the diagnostic text and unwrap to their kind.
var (
	ErrNoRuntimeFound         = errors.New("no script runtime found")
	ErrScriptMissing          = errors.New("script missing")
	ErrGenerationFailed       = errors.New("artifact generation failed")
	ErrOrchestrationTimeout   = errors.New("orchestration timed out")
	ErrControlScriptFailed    = errors.New("container control script failed")
	ErrContainerDidNotStart   = errors.New("container did not start")
	ErrNetworkBootstrapFailed = errors.New("network bootstrap failed")
	ErrPermissionFixFailed    = errors.New("permission fix failed")

	ErrProjectExists    = errors.New("project already exists")
	ErrProjectNotFound  = errors.New("project not found")
	ErrInvalidProject   = errors.New("invalid project")
	ErrWorkspaceMissing = errors.New("workspace missing")
)

// GenerationError is returned when the generation program exits non-zero.
type GenerationError struct {
	Project  string
	ExitCode int
	Output   string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation for project %s exited with code %d: %s", e.Project, e.ExitCode, e.Output)
}

func (e *GenerationError) Unwrap() error {
	return ErrGenerationFailed
}

// ScriptError is returned when the container control program exits non-zero.
type ScriptError struct {
	Action   string
	Project  string
	ExitCode int
	Output   string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("control script %s for project %s exited with code %d, output: %s", e.Action, e.Project, e.ExitCode, e.Output)
}

func (e *ScriptError) Unwrap() error {
	return ErrControlScriptFailed
}

// StartError is returned when a start request completed but the instance is not running.
// Logs holds the tail of the instance's output so callers need no second round trip.
type StartError struct {
	Container string
	Logs      string
}

func (e *StartError) Error() string {
	return fmt.Sprintf("container %s stopped after start, logs: %s", e.Container, e.Logs)
}

func (e *StartError) Unwrap() error {
	return ErrContainerDidNotStart
}

// PermissionError records a path whose permissions could not be normalized.
type PermissionError struct {
	Path string
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("fix permissions for %s: %v", e.Path, e.Err)
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionFixFailed
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}
