// Package engine is the narrow view the orchestrator has of the external container engine:
// network existence and creation, instance listing, and log retrieval. Nothing here caches
// engine state; every call re-queries the engine.
package engine

import "context"

// StateRunning is the engine's state string for a live instance.
const StateRunning = "running"

// Instance is one container as reported by the engine.
type Instance struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	State  string `json:"state"`  // Machine-readable: running, exited, created, ...
	Status string `json:"status"` // Human-readable, e.g. "Up 3 minutes"
}

// Running reports whether the engine lists the instance as running.
func (i Instance) Running() bool {
	return i.State == StateRunning
}

// Client queries and mutates the container engine.
type Client interface {
	// NetworkExists reports whether a network with exactly this name exists.
	NetworkExists(ctx context.Context, name string) (bool, error)
	// CreateNetwork creates a network. Creating one that already exists is not an error.
	CreateNetwork(ctx context.Context, name string) error
	// ListRunning returns running instances whose name is exactly name.
	ListRunning(ctx context.Context, name string) ([]Instance, error)
	// Inspect returns the instance named name in any state, or nil if there is none.
	Inspect(ctx context.Context, name string) (*Instance, error)
	// Logs returns the last tail lines of the instance's output. Error-stream lines are
	// prefixed with "ERROR: ".
	Logs(ctx context.Context, name string, tail int) (string, error)
}
