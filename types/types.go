package types

// ContainerState represents the lifecycle phase of a project's container as seen by the
// controller. It is reported, never cached: the engine is always the source of truth.
type ContainerState string

const (
	// Container lifecycle states
	StateUnknown  ContainerState = "unknown"  // Nothing observed yet
	StateStarting ContainerState = "starting" // Control script launched
	StateRunning  ContainerState = "running"  // Listed as running by the engine
	StateFailed   ContainerState = "failed"   // Start attempt did not produce a running instance
	StateStopping ContainerState = "stopping" // Stop issued
	StateStopped  ContainerState = "stopped"  // Stop completed
)

// StatusNotFound is reported when the engine knows no instance for a project.
const StatusNotFound = "not found"

// StatusUnknown is reported when the engine could not be queried.
const StatusUnknown = "unknown"

// ContainerNamePrefix correlates a project with its external container instance.
const ContainerNamePrefix = "mock-"

// ContainerName returns the container handle for a project.
func ContainerName(projectName string) string {
	return ContainerNamePrefix + projectName
}
