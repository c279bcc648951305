package manager

import (
	"time"

	"mockyard/types"
)

// MetricsCollector receives orchestration events. metrics.PrometheusMetricsCollector is the
// production implementation.
type MetricsCollector interface {
	ContainerStateTransition(project string, from, to types.ContainerState)
	ScriptDuration(action string, duration time.Duration, err error)
	OrchestrationError(action string, err error)
	PermissionFailures(count int)
	NetworkBootstrap(created bool, err error)
}

// NopMetrics discards every event.
type NopMetrics struct{}

func (NopMetrics) ContainerStateTransition(string, types.ContainerState, types.ContainerState) {}
func (NopMetrics) ScriptDuration(string, time.Duration, error) {}
func (NopMetrics) OrchestrationError(string, error) {}
func (NopMetrics) PermissionFailures(int) {}
func (NopMetrics) NetworkBootstrap(bool, error) {}
