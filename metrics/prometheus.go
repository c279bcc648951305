// Package metrics exposes orchestrator activity as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mockyard/types"
)

// PrometheusMetricsCollector implements manager.MetricsCollector using Prometheus metrics
type PrometheusMetricsCollector struct {
	stateTransitions *prometheus.CounterVec
	scriptDuration   *prometheus.HistogramVec
	errors           *prometheus.CounterVec
	permFailures     prometheus.Counter
	networkEnsures   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a collector with its own registry. The registry also
// carries the Go runtime and process collectors.
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "mockyard"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "container_state_transitions_total",
			Help:      "Total number of container lifecycle transitions observed by the controller",
		},
		[]string{"project", "from_state", "to_state"},
	)

	pmc.scriptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "script_duration_seconds",
			Help:      "Duration of generation and container control script runs",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"action", "status"},
	)

	pmc.errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orchestration_errors_total",
			Help:      "Total number of orchestration failures by kind",
		},
		[]string{"action", "kind"},
	)

	pmc.permFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_fix_failures_total",
			Help:      "Total number of paths whose permissions could not be normalized",
		},
	)

	pmc.networkEnsures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_bootstrap_total",
			Help:      "Outcome of shared network bootstrap attempts",
		},
		[]string{"result"},
	)

	pmc.registry.MustRegister(
		pmc.stateTransitions,
		pmc.scriptDuration,
		pmc.errors,
		pmc.permFailures,
		pmc.networkEnsures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return pmc
}

// ContainerStateTransition records a lifecycle transition.
func (pmc *PrometheusMetricsCollector) ContainerStateTransition(project string, from, to types.ContainerState) {
	pmc.stateTransitions.WithLabelValues(project, string(from), string(to)).Inc()
}

// ScriptDuration records one script run.
func (pmc *PrometheusMetricsCollector) ScriptDuration(action string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	pmc.scriptDuration.WithLabelValues(action, status).Observe(duration.Seconds())
}

// OrchestrationError records a failed operation, classified by error kind.
func (pmc *PrometheusMetricsCollector) OrchestrationError(action string, err error) {
	pmc.errors.WithLabelValues(action, ErrorKind(err)).Inc()
}

// PermissionFailures adds count failed paths.
func (pmc *PrometheusMetricsCollector) PermissionFailures(count int) {
	if count > 0 {
		pmc.permFailures.Add(float64(count))
	}
}

// NetworkBootstrap records the outcome of ensuring the shared network.
func (pmc *PrometheusMetricsCollector) NetworkBootstrap(created bool, err error) {
	result := "exists"
	switch {
	case err != nil:
		result = "error"
	case created:
		result = "created"
	}
	pmc.networkEnsures.WithLabelValues(result).Inc()
}

// Registry returns the Prometheus registry for HTTP handler setup
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

// ErrorKind maps an orchestration error to a short, bounded label value.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, types.ErrOrchestrationTimeout):
		return "timeout"
	case errors.Is(err, types.ErrContainerDidNotStart):
		return "did_not_start"
	case errors.Is(err, types.ErrControlScriptFailed):
		return "script_failed"
	case errors.Is(err, types.ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, types.ErrScriptMissing):
		return "script_missing"
	case errors.Is(err, types.ErrWorkspaceMissing):
		return "workspace_missing"
	case errors.Is(err, types.ErrNoRuntimeFound):
		return "no_runtime"
	case errors.Is(err, types.ErrNetworkBootstrapFailed):
		return "network"
	default:
		return "other"
	}
}
