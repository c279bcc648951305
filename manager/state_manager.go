package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mockyard/types"
)

// projectLock is one entry of the lock table. refs counts holders and waiters so the entry
// can be dropped once nobody needs it.
type projectLock struct {
	mu   sync.Mutex
	refs int
}

// ProjectLocks serializes lifecycle operations per project name. Different projects never
// contend; there is no global lock.
type ProjectLocks struct {
	mu    sync.Mutex
	locks map[string]*projectLock
}

// NewProjectLocks creates an empty lock table.
func NewProjectLocks() *ProjectLocks {
	return &ProjectLocks{locks: make(map[string]*projectLock)}
}

// Lock blocks until the caller holds the lock for name and returns the release function.
func (pl *ProjectLocks) Lock(name string) (unlock func()) {
	pl.mu.Lock()
	l, ok := pl.locks[name]
	if !ok {
		l = &projectLock{}
		pl.locks[name] = l
	}
	l.refs++
	pl.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			pl.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(pl.locks, name)
			}
			pl.mu.Unlock()
		})
	}
}

// Len returns the number of names currently locked or waited on.
func (pl *ProjectLocks) Len() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.locks)
}

// observation is the last lifecycle state the controller reported for a project.
type observation struct {
	State types.ContainerState
	Since time.Time
}

// StateManager records lifecycle transitions as the controller reports them. It is a journal
// for logs, metrics and diagnostics; decisions always re-query the engine.
type StateManager struct {
	mu      sync.RWMutex
	states  map[string]observation // Key: project name
	metrics MetricsCollector
}

// NewStateManager creates a new StateManager.
func NewStateManager(metrics MetricsCollector) *StateManager {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &StateManager{
		states:  make(map[string]observation),
		metrics: metrics,
	}
}

// Transition records that project moved to state.
func (sm *StateManager) Transition(ctx context.Context, project string, to types.ContainerState) {
	sm.mu.Lock()
	from := sm.states[project].State
	if from == "" {
		from = types.StateUnknown
	}
	sm.states[project] = observation{State: to, Since: time.Now()}
	sm.mu.Unlock()

	sm.metrics.ContainerStateTransition(project, from, to)
	log.Ctx(ctx).Debug().Str("project", project).Str("from", string(from)).Str("to", string(to)).Msg("container state transition")
}

// LastReported returns the last reported state of project, StateUnknown if none.
func (sm *StateManager) LastReported(project string) (types.ContainerState, time.Time) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	obs, ok := sm.states[project]
	if !ok {
		return types.StateUnknown, time.Time{}
	}
	return obs.State, obs.Since
}

// Forget drops everything recorded for project, used when its workspace is deleted.
func (sm *StateManager) Forget(project string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.states, project)
}
