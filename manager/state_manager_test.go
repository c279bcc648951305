package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mockyard/types"
)

type recordingMetrics struct {
	NopMetrics
	mu          sync.Mutex
	transitions []string
}

func (r *recordingMetrics) ContainerStateTransition(project string, from, to types.ContainerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, project+":"+string(from)+"->"+string(to))
}

// TestContainerStateTransitions tests that transitions are journaled and reported
func TestContainerStateTransitions(t *testing.T) {
	metrics := &recordingMetrics{}
	sm := NewStateManager(metrics)
	ctx := context.Background()

	state, since := sm.LastReported("orders")
	if state != types.StateUnknown || !since.IsZero() {
		t.Errorf("Expected initial state to be unknown, got %s at %v", state, since)
	}

	sm.Transition(ctx, "orders", types.StateStarting)
	sm.Transition(ctx, "orders", types.StateRunning)
	sm.Transition(ctx, "orders", types.StateStopping)
	sm.Transition(ctx, "orders", types.StateStopped)

	state, since = sm.LastReported("orders")
	if state != types.StateStopped {
		t.Errorf("Expected state to be stopped, got %s", state)
	}
	if time.Since(since) > time.Minute {
		t.Errorf("Expected a recent transition time, got %v", since)
	}

	want := []string{
		"orders:unknown->starting",
		"orders:starting->running",
		"orders:running->stopping",
		"orders:stopping->stopped",
	}
	if len(metrics.transitions) != len(want) {
		t.Fatalf("Expected %d reported transitions, got %v", len(want), metrics.transitions)
	}
	for i := range want {
		if metrics.transitions[i] != want[i] {
			t.Errorf("Transition %d: expected %s, got %s", i, want[i], metrics.transitions[i])
		}
	}

	sm.Forget("orders")
	if state, _ := sm.LastReported("orders"); state != types.StateUnknown {
		t.Errorf("Expected forgotten project to be unknown, got %s", state)
	}
}

// TestProjectLocksSerializeSameName tests that holders of the same name never overlap
func TestProjectLocksSerializeSameName(t *testing.T) {
	locks := NewProjectLocks()
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("orders")
			defer unlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("Expected at most one holder at a time, saw %d", maxActive)
	}
	if locks.Len() != 0 {
		t.Errorf("Expected the lock table to be empty after release, has %d entries", locks.Len())
	}
}

// TestProjectLocksIndependentNames tests that different names do not block each other
func TestProjectLocksIndependentNames(t *testing.T) {
	locks := NewProjectLocks()
	unlockA := locks.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for lock on an unrelated project")
	}

	if locks.Len() != 1 {
		t.Errorf("Expected one held entry, got %d", locks.Len())
	}

	// Releasing twice must not corrupt the table.
	unlockA()
	unlockA()
	if locks.Len() != 0 {
		t.Errorf("Expected empty lock table, got %d", locks.Len())
	}
}
