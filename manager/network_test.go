package manager

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockyard/engine"
	"mockyard/types"
)

type networkEngine struct {
	engine.Client

	mu          sync.Mutex
	exists      bool
	existsErr   error
	createErr   error
	existsCalls int
	createCalls int
}

func (e *networkEngine) NetworkExists(context.Context, string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.existsCalls++
	return e.exists, e.existsErr
}

func (e *networkEngine) CreateNetwork(context.Context, string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.createCalls++
	if e.createErr != nil {
		return e.createErr
	}
	e.exists = true
	return nil
}

func TestNetworkBootstrapCreatesOnce(t *testing.T) {
	eng := &networkEngine{}
	nb := NewNetworkBootstrapper(eng, "mocknet", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, nb.Ensure(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, eng.existsCalls)
	assert.Equal(t, 1, eng.createCalls)
	assert.Equal(t, "mocknet", nb.Name())
}

func TestNetworkBootstrapExistingNetwork(t *testing.T) {
	eng := &networkEngine{exists: true}
	nb := NewNetworkBootstrapper(eng, "mocknet", nil)

	require.NoError(t, nb.Ensure(context.Background()))
	assert.Equal(t, 0, eng.createCalls)
}

func TestNetworkBootstrapFailureIsRememberedNotRetried(t *testing.T) {
	eng := &networkEngine{existsErr: errors.New("cannot connect to the docker daemon")}
	nb := NewNetworkBootstrapper(eng, "mocknet", nil)

	err := nb.Ensure(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNetworkBootstrapFailed)
	assert.Contains(t, err.Error(), "cannot connect")

	assert.ErrorIs(t, nb.Ensure(context.Background()), types.ErrNetworkBootstrapFailed)
	assert.Equal(t, 1, eng.existsCalls)
}

func TestNetworkBootstrapCreateFailure(t *testing.T) {
	eng := &networkEngine{createErr: errors.New("pool overlaps")}
	nb := NewNetworkBootstrapper(eng, "mocknet", nil)

	assert.ErrorIs(t, nb.Ensure(context.Background()), types.ErrNetworkBootstrapFailed)
}
