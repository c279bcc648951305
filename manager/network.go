package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"mockyard/engine"
	"mockyard/types"
)

// NetworkBootstrapper makes sure the shared network every mock container joins exists. The
// check runs at most once per process.
type NetworkBootstrapper struct {
	engine  engine.Client
	name    string
	metrics MetricsCollector

	once sync.Once
	err  error
}

// NewNetworkBootstrapper creates a bootstrapper for the named network.
func NewNetworkBootstrapper(client engine.Client, name string, metrics MetricsCollector) *NetworkBootstrapper {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &NetworkBootstrapper{engine: client, name: name, metrics: metrics}
}

// Name returns the network name.
func (nb *NetworkBootstrapper) Name() string {
	return nb.name
}

// Ensure checks for the network and creates it if absent. Later calls return the first
// outcome without touching the engine. Failures wrap types.ErrNetworkBootstrapFailed; callers
// are expected to log and continue.
func (nb *NetworkBootstrapper) Ensure(ctx context.Context) error {
	nb.once.Do(func() {
		created, err := nb.ensure(ctx)
		nb.metrics.NetworkBootstrap(created, err)
		if err != nil {
			nb.err = fmt.Errorf("%w: %s: %v", types.ErrNetworkBootstrapFailed, nb.name, err)
			log.Ctx(ctx).Error().Err(err).Str("network", nb.name).Msg("network bootstrap failed")
		}
	})
	return nb.err
}

func (nb *NetworkBootstrapper) ensure(ctx context.Context) (bool, error) {
	logger := log.Ctx(ctx).With().Str("network", nb.name).Logger()

	exists, err := nb.engine.NetworkExists(ctx, nb.name)
	if err != nil {
		return false, err
	}
	if exists {
		logger.Info().Msg("shared network already exists")
		return false, nil
	}

	logger.Info().Msg("creating shared network")
	if err := nb.engine.CreateNetwork(ctx, nb.name); err != nil {
		return false, err
	}
	logger.Info().Msg("shared network created")
	return true, nil
}
