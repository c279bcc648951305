package cmd

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog/log"

	"mockyard/config"
	"mockyard/engine"
	"mockyard/manager"
	"mockyard/process"
)

// orchestrator bundles the pieces every command needs to drive containers.
type orchestrator struct {
	runner     *process.Runner
	runtime    string
	engine     engine.Client
	network    *manager.NetworkBootstrapper
	scripts    *manager.ScriptHost
	containers *manager.ContainerManager
	closers    []func() error
}

// newOrchestrator resolves the script runtime once and builds the lifecycle controller on top
// of the configured engine client.
func newOrchestrator(ctx context.Context, cfg config.Config, metrics manager.MetricsCollector) (*orchestrator, error) {
	o := &orchestrator{
		runner: process.NewRunner(process.WithMaxLines(cfg.Orchestration.OutputLines)),
	}

	runtime, err := process.ResolveInterpreter(ctx, o.runner, cfg.Orchestration.Interpreters, cfg.Orchestration.ProbeTimeout)
	if err != nil {
		return nil, err
	}
	o.runtime = runtime

	switch cfg.Engine.Driver {
	case "api":
		var opts []client.Opt
		if cfg.Engine.Host != "" {
			opts = append(opts, client.WithHost(cfg.Engine.Host))
		}
		api, err := engine.NewAPIClient(opts...)
		if err != nil {
			return nil, err
		}
		o.engine = api
		o.closers = append(o.closers, api.Close)
	default:
		o.engine = engine.NewCLIClient(o.runner, cfg.Engine.Binary, engine.DefaultCLITimeout)
	}

	o.network = manager.NewNetworkBootstrapper(o.engine, cfg.Network, metrics)

	o.scripts, err = manager.NewScriptHost(o.runner, runtime, cfg.ScriptDir, cfg.BaseDir, cfg.Network, metrics)
	if err != nil {
		o.Close()
		return nil, err
	}

	port, err := nat.NewPort("tcp", cfg.Orchestration.ServicePort)
	if err != nil {
		o.Close()
		return nil, fmt.Errorf("service port: %w", err)
	}
	o.containers = manager.NewContainerManager(o.scripts, o.engine, manager.NewStateManager(metrics), metrics, manager.ContainerOptions{
		ControlTimeout:  cfg.Orchestration.ControlTimeout,
		GraceDelay:      cfg.Orchestration.GraceDelay,
		ReadinessWindow: cfg.Orchestration.ReadinessWindow,
		PollInterval:    cfg.Orchestration.PollInterval,
		LogTail:         cfg.Orchestration.LogTail,
		ServicePort:     port,
	})
	return o, nil
}

// ensureNetwork bootstraps the shared network. Failures are logged; the caller carries on.
func (o *orchestrator) ensureNetwork(ctx context.Context) {
	if err := o.network.Ensure(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("network", o.network.Name()).Msg("continuing without a verified network")
	}
}

func (o *orchestrator) Close() {
	for _, c := range o.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}
