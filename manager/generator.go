package manager

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"mockyard/types"
)

// GenerateRequest names the inputs and output location of one generation run.
type GenerateRequest struct {
	Project   string
	WSDLPath  string
	XSDPath   string // Optional
	OutputDir string
}

// Generator drives the external artifact generation program.
type Generator struct {
	scripts *ScriptHost
	metrics MetricsCollector
}

// NewGenerator creates a Generator running through scripts.
func NewGenerator(scripts *ScriptHost, metrics MetricsCollector) *Generator {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Generator{scripts: scripts, metrics: metrics}
}

// Generate runs the generation program to completion. It has no timeout of its own; cancel
// ctx to abort it. A non-zero exit returns a *types.GenerationError with the full output.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) error {
	logger := log.Ctx(ctx).With().Str("project", req.Project).Str("action", "generate").Logger()

	args, err := generateArgs(req)
	if err != nil {
		return err
	}

	logger.Info().Str("wsdl", req.WSDLPath).Str("output", req.OutputDir).Msg("generating mock artifacts")
	res, err := g.scripts.Run(ctx, "generate", GenerateScript, args, 0)
	if err != nil {
		g.metrics.OrchestrationError("generate", err)
		return fmt.Errorf("generate %s: %w", req.Project, err)
	}
	if !res.Success() {
		genErr := &types.GenerationError{Project: req.Project, ExitCode: res.ExitCode, Output: res.Output}
		g.metrics.OrchestrationError("generate", genErr)
		logger.Error().Int("exit_code", res.ExitCode).Msg("generation failed")
		return genErr
	}

	logger.Info().Dur("duration", res.Duration).Msg("generation finished")
	return nil
}

func generateArgs(req GenerateRequest) ([]string, error) {
	wsdl, err := filepath.Abs(req.WSDLPath)
	if err != nil {
		return nil, fmt.Errorf("resolve wsdl path: %w", err)
	}
	out, err := filepath.Abs(req.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	args := []string{"--project=" + req.Project, "--wsdl=" + wsdl}
	if req.XSDPath != "" {
		xsd, err := filepath.Abs(req.XSDPath)
		if err != nil {
			return nil, fmt.Errorf("resolve xsd path: %w", err)
		}
		args = append(args, "--xsd="+xsd)
	}
	return append(args, "--output="+out), nil
}
