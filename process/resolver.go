package process

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mockyard/types"
)

// DefaultProbeTimeout bounds each interpreter probe.
const DefaultProbeTimeout = 5 * time.Second

// ResolveInterpreter returns the first candidate that answers "--version" with exit status
// zero. Each probe is a short-lived process that is reaped before the next one starts.
// Callers compute this once and hold the answer; it cannot change during a run.
func ResolveInterpreter(ctx context.Context, runner *Runner, candidates []string, probeTimeout time.Duration) (string, error) {
	if len(candidates) == 0 {
		candidates = runner.Platform().InterpreterCandidates()
	}
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}

	logger := log.Ctx(ctx)
	for _, candidate := range candidates {
		res, err := runner.Run(ctx, Invocation{
			Args:    []string{candidate, "--version"},
			Timeout: probeTimeout,
			Quiet:   true,
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Debug().Err(err).Str("candidate", candidate).Msg("interpreter probe failed")
			continue
		}
		if !res.Success() {
			logger.Debug().Str("candidate", candidate).Int("exit_code", res.ExitCode).Msg("interpreter probe exited non-zero")
			continue
		}
		logger.Info().Str("interpreter", candidate).Str("version", strings.TrimSpace(res.Output)).Msg("script runtime detected")
		return candidate, nil
	}
	return "", fmt.Errorf("%w: tried %s", types.ErrNoRuntimeFound, strings.Join(candidates, ", "))
}
