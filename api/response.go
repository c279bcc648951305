package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"mockyard/types"
)

// Response is the JSON envelope every API endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorDetail carries diagnostic output of a failed orchestration step.
type ErrorDetail struct {
	Kind     string `json:"kind"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Output   string `json:"output,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to encode response")
	}
}

func writeOK(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	writeJSON(w, r, status, Response{Success: true, Message: message, Data: data})
}

// writeError maps err to a status code and embeds any script output or container logs.
func writeError(w http.ResponseWriter, r *http.Request, prefix string, err error) {
	status := statusFor(err)
	logger := hlog.FromRequest(r)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg(prefix)
	} else {
		logger.Debug().Err(err).Msg(prefix)
	}
	writeJSON(w, r, status, Response{Message: prefix + ": " + err.Error(), Data: detailFor(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrProjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrInvalidProject):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrProjectExists):
		return http.StatusConflict
	case errors.Is(err, types.ErrOrchestrationTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func detailFor(err error) *ErrorDetail {
	var (
		scriptErr *types.ScriptError
		startErr  *types.StartError
		genErr    *types.GenerationError
	)
	switch {
	case errors.As(err, &scriptErr):
		return &ErrorDetail{Kind: "script_failed", ExitCode: &scriptErr.ExitCode, Output: scriptErr.Output}
	case errors.As(err, &startErr):
		return &ErrorDetail{Kind: "did_not_start", Output: startErr.Logs}
	case errors.As(err, &genErr):
		return &ErrorDetail{Kind: "generation_failed", ExitCode: &genErr.ExitCode, Output: genErr.Output}
	case errors.Is(err, types.ErrOrchestrationTimeout):
		return &ErrorDetail{Kind: "timeout"}
	}
	return nil
}
