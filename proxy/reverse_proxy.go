// Package proxy forwards mock traffic to running project containers.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog/hlog"

	"mockyard/types"
)

// StatusSource reports a project's container state. *manager.ContainerManager satisfies it.
type StatusSource interface {
	Status(ctx context.Context, project string) string
}

// ReverseProxyHandler routes /mocks/{name}/... to the project's container. The engine is asked
// for the container state on every request; nothing is cached.
type ReverseProxyHandler struct {
	status    StatusSource
	target    string // Template with {{name}}, {{container}} and {{port}}
	port      string
	transport http.RoundTripper
}

// NewReverseProxyHandler creates a new ReverseProxyHandler.
func NewReverseProxyHandler(status StatusSource, targetTemplate, servicePort string) *ReverseProxyHandler {
	return &ReverseProxyHandler{
		status: status,
		target: targetTemplate,
		port:   servicePort,
	}
}

// WithTransport overrides the transport used to reach containers.
func (h *ReverseProxyHandler) WithTransport(rt http.RoundTripper) *ReverseProxyHandler {
	h.transport = rt
	return h
}

// TargetFor returns the upstream URL of a project.
func (h *ReverseProxyHandler) TargetFor(project string) (*url.URL, error) {
	raw := strings.NewReplacer(
		"{{name}}", project,
		"{{container}}", types.ContainerName(project),
		"{{port}}", h.port,
	).Replace(h.target)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("target for project %s: %w", project, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("target for project %s: %q is not an absolute URL", project, raw)
	}
	return u, nil
}

func (h *ReverseProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	logger := hlog.FromRequest(r).With().Str("project", name).Logger()
	if !types.ValidProjectName(name) {
		http.Error(w, fmt.Sprintf("Project '%s' not found", name), http.StatusNotFound)
		return
	}

	if state := h.status.Status(r.Context(), name); state != "running" {
		logger.Debug().Str("state", state).Msg("mock not running, rejecting request")
		http.Error(w, fmt.Sprintf("Mock for project %s is not running (status: %s)", name, state), http.StatusServiceUnavailable)
		return
	}

	targetURL, err := h.TargetFor(name)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build target URL")
		http.Error(w, fmt.Sprintf("Internal server error: %v", err), http.StatusInternalServerError)
		return
	}

	reverseProxy := httputil.NewSingleHostReverseProxy(targetURL)
	if h.transport != nil {
		reverseProxy.Transport = h.transport
	}
	reverseProxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn().Err(err).Str("target", targetURL.String()).Msg("mock upstream unreachable")
		http.Error(w, fmt.Sprintf("Mock for project %s is unreachable", name), http.StatusBadGateway)
	}

	// The mock sees paths relative to its own root.
	out := r.Clone(r.Context())
	out.URL.Path = "/" + chi.URLParam(r, "*")
	out.URL.RawPath = ""

	logger.Debug().Str("target", targetURL.String()).Str("path", out.URL.Path).Msg("forwarding request")
	reverseProxy.ServeHTTP(w, out)
}
