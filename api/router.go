// Package api exposes the project workspace service over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Options wires the router's collaborators.
type Options struct {
	Workspaces     Workspaces
	Domains        Domains      // Optional
	Proxy          http.Handler // Optional, mounted at /mocks/{name}
	Registry       *prometheus.Registry
	IdentityHeader string
	Admins         []string
	Logger         zerolog.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()
	for _, mw := range RequestLogger(opts.Logger) {
		r.Use(mw)
	}
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, r, http.StatusOK, "ok", nil)
	})
	if opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{Registry: opts.Registry}))
	}
	if opts.Proxy != nil {
		r.Handle("/mocks/{name}", opts.Proxy)
		r.Handle("/mocks/{name}/*", opts.Proxy)
	}

	projects := NewProjectHandler(opts.Workspaces)
	var domains *DomainHandler
	if opts.Domains != nil {
		domains = NewDomainHandler(opts.Domains, opts.Workspaces)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireIdentity(opts.IdentityHeader))

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", projects.ListProjects)
			r.Post("/", projects.CreateProject)
			r.Delete("/{id}", projects.DeleteProject)
			r.Post("/{name}/generate", projects.RegenerateProject)
			if domains != nil {
				r.Get("/{name}/domain", domains.GetDomainForProject)
			}
		})

		r.Route("/docker", func(r chi.Router) {
			r.Post("/start/{name}", projects.StartContainer)
			r.Post("/stop/{name}", projects.StopContainer)
			r.Post("/restart/{name}", projects.RestartContainer)
			r.Get("/status/{name}", projects.ContainerStatus)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin(opts.Admins))
			r.Get("/projects", projects.ListAllProjects)
			if domains != nil {
				r.Get("/domains", domains.ListAllDomains)
			}
		})
	})
	return r
}
