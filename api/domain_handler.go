package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi"

	"mockyard/types"
)

// Domains exposes published mock endpoints. *cloudflare.Manager satisfies it.
type Domains interface {
	GetProjectDomain(project types.Project) (types.ProjectDomain, bool)
	GetAllDomains() []types.ProjectDomain
}

// DomainHandler handles API requests related to domains.
type DomainHandler struct {
	domains    Domains
	workspaces Workspaces
}

// NewDomainHandler creates a new DomainHandler.
func NewDomainHandler(d Domains, ws Workspaces) *DomainHandler {
	return &DomainHandler{
		domains:    d,
		workspaces: ws,
	}
}

// GetDomainForProject returns the published domain of one of the caller's projects.
func (h *DomainHandler) GetDomainForProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	project, err := h.workspaces.Get(r.Context(), Identity(r.Context()), name)
	if err != nil {
		writeError(w, r, "failed to look up project", err)
		return
	}

	domain, exists := h.domains.GetProjectDomain(*project)
	if !exists {
		writeJSON(w, r, http.StatusNotFound, Response{Message: fmt.Sprintf("no domain published for project %s", name)})
		return
	}
	writeOK(w, r, http.StatusOK, "", domain)
}

// ListAllDomains returns every published domain. Mounted behind RequireAdmin.
func (h *DomainHandler) ListAllDomains(w http.ResponseWriter, r *http.Request) {
	writeOK(w, r, http.StatusOK, "", h.domains.GetAllDomains())
}
