package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"

	"mockyard/manager"
	"mockyard/types"
)

// MaxUploadSize bounds the multipart body of a project creation request.
const MaxUploadSize = 32 << 20

// Workspaces is the project service the handlers drive. *manager.WorkspaceService satisfies it.
type Workspaces interface {
	CreateWorkspaceAndStart(ctx context.Context, req manager.CreateRequest) (*manager.CreateResult, error)
	DeleteWorkspace(ctx context.Context, owner string, id uuid.UUID) error
	Regenerate(ctx context.Context, owner, name string) error
	Get(ctx context.Context, owner, name string) (*types.Project, error)
	List(ctx context.Context, owner string) ([]types.Project, error)
	ListAll(ctx context.Context) ([]types.Project, error)
	StartProject(ctx context.Context, owner, name string) error
	StopProject(ctx context.Context, owner, name string) error
	RestartProject(ctx context.Context, owner, name string) error
	ProjectStatus(ctx context.Context, owner, name string) (string, error)
}

// ProjectHandler handles API requests related to projects.
type ProjectHandler struct {
	workspaces Workspaces
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(ws Workspaces) *ProjectHandler {
	return &ProjectHandler{workspaces: ws}
}

// ListProjects returns the caller's projects.
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.workspaces.List(r.Context(), Identity(r.Context()))
	if err != nil {
		writeError(w, r, "failed to list projects", err)
		return
	}
	writeOK(w, r, http.StatusOK, "", projects)
}

// ListAllProjects returns every project. Mounted behind RequireAdmin.
func (h *ProjectHandler) ListAllProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.workspaces.ListAll(r.Context())
	if err != nil {
		writeError(w, r, "failed to list projects", err)
		return
	}
	writeOK(w, r, http.StatusOK, "", projects)
}

// CreateProject accepts a multipart form with projectName, wsdlFile and an optional xsdFile.
// Generation and start failures do not fail the request; they are reported as warnings.
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		writeError(w, r, "invalid upload", fmt.Errorf("%w: %v", types.ErrInvalidProject, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	name := r.FormValue("projectName")
	wsdl, wsdlHeader, err := r.FormFile("wsdlFile")
	if err != nil {
		writeError(w, r, "WSDL file is required", fmt.Errorf("%w: %v", types.ErrInvalidProject, err))
		return
	}
	defer wsdl.Close()

	req := manager.CreateRequest{
		Owner: Identity(r.Context()),
		Name:  name,
		WSDL:  manager.Upload{Filename: wsdlHeader.Filename, Content: wsdl},
	}

	xsd, xsdHeader, err := r.FormFile("xsdFile")
	switch {
	case err == nil:
		defer xsd.Close()
		req.XSD = &manager.Upload{Filename: xsdHeader.Filename, Content: xsd}
	case !errors.Is(err, http.ErrMissingFile):
		writeError(w, r, "invalid XSD upload", fmt.Errorf("%w: %v", types.ErrInvalidProject, err))
		return
	}

	hlog.FromRequest(r).Info().Str("project", name).Str("wsdl", wsdlHeader.Filename).Bool("xsd", req.XSD != nil).
		Msg("creating project")

	result, err := h.workspaces.CreateWorkspaceAndStart(r.Context(), req)
	if err != nil {
		writeError(w, r, "failed to create project", err)
		return
	}

	message := "project created"
	if len(result.Warnings) > 0 {
		message = "project created with warnings"
	}
	writeOK(w, r, http.StatusCreated, message, result)
}

// DeleteProject removes one of the caller's projects by id.
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "invalid project id", fmt.Errorf("%w: %v", types.ErrProjectNotFound, err))
		return
	}
	if err := h.workspaces.DeleteWorkspace(r.Context(), Identity(r.Context()), id); err != nil {
		writeError(w, r, "failed to delete project", err)
		return
	}
	writeOK(w, r, http.StatusOK, "project deleted", map[string]string{"id": id.String()})
}

// RegenerateProject reruns artifact generation for one of the caller's projects.
func (h *ProjectHandler) RegenerateProject(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.workspaces.Regenerate(r.Context(), Identity(r.Context()), name); err != nil {
		writeError(w, r, "generation failed", err)
		return
	}
	writeOK(w, r, http.StatusOK, "artifacts generated", map[string]string{"projectName": name})
}

type containerAction func(ctx context.Context, owner, name string) error

func (h *ProjectHandler) container(verb, done string, action containerAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		hlog.FromRequest(r).Info().Str("project", name).Str("action", verb).Msg("container request")
		if err := action(r.Context(), Identity(r.Context()), name); err != nil {
			writeError(w, r, verb+" failed", err)
			return
		}
		writeOK(w, r, http.StatusOK, done, map[string]string{"projectName": name})
	}
}

// StartContainer starts the project's mock container and waits until it runs.
func (h *ProjectHandler) StartContainer(w http.ResponseWriter, r *http.Request) {
	h.container("start", "container started", h.workspaces.StartProject)(w, r)
}

// StopContainer stops the project's mock container.
func (h *ProjectHandler) StopContainer(w http.ResponseWriter, r *http.Request) {
	h.container("stop", "container stopped", h.workspaces.StopProject)(w, r)
}

// RestartContainer stops then starts the project's mock container.
func (h *ProjectHandler) RestartContainer(w http.ResponseWriter, r *http.Request) {
	h.container("restart", "container restarted", h.workspaces.RestartProject)(w, r)
}

// ContainerStatus reports the engine's view of the project's container.
func (h *ProjectHandler) ContainerStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	status, err := h.workspaces.ProjectStatus(r.Context(), Identity(r.Context()), name)
	if err != nil {
		writeError(w, r, "status failed", err)
		return
	}
	writeOK(w, r, http.StatusOK, "", map[string]string{
		"projectName": name,
		"container":   types.ContainerName(name),
		"status":      status,
	})
}
