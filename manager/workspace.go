package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mockyard/permissions"
	"mockyard/types"
)

// ProjectStore persists project records. Implementations live in the store package.
type ProjectStore interface {
	// Create fails with types.ErrProjectExists when owner/name is taken.
	Create(ctx context.Context, p *types.Project) error
	// Get and GetByName fail with types.ErrProjectNotFound.
	Get(ctx context.Context, id uuid.UUID) (*types.Project, error)
	GetByName(ctx context.Context, owner, name string) (*types.Project, error)
	ListByOwner(ctx context.Context, owner string) ([]types.Project, error)
	List(ctx context.Context) ([]types.Project, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// DomainPublisher makes a running mock reachable under a public name.
type DomainPublisher interface {
	Publish(ctx context.Context, p types.Project) (*types.ProjectDomain, error)
	Unpublish(ctx context.Context, p types.Project) error
}

// Upload is one file received with a project.
type Upload struct {
	Filename string    `validate:"required"`
	Content  io.Reader `validate:"required"`
}

// CreateRequest describes a new project workspace.
type CreateRequest struct {
	Owner string  `validate:"required"`
	Name  string  `validate:"required,containername"`
	WSDL  Upload
	XSD   *Upload `validate:"omitempty"`
}

// CreateResult reports a created project. Generation, start and publishing failures do not
// fail creation; they show up as warnings and in the typed error fields.
type CreateResult struct {
	Project         *types.Project       `json:"project"`
	Domain          *types.ProjectDomain `json:"domain,omitempty"`
	Warnings        []string             `json:"warnings,omitempty"`
	GenerationError error                `json:"-"`
	StartError      error                `json:"-"`
}

// WorkspaceService ties project records, workspace directories, artifact generation and the
// container lifecycle together.
type WorkspaceService struct {
	store      ProjectStore
	scripts    *ScriptHost
	generator  *Generator
	containers *ContainerManager
	normalizer *permissions.Normalizer
	publisher  DomainPublisher // Optional
	metrics    MetricsCollector

	stopConcurrency int
}

// WorkspaceOption configures a WorkspaceService.
type WorkspaceOption func(*WorkspaceService)

// WithPublisher publishes every started project's domain.
func WithPublisher(p DomainPublisher) WorkspaceOption {
	return func(ws *WorkspaceService) { ws.publisher = p }
}

// WithNormalizer replaces the default permission normalizer.
func WithNormalizer(n *permissions.Normalizer) WorkspaceOption {
	return func(ws *WorkspaceService) { ws.normalizer = n }
}

// WithStopConcurrency bounds how many projects StopAll stops at once.
func WithStopConcurrency(n int) WorkspaceOption {
	return func(ws *WorkspaceService) {
		if n > 0 {
			ws.stopConcurrency = n
		}
	}
}

// NewWorkspaceService creates a WorkspaceService.
func NewWorkspaceService(store ProjectStore, scripts *ScriptHost, generator *Generator, containers *ContainerManager, metrics MetricsCollector, opts ...WorkspaceOption) *WorkspaceService {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	ws := &WorkspaceService{
		store:           store,
		scripts:         scripts,
		generator:       generator,
		containers:      containers,
		normalizer:      permissions.NewNormalizer(),
		metrics:         metrics,
		stopConcurrency: 4,
	}
	for _, opt := range opts {
		opt(ws)
	}
	return ws
}

// Containers returns the lifecycle controller.
func (ws *WorkspaceService) Containers() *ContainerManager {
	return ws.containers
}

// CreateWorkspaceAndStart creates the workspace, stores the uploads, persists the record,
// generates the mock artifacts and starts the container.
func (ws *WorkspaceService) CreateWorkspaceAndStart(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := types.V().Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidProject, err)
	}
	wsdlName, err := uploadName(req.WSDL.Filename)
	if err != nil {
		return nil, err
	}
	var xsdName string
	if req.XSD != nil {
		if xsdName, err = uploadName(req.XSD.Filename); err != nil {
			return nil, err
		}
	}

	logger := log.Ctx(ctx).With().Str("project", req.Name).Str("owner", req.Owner).Str("action", "create").Logger()

	if _, err := ws.store.GetByName(ctx, req.Owner, req.Name); err == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrProjectExists, req.Name)
	} else if !errors.Is(err, types.ErrProjectNotFound) {
		return nil, err
	}

	// Container handles are global, so a workspace name cannot be shared between owners.
	dir := ws.scripts.WorkspaceDir(req.Name)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: workspace %s is in use", types.ErrProjectExists, req.Name)
	}

	project := &types.Project{
		ID:        uuid.New(),
		Owner:     req.Owner,
		Name:      req.Name,
		Path:      dir,
		WSDLPath:  filepath.Join(dir, wsdlName),
		CreatedAt: time.Now().UTC(),
	}
	if req.XSD != nil {
		project.XSDPath = filepath.Join(dir, "xsd", xsdName)
	}

	if err := ws.placeFiles(project, req); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	ws.normalize(ctx, dir)

	if err := ws.store.Create(ctx, project); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn().Err(rmErr).Str("path", dir).Msg("could not remove workspace after failed save")
		}
		return nil, fmt.Errorf("save project %s: %w", req.Name, err)
	}
	logger.Info().Str("id", project.ID.String()).Str("path", dir).Msg("project workspace created")

	result := &CreateResult{Project: project}

	if err := ws.generate(ctx, project); err != nil {
		result.GenerationError = err
		result.Warnings = append(result.Warnings, "generation failed: "+err.Error())
		logger.Warn().Err(err).Msg("generation failed, starting container anyway")
	}

	if err := ws.containers.Start(ctx, project.Name); err != nil {
		result.StartError = err
		result.Warnings = append(result.Warnings, "container start failed: "+err.Error())
		logger.Warn().Err(err).Msg("container start failed")
		return result, nil
	}

	if ws.publisher != nil {
		domain, err := ws.publisher.Publish(ctx, *project)
		if err != nil {
			result.Warnings = append(result.Warnings, "domain publishing failed: "+err.Error())
			logger.Warn().Err(err).Msg("domain publishing failed")
		} else {
			result.Domain = domain
		}
	}
	return result, nil
}

// DeleteWorkspace stops the project's container, removes its workspace and deletes its
// record. A failed stop never blocks deletion.
func (ws *WorkspaceService) DeleteWorkspace(ctx context.Context, owner string, id uuid.UUID) error {
	project, err := ws.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if project.Owner != owner {
		return fmt.Errorf("%w: %s", types.ErrProjectNotFound, id)
	}

	logger := log.Ctx(ctx).With().Str("project", project.Name).Str("owner", owner).Str("action", "delete").Logger()

	if err := ws.containers.Stop(ctx, project.Name); err != nil {
		logger.Warn().Err(err).Msg("stop before delete failed, deleting anyway")
	}
	if ws.publisher != nil {
		if err := ws.publisher.Unpublish(ctx, *project); err != nil {
			logger.Warn().Err(err).Msg("domain unpublish failed")
		}
	}

	if err := ws.removeWorkspace(ctx, project.Path); err != nil {
		return fmt.Errorf("remove workspace %s: %w", project.Path, err)
	}
	if err := ws.store.Delete(ctx, project.ID); err != nil {
		return fmt.Errorf("delete project %s: %w", project.Name, err)
	}
	ws.containers.States().Forget(project.Name)

	logger.Info().Msg("project deleted")
	return nil
}

// Regenerate reruns artifact generation on an existing workspace.
func (ws *WorkspaceService) Regenerate(ctx context.Context, owner, name string) error {
	project, err := ws.store.GetByName(ctx, owner, name)
	if err != nil {
		return err
	}
	if info, err := os.Stat(project.Path); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", types.ErrWorkspaceMissing, project.Path)
	}
	return ws.generate(ctx, project)
}

// Get returns one of owner's projects by name.
func (ws *WorkspaceService) Get(ctx context.Context, owner, name string) (*types.Project, error) {
	return ws.store.GetByName(ctx, owner, name)
}

// List returns owner's projects.
func (ws *WorkspaceService) List(ctx context.Context, owner string) ([]types.Project, error) {
	return ws.store.ListByOwner(ctx, owner)
}

// ListAll returns every project.
func (ws *WorkspaceService) ListAll(ctx context.Context) ([]types.Project, error) {
	return ws.store.List(ctx)
}

// StartProject starts one of owner's projects.
func (ws *WorkspaceService) StartProject(ctx context.Context, owner, name string) error {
	if _, err := ws.store.GetByName(ctx, owner, name); err != nil {
		return err
	}
	return ws.containers.Start(ctx, name)
}

// StopProject stops one of owner's projects.
func (ws *WorkspaceService) StopProject(ctx context.Context, owner, name string) error {
	if _, err := ws.store.GetByName(ctx, owner, name); err != nil {
		return err
	}
	return ws.containers.Stop(ctx, name)
}

// RestartProject restarts one of owner's projects.
func (ws *WorkspaceService) RestartProject(ctx context.Context, owner, name string) error {
	if _, err := ws.store.GetByName(ctx, owner, name); err != nil {
		return err
	}
	return ws.containers.Restart(ctx, name)
}

// ProjectStatus reports the container status of one of owner's projects.
func (ws *WorkspaceService) ProjectStatus(ctx context.Context, owner, name string) (string, error) {
	if _, err := ws.store.GetByName(ctx, owner, name); err != nil {
		return "", err
	}
	return ws.containers.Status(ctx, name), nil
}

// StopAll stops every project's container, a few at a time. Every failure is logged; the
// joined failures are returned once all stops have finished.
func (ws *WorkspaceService) StopAll(ctx context.Context) error {
	projects, err := ws.store.List(ctx)
	if err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(ws.stopConcurrency)
	for _, p := range projects {
		name := p.Name
		g.Go(func() error {
			if err := ws.containers.Stop(ctx, name); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Ctx(ctx).Info().Int("projects", len(projects)).Int("failures", len(errs)).Msg("stopped all containers")
	return errors.Join(errs...)
}

func (ws *WorkspaceService) generate(ctx context.Context, p *types.Project) error {
	err := ws.generator.Generate(ctx, GenerateRequest{
		Project:   p.Name,
		WSDLPath:  p.WSDLPath,
		XSDPath:   p.XSDPath,
		OutputDir: p.Path,
	})
	// The generator may have created files even when it failed.
	ws.normalize(ctx, p.Path)
	return err
}

func (ws *WorkspaceService) normalize(ctx context.Context, dir string) {
	report := ws.normalizer.Normalize(ctx, dir)
	ws.metrics.PermissionFailures(len(report.Failures))
}

func (ws *WorkspaceService) placeFiles(p *types.Project, req CreateRequest) error {
	if err := os.MkdirAll(p.Path, permissions.DirMode); err != nil {
		return fmt.Errorf("create workspace %s: %w", p.Path, err)
	}
	if err := writeUpload(p.WSDLPath, req.WSDL.Content); err != nil {
		return err
	}
	if req.XSD == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.XSDPath), permissions.DirMode); err != nil {
		return fmt.Errorf("create schema dir: %w", err)
	}
	return writeUpload(p.XSDPath, req.XSD.Content)
}

// removeWorkspace deletes dir. Files written by the container may belong to another
// identity; one retry follows a permission normalization pass.
func (ws *WorkspaceService) removeWorkspace(ctx context.Context, dir string) error {
	err := os.RemoveAll(dir)
	if err == nil {
		return nil
	}
	log.Ctx(ctx).Warn().Err(err).Str("path", dir).Msg("workspace removal failed, normalizing permissions and retrying")
	ws.normalize(ctx, dir)
	return os.RemoveAll(dir)
}

func writeUpload(path string, content io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, permissions.FileMode)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// uploadName reduces a client supplied file name to its base name.
func uploadName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if base == "/" || base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: bad file name %q", types.ErrInvalidProject, name)
	}
	return base, nil
}
