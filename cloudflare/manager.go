package cloudflare

import (
	"context"

	"github.com/rs/zerolog/log"

	"mockyard/types"
)

// Manager decides which projects get a published domain and hands the work to the Client.
// It satisfies manager.DomainPublisher.
type Manager struct {
	client  *Client
	autoGen bool
}

// NewManager creates a new domain manager. A nil client disables publishing.
func NewManager(client *Client, autoGenerate bool) *Manager {
	return &Manager{client: client, autoGen: autoGenerate}
}

// Publish creates the project's domain. It returns nil without error when publishing is off.
func (m *Manager) Publish(ctx context.Context, project types.Project) (*types.ProjectDomain, error) {
	if !m.IsEnabled() || !m.autoGen {
		log.Ctx(ctx).Debug().Str("project", project.Name).Bool("enabled", m.IsEnabled()).Bool("auto_generate", m.autoGen).
			Msg("domain registration skipped")
		return nil, nil
	}

	if domain, exists := m.client.GetDomain(project.Key()); exists {
		return &domain, nil
	}

	domain, err := m.client.CreateDomain(ctx, project)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("project", project.Name).Msg("failed to create domain")
		return nil, err
	}
	return domain, nil
}

// Unpublish removes the project's domain, if any.
func (m *Manager) Unpublish(ctx context.Context, project types.Project) error {
	if !m.IsEnabled() {
		return nil
	}
	if err := m.client.DeleteDomain(ctx, project); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("project", project.Name).Msg("failed to delete domain")
		return err
	}
	return nil
}

// GetProjectDomain retrieves domain info for a project
func (m *Manager) GetProjectDomain(project types.Project) (types.ProjectDomain, bool) {
	if !m.IsEnabled() {
		return types.ProjectDomain{}, false
	}
	return m.client.GetDomain(project.Key())
}

// GetAllDomains returns all registered domains
func (m *Manager) GetAllDomains() []types.ProjectDomain {
	if !m.IsEnabled() {
		return []types.ProjectDomain{}
	}
	return m.client.GetAllDomains()
}

// IsEnabled returns whether domain management is enabled
func (m *Manager) IsEnabled() bool {
	return m != nil && m.client != nil
}
