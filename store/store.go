// Package store persists project records. Three backends share one contract: an in-memory
// map for tests and throwaway runs, SQLite for single-host deployments and PostgreSQL when
// the records live in a shared database.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"mockyard/types"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is the project record repository.
type Store interface {
	// Create inserts p. Names are unique per owner: a duplicate fails with
	// types.ErrProjectExists.
	Create(ctx context.Context, p *types.Project) error
	// Get fails with types.ErrProjectNotFound when no record has the id.
	Get(ctx context.Context, id uuid.UUID) (*types.Project, error)
	// GetByName fails with types.ErrProjectNotFound when owner has no project named name.
	GetByName(ctx context.Context, owner, name string) (*types.Project, error)
	// ListByOwner returns owner's projects, oldest first.
	ListByOwner(ctx context.Context, owner string) ([]types.Project, error)
	// List returns every project, oldest first.
	List(ctx context.Context) ([]types.Project, error)
	// Delete removes the record. Deleting a missing record fails with types.ErrProjectNotFound.
	Delete(ctx context.Context, id uuid.UUID) error
	Close() error
}

// Open returns the backend named by driver. dsn is a file path for SQLite and a connection
// string for PostgreSQL; the memory driver ignores it.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
