package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mockyard/types"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name              string
	schema            []string
	numbered          bool // $1, $2 placeholders instead of ?
	isUniqueViolation func(error) bool
}

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: migrate schema: %w", s.dialect.name, err)
		}
	}
	return nil
}

// bind rewrites ? placeholders for dialects that number them.
func (s *SQLStore) bind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const projectColumns = `id, owner, name, path, wsdl_path, xsd_path, created_at`

func (s *SQLStore) Create(ctx context.Context, p *types.Project) error {
	query := s.bind(`INSERT INTO projects (` + projectColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, p.ID, p.Owner, p.Name, p.Path, p.WSDLPath, p.XSDPath, p.CreatedAt.UTC())
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%s", types.ErrProjectExists, p.Owner, p.Name)
		}
		log.Ctx(ctx).Error().Err(err).Str("project", p.Name).Msg("failed to insert project")
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id uuid.UUID) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+projectColumns+` FROM projects WHERE id = ?`), id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrProjectNotFound, id)
	}
	return p, err
}

func (s *SQLStore) GetByName(ctx context.Context, owner, name string) (*types.Project, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+projectColumns+` FROM projects WHERE owner = ? AND name = ?`), owner, name)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", types.ErrProjectNotFound, owner, name)
	}
	return p, err
}

func (s *SQLStore) ListByOwner(ctx context.Context, owner string) ([]types.Project, error) {
	return s.list(ctx, s.bind(`SELECT `+projectColumns+` FROM projects WHERE owner = ? ORDER BY created_at, name`), owner)
}

func (s *SQLStore) List(ctx context.Context) ([]types.Project, error) {
	return s.list(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at, name`)
}

func (s *SQLStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrProjectNotFound, id)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) list(ctx context.Context, query string, args ...any) ([]types.Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []types.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*types.Project, error) {
	var p types.Project
	err := row.Scan(&p.ID, &p.Owner, &p.Name, &p.Path, &p.WSDLPath, &p.XSDPath, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
