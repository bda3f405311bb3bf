package metadata

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/runledger/runledger/domain"
)

var projectNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,127}$`)

// CreateProject inserts a new project. Admin-path authorization is out of
// scope; callers are trusted to have already authorized the request.
func (s *Store) CreateProject(ctx context.Context, name string) (*domain.Project, error) {
	if !projectNamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: project name %q does not match ^[a-z][a-z0-9_-]{0,127}$", domain.ErrInvalidArgument, name)
	}
	id := uuid.NewString()
	row := s.pg.QueryRow(ctx,
		`INSERT INTO projects (id, name) VALUES ($1, $2) RETURNING id, name, created_at, deleted_at`,
		id, name)
	p := &domain.Project{}
	if err := row.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.DeletedAt); err != nil {
		return nil, fmt.Errorf("metadata: create project: %w", err)
	}
	return p, nil
}

// GetProject looks a project up by name, honoring soft deletes.
func (s *Store) GetProject(ctx context.Context, name string) (*domain.Project, error) {
	row := s.pg.QueryRow(ctx,
		`SELECT id, name, created_at, deleted_at FROM projects WHERE name = $1 AND deleted_at IS NULL`,
		name)
	p := &domain.Project{}
	if err := row.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.DeletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProjectNotFound
		}
		return nil, fmt.Errorf("metadata: get project: %w", err)
	}
	return p, nil
}

// GetOrCreateProject fetches a project by name, creating it on first use.
// This keeps InitRun a single round trip for the common case of an
// already-registered project while still being usable against a fresh
// metadata store in tests.
func (s *Store) GetOrCreateProject(ctx context.Context, name string) (*domain.Project, error) {
	p, err := s.GetProject(ctx, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrProjectNotFound) {
		return nil, err
	}
	return s.CreateProject(ctx, name)
}
