package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/federate/pkg/auth"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

// Store persists users, groups, roles and memberships
type Store struct {
	primary *sql.DB
	replica func() *sql.DB
}

// NewStore creates a store that sends every query to db
func NewStore(db *sql.DB) *Store {
	return &Store{
		primary: db,
		replica: func() *sql.DB { return db },
	}
}

// NewStoreFromManager creates a store that reads groups and roles from replicas
func NewStoreFromManager(cm *ConnectionManager) *Store {
	return &Store{
		primary: cm.Primary(),
		replica: cm.Replica,
	}
}

const userColumns = `id, username, email, firstname, lastname, picture, source, source_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Firstname, &u.Lastname,
		&u.Picture, &u.Source, &u.SourceID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByUsername returns auth.ErrUserNotFound when no user has the username
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := s.primary.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateUser inserts the user unless the username is taken. When another
// login created it first, that user is returned with created=false.
func (s *Store) CreateUser(ctx context.Context, nu *auth.NewExternalUser) (*auth.User, bool, error) {
	query := `
		INSERT INTO users (id, username, email, firstname, lastname, picture, source, source_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (username) DO NOTHING
		RETURNING ` + userColumns

	row := s.primary.QueryRowContext(ctx, query,
		uuid.NewString(),
		nu.Username,
		nu.Email,
		nu.Firstname,
		nu.Lastname,
		nu.Picture,
		nu.Source,
		nu.SourceID,
	)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := s.FindUserByUsername(ctx, nu.Username)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	return user, true, nil
}

// UpdateUser refreshes the picture of an existing user. A nil picture
// leaves it unchanged.
func (s *Store) UpdateUser(ctx context.Context, update *auth.UpdateUser) (*auth.User, error) {
	var picture sql.NullString
	if update.Picture != nil {
		picture = sql.NullString{String: *update.Picture, Valid: true}
	}

	row := s.primary.QueryRowContext(ctx, `
		UPDATE users SET picture = COALESCE($2, picture), updated_at = NOW()
		WHERE username = $1
		RETURNING `+userColumns,
		update.Username, picture,
	)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// FindGroupsByName returns every group with exactly this name, oldest first
func (s *Store) FindGroupsByName(ctx context.Context, name string) ([]auth.Group, error) {
	rows, err := s.replica().QueryContext(ctx,
		`SELECT id, name, created_at FROM groups WHERE name = $1 ORDER BY created_at, id`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to find groups: %w", err)
	}
	defer rows.Close()

	var groups []auth.Group
	for rows.Next() {
		var g auth.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// CreateGroup creates a group. Names are not unique.
func (s *Store) CreateGroup(ctx context.Context, name string) (*auth.Group, error) {
	g := &auth.Group{ID: uuid.NewString(), Name: name}
	err := s.primary.QueryRowContext(ctx,
		`INSERT INTO groups (id, name) VALUES ($1, $2) RETURNING created_at`,
		g.ID, g.Name,
	).Scan(&g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}
	return g, nil
}

// EnsureGroup returns the oldest group with the name, creating it if none exists
func (s *Store) EnsureGroup(ctx context.Context, name string) (*auth.Group, bool, error) {
	groups, err := s.FindGroupsByName(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if len(groups) > 0 {
		return &groups[0], false, nil
	}
	g, err := s.CreateGroup(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return g, true, nil
}

// FindDefaultRoleForScope returns auth.ErrRoleNotFound when the scope has no default role
func (s *Store) FindDefaultRoleForScope(ctx context.Context, scope auth.RoleScope) (*auth.Role, error) {
	var r auth.Role
	err := s.replica().QueryRowContext(ctx,
		`SELECT name, scope, description, is_default FROM roles WHERE scope = $1 AND is_default`,
		string(scope),
	).Scan(&r.Name, &r.Scope, &r.Description, &r.Default)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default role: %w", err)
	}
	return &r, nil
}

// UpsertRole creates or updates a role. A scope holds at most one default role.
func (s *Store) UpsertRole(ctx context.Context, role *auth.Role) error {
	_, err := s.primary.ExecContext(ctx, `
		INSERT INTO roles (scope, name, description, is_default)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope, name) DO UPDATE
		SET description = EXCLUDED.description, is_default = EXCLUDED.is_default`,
		string(role.Scope), role.Name, role.Description, role.Default,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("scope %s already has a default role", role.Scope)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert role: %w", err)
	}
	return nil
}

// AddOrUpdateMembership grants the membership, replacing the role of an
// existing membership in the same scope
func (s *Store) AddOrUpdateMembership(ctx context.Context, m *auth.Membership) error {
	_, err := s.primary.ExecContext(ctx, `
		INSERT INTO memberships (reference_type, reference_id, username, scope, role_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (reference_type, reference_id, username, scope) DO UPDATE
		SET role_name = EXCLUDED.role_name, updated_at = NOW()`,
		string(m.ReferenceType), m.ReferenceID, m.Username, string(m.Scope), m.RoleName,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	return nil
}

// ListMemberships returns the memberships of a user
func (s *Store) ListMemberships(ctx context.Context, username string) ([]auth.Membership, error) {
	rows, err := s.primary.QueryContext(ctx, `
		SELECT reference_type, reference_id, username, scope, role_name, created_at, updated_at
		FROM memberships WHERE username = $1
		ORDER BY reference_type, reference_id, scope`, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var out []auth.Membership
	for rows.Next() {
		var m auth.Membership
		if err := rows.Scan(&m.ReferenceType, &m.ReferenceID, &m.Username, &m.Scope,
			&m.RoleName, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Ping reports whether the primary is reachable
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.primary.PingContext(ctx)
}
