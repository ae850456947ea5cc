package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// RoleStore persists organization-defined roles
type RoleStore interface {
	// ListOrganizationRoles returns the custom roles of an organization
	ListOrganizationRoles(ctx context.Context, orgID string) ([]Role, error)

	// CreateRole stores a new custom role, assigning its ID
	CreateRole(ctx context.Context, role *Role) error

	// DeleteRole removes a custom role
	DeleteRole(ctx context.Context, orgID, roleID string) error
}

// PostgresRoleStore implements RoleStore on the organization_roles table
type PostgresRoleStore struct {
	db *sql.DB
}

// NewPostgresRoleStore creates a new role store
func NewPostgresRoleStore(db *sql.DB) *PostgresRoleStore {
	return &PostgresRoleStore{db: db}
}

// ListOrganizationRoles returns the custom roles of an organization
func (s *PostgresRoleStore) ListOrganizationRoles(ctx context.Context, orgID string) ([]Role, error) {
	query := `
		SELECT id, organization_id, name, display_name, description, level, permissions, is_default, created_at, updated_at
		FROM organization_roles
		WHERE organization_id = $1
		ORDER BY level DESC, name
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		var org string
		var description sql.NullString
		if err := rows.Scan(
			&role.ID,
			&org,
			&role.Name,
			&role.DisplayName,
			&description,
			&role.Level,
			pq.Array(&role.Permissions),
			&role.IsDefault,
			&role.CreatedAt,
			&role.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		role.OrganizationID = &org
		role.Description = description.String
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	return roles, nil
}

// CreateRole stores a new custom role
func (s *PostgresRoleStore) CreateRole(ctx context.Context, role *Role) error {
	if role.OrganizationID == nil {
		return fmt.Errorf("custom roles require an organization")
	}
	if role.ID == "" {
		role.ID = uuid.NewString()
	}

	query := `
		INSERT INTO organization_roles (id, organization_id, name, display_name, description, level, permissions, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		role.ID,
		*role.OrganizationID,
		role.Name,
		role.DisplayName,
		role.Description,
		role.Level,
		pq.Array(role.Permissions),
		role.IsDefault,
		now,
		now,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrRoleExists, role.Name)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// DeleteRole removes a custom role
func (s *PostgresRoleStore) DeleteRole(ctx context.Context, orgID, roleID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM organization_roles WHERE organization_id = $1 AND id = $2`, orgID, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	return nil
}
