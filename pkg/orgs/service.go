package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db       *sql.DB
	resolver *Resolver
	now      func() time.Time
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB, resolver *Resolver) *PostgresService {
	return &PostgresService{
		db:       db,
		resolver: resolver,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

const orgColumns = `id, name, slug, owner_id, plan, created_at, updated_at`

// CreateOrganization creates an organization and its owner membership in one transaction
func (s *PostgresService) CreateOrganization(ctx context.Context, org *Organization) error {
	if s.resolver.Mode() == ModeNone {
		return ErrOrganizationsDenied
	}

	org.Name = strings.TrimSpace(org.Name)
	if org.Slug == "" {
		org.Slug = generateSlug(org.Name)
	}
	if org.Plan == "" {
		org.Plan = "free"
	}
	org.ID = uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if !s.resolver.Config().AllowMultiple {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&count); err != nil {
			return fmt.Errorf("failed to count organizations: %w", err)
		}
		if count > 0 {
			return ErrOrganizationLimit
		}
	}

	query := `
		INSERT INTO organizations (id, name, slug, owner_id, plan)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query, org.ID, org.Name, org.Slug, org.OwnerID, org.Plan).
		Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}

	now := s.now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_memberships (id, organization_id, user_id, role_id, status, accepted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), org.ID, org.OwnerID, rbac.RoleOwner, StatusActive, now)
	if err != nil {
		return fmt.Errorf("failed to create owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit organization: %w", err)
	}
	return nil
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	return s.scanOrganization(s.db.QueryRowContext(ctx, query, id))
}

// GetSoleOrganization returns the deployment's organization in single mode
func (s *PostgresService) GetSoleOrganization(ctx context.Context) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations ORDER BY created_at ASC LIMIT 1`
	return s.scanOrganization(s.db.QueryRowContext(ctx, query))
}

// ListOrganizations returns the organizations where userID is an active member
func (s *PostgresService) ListOrganizations(ctx context.Context, userID string) ([]*Organization, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.owner_id, o.plan, o.created_at, o.updated_at
		FROM organizations o
		JOIN organization_memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND m.status = 'active'
		ORDER BY o.name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*Organization
	for rows.Next() {
		org := &Organization{}
		if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &org.OwnerID, &org.Plan, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}

	return orgs, nil
}

// UpdateOrganization updates mutable organization fields
func (s *PostgresService) UpdateOrganization(ctx context.Context, id string, updates *UpdateOrgRequest) (*Organization, error) {
	var name sql.NullString
	if updates.Name != nil {
		name = sql.NullString{String: strings.TrimSpace(*updates.Name), Valid: true}
	}

	query := `
		UPDATE organizations
		SET name = COALESCE($1, name), updated_at = NOW()
		WHERE id = $2
		RETURNING ` + orgColumns
	return s.scanOrganization(s.db.QueryRowContext(ctx, query, name, id))
}

func (s *PostgresService) scanOrganization(row *sql.Row) (*Organization, error) {
	org := &Organization{}
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &org.OwnerID, &org.Plan, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// generateSlug lowercases name, joins words with dashes and drops other characters
func generateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return strings.Trim(slug, "-")
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
