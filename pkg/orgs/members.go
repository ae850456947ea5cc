package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

const memberColumns = `id, organization_id, user_id, role_id, status, invited_by, invited_at, accepted_at, removed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (*Membership, error) {
	m := &Membership{}
	var invitedBy sql.NullString
	var invitedAt, acceptedAt, removedAt sql.NullTime
	if err := row.Scan(
		&m.ID, &m.OrganizationID, &m.UserID, &m.RoleID, &m.Status,
		&invitedBy, &invitedAt, &acceptedAt, &removedAt, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	if invitedBy.Valid {
		m.InvitedBy = &invitedBy.String
	}
	if invitedAt.Valid {
		m.InvitedAt = &invitedAt.Time
	}
	if acceptedAt.Valid {
		m.AcceptedAt = &acceptedAt.Time
	}
	if removedAt.Valid {
		m.RemovedAt = &removedAt.Time
	}
	return m, nil
}

// InviteMember creates an invited membership. A previously removed member is
// re-invited in place; any other existing membership is a conflict.
func (s *PostgresService) InviteMember(ctx context.Context, orgID, userID, roleID, invitedBy string) (*Membership, error) {
	if !s.resolver.Config().Features.Invites {
		return nil, ErrInvitesDisabled
	}

	query := `
		INSERT INTO organization_memberships (id, organization_id, user_id, role_id, status, invited_by, invited_at)
		VALUES ($1, $2, $3, $4, 'invited', $5, $6)
		ON CONFLICT (organization_id, user_id) DO UPDATE
		SET role_id = EXCLUDED.role_id,
		    status = 'invited',
		    invited_by = EXCLUDED.invited_by,
		    invited_at = EXCLUDED.invited_at,
		    accepted_at = NULL,
		    removed_at = NULL
		WHERE organization_memberships.status = 'removed'
		RETURNING ` + memberColumns
	m, err := scanMembership(s.db.QueryRowContext(ctx, query, uuid.NewString(), orgID, userID, roleID, invitedBy, s.now()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMembershipExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to invite member: %w", err)
	}
	return m, nil
}

// AcceptInvitation activates the pending membership of userID
func (s *PostgresService) AcceptInvitation(ctx context.Context, orgID, userID string) (*Membership, error) {
	query := `
		UPDATE organization_memberships
		SET status = 'active', accepted_at = $3
		WHERE organization_id = $1 AND user_id = $2 AND status = 'invited'
		RETURNING ` + memberColumns
	m, err := scanMembership(s.db.QueryRowContext(ctx, query, orgID, userID, s.now()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to accept invitation: %w", err)
	}
	return m, nil
}

// UpdateMemberRole changes a member's role. The last owner cannot be demoted.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, orgID, userID, roleID string) error {
	return s.withMemberLock(ctx, orgID, userID, func(tx *sql.Tx, current string) error {
		if current == rbac.RoleOwner && roleID != rbac.RoleOwner {
			if err := s.ensureAnotherOwner(ctx, tx, orgID); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE organization_memberships SET role_id = $1 WHERE organization_id = $2 AND user_id = $3`,
			roleID, orgID, userID)
		if err != nil {
			return fmt.Errorf("failed to update member role: %w", err)
		}
		return nil
	})
}

// RemoveMember soft-deletes a membership. The last owner cannot be removed.
func (s *PostgresService) RemoveMember(ctx context.Context, orgID, userID string) error {
	return s.withMemberLock(ctx, orgID, userID, func(tx *sql.Tx, current string) error {
		if current == rbac.RoleOwner {
			if err := s.ensureAnotherOwner(ctx, tx, orgID); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE organization_memberships SET status = 'removed', removed_at = $3 WHERE organization_id = $1 AND user_id = $2`,
			orgID, userID, s.now())
		if err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		return nil
	})
}

// withMemberLock locks the non-removed membership row and runs fn with its current role
func (s *PostgresService) withMemberLock(ctx context.Context, orgID, userID string, fn func(tx *sql.Tx, currentRole string) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `
		SELECT role_id FROM organization_memberships
		WHERE organization_id = $1 AND user_id = $2 AND status <> 'removed'
		FOR UPDATE
	`, orgID, userID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrMemberNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get member: %w", err)
	}

	if err := fn(tx, current); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit member change: %w", err)
	}
	return nil
}

func (s *PostgresService) ensureAnotherOwner(ctx context.Context, tx *sql.Tx, orgID string) error {
	var owners int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM organization_memberships
		WHERE organization_id = $1 AND role_id = $2 AND status = 'active'
	`, orgID, rbac.RoleOwner).Scan(&owners)
	if err != nil {
		return fmt.Errorf("failed to count owners: %w", err)
	}
	if owners <= 1 {
		return ErrLastOwner
	}
	return nil
}

// GetMembership returns the invited or active membership of userID
func (s *PostgresService) GetMembership(ctx context.Context, orgID, userID string) (*Membership, error) {
	query := `SELECT ` + memberColumns + ` FROM organization_memberships
		WHERE organization_id = $1 AND user_id = $2 AND status <> 'removed'`
	m, err := scanMembership(s.db.QueryRowContext(ctx, query, orgID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// ListMembers retrieves invited and active members of an organization
func (s *PostgresService) ListMembers(ctx context.Context, orgID string) ([]*Membership, error) {
	query := `SELECT ` + memberColumns + ` FROM organization_memberships
		WHERE organization_id = $1 AND status <> 'removed'
		ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return members, nil
}
