package orgs

import (
	"context"
	"errors"
	"time"
)

// Organization is a tenant in single and multi mode
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	OwnerID   string    `json:"owner_id"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MembershipStatus is the lifecycle state of a membership
type MembershipStatus string

const (
	StatusInvited MembershipStatus = "invited"
	StatusActive  MembershipStatus = "active"
	StatusRemoved MembershipStatus = "removed"
)

// Membership associates a user with an organization and a role.
// There is at most one membership per (organization, user).
type Membership struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organization_id"`
	UserID         string           `json:"user_id"`
	RoleID         string           `json:"role_id"`
	Status         MembershipStatus `json:"status"`
	InvitedBy      *string          `json:"invited_by,omitempty"`
	InvitedAt      *time.Time       `json:"invited_at,omitempty"`
	AcceptedAt     *time.Time       `json:"accepted_at,omitempty"`
	RemovedAt      *time.Time       `json:"removed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// IsActive reports whether the membership grants its role
func (m *Membership) IsActive() bool {
	return m != nil && m.Status == StatusActive
}

// CreateOrgRequest represents request to create an organization
type CreateOrgRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// UpdateOrgRequest represents request to update an organization
type UpdateOrgRequest struct {
	Name *string `json:"name,omitempty"`
}

// InviteMemberRequest represents request to invite a member
type InviteMemberRequest struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

// UpdateMemberRequest represents request to update a member's role
type UpdateMemberRequest struct {
	RoleID string `json:"role_id"`
}

var (
	ErrNotFound            = errors.New("organization not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrInvitationNotFound  = errors.New("invitation not found")
	ErrMembershipExists    = errors.New("user is already a member or has a pending invitation")
	ErrLastOwner           = errors.New("organization must keep at least one owner")
	ErrSlugTaken           = errors.New("organization slug is already taken")
	ErrOrganizationLimit   = errors.New("this deployment supports a single organization")
	ErrOrganizationsDenied = errors.New("organizations are disabled in this deployment")
	ErrInvitesDisabled     = errors.New("invitations are disabled in this deployment")
)

// Service defines the interface for organization management
type Service interface {
	// Organization CRUD
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	GetSoleOrganization(ctx context.Context) (*Organization, error)
	ListOrganizations(ctx context.Context, userID string) ([]*Organization, error)
	UpdateOrganization(ctx context.Context, id string, updates *UpdateOrgRequest) (*Organization, error)

	// Member management
	InviteMember(ctx context.Context, orgID, userID, roleID, invitedBy string) (*Membership, error)
	AcceptInvitation(ctx context.Context, orgID, userID string) (*Membership, error)
	UpdateMemberRole(ctx context.Context, orgID, userID, roleID string) error
	RemoveMember(ctx context.Context, orgID, userID string) error
	GetMembership(ctx context.Context, orgID, userID string) (*Membership, error)
	ListMembers(ctx context.Context, orgID string) ([]*Membership, error)
}
