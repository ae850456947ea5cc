package rbac

import (
	"errors"
	"time"
)

// Resource represents a resource type in the system
type Resource string

const (
	ResourceOrganization Resource = "organization"
	ResourceMember       Resource = "member"
	ResourceInvitation   Resource = "invitation"
	ResourceRole         Resource = "role"
	ResourceBilling      Resource = "billing"
	ResourceProfile      Resource = "profile"
	ResourceFile         Resource = "file"
	ResourceProject      Resource = "project"
	ResourceSettings     Resource = "settings"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionInvite  Action = "invite"
	ActionApprove Action = "approve"
)

// Scope is the breadth at which a permission applies
type Scope string

const (
	ScopeGlobal       Scope = "global"       // Any context
	ScopeOrganization Scope = "organization" // Requires an organization in context
	ScopeProject      Scope = "project"      // Requires an organization and a resource
	ScopePersonal     Scope = "personal"     // Resource, if any, must be owned by the actor
)

// Operator is the comparison applied by a Condition
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// Field names a value readable from a PermissionContext
type Field string

const (
	FieldUserID                 Field = "user.id"
	FieldUserOrganizationID     Field = "user.organization_id"
	FieldOrganizationID         Field = "organization.id"
	FieldOrganizationOwnerID    Field = "organization.owner_id"
	FieldResourceID             Field = "resource.id"
	FieldResourceOwnerID        Field = "resource.owner_id"
	FieldResourceOrganizationID Field = "resource.organization_id"
)

// Condition restricts a permission to contexts where Field compares true
// against Value, Values (in, not_in) or another field named by Ref.
type Condition struct {
	Field    Field    `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"`
	Ref      Field    `json:"ref,omitempty"`
}

// Permission grants Action on Resource within Scope
type Permission struct {
	ID          string      `json:"id"`
	Resource    Resource    `json:"resource"`
	Action      Action      `json:"action"`
	Scope       Scope       `json:"scope"`
	Conditions  []Condition `json:"conditions,omitempty"`
	Description string      `json:"description,omitempty"`
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// Matches reports whether the permission covers resource:action
func (p Permission) Matches(resource Resource, action Action) bool {
	return p.Resource == resource && p.Action == action
}

// Role represents a role with a set of permission identifiers
type Role struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DisplayName    string    `json:"display_name"`
	Description    string    `json:"description,omitempty"`
	Level          int       `json:"level"`
	Permissions    []string  `json:"permissions"`
	OrganizationID *string   `json:"organization_id,omitempty"` // nil for system roles
	IsDefault      bool      `json:"is_default"`
	IsSystem       bool      `json:"is_system"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// System role identifiers
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleBilling = "billing"
	RoleMember  = "member"
	RoleViewer  = "viewer"
)

// PermissionCheck is a request to perform Action on Resource
type PermissionCheck struct {
	Resource   Resource `json:"resource"`
	Action     Action   `json:"action"`
	ResourceID string   `json:"resource_id,omitempty"`
}

// UserContext is the acting user
type UserContext struct {
	ID             string   `json:"id"`
	Roles          []string `json:"roles"`
	OrganizationID string   `json:"organization_id,omitempty"`
}

// OrganizationContext is the organization the request targets
type OrganizationContext struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id,omitempty"`
}

// ResourceContext is the resource the request targets
type ResourceContext struct {
	ID             string `json:"id,omitempty"`
	OwnerID        string `json:"owner_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// PermissionContext is built per request and never persisted
type PermissionContext struct {
	User         UserContext          `json:"user"`
	Organization *OrganizationContext `json:"organization,omitempty"`
	Resource     *ResourceContext     `json:"resource,omitempty"`
}

// Denial reasons
const (
	ReasonNoMatchingPermission = "no matching permission"
	ReasonConditionsNotMet     = "conditions not met"
	ReasonScopeNotSatisfied    = "scope not satisfied"
)

// Result is the outcome of a permission check
type Result struct {
	Allowed          bool        `json:"allowed"`
	Reason           string      `json:"reason,omitempty"`
	Permission       string      `json:"permission,omitempty"` // ID of the satisfying permission
	FailedConditions []Condition `json:"failed_conditions,omitempty"`
}

var (
	// ErrRoleNotFound is returned for unknown role identifiers
	ErrRoleNotFound = errors.New("role not found")

	// ErrUnknownPermission is returned when a role references a permission outside the catalog
	ErrUnknownPermission = errors.New("unknown permission")

	// ErrRoleExists is returned when a role identifier is already taken
	ErrRoleExists = errors.New("role already exists")
)
