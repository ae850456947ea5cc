package rbac

import (
	"fmt"
	"sort"
)

// Registry is an immutable catalog of permissions and roles. It is safe for
// concurrent use; WithRoles returns a new snapshot rather than mutating.
type Registry struct {
	permissions map[string]Permission
	permOrder   []string
	roles       map[string]Role
}

// NewRegistry returns the registry of system roles and permissions
func NewRegistry() *Registry {
	r := &Registry{
		permissions: make(map[string]Permission),
		roles:       make(map[string]Role),
	}
	for _, p := range SystemPermissions() {
		r.permissions[p.ID] = p
		r.permOrder = append(r.permOrder, p.ID)
	}
	for _, role := range SystemRoles() {
		r.roles[role.ID] = role
	}
	return r
}

// GetRole returns the role with the given identifier
func (r *Registry) GetRole(id string) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	return role, nil
}

// ListPermissionsForRole returns the permissions granted by a role
func (r *Registry) ListPermissionsForRole(id string) ([]Permission, error) {
	role, err := r.GetRole(id)
	if err != nil {
		return nil, err
	}
	perms := make([]Permission, 0, len(role.Permissions))
	for _, pid := range role.Permissions {
		if p, ok := r.permissions[pid]; ok {
			perms = append(perms, p)
		}
	}
	return perms, nil
}

// Permission returns a catalog permission by identifier
func (r *Registry) Permission(id string) (Permission, bool) {
	p, ok := r.permissions[id]
	return p, ok
}

// Permissions returns the catalog in declaration order
func (r *Registry) Permissions() []Permission {
	perms := make([]Permission, 0, len(r.permOrder))
	for _, id := range r.permOrder {
		perms = append(perms, r.permissions[id])
	}
	return perms
}

// Roles returns every role, highest level first
func (r *Registry) Roles() []Role {
	roles := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Level != roles[j].Level {
			return roles[i].Level > roles[j].Level
		}
		return roles[i].ID < roles[j].ID
	})
	return roles
}

// DefaultRole returns the role assigned to users without an explicit one
func (r *Registry) DefaultRole() Role {
	for _, role := range r.Roles() {
		if role.IsDefault && role.IsSystem {
			return role
		}
	}
	return r.roles[RoleMember]
}

// WithRoles returns a registry that also contains the given organization-defined roles
func (r *Registry) WithRoles(roles ...Role) (*Registry, error) {
	next := &Registry{
		permissions: r.permissions,
		permOrder:   r.permOrder,
		roles:       make(map[string]Role, len(r.roles)+len(roles)),
	}
	for id, role := range r.roles {
		next.roles[id] = role
	}

	for _, role := range roles {
		if role.ID == "" {
			return nil, fmt.Errorf("role id is required")
		}
		if existing, ok := next.roles[role.ID]; ok && (existing.IsSystem || !sameOrg(existing, role)) {
			return nil, fmt.Errorf("%w: %s", ErrRoleExists, role.ID)
		}
		for _, pid := range role.Permissions {
			if _, ok := r.permissions[pid]; !ok {
				return nil, fmt.Errorf("%w: %s in role %s", ErrUnknownPermission, pid, role.ID)
			}
		}
		role.IsSystem = false
		next.roles[role.ID] = role
	}

	return next, nil
}

func sameOrg(a, b Role) bool {
	if a.OrganizationID == nil || b.OrganizationID == nil {
		return a.OrganizationID == b.OrganizationID
	}
	return *a.OrganizationID == *b.OrganizationID
}

// grantedPermissions returns the deduplicated permissions of the given roles,
// in role order then grant order. Unknown roles contribute nothing.
func (r *Registry) grantedPermissions(roleIDs []string) []Permission {
	seen := make(map[string]bool)
	var perms []Permission
	for _, rid := range roleIDs {
		role, ok := r.roles[rid]
		if !ok {
			continue
		}
		for _, pid := range role.Permissions {
			if seen[pid] {
				continue
			}
			p, ok := r.permissions[pid]
			if !ok {
				continue
			}
			seen[pid] = true
			perms = append(perms, p)
		}
	}
	return perms
}

// HierarchyViolation records a role that does not include all permissions of a lower one
type HierarchyViolation struct {
	Higher  string   `json:"higher"`
	Lower   string   `json:"lower"`
	Missing []string `json:"missing"`
}

// HierarchyViolations reports every pair of roles where the higher-level role is
// not a superset of the lower-level one. Organization roles are compared with
// system roles and with roles of the same organization. The evaluator does not
// consult levels, so violations are informational.
func (r *Registry) HierarchyViolations() []HierarchyViolation {
	roles := r.Roles()
	var violations []HierarchyViolation
	for i, higher := range roles {
		granted := make(map[string]bool, len(higher.Permissions))
		for _, pid := range higher.Permissions {
			granted[pid] = true
		}
		for _, lower := range roles[i+1:] {
			if lower.Level >= higher.Level {
				continue
			}
			if !inSameTenant(higher, lower) {
				continue
			}
			var missing []string
			for _, pid := range lower.Permissions {
				if !granted[pid] {
					missing = append(missing, pid)
				}
			}
			if len(missing) > 0 {
				violations = append(violations, HierarchyViolation{Higher: higher.ID, Lower: lower.ID, Missing: missing})
			}
		}
	}
	return violations
}

func inSameTenant(a, b Role) bool {
	if a.OrganizationID == nil || b.OrganizationID == nil {
		return true
	}
	return *a.OrganizationID == *b.OrganizationID
}
