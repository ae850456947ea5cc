package api

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{1,62}$`)

// CreateRoleRequest defines a custom organization role
type CreateRoleRequest struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Level       int      `json:"level"`
	Permissions []string `json:"permissions"`
}

// requireCustomRoles returns the organization when the mode allows custom roles
func (s *Server) requireCustomRoles(r *http.Request) (*orgs.Organization, error) {
	org, err := requireOrganization(r)
	if err != nil {
		return nil, err
	}
	if !s.resolver.Config().Features.CustomRoles || s.roles == nil {
		return nil, &httputil.AuthorizationError{Reason: "custom roles are disabled"}
	}
	return org, nil
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	org, err := requireOrganization(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	evaluator, err := s.authorizer.Evaluator(r.Context(), org.ID)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("list roles", err))
		return
	}
	httputil.WriteSuccess(w, evaluator.Registry().Roles())
}

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	org, err := s.requireCustomRoles(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req CreateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	v := &httputil.Validator{}
	v.Require("name", req.Name).
		Require("display_name", req.DisplayName).
		Check(req.Name == "" || roleNamePattern.MatchString(req.Name), "name", "must be lowercase letters, digits, - or _").
		Check(req.Level >= 0, "level", "must not be negative")
	if err := v.Err(); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := s.authorize(r, rbac.ResourceRole, rbac.ActionCreate, orgResource(org)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	evaluator, err := s.authorizer.Evaluator(r.Context(), org.ID)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("create role", err))
		return
	}
	for _, existing := range evaluator.Registry().Roles() {
		if existing.Name == req.Name {
			httputil.WriteAppError(w, r, domainError("create role", rbac.ErrRoleExists))
			return
		}
	}

	orgID := org.ID
	role := &rbac.Role{
		ID:             uuid.NewString(),
		Name:           req.Name,
		DisplayName:    req.DisplayName,
		Description:    req.Description,
		Level:          req.Level,
		Permissions:    req.Permissions,
		OrganizationID: &orgID,
	}
	if role.Permissions == nil {
		role.Permissions = []string{}
	}
	if _, err := evaluator.Registry().WithRoles(*role); err != nil {
		httputil.WriteAppError(w, r, domainError("create role", err))
		return
	}
	if err := checkRoleCeiling(r, evaluator.Registry(), role); err != nil {
		httputil.WriteAppError(w, r, domainError("create role", err))
		return
	}

	if err := s.roles.CreateRole(r.Context(), role); err != nil {
		httputil.WriteAppError(w, r, domainError("create role", err))
		return
	}

	httputil.LoggerFrom(r).WithField("org_id", org.ID).WithField("role", role.Name).Info("custom role created")
	httputil.WriteCreated(w, role)
}

// checkRoleCeiling keeps a new role strictly below the caller's own role: it
// may only grant permissions the caller holds and its level must be lower.
func checkRoleCeiling(r *http.Request, registry *rbac.Registry, role *rbac.Role) error {
	caller, ok := callerRole(r, registry)
	if !ok {
		return &httputil.AuthorizationError{Reason: "no active membership"}
	}

	held := make(map[string]bool, len(caller.Permissions))
	for _, id := range caller.Permissions {
		held[id] = true
	}
	for _, id := range role.Permissions {
		if !held[id] {
			return &httputil.AuthorizationError{Reason: "cannot grant " + id + " without holding it"}
		}
	}
	if role.Level >= caller.Level {
		return httputil.NewValidationError("level", "must be below your own role level")
	}
	return nil
}

// callerRole returns the role of the caller's active membership
func callerRole(r *http.Request, registry *rbac.Registry) (rbac.Role, bool) {
	membership := middleware.MembershipFrom(r.Context())
	if !membership.IsActive() {
		return rbac.Role{}, false
	}
	role, err := registry.GetRole(membership.RoleID)
	if err != nil {
		return rbac.Role{}, false
	}
	return role, true
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	org, err := s.requireCustomRoles(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	roleID, err := httputil.PathVar(r, "role_id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := s.authorize(r, rbac.ResourceRole, rbac.ActionDelete, orgResource(org)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if role, err := s.authorizer.Registry().GetRole(roleID); err == nil && role.IsSystem {
		httputil.WriteAppError(w, r, &httputil.ConflictError{Message: "system roles cannot be deleted"})
		return
	}

	members, err := s.orgs.ListMembers(r.Context(), org.ID)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("list members", err))
		return
	}
	for _, m := range members {
		if m.RoleID == roleID && m.Status != orgs.StatusRemoved {
			httputil.WriteAppError(w, r, &httputil.ConflictError{Message: "role is assigned to members, reassign them first"})
			return
		}
	}

	if err := s.roles.DeleteRole(r.Context(), org.ID, roleID); err != nil {
		httputil.WriteAppError(w, r, domainError("delete role", err))
		return
	}
	httputil.WriteNoContent(w)
}
