package api

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/billing"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

const maxOrgNameLength = 255

// requireOrganization returns the organization loaded by OrgContext
func requireOrganization(r *http.Request) (*orgs.Organization, error) {
	org := middleware.OrganizationFrom(r.Context())
	if org == nil {
		return nil, errNoOrganization
	}
	return org, nil
}

func orgResource(org *orgs.Organization) *rbac.ResourceContext {
	return &rbac.ResourceContext{ID: org.ID, OwnerID: org.OwnerID, OrganizationID: org.ID}
}

func memberResource(org *orgs.Organization, userID string) *rbac.ResourceContext {
	return &rbac.ResourceContext{ID: userID, OrganizationID: org.ID}
}

func allMembers(org *orgs.Organization) *rbac.ResourceContext {
	return memberResource(org, "")
}

func orgFilter(org *orgs.Organization) orgs.OwnerFilter {
	return orgs.OwnerFilter{Field: orgs.OwnerFieldOrganization, Value: org.ID}
}

// recordMembers adjusts the member counter of org. The membership change has
// already happened, so a failure is only logged.
func (s *Server) recordMembers(r *http.Request, org *orgs.Organization, delta int64) {
	if err := s.billing.RecordUsage(r.Context(), orgFilter(org), billing.MetricMembers, delta); err != nil {
		httputil.LoggerFrom(r).WithError(err).WithField("org_id", org.ID).Warn("failed to record member usage")
	}
}

func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if s.resolver.Mode() == orgs.ModeNone {
		httputil.WriteAppError(w, r, domainError("list organizations", orgs.ErrOrganizationsDenied))
		return
	}

	list, err := s.orgs.ListOrganizations(r.Context(), user.ID)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("list organizations", err))
		return
	}
	if list == nil {
		list = []*orgs.Organization{}
	}
	httputil.WriteSuccess(w, list)
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req orgs.CreateOrgRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	v := &httputil.Validator{}
	v.Require("name", req.Name).
		Check(len(req.Name) <= maxOrgNameLength, "name", "must be at most 255 characters")
	if err := v.Err(); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := s.authorize(r, rbac.ResourceOrganization, rbac.ActionCreate, nil); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	org := &orgs.Organization{
		Name:    req.Name,
		Slug:    strings.ToLower(strings.TrimSpace(req.Slug)),
		OwnerID: user.ID,
	}
	if err := s.orgs.CreateOrganization(r.Context(), org); err != nil {
		httputil.WriteAppError(w, r, domainError("create organization", err))
		return
	}
	s.recordMembers(r, org, 1)

	httputil.LoggerFrom(r).WithFields(map[string]interface{}{
		"org_id": org.ID,
		"slug":   org.Slug,
	}).Info("organization created")
	httputil.WriteCreated(w, org)
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := requireOrganization(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	org, err := requireOrganization(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req orgs.UpdateOrgRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if req.Name != nil {
		v := &httputil.Validator{}
		v.Require("name", *req.Name).
			Check(len(*req.Name) <= maxOrgNameLength, "name", "must be at most 255 characters")
		if err := v.Err(); err != nil {
			httputil.WriteAppError(w, r, err)
			return
		}
	}

	if err := s.authorize(r, rbac.ResourceOrganization, rbac.ActionUpdate, orgResource(org)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	updated, err := s.orgs.UpdateOrganization(r.Context(), org.ID, &req)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("update organization", err))
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	org, err := requireOrganization(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	members, err := s.orgs.ListMembers(r.Context(), org.ID)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("list members", err))
		return
	}
	if members == nil {
		members = []*orgs.Membership{}
	}
	httputil.WriteSuccess(w, members)
}

// resolveRole checks that roleID names a system role or a custom role of org
func (s *Server) resolveRole(r *http.Request, org *orgs.Organization, roleID string) (rbac.Role, error) {
	evaluator, err := s.authorizer.Evaluator(r.Context(), org.ID)
	if err != nil {
		return rbac.Role{}, err
	}
	if roleID == "" {
		return evaluator.Registry().DefaultRole(), nil
	}
	role, err := evaluator.Registry().GetRole(roleID)
	if err != nil {
		return rbac.Role{}, httputil.NewValidationError("role_id", "unknown role")
	}
	return role, nil
}

// ownerPermissionIDs are the grants reserved to the owner tier
var ownerPermissionIDs = []string{
	string(rbac.ResourceOrganization) + ":" + string(rbac.ActionManage),
	string(rbac.ResourceOrganization) + ":" + string(rbac.ActionDelete),
}

// authorizeOwnerChange requires organization:manage for granting or revoking
// ownership, or any role carrying owner-tier permissions.
func (s *Server) authorizeOwnerChange(r *http.Request, org *orgs.Organization, roleIDs ...string) error {
	evaluator, err := s.authorizer.Evaluator(r.Context(), org.ID)
	if err != nil {
		return domainError("resolve roles", err)
	}
	for _, id := range roleIDs {
		if ownerTier(evaluator.Registry(), id) {
			return s.authorize(r, rbac.ResourceOrganization, rbac.ActionManage, orgResource(org))
		}
	}
	return nil
}

func ownerTier(registry *rbac.Registry, roleID string) bool {
	if roleID == rbac.RoleOwner {
		return true
	}
	role, err := registry.GetRole(roleID)
	if err != nil {
		return false
	}
	for _, granted := range role.Permissions {
		for _, reserved := range ownerPermissionIDs {
			if granted == reserved {
				return true
			}
		}
	}
	return false
}

func (s *Server) inviteMember(w http.ResponseWriter, r *http.Request) {
	org, err := requireOrganization(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	inviter, err := requireUser(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req orgs.InviteMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := (&httputil.Validator{}).Require("user_id", req.UserID).Err(); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := s.authorize(r, rbac.ResourceMember, rbac.ActionInvite, memberResource(org, req.UserID)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	role, err := s.resolveRole(r, org, req.RoleID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := s.authorizeOwnerChange(r, org, role.ID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := s.billing.CheckQuota(r.Context(), orgFilter(org), billing.MetricMembers, 1); err != nil {
		httputil.WriteAppError(w, r, domainError("check member quota", err))
		return
	}

	membership, err := s.orgs.InviteMember(r.Context(), org.ID, req.UserID, role.ID, inviter.ID)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("invite member", err))
		return
	}
	s.recordMembers(r, org, 1)

	httputil.WriteCreated(w, membership)
}

func (s *Server) updateMember(w http.ResponseWriter, r *http.Request) {
	org, err := requireOrganization(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	userID, err := httputil.PathVar(r, "user_id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	var req orgs.UpdateMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	if err := (&httputil.Validator{}).Require("role_id", req.RoleID).Err(); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := s.authorize(r, rbac.ResourceMember, rbac.ActionUpdate, memberResource(org, userID)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	role, err := s.resolveRole(r, org, req.RoleID)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	target, err := s.orgs.GetMembership(r.Context(), org.ID, userID)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("get member", err))
		return
	}
	if err := s.authorizeOwnerChange(r, org, role.ID, target.RoleID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := s.orgs.UpdateMemberRole(r.Context(), org.ID, userID, role.ID); err != nil {
		httputil.WriteAppError(w, r, domainError("update member role", err))
		return
	}

	target.RoleID = role.ID
	httputil.WriteSuccess(w, target)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	org, err := requireOrganization(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	userID, err := httputil.PathVar(r, "user_id")
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := s.authorize(r, rbac.ResourceMember, rbac.ActionDelete, memberResource(org, userID)); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	target, err := s.orgs.GetMembership(r.Context(), org.ID, userID)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("get member", err))
		return
	}
	if err := s.authorizeOwnerChange(r, org, target.RoleID); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	if err := s.orgs.RemoveMember(r.Context(), org.ID, userID); err != nil {
		httputil.WriteAppError(w, r, domainError("remove member", err))
		return
	}
	s.recordMembers(r, org, -1)

	httputil.WriteNoContent(w)
}

func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	org, err := requireOrganization(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	user, err := requireUser(r)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	invitation := middleware.MembershipFrom(r.Context())
	if invitation == nil || invitation.Status != orgs.StatusInvited {
		httputil.WriteAppError(w, r, &httputil.NotFoundError{Resource: "invitation"})
		return
	}

	target := &rbac.ResourceContext{ID: invitation.ID, OwnerID: invitation.UserID, OrganizationID: org.ID}
	if err := s.authorize(r, rbac.ResourceInvitation, rbac.ActionApprove, target); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	membership, err := s.orgs.AcceptInvitation(r.Context(), org.ID, user.ID)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("accept invitation", err))
		return
	}
	httputil.WriteSuccess(w, membership)
}
