package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/billing"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/middleware"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/profile"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/storage"
)

var errNoSession = &httputil.AuthenticationError{Message: "authentication required"}

// requireUser returns the session user or an AuthenticationError
func requireUser(r *http.Request) (*auth.User, error) {
	user := auth.UserFromContext(r.Context())
	if user == nil || user.ID == "" {
		return nil, errNoSession
	}
	return user, nil
}

// permissionContext builds the evaluator input for the caller. Inside an
// organization the caller holds the role of an active membership. Outside one
// they hold the registry's default role, which only satisfies global-scope
// permissions there.
func (s *Server) permissionContext(r *http.Request, resource *rbac.ResourceContext) (rbac.PermissionContext, error) {
	user, err := requireUser(r)
	if err != nil {
		return rbac.PermissionContext{}, err
	}

	pctx := rbac.PermissionContext{
		User:     rbac.UserContext{ID: user.ID},
		Resource: resource,
	}

	org := middleware.OrganizationFrom(r.Context())
	if org == nil {
		pctx.User.Roles = []string{s.authorizer.Registry().DefaultRole().ID}
		return pctx, nil
	}

	pctx.Organization = &rbac.OrganizationContext{ID: org.ID, OwnerID: org.OwnerID}
	if membership := middleware.MembershipFrom(r.Context()); membership.IsActive() {
		pctx.User.Roles = []string{membership.RoleID}
		pctx.User.OrganizationID = org.ID
	}
	return pctx, nil
}

// authorize runs the evaluator for resource:action against the caller
func (s *Server) authorize(r *http.Request, resource rbac.Resource, action rbac.Action, target *rbac.ResourceContext) error {
	pctx, err := s.permissionContext(r, target)
	if err != nil {
		return err
	}

	check := rbac.PermissionCheck{Resource: resource, Action: action}
	if target != nil {
		check.ResourceID = target.ID
	}
	return s.authorizer.Authorize(r.Context(), check, pctx)
}

// orgPermission guards an organization route with resource:action. target
// describes the checked resource from the organization in context.
func (s *Server) orgPermission(resource rbac.Resource, action rbac.Action, target func(*orgs.Organization) *rbac.ResourceContext, handler http.HandlerFunc) http.Handler {
	contextFn := func(r *http.Request) (rbac.PermissionContext, error) {
		org, err := requireOrganization(r)
		if err != nil {
			return rbac.PermissionContext{}, err
		}
		return s.permissionContext(r, target(org))
	}
	return s.authorizer.RequirePermission(resource, action, contextFn)(handler)
}

// ownerFilter scopes tenant data to the caller (none mode) or the organization
// in context.
func (s *Server) ownerFilter(r *http.Request) orgs.OwnerFilter {
	ctx := r.Context()
	return s.resolver.OwnerFilter(auth.UserFromContext(ctx), middleware.OrganizationFrom(ctx))
}

// tenantResource describes data owned by the current tenant for permission
// checks. In none mode the caller owns it; otherwise the organization does.
func tenantResource(filter orgs.OwnerFilter, id string) *rbac.ResourceContext {
	if filter.Field == orgs.OwnerFieldUser {
		return &rbac.ResourceContext{ID: id, OwnerID: filter.Value}
	}
	return &rbac.ResourceContext{ID: id, OrganizationID: filter.Value}
}

var errNoOrganization = &httputil.NotFoundError{Resource: "organization"}

// domainError maps service errors onto the HTTP error taxonomy
func domainError(op string, err error) error {
	var quotaErr *billing.QuotaExceededError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &quotaErr):
		return &httputil.QuotaError{Message: quotaMessage(quotaErr)}

	case errors.Is(err, orgs.ErrNotFound):
		return &httputil.NotFoundError{Resource: "organization"}
	case errors.Is(err, orgs.ErrMemberNotFound):
		return &httputil.NotFoundError{Resource: "member"}
	case errors.Is(err, orgs.ErrInvitationNotFound):
		return &httputil.NotFoundError{Resource: "invitation"}
	case errors.Is(err, orgs.ErrMembershipExists),
		errors.Is(err, orgs.ErrSlugTaken),
		errors.Is(err, orgs.ErrLastOwner),
		errors.Is(err, orgs.ErrOrganizationLimit):
		return &httputil.ConflictError{Message: rootMessage(err)}
	case errors.Is(err, orgs.ErrOrganizationsDenied),
		errors.Is(err, orgs.ErrInvitesDisabled):
		return &httputil.AuthorizationError{Reason: err.Error()}

	case errors.Is(err, rbac.ErrRoleNotFound):
		return &httputil.NotFoundError{Resource: "role"}
	case errors.Is(err, rbac.ErrRoleExists):
		return &httputil.ConflictError{Message: "role already exists"}
	case errors.Is(err, rbac.ErrUnknownPermission):
		return httputil.NewValidationError("permissions", err.Error())

	case errors.Is(err, billing.ErrNoOwner), errors.Is(err, storage.ErrNoOwner):
		return errNoOrganization
	case errors.Is(err, billing.ErrUnknownPlan):
		return httputil.NewValidationError("plan", err.Error())

	case errors.Is(err, profile.ErrNotFound):
		return &httputil.NotFoundError{Resource: "profile"}

	case errors.Is(err, storage.ErrInvalidName):
		return httputil.NewValidationError("name", "must be a relative path without . or .. segments")
	case errors.Is(err, storage.ErrObjectNotFound):
		return &httputil.NotFoundError{Resource: "file"}
	}
	return httputil.Upstream(op, err)
}

// rootMessage returns the innermost error message, dropping wrapping context
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func quotaMessage(e *billing.QuotaExceededError) string {
	switch e.Metric {
	case billing.MetricMembers:
		return "member limit reached for the current plan"
	case billing.MetricStorageBytes:
		return "storage limit reached for the current plan"
	default:
		return "usage limit reached for the current plan"
	}
}
