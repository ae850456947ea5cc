package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
)

// OrgLoader loads the organization and membership of a request
type OrgLoader interface {
	GetOrganization(ctx context.Context, id string) (*orgs.Organization, error)
	GetSoleOrganization(ctx context.Context) (*orgs.Organization, error)
	GetMembership(ctx context.Context, orgID, userID string) (*orgs.Membership, error)
}

// OrgContext adds the current organization and the caller's membership to the
// request context.
//
//   - none mode: nothing is loaded.
//   - an {org_id} route variable selects the organization. Callers without an
//     invited or active membership get 404 so the organization's existence is
//     not revealed.
//   - single mode without {org_id}: the deployment's organization is used.
//
// A request without an organization continues; owner filters built from it
// match nothing.
func OrgContext(loader OrgLoader, resolver *orgs.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver.Mode() == orgs.ModeNone {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			user := auth.UserFromContext(ctx)

			var org *orgs.Organization
			orgID, explicit := mux.Vars(r)["org_id"]
			var err error
			switch {
			case explicit:
				org, err = loader.GetOrganization(ctx, orgID)
			case resolver.Mode() == orgs.ModeSingle:
				org, err = loader.GetSoleOrganization(ctx)
			}
			if errors.Is(err, orgs.ErrNotFound) {
				if explicit {
					httputil.WriteAppError(w, r, &httputil.NotFoundError{Resource: "organization"})
					return
				}
				err = nil
			}
			if err != nil {
				httputil.WriteAppError(w, r, httputil.Upstream("load organization", err))
				return
			}
			if org == nil {
				next.ServeHTTP(w, r)
				return
			}

			var membership *orgs.Membership
			if user != nil {
				membership, err = loader.GetMembership(ctx, org.ID, user.ID)
				if err != nil && !errors.Is(err, orgs.ErrMemberNotFound) {
					httputil.WriteAppError(w, r, httputil.Upstream("load membership", err))
					return
				}
			}
			if explicit && membership == nil {
				httputil.WriteAppError(w, r, &httputil.NotFoundError{Resource: "organization"})
				return
			}

			ctx = contextkeys.WithOrg(ctx, org)
			if membership != nil {
				ctx = contextkeys.WithMembership(ctx, membership)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OrganizationFrom returns the organization stored by OrgContext, or nil
func OrganizationFrom(ctx context.Context) *orgs.Organization {
	org, _ := ctx.Value(contextkeys.OrgKey).(*orgs.Organization)
	return org
}

// MembershipFrom returns the caller's membership stored by OrgContext, or nil
func MembershipFrom(ctx context.Context) *orgs.Membership {
	m, _ := ctx.Value(contextkeys.MembershipKey).(*orgs.Membership)
	return m
}
