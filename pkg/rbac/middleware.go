package rbac

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
)

// DecisionObserver records evaluator outcomes
type DecisionObserver interface {
	ObservePermission(resource, action string, allowed bool)
}

// Authorizer evaluates checks with the system registry plus the roles of the
// organization in context.
type Authorizer struct {
	registry *Registry
	roles    RoleStore
	observer DecisionObserver
	logger   logrus.FieldLogger
}

// NewAuthorizer creates an authorizer. roles and observer may be nil.
func NewAuthorizer(registry *Registry, roles RoleStore, observer DecisionObserver, logger logrus.FieldLogger) *Authorizer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Authorizer{
		registry: registry,
		roles:    roles,
		observer: observer,
		logger:   logger,
	}
}

// Registry returns the system registry
func (a *Authorizer) Registry() *Registry {
	return a.registry
}

// Evaluator returns an evaluator that also knows the custom roles of orgID
func (a *Authorizer) Evaluator(ctx context.Context, orgID string) (*Evaluator, error) {
	if a.roles == nil || orgID == "" {
		return NewEvaluator(a.registry), nil
	}

	custom, err := a.roles.ListOrganizationRoles(ctx, orgID)
	if err != nil {
		return nil, httputil.Upstream("list organization roles", err)
	}

	registry, err := a.registry.WithRoles(custom...)
	if err != nil {
		// A stored role that no longer fits the catalog is skipped rather than locking the org out
		a.logger.WithError(err).WithField("org_id", orgID).Warn("ignoring invalid organization roles")
		return NewEvaluator(a.registry), nil
	}
	return NewEvaluator(registry), nil
}

// Check evaluates check and returns the raw result
func (a *Authorizer) Check(ctx context.Context, check PermissionCheck, pctx PermissionContext) (Result, error) {
	orgID := ""
	if pctx.Organization != nil {
		orgID = pctx.Organization.ID
	}

	evaluator, err := a.Evaluator(ctx, orgID)
	if err != nil {
		return Result{}, err
	}

	result := evaluator.Evaluate(check, pctx)
	if a.observer != nil {
		a.observer.ObservePermission(string(check.Resource), string(check.Action), result.Allowed)
	}
	return result, nil
}

// Authorize returns an *httputil.AuthorizationError when check is denied
func (a *Authorizer) Authorize(ctx context.Context, check PermissionCheck, pctx PermissionContext) error {
	result, err := a.Check(ctx, check, pctx)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return &httputil.AuthorizationError{Reason: result.Reason}
	}
	return nil
}

// ContextFunc builds the permission context of a request
type ContextFunc func(r *http.Request) (PermissionContext, error)

// RequirePermission creates middleware that requires resource:action for the
// context built by contextFn. Denials respond 403 "access denied".
func (a *Authorizer) RequirePermission(resource Resource, action Action, contextFn ContextFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pctx, err := contextFn(r)
			if err != nil {
				httputil.WriteAppError(w, r, err)
				return
			}

			check := PermissionCheck{Resource: resource, Action: action}
			if pctx.Resource != nil {
				check.ResourceID = pctx.Resource.ID
			}

			if err := a.Authorize(r.Context(), check, pctx); err != nil {
				httputil.WriteAppError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
