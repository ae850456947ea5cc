package api

import (
	"net/http"

	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
)

// CheckPermissionRequest asks whether the caller may perform an action
type CheckPermissionRequest struct {
	Resource   rbac.Resource         `json:"resource"`
	Action     rbac.Action           `json:"action"`
	ResourceID string                `json:"resource_id,omitempty"`
	Target     *rbac.ResourceContext `json:"target,omitempty"`
}

// checkPermission reports the evaluator decision for a hypothetical check so
// clients can shape their UI. It never enforces anything: a 200 with
// allowed=false is a normal answer, and handlers must not call it as a guard.
// Enforcement goes through authorize or orgPermission.
func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req CheckPermissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	v := &httputil.Validator{}
	v.Require("resource", string(req.Resource)).Require("action", string(req.Action))
	if err := v.Err(); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	pctx, err := s.permissionContext(r, req.Target)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}

	check := rbac.PermissionCheck{Resource: req.Resource, Action: req.Action, ResourceID: req.ResourceID}
	if check.ResourceID == "" && req.Target != nil {
		check.ResourceID = req.Target.ID
	}
	result, err := s.authorizer.Check(r.Context(), check, pctx)
	if err != nil {
		httputil.WriteAppError(w, r, domainError("check permission", err))
		return
	}
	httputil.WriteSuccess(w, result)
}
