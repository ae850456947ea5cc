package rbac

// Evaluator decides permission checks against a Registry. Evaluate performs no
// I/O and returns the same Result for the same inputs.
type Evaluator struct {
	registry *Registry
}

// NewEvaluator creates an evaluator over registry
func NewEvaluator(registry *Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// Registry returns the registry the evaluator reads from
func (e *Evaluator) Registry() *Registry {
	return e.registry
}

// Evaluate decides whether ctx may perform check. Unknown resources, actions
// and roles deny.
func (e *Evaluator) Evaluate(check PermissionCheck, ctx PermissionContext) Result {
	candidates := e.candidates(check, ctx)
	if len(candidates) == 0 {
		return Result{Allowed: false, Reason: ReasonNoMatchingPermission}
	}

	owned := ownsResource(ctx)
	var failed []Condition
	for _, p := range candidates {
		if !scopeSatisfied(p.Scope, check, ctx) {
			continue
		}

		if p.Scope == ScopePersonal && owned && !hasOwnershipOverride(p) {
			return Result{Allowed: true, Permission: p.ID}
		}

		unmet := unmetConditions(p.Conditions, ctx)
		if len(unmet) == 0 {
			return Result{Allowed: true, Permission: p.ID}
		}
		failed = append(failed, unmet...)
	}

	if len(failed) > 0 {
		return Result{Allowed: false, Reason: ReasonConditionsNotMet, FailedConditions: failed}
	}
	return Result{Allowed: false, Reason: ReasonScopeNotSatisfied}
}

// candidates returns granted permissions matching the check, followed by any
// personal-scope catalog permission the actor qualifies for by ownership.
func (e *Evaluator) candidates(check PermissionCheck, ctx PermissionContext) []Permission {
	var matched []Permission
	seen := make(map[string]bool)
	for _, p := range e.registry.grantedPermissions(ctx.User.Roles) {
		if p.Matches(check.Resource, check.Action) {
			matched = append(matched, p)
			seen[p.ID] = true
		}
	}

	if ownsResource(ctx) {
		for _, p := range e.registry.Permissions() {
			if p.Scope == ScopePersonal && p.Matches(check.Resource, check.Action) && !seen[p.ID] {
				matched = append(matched, p)
			}
		}
	}
	return matched
}

func ownsResource(ctx PermissionContext) bool {
	return ctx.Resource != nil && ctx.User.ID != "" && ctx.Resource.OwnerID == ctx.User.ID
}

func hasOwnershipOverride(p Permission) bool {
	for _, c := range p.Conditions {
		if c.overridesOwnership() {
			return true
		}
	}
	return false
}

func unmetConditions(conditions []Condition, ctx PermissionContext) []Condition {
	var unmet []Condition
	for _, c := range conditions {
		if !c.Holds(ctx) {
			unmet = append(unmet, c)
		}
	}
	return unmet
}

func scopeSatisfied(scope Scope, check PermissionCheck, ctx PermissionContext) bool {
	switch scope {
	case ScopeGlobal:
		return true
	case ScopeOrganization:
		if ctx.Organization == nil || ctx.Organization.ID == "" {
			return false
		}
		if ctx.Resource != nil && ctx.Resource.OrganizationID != "" && ctx.Resource.OrganizationID != ctx.Organization.ID {
			return false
		}
		return true
	case ScopeProject:
		if !scopeSatisfied(ScopeOrganization, check, ctx) {
			return false
		}
		return check.ResourceID != "" || (ctx.Resource != nil && ctx.Resource.ID != "")
	case ScopePersonal:
		if ctx.Resource == nil {
			return true
		}
		return ownsResource(ctx)
	default:
		return false
	}
}
