// Package rbac provides role-based access control for organizations, members and their resources.
//
// # Overview
//
// The package has three layers:
//
//  1. Registry: the closed catalog of system permissions and roles, optionally
//     extended with organization-defined roles.
//  2. Evaluator: a pure decision function over a PermissionCheck and a
//     PermissionContext. It performs no I/O.
//  3. Authorizer: loads organization roles (through a RoleStore, usually the
//     CachedRoleStore), evaluates, records metrics and maps denials to 403.
//
// # Permissions
//
// A permission identifier has the form "resource:action". Personal-scope variants
// carry an ":own" suffix, for example "file:delete:own".
//
// Scopes:
//
//	global        - satisfied in any context
//	organization  - requires an organization; a resource organization must match it
//	project       - organization scope plus a resource id
//	personal      - the resource, when present, must be owned by the actor
//
// # Roles
//
// System roles in descending level:
//
//	owner   (100) - everything, including organization:delete and organization:manage
//	admin   (80)  - members, roles, settings, billing, file deletion
//	billing (60)  - member permissions plus billing
//	member  (40)  - default role; projects and uploads
//	viewer  (20)  - read-only
//
// Levels order roles for display and for HierarchyViolations. Grants are never
// inherited from lower roles; each role lists its permissions explicitly.
//
// # Evaluation
//
//	evaluator := rbac.NewEvaluator(rbac.NewRegistry())
//	result := evaluator.Evaluate(
//		rbac.PermissionCheck{Resource: rbac.ResourceMember, Action: rbac.ActionInvite},
//		rbac.PermissionContext{
//			User:         rbac.UserContext{ID: "u1", Roles: []string{rbac.RoleAdmin}},
//			Organization: &rbac.OrganizationContext{ID: "org1"},
//		},
//	)
//
// When the resource is owned by the actor, a personal-scope permission for the
// same resource and action is satisfied without any role granting it, unless the
// permission carries a not_equals condition on resource.owner_id.
//
// Denial reasons are "no matching permission", "conditions not met" (with the
// failing conditions) and "scope not satisfied". Reasons are for logs; clients
// only ever see "access denied".
package rbac
