// Package api provides the HTTP surface of tenantgate.
//
// # Overview
//
// Server wires the request pipeline around a gorilla/mux router:
//
//	request id -> logging -> recovery -> gate -> rate limit -> router
//
// Inside the router every /api route passes through OrgContext, which loads
// the organization selected by the {org_id} path variable or the sole
// organization in single mode, and then through the monthly API request quota.
//
// Handlers never trust the client for tenancy. Tenant data is scoped with the
// OwnerFilter derived from the session and the organization in context, and
// every operation runs a permission check before touching a service.
//
// # Endpoints
//
//	GET    /api/health                                  - Liveness and mode
//	GET    /api/me                                      - Session user, profile, organization
//	PUT    /api/profile                                 - Update own profile
//	GET    /api/orgs                                    - List own organizations
//	POST   /api/orgs                                    - Create organization
//	GET    /api/orgs/{org_id}                           - Get organization
//	PUT    /api/orgs/{org_id}                           - Update organization
//	GET    /api/orgs/{org_id}/members                   - List members
//	POST   /api/orgs/{org_id}/members                   - Invite member
//	PUT    /api/orgs/{org_id}/members/{user_id}         - Change member role
//	DELETE /api/orgs/{org_id}/members/{user_id}         - Remove member
//	POST   /api/orgs/{org_id}/invitations/accept        - Accept own invitation
//	GET    /api/orgs/{org_id}/roles                     - List system and custom roles
//	POST   /api/orgs/{org_id}/roles                     - Create custom role
//	DELETE /api/orgs/{org_id}/roles/{role_id}           - Delete custom role
//	POST   /api/permissions/check                       - Evaluate a permission
//	GET    /api[/orgs/{org_id}]/billing/subscription    - Subscription of the tenant
//	GET    /api[/orgs/{org_id}]/billing/usage           - Usage against plan limits
//	PUT    /api[/orgs/{org_id}]/files/{name}            - Upload a tenant file
//	DELETE /api[/orgs/{org_id}]/files/{name}            - Delete a tenant file
//	POST   /api/webhooks/billing                        - Payment processor events
//
// Removed endpoints answer 410 Gone (POST /api/organizations, POST
// /api/billing/checkout) and sign-up answers 409 with a pointer to the
// identity provider flow.
//
// # Errors
//
// Service errors are mapped by domainError onto the httputil error taxonomy,
// so quota violations surface as 403 with a plan message, unknown records as
// 404 and upstream failures as an opaque 500 that is logged with the request id.
package api
