// Package orgs provides tenancy modes, organizations and memberships.
//
// # Modes
//
// The organization mode is read once at startup and carried by a Resolver:
//
//	none    - no organizations; every resource is scoped by user_id
//	single  - exactly one organization; resources scoped by organization_id
//	multi   - many organizations per deployment; resources scoped by organization_id
//
// GetConfig is a table lookup over the three variants and reports which
// features (invites, custom roles, organization billing, custom domains) are on.
//
// # Owner filters
//
// Every tenant-owned query is scoped with an OwnerFilter:
//
//	filter := resolver.OwnerFilter(user, org)
//	clause, args := filter.SQL(1)
//	rows, err := db.QueryContext(ctx, "SELECT ... FROM files WHERE "+clause, args...)
//
// When the tenant cannot be determined (no organization selected in single or
// multi mode) the filter has MatchNone set and renders as FALSE. It never falls
// back to all rows.
//
// # Memberships
//
// A membership is unique per (organization, user) and moves through
// invited -> active -> removed. Removal is a soft delete; re-inviting a removed
// user reuses the row. An organization always keeps at least one active owner.
package orgs
