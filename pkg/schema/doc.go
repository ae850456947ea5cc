// Package schema holds the Postgres schema as embedded SQL migrations.
//
// Migrations live in migrations/<version>_<description>.{up,down}.sql and are
// applied with golang-migrate. The current version is tracked in
// schema_migrations, so Apply is safe to run on every boot:
//
//	if err := schema.Apply(ctx, db, logger); err != nil {
//		logger.WithError(err).Fatal("Failed to migrate database")
//	}
//
// Tables:
//
//   - organizations, organization_memberships, organization_roles (pkg/orgs, pkg/rbac)
//   - profiles (pkg/profile)
//   - subscriptions, usage_counters (pkg/billing)
//
// Billing rows carry both user_id and organization_id; exactly one is set,
// matching the owner filter of the organization mode.
package schema
