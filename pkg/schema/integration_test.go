//go:build integration

package schema_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/billing"
	"github.com/platinummonkey/tenantgate/pkg/orgs"
	"github.com/platinummonkey/tenantgate/pkg/profile"
	"github.com/platinummonkey/tenantgate/pkg/rbac"
	"github.com/platinummonkey/tenantgate/pkg/schema"
)

// setupPostgres starts a disposable Postgres and applies the schema
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("tenantgate_test"),
		postgres.WithUsername("tenantgate"),
		postgres.WithPassword("tenantgate_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.PingContext(ctx))

	logger, _ := test.NewNullLogger()
	require.NoError(t, schema.Apply(ctx, db, logger))
	// A second run finds nothing pending
	require.NoError(t, schema.Apply(ctx, db, logger))
	return db
}

func TestSchema_OrganizationLifecycle(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	service := orgs.NewPostgresService(db, orgs.NewResolver(orgs.ModeMulti))

	org := &orgs.Organization{Name: "Acme Corp", OwnerID: "user-1"}
	require.NoError(t, service.CreateOrganization(ctx, org))
	assert.Equal(t, "acme-corp", org.Slug)

	owner, err := service.GetMembership(ctx, org.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleOwner, owner.RoleID)
	assert.True(t, owner.IsActive())

	_, err = service.InviteMember(ctx, org.ID, "user-2", rbac.RoleMember, "user-1")
	require.NoError(t, err)
	_, err = service.InviteMember(ctx, org.ID, "user-2", rbac.RoleAdmin, "user-1")
	assert.ErrorIs(t, err, orgs.ErrMembershipExists)

	accepted, err := service.AcceptInvitation(ctx, org.ID, "user-2")
	require.NoError(t, err)
	assert.True(t, accepted.IsActive())

	assert.ErrorIs(t, service.RemoveMember(ctx, org.ID, "user-1"), orgs.ErrLastOwner)
	require.NoError(t, service.RemoveMember(ctx, org.ID, "user-2"))

	// A removed member can be invited again
	reinvited, err := service.InviteMember(ctx, org.ID, "user-2", rbac.RoleViewer, "user-1")
	require.NoError(t, err)
	assert.Equal(t, orgs.StatusInvited, reinvited.Status)

	listed, err := service.ListOrganizations(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, org.ID, listed[0].ID)

	dup := &orgs.Organization{Name: "Acme Corp", OwnerID: "user-3"}
	assert.ErrorIs(t, service.CreateOrganization(ctx, dup), orgs.ErrSlugTaken)
}

func TestSchema_CustomRoles(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	service := orgs.NewPostgresService(db, orgs.NewResolver(orgs.ModeMulti))
	org := &orgs.Organization{Name: "Roles Inc", OwnerID: "user-1"}
	require.NoError(t, service.CreateOrganization(ctx, org))

	store := rbac.NewPostgresRoleStore(db)
	role := &rbac.Role{
		Name:           "auditor",
		DisplayName:    "Auditor",
		Level:          15,
		Permissions:    []string{"billing:read"},
		OrganizationID: &org.ID,
	}
	require.NoError(t, store.CreateRole(ctx, role))
	assert.ErrorIs(t, store.CreateRole(ctx, &rbac.Role{Name: "auditor", DisplayName: "Again", OrganizationID: &org.ID}), rbac.ErrRoleExists)

	roles, err := store.ListOrganizationRoles(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, []string{"billing:read"}, roles[0].Permissions)

	require.NoError(t, store.DeleteRole(ctx, org.ID, role.ID))
	assert.ErrorIs(t, store.DeleteRole(ctx, org.ID, role.ID), rbac.ErrRoleNotFound)
}

func TestSchema_UsageIsTenantScoped(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	billingService := billing.NewPostgresService(db)
	resolver := orgs.NewResolver(orgs.ModeNone)

	alice := resolver.OwnerFilter(&auth.User{ID: "alice"}, nil)
	bob := resolver.OwnerFilter(&auth.User{ID: "bob"}, nil)

	require.NoError(t, billingService.RecordUsage(ctx, alice, billing.MetricStorageBytes, 512))
	require.NoError(t, billingService.RecordUsage(ctx, alice, billing.MetricStorageBytes, 512))
	require.NoError(t, billingService.RecordUsage(ctx, bob, billing.MetricStorageBytes, 1))
	require.NoError(t, billingService.RecordUsage(ctx, bob, billing.MetricStorageBytes, -10))

	usage, err := billingService.GetUsage(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), usage.Metrics[billing.MetricStorageBytes])
	assert.Equal(t, billing.PlanFree, usage.Plan)

	usage, err = billingService.GetUsage(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.Metrics[billing.MetricStorageBytes])

	limit := billing.LimitsFor(billing.PlanFree).StorageBytes
	err = billingService.CheckQuota(ctx, alice, billing.MetricStorageBytes, limit)
	assert.True(t, billing.IsQuotaExceeded(err))
}

func TestSchema_Profiles(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	store := profile.NewPostgresStore(db)

	_, err := store.Get(ctx, "user-1")
	assert.ErrorIs(t, err, profile.ErrNotFound)

	name := "Ada Lovelace"
	p, err := store.Update(ctx, "user-1", "ada@example.com", &profile.UpdateRequest{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, name, p.FullName)

	company := "Analytical Engines"
	p, err = store.Update(ctx, "user-1", "ada@example.com", &profile.UpdateRequest{Company: &company})
	require.NoError(t, err)
	assert.Equal(t, name, p.FullName)
	assert.Equal(t, company, p.Company)
}
