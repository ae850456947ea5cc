package rbac

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedRoleStore wraps a RoleStore with a TTL-bounded LRU of organization roles.
// Writes through this store invalidate the affected organization.
type CachedRoleStore struct {
	store RoleStore
	cache *lru.LRU[string, []Role]
}

// NewCachedRoleStore creates a cache holding at most size organizations for ttl
func NewCachedRoleStore(store RoleStore, size int, ttl time.Duration) *CachedRoleStore {
	if size < 1 {
		size = 1
	}
	return &CachedRoleStore{
		store: store,
		cache: lru.NewLRU[string, []Role](size, nil, ttl),
	}
}

// ListOrganizationRoles returns cached roles or loads them from the underlying store
func (c *CachedRoleStore) ListOrganizationRoles(ctx context.Context, orgID string) ([]Role, error) {
	if roles, ok := c.cache.Get(orgID); ok {
		return roles, nil
	}

	roles, err := c.store.ListOrganizationRoles(ctx, orgID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(orgID, roles)
	return roles, nil
}

// CreateRole creates the role and invalidates its organization
func (c *CachedRoleStore) CreateRole(ctx context.Context, role *Role) error {
	if err := c.store.CreateRole(ctx, role); err != nil {
		return err
	}
	if role.OrganizationID != nil {
		c.cache.Remove(*role.OrganizationID)
	}
	return nil
}

// DeleteRole deletes the role and invalidates its organization
func (c *CachedRoleStore) DeleteRole(ctx context.Context, orgID, roleID string) error {
	defer c.cache.Remove(orgID)
	return c.store.DeleteRole(ctx, orgID, roleID)
}
