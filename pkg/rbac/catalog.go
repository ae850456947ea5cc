package rbac

func perm(resource Resource, action Action, scope Scope, description string) Permission {
	return Permission{
		ID:          string(resource) + ":" + string(action),
		Resource:    resource,
		Action:      action,
		Scope:       scope,
		Description: description,
	}
}

// own returns the personal-scope variant of resource:action, satisfied by resource ownership
func own(resource Resource, action Action, description string) Permission {
	p := perm(resource, action, ScopePersonal, description)
	p.ID += ":own"
	return p
}

// SystemPermissions returns the closed catalog of system permissions
func SystemPermissions() []Permission {
	return []Permission{
		perm(ResourceOrganization, ActionCreate, ScopeGlobal, "Create an organization"),
		perm(ResourceOrganization, ActionRead, ScopeOrganization, "View organization details"),
		perm(ResourceOrganization, ActionUpdate, ScopeOrganization, "Edit organization details"),
		perm(ResourceOrganization, ActionDelete, ScopeOrganization, "Delete the organization"),
		perm(ResourceOrganization, ActionManage, ScopeOrganization, "Transfer ownership and manage domains"),

		perm(ResourceMember, ActionRead, ScopeOrganization, "List members"),
		perm(ResourceMember, ActionInvite, ScopeOrganization, "Invite members"),
		perm(ResourceMember, ActionUpdate, ScopeOrganization, "Change member roles"),
		perm(ResourceMember, ActionDelete, ScopeOrganization, "Remove members"),

		perm(ResourceInvitation, ActionRead, ScopeOrganization, "List pending invitations"),
		perm(ResourceInvitation, ActionDelete, ScopeOrganization, "Revoke invitations"),
		own(ResourceInvitation, ActionApprove, "Accept an invitation addressed to you"),

		perm(ResourceRole, ActionRead, ScopeOrganization, "List roles"),
		perm(ResourceRole, ActionCreate, ScopeOrganization, "Create custom roles"),
		perm(ResourceRole, ActionUpdate, ScopeOrganization, "Edit custom roles"),
		perm(ResourceRole, ActionDelete, ScopeOrganization, "Delete custom roles"),

		perm(ResourceBilling, ActionRead, ScopeOrganization, "View subscription and usage"),
		perm(ResourceBilling, ActionUpdate, ScopeOrganization, "Change plan"),
		perm(ResourceBilling, ActionManage, ScopeOrganization, "Manage payment methods and invoices"),
		own(ResourceBilling, ActionRead, "View your own subscription and usage"),

		perm(ResourceProject, ActionCreate, ScopeOrganization, "Create projects"),
		perm(ResourceProject, ActionRead, ScopeProject, "View a project"),
		perm(ResourceProject, ActionUpdate, ScopeProject, "Edit a project"),
		perm(ResourceProject, ActionDelete, ScopeProject, "Delete a project"),

		perm(ResourceSettings, ActionRead, ScopeOrganization, "View organization settings"),
		perm(ResourceSettings, ActionUpdate, ScopeOrganization, "Edit organization settings"),

		perm(ResourceFile, ActionRead, ScopeOrganization, "Read organization files"),
		perm(ResourceFile, ActionCreate, ScopeOrganization, "Upload organization files"),
		perm(ResourceFile, ActionDelete, ScopeOrganization, "Delete organization files"),
		own(ResourceFile, ActionRead, "Read your own files"),
		own(ResourceFile, ActionCreate, "Upload your own files"),
		own(ResourceFile, ActionDelete, "Delete your own files"),

		own(ResourceProfile, ActionRead, "View your profile"),
		own(ResourceProfile, ActionUpdate, "Edit your profile"),
	}
}

var (
	viewerPermissions = []string{
		"organization:create",
		"organization:read",
		"member:read",
		"role:read",
		"project:read",
		"settings:read",
		"file:read",
	}

	memberPermissions = append(append([]string{}, viewerPermissions...),
		"invitation:read",
		"project:create",
		"project:update",
		"file:create",
	)

	billingPermissions = append(append([]string{}, memberPermissions...),
		"billing:read",
		"billing:update",
		"billing:manage",
	)

	adminPermissions = append(append([]string{}, billingPermissions...),
		"organization:update",
		"member:invite",
		"member:update",
		"member:delete",
		"invitation:delete",
		"role:create",
		"role:update",
		"role:delete",
		"project:delete",
		"settings:update",
		"file:delete",
	)

	ownerPermissions = append(append([]string{}, adminPermissions...),
		"organization:delete",
		"organization:manage",
	)
)

// SystemRoles returns the built-in roles. Each level's grant list extends the
// level below it.
func SystemRoles() []Role {
	return []Role{
		{
			ID:          RoleOwner,
			Name:        RoleOwner,
			DisplayName: "Owner",
			Description: "Full control including deletion and ownership transfer",
			Level:       100,
			Permissions: ownerPermissions,
			IsSystem:    true,
		},
		{
			ID:          RoleAdmin,
			Name:        RoleAdmin,
			DisplayName: "Admin",
			Description: "Manage members, roles, settings and billing",
			Level:       80,
			Permissions: adminPermissions,
			IsSystem:    true,
		},
		{
			ID:          RoleBilling,
			Name:        RoleBilling,
			DisplayName: "Billing Manager",
			Description: "Manage subscription and payment details",
			Level:       60,
			Permissions: billingPermissions,
			IsSystem:    true,
		},
		{
			ID:          RoleMember,
			Name:        RoleMember,
			DisplayName: "Member",
			Description: "Create and edit projects and files",
			Level:       40,
			Permissions: memberPermissions,
			IsDefault:   true,
			IsSystem:    true,
		},
		{
			ID:          RoleViewer,
			Name:        RoleViewer,
			DisplayName: "Viewer",
			Description: "Read-only access",
			Level:       20,
			Permissions: viewerPermissions,
			IsSystem:    true,
		},
	}
}
