package orgs

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/auth"
)

// Mode selects how the deployment groups users
type Mode string

const (
	ModeNone   Mode = "none"   // Every user is their own tenant
	ModeSingle Mode = "single" // One organization for the whole deployment
	ModeMulti  Mode = "multi"  // Users create and switch between organizations
)

// ParseMode parses a configured mode. Empty selects ModeNone.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeNone:
		return ModeNone, nil
	case ModeSingle:
		return ModeSingle, nil
	case ModeMulti:
		return ModeMulti, nil
	default:
		return "", fmt.Errorf("invalid organization mode %q (want none, single or multi)", s)
	}
}

// Owner columns used to scope resource queries
const (
	OwnerFieldUser         = "user_id"
	OwnerFieldOrganization = "organization_id"
)

// Features lists the organization capabilities enabled by a mode
type Features struct {
	Invites             bool `json:"invites"`
	CustomRoles         bool `json:"custom_roles"`
	OrganizationBilling bool `json:"organization_billing"`
	CustomDomains       bool `json:"custom_domains"`
}

// OrganizationConfig is the fixed configuration of a mode
type OrganizationConfig struct {
	Mode          Mode     `json:"mode"`
	Features      Features `json:"features"`
	AllowMultiple bool     `json:"allow_multiple"`
	OwnerField    string   `json:"owner_field"`
}

var configs = map[Mode]OrganizationConfig{
	ModeNone: {
		Mode:       ModeNone,
		OwnerField: OwnerFieldUser,
	},
	ModeSingle: {
		Mode: ModeSingle,
		Features: Features{
			Invites:             true,
			CustomRoles:         true,
			OrganizationBilling: true,
		},
		OwnerField: OwnerFieldOrganization,
	},
	ModeMulti: {
		Mode: ModeMulti,
		Features: Features{
			Invites:             true,
			CustomRoles:         true,
			OrganizationBilling: true,
			CustomDomains:       true,
		},
		AllowMultiple: true,
		OwnerField:    OwnerFieldOrganization,
	},
}

// GetConfig returns the configuration of mode. Unknown modes get the none configuration.
func GetConfig(mode Mode) OrganizationConfig {
	if cfg, ok := configs[mode]; ok {
		return cfg
	}
	return configs[ModeNone]
}

// OwnerFilter scopes a resource query to the current tenant
type OwnerFilter struct {
	Field string `json:"field"`
	Value string `json:"value"`
	// MatchNone is set when the tenant cannot be determined; the filter matches no rows
	MatchNone bool `json:"match_none,omitempty"`
}

// BuildOwnerFilter derives the owner filter for a query. A missing user in none
// mode, or a missing organization otherwise, yields a filter matching nothing.
func BuildOwnerFilter(mode Mode, user *auth.User, org *Organization) OwnerFilter {
	cfg := GetConfig(mode)
	filter := OwnerFilter{Field: cfg.OwnerField}

	switch cfg.OwnerField {
	case OwnerFieldUser:
		if user == nil || user.ID == "" {
			filter.MatchNone = true
			return filter
		}
		filter.Value = user.ID
	default:
		if org == nil || org.ID == "" {
			filter.MatchNone = true
			return filter
		}
		filter.Value = org.ID
	}
	return filter
}

// SQL renders the filter as a predicate using placeholder $argPos
func (f OwnerFilter) SQL(argPos int) (string, []any) {
	if f.MatchNone || f.Value == "" {
		return "FALSE", nil
	}
	return fmt.Sprintf("%s = $%d", f.Field, argPos), []any{f.Value}
}

// Matches reports whether a row owned by (userID, orgID) passes the filter
func (f OwnerFilter) Matches(userID, orgID string) bool {
	if f.MatchNone || f.Value == "" {
		return false
	}
	if f.Field == OwnerFieldUser {
		return userID == f.Value
	}
	return orgID == f.Value
}

// Resolver carries the mode chosen at startup
type Resolver struct {
	mode Mode
}

// NewResolver creates a resolver for mode
func NewResolver(mode Mode) *Resolver {
	return &Resolver{mode: mode}
}

// Mode returns the configured mode
func (r *Resolver) Mode() Mode {
	return r.mode
}

// Config returns the configuration of the configured mode
func (r *Resolver) Config() OrganizationConfig {
	return GetConfig(r.mode)
}

// OwnerFilter builds the owner filter for the configured mode
func (r *Resolver) OwnerFilter(user *auth.User, org *Organization) OwnerFilter {
	return BuildOwnerFilter(r.mode, user, org)
}
