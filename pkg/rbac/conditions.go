package rbac

import (
	"strconv"
	"strings"
)

// Lookup returns the value of field in the context. ok is false when the field
// is unknown or the part of the context holding it is absent or empty.
func (c PermissionContext) Lookup(field Field) (string, bool) {
	var v string
	switch field {
	case FieldUserID:
		v = c.User.ID
	case FieldUserOrganizationID:
		v = c.User.OrganizationID
	case FieldOrganizationID:
		if c.Organization != nil {
			v = c.Organization.ID
		}
	case FieldOrganizationOwnerID:
		if c.Organization != nil {
			v = c.Organization.OwnerID
		}
	case FieldResourceID:
		if c.Resource != nil {
			v = c.Resource.ID
		}
	case FieldResourceOwnerID:
		if c.Resource != nil {
			v = c.Resource.OwnerID
		}
	case FieldResourceOrganizationID:
		if c.Resource != nil {
			v = c.Resource.OrganizationID
		}
	default:
		return "", false
	}
	return v, v != ""
}

// Holds evaluates the condition against ctx. Missing fields never satisfy a condition.
func (cond Condition) Holds(ctx PermissionContext) bool {
	actual, ok := ctx.Lookup(cond.Field)
	if !ok {
		return false
	}

	expected := cond.Value
	if cond.Ref != "" {
		ref, ok := ctx.Lookup(cond.Ref)
		if !ok {
			return false
		}
		expected = ref
	}

	switch cond.Operator {
	case OpEquals:
		return actual == expected
	case OpNotEquals:
		return actual != expected
	case OpIn:
		return containsString(cond.Values, actual)
	case OpNotIn:
		return !containsString(cond.Values, actual)
	case OpContains:
		return expected != "" && strings.Contains(actual, expected)
	case OpGreaterThan:
		return compare(actual, expected) > 0
	case OpLessThan:
		return compare(actual, expected) < 0
	default:
		return false
	}
}

// overridesOwnership reports whether the condition explicitly excludes the resource owner
func (cond Condition) overridesOwnership() bool {
	if cond.Operator != OpNotEquals {
		return false
	}
	return cond.Field == FieldResourceOwnerID || cond.Ref == FieldResourceOwnerID
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// compare orders numerically when both sides parse as numbers, lexically otherwise
func compare(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
