package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/platinummonkey/tenantgate/pkg/orgs"
)

var (
	// ErrNoOwner is returned when the owner filter cannot scope an object
	ErrNoOwner = errors.New("object owner cannot be determined")

	// ErrInvalidName is returned for empty or path-escaping object names
	ErrInvalidName = errors.New("invalid object name")

	// ErrObjectNotFound is returned when a deleted object does not exist
	ErrObjectNotFound = errors.New("object not found")
)

const maxNameLength = 512

// ObjectKey returns the bucket key of name for the tenant selected by filter:
// users/<id>/<name> when scoped by user, orgs/<id>/<name> when scoped by organization.
func ObjectKey(filter orgs.OwnerFilter, name string) (string, error) {
	if filter.MatchNone || filter.Value == "" {
		return "", ErrNoOwner
	}
	if err := validateName(name); err != nil {
		return "", err
	}

	var prefix string
	switch filter.Field {
	case orgs.OwnerFieldUser:
		prefix = "users"
	case orgs.OwnerFieldOrganization:
		prefix = "orgs"
	default:
		return "", fmt.Errorf("unsupported owner field %q: %w", filter.Field, ErrNoOwner)
	}
	return prefix + "/" + filter.Value + "/" + name, nil
}

func validateName(name string) error {
	switch {
	case name == "", len(name) > maxNameLength:
		return ErrInvalidName
	case strings.HasPrefix(name, "/"), strings.Contains(name, "\\"):
		return ErrInvalidName
	case strings.ContainsAny(name, "\x00\r\n"):
		return ErrInvalidName
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrInvalidName
		}
	}
	if path.Clean(name) != name {
		return ErrInvalidName
	}
	return nil
}
