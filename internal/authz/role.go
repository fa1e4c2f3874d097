// Package authz implements the role based authorization overlay.
//
// Requirements are declared in SDL with the @auth directive on object types
// and fields. Collect turns the compiled schema into a requirement table once;
// Guard consults that table on every field resolution and refuses the call
// before the underlying resolver runs.
package authz

import (
	"fmt"
	"strings"
)

// Role is an ordered authorization level.
type Role int

const (
	Guest Role = iota
	User
	Admin
)

var roleNames = [...]string{Guest: "GUEST", User: "USER", Admin: "ADMIN"}

func (r Role) String() string {
	if r < Guest || r > Admin {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

// Satisfies reports whether r meets the requirement req.
func (r Role) Satisfies(req Role) bool { return r >= req }

// ParseRole parses a Role enum value name. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	for i, n := range roleNames {
		if strings.EqualFold(n, s) {
			return Role(i), nil
		}
	}
	return Guest, fmt.Errorf("unknown role %q", s)
}

// ParseRoles parses every name in names.
func ParseRoles(names []string) ([]Role, error) {
	out := make([]Role, 0, len(names))
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// RoleNames renders roles as enum value names.
func RoleNames(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.String()
	}
	return out
}

// SDL declares the @auth directive and the Role enum. It is part of every
// composed schema document.
const SDL = `directive @auth(requires: Role = ADMIN) on OBJECT | FIELD_DEFINITION

enum Role {
  GUEST
  USER
  ADMIN
}
`
