package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Role is an operator API access level. Each role includes the ones below it.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// ErrUnknownRole is returned for a role claim outside the known set.
var ErrUnknownRole = errors.New("auth: unknown role")

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// ParseRole reads a role claim. Case and surrounding space are ignored.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRanks[role]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
	}
	return role, nil
}

// Allows reports whether r may call an endpoint that requires required.
func (r Role) Allows(required Role) bool {
	rank, ok := roleRanks[r]
	return ok && rank >= roleRanks[required]
}
