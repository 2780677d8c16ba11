package domain

import "time"

// Role is a platform role name assigned to a user in the directory.
type Role string

// Roles recognized by the platform. Directory role assignments outside
// this vocabulary are dropped during mapping.
const (
	RoleAdmin      Role = "ADMIN"
	RolePlanner    Role = "PLANNER"
	RoleOperator   Role = "OPERATOR"
	RoleTechnician Role = "TECHNICIAN"
	RoleAnalyst    Role = "ANALYST"
)

var knownRoles = map[Role]struct{}{
	RoleAdmin:      {},
	RolePlanner:    {},
	RoleOperator:   {},
	RoleTechnician: {},
	RoleAnalyst:    {},
}

// ParseRoles filters raw directory role names down to the known
// vocabulary. Unrecognized names are dropped silently; order is
// preserved for the names that survive.
func ParseRoles(raw []string) []Role {
	var roles []Role
	for _, name := range raw {
		role := Role(name)
		if _, ok := knownRoles[role]; ok {
			roles = append(roles, role)
		}
	}
	return roles
}

// UserRecord is the canonical, provider-agnostic identity entity
// returned to callers. The ID is provider-issued, opaque and
// case-sensitive; it is the single join key between the cache and the
// directory. Fields a backend does not populate stay zero-valued,
// never fabricated.
type UserRecord struct {
	ID         string     `json:"id"`
	Email      string     `json:"email,omitempty"`
	GivenName  string     `json:"givenName,omitempty"`
	FamilyName string     `json:"familyName,omitempty"`
	Username   string     `json:"username,omitempty"`
	Enabled    bool       `json:"enabled"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	Roles      []Role     `json:"roles,omitempty"`
}
