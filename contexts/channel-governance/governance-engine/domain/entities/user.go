package entities

import "strings"

// Privilege is a user's authorization tier for governance actions.
type Privilege string

const (
	PrivilegeRevoked Privilege = "REVOKED"
	PrivilegeUser    Privilege = "USER"
	PrivilegeAdmin   Privilege = "ADMIN"
	// PrivilegeInvalid marks an identity that was never registered. It is
	// never persisted.
	PrivilegeInvalid Privilege = "INVALID"
)

// ParsePrivilege accepts the storable privilege names, case-insensitively.
func ParsePrivilege(raw string) (Privilege, bool) {
	switch Privilege(strings.ToUpper(strings.TrimSpace(raw))) {
	case PrivilegeRevoked:
		return PrivilegeRevoked, true
	case PrivilegeUser:
		return PrivilegeUser, true
	case PrivilegeAdmin:
		return PrivilegeAdmin, true
	default:
		return "", false
	}
}

// IsActive reports whether the privilege may create polls and vote.
func (p Privilege) IsActive() bool {
	return p == PrivilegeUser || p == PrivilegeAdmin
}

func (p Privilege) Storable() bool {
	return p == PrivilegeRevoked || p == PrivilegeUser || p == PrivilegeAdmin
}

type User struct {
	Identity    string
	DisplayName string
	Privilege   Privilege
}
