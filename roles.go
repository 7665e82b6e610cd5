package authgate

// UserRole is the user's role. The set is closed: a stored role outside it
// fails identity validation.
type UserRole string

const (
	// RoleUser is the default role assigned at registration
	RoleUser UserRole = "user"
	// RoleAdmin marks administrative accounts
	RoleAdmin UserRole = "admin"
)

// Authority strings derived from roles. They never live in the store; the
// role column is the single source of truth and authorities are recomputed
// per request.
const (
	AuthorityUser  = "ROLE_USER"
	AuthorityAdmin = "ROLE_ADMIN"
)

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// Authorities returns the authority set this role grants. Admin subsumes
// the user authority.
func (r UserRole) Authorities() []string {
	switch r {
	case RoleAdmin:
		return []string{AuthorityAdmin, AuthorityUser}
	case RoleUser:
		return []string{AuthorityUser}
	default:
		return nil
	}
}

// HasAuthority checks if the role grants a specific authority
func (r UserRole) HasAuthority(authority string) bool {
	for _, a := range r.Authorities() {
		if a == authority {
			return true
		}
	}
	return false
}

// IsAtLeast checks if this role meets the minimum required level
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleUser:  0,
		RoleAdmin: 1,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleUser,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
