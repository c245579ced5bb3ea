package auth

import "slices"

// Role is a user's role within one context.
type Role string

const (
	RoleManager   Role = "manager"
	RoleSubEditor Role = "sub_editor"
	RoleAssistant Role = "assistant"
	RoleReviewer  Role = "reviewer"
	RoleAuthor    Role = "author"
)

// Principal is the authenticated caller.
type Principal struct {
	Subject   string
	SiteAdmin bool
	// Roles maps a context path to the caller's roles in that context.
	Roles map[string][]Role
}

// HasAnyRole reports whether the principal holds one of allowed in the
// context mounted at contextPath. Site administrators hold every role.
func (p Principal) HasAnyRole(contextPath string, allowed ...Role) bool {
	if p.SiteAdmin {
		return true
	}
	for _, role := range p.Roles[contextPath] {
		if slices.Contains(allowed, role) {
			return true
		}
	}
	return false
}
