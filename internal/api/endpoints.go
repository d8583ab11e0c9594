package api

import "strings"

const (
	LoginPath  = "/auth/login"
	LogoutPath = "/admin/auth/logout"
	UserPath   = "/admin/user"

	ContactListPath   = "/admin/contact-us"
	ContactReadPath   = "/admin/contact-us/read"
	ContactDeletePath = "/admin/contact-us/delete"
	ContactStorePath  = "/contact-us/store"
)

// IsAdminPath reports whether path targets the authenticated API surface.
func IsAdminPath(path string) bool {
	return strings.Contains(path, "/admin")
}

// JoinID appends an id segment to a base path.
func JoinID(base, id string) string {
	return strings.TrimRight(base, "/") + "/" + id
}
