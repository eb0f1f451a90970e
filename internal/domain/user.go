package domain

import "strings"

// User owns an ordered set of places. PlaceIDs is maintained only by the
// place coordinator, never by client-facing updates.
type User struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"-"`
	ImageRef     string   `json:"image"`
	PlaceIDs     []string `json:"places"`
}

// NormalizeEmail lowercases and trims an address for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OwnsPlace reports whether id is in the user's place list.
func (u *User) OwnsPlace(id string) bool {
	for _, pid := range u.PlaceIDs {
		if pid == id {
			return true
		}
	}
	return false
}
