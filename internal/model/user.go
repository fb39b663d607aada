// Package model defines the data structures shared across the application.
package model

// Defaults applied when neither the profile row nor the provider's session
// metadata supplies a value. These match what the identity provider seeds for
// brand-new OAuth accounts.
const (
	DefaultDisplayName = "User"
	DefaultRole        = RoleUser
	DefaultAvatarURL   = "https://via.placeholder.com/150"
)

// Roles a user can hold. Stored as plain strings so the cache blob stays a
// readable JSON document.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the application's single authoritative identity record.
//
// A User is never partially populated: it is produced only by the identity
// resolver's atomic merge of session + profile data (provider attribute,
// else profile attribute, else literal default), or not produced at all.
// Consumers must not assemble one field by field.
type User struct {
	ID        string `json:"id"`        // assigned by the session provider, stable for the account's lifetime
	Email     string `json:"email"`     // unique per account
	Name      string `json:"name"`      // display name, never empty (falls back to DefaultDisplayName)
	Role      string `json:"role"`      // RoleUser unless a profile row says otherwise
	AvatarURL string `json:"avatarUrl"` // never empty (falls back to DefaultAvatarURL)
}
