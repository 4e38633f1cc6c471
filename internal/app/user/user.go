/*
Package user contains the user entity and the PostgreSQL-backed user store.

The store owns persisted account records for the REST layer and also serves
as the gateway's directory: the authoritative source for a user's current
role and token version, consulted on every authenticated gateway event.
*/
package user

import "time"

// Roles assignable to an account. ADMIN unlocks the administrative REST
// endpoints and the admin_broadcast gateway event.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User represents a persisted account record.
// The password hash never leaves the server; it is excluded from JSON.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Role         string    `json:"role"`
	TokenVersion int       `json:"tokenVersion"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
