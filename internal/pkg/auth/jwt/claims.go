package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JWT claims issued and verified by the Pulse server.
// On top of the standard claims it carries the identity snapshot the gateway
// needs to authorize events: user id, email, role, and the token version
// counter used for revocation.
type Payload struct {
	// StandardClaims embeds the standard JWT fields (Exp, Iat, Iss) used
	// for validity checks.
	jwt.StandardClaims

	// UserID is the unique identifier of the account the token was issued to.
	UserID string `json:"sub"`

	// Email is the account email at issue time.
	Email string `json:"email"`

	// Role is the account role at issue time ("USER" or "ADMIN").
	Role string `json:"role"`

	// TokenVersion is the per-user revocation counter captured at issue time.
	// When the directory's current counter moves past this value, every token
	// carrying the old value becomes invalid without any blocklist.
	TokenVersion int `json:"tokenVersion"`
}
