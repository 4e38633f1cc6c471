/*
Package gateway contains the real-time presence and messaging core.

This file defines the per-event authentication guard. Every event that
requires identity re-runs the full chain: credential extraction, token
verification, directory lookup, token-version comparison. Revocation is
pulled, not pushed: bumping a user's token version in the directory rejects
that user's next event without the server touching the live connection.
*/
package gateway

import (
	"context"
	"time"

	"pulse/internal/pkg/auth/jwt"
)

// DirectoryEntry is the directory's current view of a user: the fields the
// guard compares against the token's claims.
type DirectoryEntry struct {
	Email        string
	Role         string
	TokenVersion int
}

// Directory resolves a user id to its current role and token version.
// Implementations backed by network I/O must respect the context deadline;
// the guard treats a timeout as an authentication failure (fail closed).
type Directory interface {
	Lookup(ctx context.Context, userID string) (entry DirectoryEntry, exists bool, err error)
}

// AuthErrorKind classifies guard failures. All kinds collapse to a generic
// unauthorized rejection from the caller's perspective.
type AuthErrorKind int

const (
	// AuthMissing means no credential was found in any extraction source.
	AuthMissing AuthErrorKind = iota

	// AuthInvalid means signature or expiry verification failed.
	AuthInvalid

	// AuthRevoked means the claimed token version no longer matches the
	// directory's current value for the user.
	AuthRevoked

	// AuthUserNotFound means the directory has no active record for the user,
	// or the lookup itself failed.
	AuthUserNotFound
)

// AuthError is the tagged failure result of the guard.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case AuthMissing:
		return "token not provided"
	case AuthInvalid:
		return "invalid token"
	case AuthRevoked:
		return "token has been revoked"
	case AuthUserNotFound:
		return "user not found"
	}
	return "unauthorized"
}

// defaultLookupTimeout bounds the directory call so no event handler blocks
// for unbounded time.
const defaultLookupTimeout = 2 * time.Second

// authenticate runs the full per-event authentication chain for the
// connection. On success it attaches the refreshed identity to the
// connection and returns it; on failure no state is mutated.
func (g *Gateway) authenticate(c *Client) (Identity, *AuthError) {
	tokenString := c.token()
	if tokenString == "" {
		return Identity{}, &AuthError{Kind: AuthMissing, Err: jwt.ErrTokenMissing}
	}

	payload, err := jwt.ParseToken(tokenString, g.jwtSecret)
	if err != nil {
		return Identity{}, &AuthError{Kind: AuthInvalid, Err: err}
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.lookupTimeout)
	defer cancel()

	entry, exists, err := g.directory.Lookup(ctx, payload.UserID)
	if err != nil {
		g.logger.Warn().Err(err).Str("user_id", payload.UserID).Msg("Directory lookup failed, rejecting event")
		return Identity{}, &AuthError{Kind: AuthUserNotFound, Err: err}
	}
	if !exists {
		return Identity{}, &AuthError{Kind: AuthUserNotFound}
	}

	if entry.TokenVersion != payload.TokenVersion {
		return Identity{}, &AuthError{Kind: AuthRevoked}
	}

	identity := Identity{
		UserID:       payload.UserID,
		Email:        entry.Email,
		Role:         entry.Role,
		TokenVersion: entry.TokenVersion,
	}
	c.setIdentity(identity)

	return identity, nil
}
