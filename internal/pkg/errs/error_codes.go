/*
Package errs provides custom error types and application-level error code constants.

These codes identify specific business or system errors both internally and in
responses sent to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON is malformed.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrInvalidEmail indicates that the supplied email address is not acceptable.
	ErrInvalidEmail = 3001

	// ErrInvalidPassword indicates that the supplied password does not meet requirements.
	ErrInvalidPassword = 3002

	// ErrUserAlreadyExists indicates that a user with this email is already registered.
	ErrUserAlreadyExists = 3003

	// ErrInvalidCredentials indicates a failed email/password check during login.
	ErrInvalidCredentials = 3004

	// ErrUserNotFound indicates that the requested user account does not exist.
	ErrUserNotFound = 3005

	// ErrInvalidAdminSecret indicates that the admin registration secret did not match.
	ErrInvalidAdminSecret = 3006

	// ErrUnauthorized indicates a missing or invalid credential on a protected endpoint.
	ErrUnauthorized = 3007

	// ErrAdminRequired indicates that the authenticated user lacks the ADMIN role.
	ErrAdminRequired = 3008

	// ErrSelfDeletion indicates that an admin attempted to delete their own account.
	ErrSelfDeletion = 3009
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified server internal error.
	ErrUnknown = 5000
)
