/*
Package handler provides HTTP handler functions for the administrative REST surface.

Admin endpoints manage user accounts (listing, token revocation, deletion) and
push asynchronous notifications through the gateway's live-connection fabric.
Revoking tokens here takes effect on the user's next gateway event; no
connection is proactively closed.
*/
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pulse/internal/app/db"
	"pulse/internal/app/gateway"
	"pulse/internal/app/user"
	"pulse/internal/pkg/auth/jwt"
	"pulse/internal/pkg/errs"
	"pulse/internal/pkg/logx"
	"pulse/internal/pkg/req"
	"pulse/internal/pkg/resp"
)

// RequireAdmin gates a route subtree to callers holding a valid, unrevoked
// ADMIN credential. The token's claims are never trusted alone: the account
// is re-fetched and the token version compared, the same fail-closed policy
// the gateway applies per event.
func RequireAdmin(deps *AppDeps) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			payload := jwt.GetPayloadFromContext(r)
			if payload == nil {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			u, err := deps.Users.GetByID(r.Context(), payload.UserID)
			if err != nil {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			if u.TokenVersion != payload.TokenVersion {
				logx.Warn("admin request rejected: token revoked", "user_id", u.ID)
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			if u.Role != user.RoleAdmin {
				resp.RespondError(w, r, errs.NewError(errs.ErrAdminRequired))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HandleListUsers returns every user account.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := deps.Users.List(r.Context())
		if err != nil {
			logx.Error(err, "failed to list users")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"users": users,
			"total": len(users),
		})
	}
}

// HandleGetUser returns a single user account by id.
func HandleGetUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")

		u, err := deps.Users.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}

			logx.Error(err, "failed to fetch user", "user_id", userID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, u)
	}
}

type UpdateUserInput struct {
	Email     *string `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

// HandleUpdateUser rewrites a user's profile fields. Absent fields keep their
// current values.
func HandleUpdateUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")

		var input UpdateUserInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, err := deps.Users.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}

			logx.Error(err, "failed to fetch user for update", "user_id", userID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if input.Email != nil {
			if !emailRegex.MatchString(*input.Email) {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidEmail))
				return
			}
			u.Email = *input.Email
		}
		if input.FirstName != nil {
			u.FirstName = *input.FirstName
		}
		if input.LastName != nil {
			u.LastName = *input.LastName
		}

		updated, err := deps.Users.Update(r.Context(), userID, u.Email, u.FirstName, u.LastName)
		if err != nil {
			if db.IsUniqueViolation(err) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}

			logx.Error(err, "failed to update user", "user_id", userID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("User updated", "user_id", userID)

		resp.RespondSuccess(w, r, updated)
	}
}

type UpdateRoleInput struct {
	Role string `json:"role"`
}

// HandleUpdateRole changes a user's role. The change is effective on the
// user's next gateway event or admin request; outstanding tokens are not
// reissued because the guard always reads the directory's current role.
func HandleUpdateRole(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")

		var input UpdateRoleInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Role != user.RoleUser && input.Role != user.RoleAdmin {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		updated, err := deps.Users.UpdateRole(r.Context(), userID, input.Role)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}

			logx.Error(err, "failed to update user role", "user_id", userID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("User role updated", "user_id", userID, "role", input.Role)

		resp.RespondSuccess(w, r, updated)
	}
}

// HandleRevokeTokens bumps the user's token version, invalidating every
// previously issued token. Open gateway connections stay open; their next
// event fails the guard's version comparison.
func HandleRevokeTokens(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")

		if err := deps.Users.IncrementTokenVersion(r.Context(), userID); err != nil {
			if errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}

			logx.Error(err, "failed to revoke tokens", "user_id", userID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("User tokens revoked", "user_id", userID)

		resp.RespondSuccess(w, r, map[string]any{
			"userId":  userID,
			"revoked": true,
		})
	}
}

// HandleDeleteUser removes a user account. Admins cannot delete their own
// account; that would orphan the session performing the request.
func HandleDeleteUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")

		if payload := jwt.GetPayloadFromContext(r); payload != nil && payload.UserID == userID {
			resp.RespondError(w, r, errs.NewError(errs.ErrSelfDeletion))
			return
		}

		if err := deps.Users.Delete(r.Context(), userID); err != nil {
			if errors.Is(err, user.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}

			logx.Error(err, "failed to delete user", "user_id", userID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("User deleted", "user_id", userID)

		resp.RespondSuccess(w, r, map[string]any{
			"userId":  userID,
			"deleted": true,
		})
	}
}

type NotifyInput struct {
	Message string `json:"message"`
}

// HandleNotifyUser pushes a notification to one user's live connection,
// reporting whether the user was online to receive it.
func HandleNotifyUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")

		var input NotifyInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Message == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		delivered := deps.Gateway.NotifyUser(userID, map[string]any{
			"message":   input.Message,
			"timestamp": time.Now(),
		})

		resp.RespondSuccess(w, r, map[string]any{
			"userId":    userID,
			"delivered": delivered,
		})
	}
}

type AnnounceInput struct {
	Message string `json:"message"`
}

// HandleAnnounce broadcasts an announcement to every live connection through
// the gateway's notification API.
func HandleAnnounce(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)

		var input AnnounceInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.Message == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		deps.Gateway.Broadcast(gateway.EventAdminAnnouncement, map[string]any{
			"type":    gateway.EventAdminAnnouncement,
			"message": input.Message,
			"from": map[string]string{
				"id":    payload.UserID,
				"email": payload.Email,
				"role":  payload.Role,
			},
			"timestamp": time.Now(),
		})

		logx.Info("Announcement broadcast", "email", payload.Email)

		resp.RespondSuccess(w, r, map[string]any{
			"announced": true,
		})
	}
}
