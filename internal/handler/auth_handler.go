/*
Package handler provides HTTP handler functions for user registration and login.
*/
package handler

import (
	"net/http"
	"regexp"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"pulse/internal/app/db"
	"pulse/internal/app/user"
	"pulse/internal/pkg/auth/jwt"
	"pulse/internal/pkg/errs"
	"pulse/internal/pkg/logx"
	"pulse/internal/pkg/req"
	"pulse/internal/pkg/resp"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	minPasswordLen = 6
	maxPasswordLen = 50
)

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type RegisterAdminInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	AdminSecret string `json:"adminSecret"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// issueToken signs an access token carrying the user's current token version.
func issueToken(u user.User, secret string) (string, error) {
	payload := &jwt.Payload{
		UserID:       u.ID,
		Email:        u.Email,
		Role:         u.Role,
		TokenVersion: u.TokenVersion,
	}
	return jwt.GenerateToken(payload, secret, jwt.AccessTokenExpiration)
}

// createAccount validates the input, hashes the password, and stores the user.
func createAccount(w http.ResponseWriter, r *http.Request, deps *AppDeps, in RegisterInput, role string) (user.User, bool) {
	if !emailRegex.MatchString(in.Email) {
		resp.RespondError(w, r, errs.NewError(errs.ErrInvalidEmail))
		return user.User{}, false
	}

	passwordLen := utf8.RuneCountInString(in.Password)
	if passwordLen < minPasswordLen || passwordLen > maxPasswordLen {
		resp.RespondError(w, r, errs.NewError(errs.ErrInvalidPassword, minPasswordLen, maxPasswordLen))
		return user.User{}, false
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
		return user.User{}, false
	}

	u, err := deps.Users.Create(r.Context(), in.Email, string(hashedPassword), in.FirstName, in.LastName, role)
	if err != nil {
		if db.IsUniqueViolation(err) {
			logx.Warn("registration conflict: email already exists", "email", in.Email)
			resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
			return user.User{}, false
		}

		logx.Error(err, "failed to create user in database")
		resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
		return user.User{}, false
	}

	return u, true
}

// HandleRegister creates a new USER account and issues an access token.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RegisterInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, ok := createAccount(w, r, deps, input, user.RoleUser)
		if !ok {
			return
		}

		token, err := issueToken(u, deps.Config.JWTSecret)
		if err != nil {
			logx.Error(err, "failed to generate token after registration")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("New user registered", "email", u.Email)

		resp.RespondSuccess(w, r, map[string]any{
			"access_token": token,
			"user":         u,
		})
	}
}

// HandleRegisterAdmin creates a new ADMIN account. The caller must present
// the admin registration secret from the server configuration.
func HandleRegisterAdmin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input RegisterAdminInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.AdminSecret != deps.Config.AdminSecret {
			logx.Warn("admin registration rejected: secret mismatch", "email", input.Email)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidAdminSecret))
			return
		}

		u, ok := createAccount(w, r, deps, RegisterInput{
			Email:     input.Email,
			Password:  input.Password,
			FirstName: input.FirstName,
			LastName:  input.LastName,
		}, user.RoleAdmin)
		if !ok {
			return
		}

		token, err := issueToken(u, deps.Config.JWTSecret)
		if err != nil {
			logx.Error(err, "failed to generate token after admin registration")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("New admin registered", "email", u.Email)

		resp.RespondSuccess(w, r, map[string]any{
			"access_token": token,
			"user":         u,
		})
	}
}

// HandleProfile returns the authenticated caller's own account record.
// The account is re-fetched and the token version compared, so a revoked
// token cannot read a profile even before it expires.
func HandleProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		resp.RespondSuccess(w, r, u)
	}
}

// HandleLogin verifies credentials and issues an access token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, err := deps.Users.GetByEmail(r.Context(), input.Email)
		if err != nil {
			logx.Warn("login: user fetch failed", "email", input.Email)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(input.Password)); err != nil {
			logx.Warn("login: password mismatch", "email", input.Email)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		token, err := issueToken(u, deps.Config.JWTSecret)
		if err != nil {
			logx.Error(err, "login: jwt generation failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"access_token": token,
			"user":         u,
		})
	}
}
