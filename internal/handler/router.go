/*
Package handler provides the HTTP handlers and routing setup for the Pulse server.

This file defines the main Router, applying middleware like logging, CORS, and
IP-based rate limiting on the credential endpoints before delegating requests
to the REST handlers and the WebSocket upgrade handler.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"pulse/internal/pkg/auth/jwt"
	"pulse/internal/pkg/limiter"
	"pulse/internal/pkg/logx"
	"pulse/internal/pkg/resp"
)

const (
	// AuthRate and AuthBurst bound how fast a single IP may hit the
	// credential-issuing endpoints. Gateway events are never rate limited.
	AuthRate  = 0.5
	AuthBurst = 5
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
func Router(deps *AppDeps) http.Handler {
	authLimiter := limiter.NewIPRateLimiter(rate.Limit(AuthRate), AuthBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": "Pulse Server",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Route("/auth", func(auth chi.Router) {
			// Only the credential-issuing endpoints are rate limited.
			auth.Group(func(g chi.Router) {
				g.Use(authLimiter.Middleware)

				g.Post("/register", HandleRegister(deps))
				g.Post("/register-admin", HandleRegisterAdmin(deps))
				g.Post("/login", HandleLogin(deps))
			})

			auth.Get("/profile", HandleProfile(deps))
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(RequireAdmin(deps))

			admin.Get("/users", HandleListUsers(deps))
			admin.Get("/users/{id}", HandleGetUser(deps))
			admin.Put("/users/{id}", HandleUpdateUser(deps))
			admin.Put("/users/{id}/role", HandleUpdateRole(deps))
			admin.Post("/users/{id}/revoke", HandleRevokeTokens(deps))
			admin.Delete("/users/{id}", HandleDeleteUser(deps))
			admin.Post("/notify/{id}", HandleNotifyUser(deps))
			admin.Post("/announce", HandleAnnounce(deps))
		})
	})

	r.Get("/ws", HandleWebSocket(wsUpgrader, deps))

	return r
}
