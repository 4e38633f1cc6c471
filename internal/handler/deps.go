package handler

import (
	"context"

	"pulse/internal/app/gateway"
	"pulse/internal/app/user"
	"pulse/internal/configs"
)

// UserStore is the user persistence surface the HTTP handlers depend on.
// *user.Store satisfies it; tests substitute an in-memory fake.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash, firstName, lastName, role string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
	Update(ctx context.Context, id, email, firstName, lastName string) (user.User, error)
	UpdateRole(ctx context.Context, id, role string) (user.User, error)
	IncrementTokenVersion(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// AppDeps bundles the dependencies shared by the HTTP handlers.
type AppDeps struct {
	Gateway *gateway.Gateway
	Users   UserStore
	Config  *configs.AppConfig
}
