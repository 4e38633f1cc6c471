package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"pulse/internal/app/user"
	"pulse/internal/configs"
	"pulse/internal/pkg/auth/jwt"
)

// fakeUserStore is an in-memory UserStore for handler tests.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]user.User
}

func newFakeUserStore(seed ...user.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]user.User)}
	for _, u := range seed {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) Create(_ context.Context, email, passwordHash, firstName, lastName, role string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := user.User{
		ID:           email,
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
		IsActive:     true,
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) List(_ context.Context) ([]user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *fakeUserStore) Update(_ context.Context, id, email, firstName, lastName string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	u.Email = email
	u.FirstName = firstName
	u.LastName = lastName
	s.users[id] = u
	return u, nil
}

func (s *fakeUserStore) UpdateRole(_ context.Context, id, role string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	u.Role = role
	s.users[id] = u
	return u, nil
}

func (s *fakeUserStore) IncrementTokenVersion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.TokenVersion++
	s.users[id] = u
	return nil
}

func (s *fakeUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func testDeps(users UserStore) *AppDeps {
	return &AppDeps{
		Users: users,
		Config: &configs.AppConfig{
			Environment: "development",
			JWTSecret:   "handler-test-secret",
			AdminSecret: "handler-test-admin-secret",
		},
	}
}

// newRequest builds a request carrying an optional JSON body.
func newRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	if body == nil {
		return httptest.NewRequest(method, target, nil)
	}

	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	r := httptest.NewRequest(method, target, bytes.NewReader(encoded))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withPayload attaches an authenticated JWT payload, the way the identity
// extraction middleware would.
func withPayload(r *http.Request, payload *jwt.Payload) *http.Request {
	ctx := context.WithValue(r.Context(), jwt.ContextAuthPayloadKey, payload)
	return r.WithContext(ctx)
}

// withURLParam injects a chi route parameter.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeResponse unwraps the standard JSON envelope.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) (int, json.RawMessage) {
	t.Helper()

	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

	return envelope.Code, envelope.Data
}
