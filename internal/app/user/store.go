package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pulse/internal/app/gateway"
)

// ErrNotFound is returned when no user matches the requested identifier.
var ErrNotFound = errors.New("user not found")

// Store provides access to persisted user records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, email, password_hash, first_name, last_name, role, token_version, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.TokenVersion, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// Create inserts a new user with the given role and returns the stored record.
func (s *Store) Create(ctx context.Context, email, passwordHash, firstName, lastName, role string) (User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		email, passwordHash, firstName, lastName, role,
	)
	return scanUser(row)
}

// GetByEmail fetches a user by email address.
func (s *Store) GetByEmail(ctx context.Context, email string) (User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetByID fetches a user by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// List returns every user record ordered by creation time.
func (s *Store) List(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Update rewrites the user's mutable profile fields and returns the updated
// record.
func (s *Store) Update(ctx context.Context, id, email, firstName, lastName string) (User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET email = $2, first_name = $3, last_name = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, email, firstName, lastName,
	)
	return scanUser(row)
}

// UpdateRole changes the user's role and returns the updated record. The
// gateway picks the new role up on the user's next event because the guard
// reads the directory, not the token.
func (s *Store) UpdateRole(ctx context.Context, id, role string) (User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET role = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, role,
	)
	return scanUser(row)
}

// IncrementTokenVersion bumps the user's revocation counter, invalidating
// every previously issued token for that user. The gateway picks this up on
// the user's next event without the server touching the live connection.
func (s *Store) IncrementTokenVersion(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET token_version = token_version + 1, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment token version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the user record.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Lookup implements gateway.Directory. A missing or deactivated user reports
// exists=false so that authentication fails closed.
func (s *Store) Lookup(ctx context.Context, userID string) (gateway.DirectoryEntry, bool, error) {
	u, err := s.GetByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return gateway.DirectoryEntry{}, false, nil
	}
	if err != nil {
		return gateway.DirectoryEntry{}, false, err
	}
	if !u.IsActive {
		return gateway.DirectoryEntry{}, false, nil
	}

	return gateway.DirectoryEntry{
		Email:        u.Email,
		Role:         u.Role,
		TokenVersion: u.TokenVersion,
	}, true, nil
}
