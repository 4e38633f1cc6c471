package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolationCode is the PostgreSQL SQLSTATE for a unique constraint violation.
const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err was caused by a unique constraint,
// such as registering an email that is already taken. Works through wrapped
// errors.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
