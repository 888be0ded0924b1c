package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicateVector is returned when a state vector already exists for the
// same nylas_message_id.
var ErrDuplicateVector = errors.New("storage: duplicate state vector")

// ErrDuplicateMessage is returned when the user already has a message with
// the same provider message id.
var ErrDuplicateMessage = errors.New("storage: duplicate message")

// ErrDuplicateEmail is returned when a user already exists with the address.
var ErrDuplicateEmail = errors.New("storage: email already registered")

// isUniqueViolation reports whether err is Postgres error 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
