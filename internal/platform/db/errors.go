package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store error taxonomy. Repositories wrap driver errors onto these sentinels
// so callers can branch with errors.Is without importing pgx.
var (
	// ErrNotFound means no row matched. Expired rows are filtered in SQL, so
	// a stale row surfaces the same way and is never served.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness constraint fired. Recoverable: the row
	// already exists and the caller should re-read instead of failing.
	ErrConflict = errors.New("already exists")
	// ErrInvalid means a value was rejected at the boundary, either by
	// service validation or by a CHECK constraint.
	ErrInvalid = errors.New("invalid input")
	// ErrUnavailable means the store could not be reached. Retryable.
	ErrUnavailable = errors.New("store unavailable")
)

// IsNoRows reports whether err is a pgx row-miss.
func IsNoRows(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "no rows")
}

// IsUniqueViolation reports whether err is a PostgreSQL unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolation reports whether err is a foreign_key_violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// IsCheckViolation reports whether err is a check_violation.
func IsCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

// IsConnectivity reports whether err looks like a connection-level failure
// rather than a statement-level one.
func IsConnectivity(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception; 57P01: admin shutdown.
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01"
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// WrapError maps a driver error onto the taxonomy, keeping the driver detail
// in the message. Errors that fit no category pass through unchanged; the
// store never masks what the engine reported.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case IsNoRows(err):
		return ErrNotFound
	case IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case IsCheckViolation(err):
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	case IsConnectivity(err):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
