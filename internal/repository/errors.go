package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

var (
	// ErrUniqueViolation is matched by every error caused by a unique index rejecting a row.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrNotFound is returned when a lookup matches no rows.
	ErrNotFound = errors.New("not found")
)

// UniqueConstraintError names the index that rejected an insert.
type UniqueConstraintError struct {
	Constraint string
	Detail     string
	Err        error
}

func (e *UniqueConstraintError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("duplicate key violates unique constraint %q: %s", e.Constraint, e.Detail)
	}
	return fmt.Sprintf("duplicate key violates unique constraint %q", e.Constraint)
}

func (e *UniqueConstraintError) Is(target error) bool {
	return target == ErrUniqueViolation
}

func (e *UniqueConstraintError) Unwrap() error {
	return e.Err
}

// classifyError converts driver errors into the package sentinels.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &UniqueConstraintError{
			Constraint: pgErr.ConstraintName,
			Detail:     pgErr.Detail,
			Err:        err,
		}
	}
	return err
}
