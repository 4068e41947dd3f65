package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is a unique constraint violation.
	ErrConflict = errors.New("conflict")
	// ErrHasDependents is a foreign key violation: the row is still referenced.
	ErrHasDependents = errors.New("record has dependent records")
	// ErrTokenInactive means no unrevoked, unexpired refresh token matched.
	ErrTokenInactive = errors.New("refresh token inactive")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errors.Join(ErrConflict, err)
		case pgForeignKeyViolation:
			return errors.Join(ErrHasDependents, err)
		}
	}
	return err
}
