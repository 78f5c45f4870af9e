package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinic/clinic/internal/platform/apperr"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Translate maps driver errors onto apperr kinds. entity names the record
// type in NotFound messages, op names the statement for logs.
func Translate(err error, entity, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(entity)
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if IsUniqueViolation(err) {
		return &apperr.Error{Kind: apperr.KindConflict, Message: entity + " already exists", Err: err}
	}
	if IsForeignKeyViolation(err) {
		return &apperr.Error{Kind: apperr.KindConflict, Message: entity + " changed concurrently, retry the request", Err: err}
	}
	return apperr.Storage(op, err)
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// IsForeignKeyViolation reports whether err is a Postgres
// foreign_key_violation, e.g. a parent deleted while a child was inserted.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// ConstraintName returns the violated constraint for Postgres errors, or "".
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
