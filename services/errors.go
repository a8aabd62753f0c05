package services

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound signals that the container addressed by the request identifier
// does not exist. Handlers map it to 404.
var ErrNotFound = errors.New("not found")

// ValidationError reports a request-shape problem: missing or malformed
// fields, identifier mismatch. Raised before any database write; maps to 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError reports a uniqueness violation on a secondary key such as a
// contact username. Maps to 409, distinct from identifier conflicts.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// UnprocessableError reports a business-rule violation in an otherwise
// well-formed payload: the identifier already exists on create, or a
// referenced entity does not exist. Maps to 422.
type UnprocessableError struct {
	Message string
}

func (e *UnprocessableError) Error() string { return e.Message }

func validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

func unprocessablef(format string, args ...interface{}) *UnprocessableError {
	return &UnprocessableError{Message: fmt.Sprintf(format, args...)}
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// mapConstraintError turns Postgres constraint violations that race past the
// in-transaction checks into the same error kinds those checks produce, so
// concurrent writers observe consistent statuses.
func mapConstraintError(err error, entity string) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		if pqErr.Constraint == "idx_contact_username" {
			return conflictf("username already exists")
		}
		return unprocessablef("%s already exists", entity)
	case pqForeignKeyViolation:
		return unprocessablef("%s is still referenced by another entity", entity)
	}
	return err
}
