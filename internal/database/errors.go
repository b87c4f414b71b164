package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes raised by filtered reads
const (
	// ErrCodeInvalidRegex is raised when a regex lookup value does not compile
	ErrCodeInvalidRegex = "2201B"
	// ErrCodeInvalidTextRepresentation is raised when a bound value cannot be cast to the column type
	ErrCodeInvalidTextRepresentation = "22P02"
	// ErrCodeUndefinedColumn is raised when the inspected schema is stale
	ErrCodeUndefinedColumn = "42703"
	// ErrCodeUndefinedTable is raised when the inspected schema is stale
	ErrCodeUndefinedTable = "42P01"
	// ErrCodeQueryCanceled is raised on statement timeout or cancellation
	ErrCodeQueryCanceled = "57014"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsInvalidInput reports whether the database rejected a bound value. These
// come from user input that passed form validation but not the column's type.
func IsInvalidInput(err error) bool {
	switch pgCode(err) {
	case ErrCodeInvalidRegex, ErrCodeInvalidTextRepresentation:
		return true
	}
	return false
}

// IsStaleSchema reports whether a query referenced a table or column that no
// longer exists, meaning the cached schema should be refreshed.
func IsStaleSchema(err error) bool {
	switch pgCode(err) {
	case ErrCodeUndefinedColumn, ErrCodeUndefinedTable:
		return true
	}
	return false
}

// IsQueryCanceled checks if a query was canceled or timed out
func IsQueryCanceled(err error) bool {
	return pgCode(err) == ErrCodeQueryCanceled
}
