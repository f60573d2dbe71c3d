package repository

import (
	"context"
	"strings"

	"piazza/internal/observability"
)

// startSpan opens a tracing span and latency timer for one repository call.
// Callers defer the returned func with a pointer to their named error.
func startSpan(ctx context.Context, method, table string) (context.Context, func(*error)) {
	ctx, span := observability.StartRepositorySpan(ctx, "sql", method, table)
	done := observability.TrackQuery(method, table)
	return ctx, func(errp *error) {
		done()
		var err error
		if errp != nil {
			err = *errp
		}
		observability.EndSpan(span, err)
	}
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505; SQLite reports "UNIQUE constraint failed"
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}
