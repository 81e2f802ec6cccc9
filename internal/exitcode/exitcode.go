// Package exitcode defines exit codes for the CLI.
package exitcode

import (
	"errors"

	"tasktrack/internal/service"
	"tasktrack/internal/session"
	"tasktrack/internal/task"
)

const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, not found, ambiguous).
	UserError = 1

	// AuthError indicates a session or config error.
	AuthError = 2

	// BackendError indicates a backend/storage/network error.
	BackendError = 3
)

// FromError maps an error from the sync layer to an exit code.
// A nil error is Success; unclassified errors count as backend errors.
func FromError(err error) int {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, task.ErrValidation),
		errors.Is(err, task.ErrNotFound),
		errors.Is(err, service.ErrAccountExists):
		return UserError
	case errors.Is(err, service.ErrNotSignedIn),
		errors.Is(err, session.ErrInvalidCredentials),
		errors.Is(err, session.ErrInvalidToken):
		return AuthError
	default:
		return BackendError
	}
}
