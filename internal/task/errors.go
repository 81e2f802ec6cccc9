package task

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the sync layer wraps exactly one of
// these so callers can branch with errors.Is.
var (
	// ErrValidation is bad input caught before any network call.
	ErrValidation = errors.New("validation error")

	// ErrTransport is a network, backend or auth failure.
	ErrTransport = errors.New("transport error")

	// ErrNotFound means no row matched both id and owner.
	ErrNotFound = errors.New("not found")

	// ErrUpload is a blob store upload or removal failure.
	ErrUpload = errors.New("upload error")

	// ErrAttachmentDelete means a task delete was aborted because its blob
	// could not be removed. The task row is left in place.
	ErrAttachmentDelete = errors.New("attachment delete error")
)

// Validationf returns an ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Transport wraps err as an ErrTransport for op.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// NotFound returns an ErrNotFound for the given task id.
func NotFound(id string) error {
	return fmt.Errorf("%w: task %s", ErrNotFound, id)
}
