package exitcode

import (
	"errors"
	"fmt"
	"testing"

	"tasktrack/internal/service"
	"tasktrack/internal/session"
	"tasktrack/internal/task"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, Success},
		{"validation", task.Validationf("title is required"), UserError},
		{"not found", task.NotFound("t1"), UserError},
		{"duplicate account", fmt.Errorf("signup: %w", service.ErrAccountExists), UserError},
		{"not signed in", service.ErrNotSignedIn, AuthError},
		{"bad credentials", session.ErrInvalidCredentials, AuthError},
		{"bad token", fmt.Errorf("%w: expired", session.ErrInvalidToken), AuthError},
		{"transport", task.Transport("list", errors.New("timeout")), BackendError},
		{"upload", fmt.Errorf("%w: quota", task.ErrUpload), BackendError},
		{"attachment delete", fmt.Errorf("%w: denied", task.ErrAttachmentDelete), BackendError},
		{"unknown", errors.New("boom"), BackendError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromError(tt.err); got != tt.want {
				t.Errorf("FromError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
