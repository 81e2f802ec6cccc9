package commands_test

import (
	"strings"
	"testing"

	"tasktrack/internal/commands"
	"tasktrack/internal/exitcode"
	"tasktrack/internal/service"
	"tasktrack/internal/session"
)

func signedOut(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(commands.PasswordEnv, "")
	e := newTestEnv(t, false)
	e.auth.Set(service.User{}, false)
	return e
}

func TestLoginCommand_PasswordFromEnv(t *testing.T) {
	e := signedOut(t)
	t.Setenv(commands.PasswordEnv, "hunter22")

	stdout, stderr, code := e.run(t, &commands.LoginCmd{}, "bob@example.com")

	expectCode(t, exitcode.Success, code)
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if stdout != "ok\n" {
		t.Errorf("expected %q, got %q", "ok\n", stdout)
	}
	user, ok := e.auth.CurrentUser()
	if !ok || user.Email != "bob@example.com" {
		t.Errorf("expected bob to be signed in, got %+v (%v)", user, ok)
	}
}

func TestLoginCommand_PasswordFromStdin(t *testing.T) {
	e := signedOut(t)
	e.env.Stdin = strings.NewReader("hunter22\nignored\n")

	_, _, code := e.run(t, &commands.LoginCmd{}, "bob@example.com")

	expectCode(t, exitcode.Success, code)
	if _, ok := e.auth.CurrentUser(); !ok {
		t.Error("expected a session")
	}
}

func TestLoginCommand_NoPassword(t *testing.T) {
	e := signedOut(t)

	_, stderr, code := e.run(t, &commands.LoginCmd{}, "bob@example.com")

	expectCode(t, exitcode.UserError, code)
	if !strings.HasPrefix(stderr, "error: password required") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestLoginCommand_EmailRequired(t *testing.T) {
	e := signedOut(t)

	_, stderr, code := e.run(t, &commands.LoginCmd{})

	expectCode(t, exitcode.UserError, code)
	if stderr != "error: email required\n" {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestLoginCommand_AlreadyLoggedIn(t *testing.T) {
	e := newTestEnv(t, false)

	stdout, _, code := e.run(t, &commands.LoginCmd{}, "bob@example.com")

	expectCode(t, exitcode.Success, code)
	if stdout != "already logged in\n" {
		t.Errorf("expected %q, got %q", "already logged in\n", stdout)
	}
	if user, _ := e.auth.CurrentUser(); user.Email != ann.Email {
		t.Errorf("session should be unchanged, got %q", user.Email)
	}
}

func TestLoginCommand_InvalidCredentials(t *testing.T) {
	e := signedOut(t)
	e.auth.SignInErr = session.ErrInvalidCredentials
	e.env.Stdin = strings.NewReader("wrong\n")

	stdout, stderr, code := e.run(t, &commands.LoginCmd{}, "bob@example.com")

	expectCode(t, exitcode.AuthError, code)
	if stdout != "" {
		t.Errorf("expected no stdout, got %q", stdout)
	}
	if stderr == "" {
		t.Error("expected an error message")
	}
}

func TestSignupCommand(t *testing.T) {
	e := signedOut(t)
	e.env.Stdin = strings.NewReader("hunter22\n")

	stdout, _, code := e.run(t, &commands.SignupCmd{}, "--name", "Bob B", "bob@example.com")

	expectCode(t, exitcode.Success, code)
	if stdout != "ok\n" {
		t.Errorf("expected %q, got %q", "ok\n", stdout)
	}
	if user, ok := e.auth.CurrentUser(); !ok || user.Email != "bob@example.com" {
		t.Errorf("expected bob to be signed in, got %+v", user)
	}
}

func TestSignupCommand_AccountExists(t *testing.T) {
	e := signedOut(t)
	e.auth.SignUpErr = service.ErrAccountExists
	e.env.Stdin = strings.NewReader("hunter22\n")

	_, _, code := e.run(t, &commands.SignupCmd{}, "bob@example.com")

	expectCode(t, exitcode.UserError, code)
	if _, ok := e.auth.CurrentUser(); ok {
		t.Error("expected no session")
	}
}

func TestLogoutCommand(t *testing.T) {
	e := newTestEnv(t, false)

	stdout, _, code := e.run(t, &commands.LogoutCmd{})

	expectCode(t, exitcode.Success, code)
	if stdout != "ok\n" {
		t.Errorf("expected %q, got %q", "ok\n", stdout)
	}
	if _, ok := e.auth.CurrentUser(); ok {
		t.Error("expected session to be cleared")
	}
}

func TestLogoutCommand_NotLoggedIn(t *testing.T) {
	e := signedOut(t)

	stdout, _, code := e.run(t, &commands.LogoutCmd{})

	expectCode(t, exitcode.Success, code)
	if stdout != "not logged in\n" {
		t.Errorf("expected %q, got %q", "not logged in\n", stdout)
	}
}

func TestWhoamiCommand(t *testing.T) {
	e := newTestEnv(t, false)

	stdout, _, code := e.run(t, &commands.WhoamiCmd{})

	expectCode(t, exitcode.Success, code)
	if stdout != "ann@example.com\n" {
		t.Errorf("expected %q, got %q", "ann@example.com\n", stdout)
	}
}
