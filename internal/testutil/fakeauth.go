package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tasktrack/internal/service"
)

// FakeAccounts is an in-memory implementation of service.Accounts for testing.
type FakeAccounts struct {
	mu      sync.Mutex
	byEmail map[string]service.Account
	seq     int

	// Error injection for testing
	CreateErr error
	FindErr   error
}

// NewFakeAccounts creates an empty FakeAccounts.
func NewFakeAccounts() *FakeAccounts {
	return &FakeAccounts{byEmail: make(map[string]service.Account)}
}

// Create implements service.Accounts.
func (f *FakeAccounts) Create(ctx context.Context, email, fullName, passwordHash string) (service.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return service.Account{}, f.CreateErr
	}
	key := strings.ToLower(email)
	if _, ok := f.byEmail[key]; ok {
		return service.Account{}, service.ErrAccountExists
	}
	f.seq++
	acct := service.Account{
		User:         service.User{ID: fmt.Sprintf("user-%d", f.seq), Email: email},
		FullName:     fullName,
		PasswordHash: passwordHash,
	}
	f.byEmail[key] = acct
	return acct, nil
}

// FindByEmail implements service.Accounts.
func (f *FakeAccounts) FindByEmail(ctx context.Context, email string) (service.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FindErr != nil {
		return service.Account{}, f.FindErr
	}
	acct, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return service.Account{}, service.ErrAccountNotFound
	}
	return acct, nil
}

// FakeAuth is a service.Auth whose session is set directly by the test.
type FakeAuth struct {
	mu        sync.Mutex
	user      service.User
	signedIn  bool
	listeners map[int]func(service.User, bool)
	nextID    int

	// Error injection for testing
	SignInErr  error
	SignUpErr  error
	SignOutErr error
}

// NewFakeAuth creates a signed-out FakeAuth.
func NewFakeAuth() *FakeAuth {
	return &FakeAuth{listeners: make(map[int]func(service.User, bool))}
}

// Set changes the session and notifies listeners.
func (f *FakeAuth) Set(user service.User, signedIn bool) {
	f.mu.Lock()
	f.user, f.signedIn = user, signedIn
	fns := make([]func(service.User, bool), 0, len(f.listeners))
	for id := 0; id < f.nextID; id++ {
		if fn, ok := f.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(user, signedIn)
	}
}

// Listeners returns how many OnChange callbacks are registered.
func (f *FakeAuth) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// CurrentUser implements service.Auth.
func (f *FakeAuth) CurrentUser() (service.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, f.signedIn
}

// SignUp implements service.Auth.
func (f *FakeAuth) SignUp(ctx context.Context, email, password, fullName string) (service.User, error) {
	if f.SignUpErr != nil {
		return service.User{}, f.SignUpErr
	}
	u := service.User{ID: "user-" + email, Email: email}
	f.Set(u, true)
	return u, nil
}

// SignIn implements service.Auth.
func (f *FakeAuth) SignIn(ctx context.Context, email, password string) (service.User, error) {
	if f.SignInErr != nil {
		return service.User{}, f.SignInErr
	}
	u := service.User{ID: "user-" + email, Email: email}
	f.Set(u, true)
	return u, nil
}

// SignOut implements service.Auth.
func (f *FakeAuth) SignOut(ctx context.Context) error {
	if f.SignOutErr != nil {
		return f.SignOutErr
	}
	f.Set(service.User{}, false)
	return nil
}

// OnChange implements service.Auth.
func (f *FakeAuth) OnChange(fn func(user service.User, signedIn bool)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}
