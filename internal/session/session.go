// Package session implements email and password authentication with a
// signed session token persisted in the config directory.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/mail"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

var (
	// ErrInvalidCredentials is returned by SignIn for an unknown email or a
	// wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken is returned by Verify for a bad or expired token.
	ErrInvalidToken = errors.New("invalid session token")
)

// Manager is the service.Auth implementation.
type Manager struct {
	accounts  service.Accounts
	secret    []byte
	ttl       time.Duration
	tokenPath string
	now       func() time.Time
	logger    *log.Logger

	mu        sync.Mutex
	user      service.User
	token     string
	signedIn  bool
	listeners map[int]func(service.User, bool)
	nextID    int
}

var _ service.Auth = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithTokenFile persists the session token at path with mode 0600.
func WithTokenFile(path string) Option {
	return func(m *Manager) { m.tokenPath = path }
}

// WithTTL sets the session lifetime. The default is 30 days.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) { m.ttl = d }
}

// WithClock sets the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager signing tokens with secret.
func New(accounts service.Accounts, secret []byte, opts ...Option) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("session: signing secret is required")
	}
	m := &Manager{
		accounts:  accounts,
		secret:    secret,
		ttl:       30 * 24 * time.Hour,
		now:       time.Now,
		logger:    log.New(io.Discard, "", 0),
		listeners: make(map[int]func(service.User, bool)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type storedToken struct {
	Token string `json:"token"`
}

// Restore loads a previously saved session. A missing, invalid or expired
// token leaves the manager signed out and is not an error.
func (m *Manager) Restore() error {
	if m.tokenPath == "" {
		return nil
	}
	data, err := os.ReadFile(m.tokenPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: read token: %w", err)
	}

	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		m.logger.Printf("session: discarding unreadable token file: %v", err)
		return nil
	}
	user, err := m.Verify(st.Token)
	if err != nil {
		m.logger.Printf("session: discarding saved token: %v", err)
		return nil
	}

	m.mu.Lock()
	m.user, m.token, m.signedIn = user, st.Token, true
	m.mu.Unlock()
	return nil
}

// CurrentUser implements service.Auth.
func (m *Manager) CurrentUser() (service.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user, m.signedIn
}

// Token returns the signed token of the current session.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.signedIn
}

// SignUp implements service.Auth. The new account is signed in.
func (m *Manager) SignUp(ctx context.Context, email, password, fullName string) (service.User, error) {
	user, token, err := m.Register(ctx, email, password, fullName)
	if err != nil {
		return service.User{}, err
	}
	return m.begin(user, token)
}

// SignIn implements service.Auth.
func (m *Manager) SignIn(ctx context.Context, email, password string) (service.User, error) {
	user, token, err := m.Authenticate(ctx, email, password)
	if err != nil {
		return service.User{}, err
	}
	return m.begin(user, token)
}

// Register creates an account and returns a token for it without touching
// the current session.
func (m *Manager) Register(ctx context.Context, email, password, fullName string) (service.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return service.User{}, "", err
	}
	if len(password) < MinPasswordLength {
		return service.User{}, "", task.Validationf("password must be at least %d characters", MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return service.User{}, "", fmt.Errorf("session: hash password: %w", err)
	}
	acct, err := m.accounts.Create(ctx, email, strings.TrimSpace(fullName), string(hash))
	if err != nil {
		return service.User{}, "", err
	}
	return m.issue(acct.User)
}

// Authenticate checks credentials and returns a token without touching the
// current session.
func (m *Manager) Authenticate(ctx context.Context, email, password string) (service.User, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return service.User{}, "", err
	}
	acct, err := m.accounts.FindByEmail(ctx, email)
	if errors.Is(err, service.ErrAccountNotFound) {
		return service.User{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return service.User{}, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return service.User{}, "", ErrInvalidCredentials
	}
	return m.issue(acct.User)
}

// SignOut implements service.Auth. Signing out without a session is a no-op.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	was := m.signedIn
	m.user, m.token, m.signedIn = service.User{}, "", false
	m.mu.Unlock()

	if m.tokenPath != "" {
		if err := os.Remove(m.tokenPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("session: remove token: %w", err)
		}
	}
	if was {
		m.emit(service.User{}, false)
	}
	return nil
}

// OnChange implements service.Auth.
func (m *Manager) OnChange(fn func(user service.User, signedIn bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Verify parses a session token and returns its user.
func (m *Manager) Verify(tokenStr string) (service.User, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return service.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return service.User{}, ErrInvalidToken
	}
	id, _ := claims["user_id"].(string)
	email, _ := claims["email"].(string)
	if id == "" {
		return service.User{}, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	return service.User{ID: id, Email: email}, nil
}

func (m *Manager) sign(user service.User) (string, error) {
	now := m.now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"iat":     now.Unix(),
		"exp":     now.Add(m.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) issue(user service.User) (service.User, string, error) {
	token, err := m.sign(user)
	if err != nil {
		return service.User{}, "", fmt.Errorf("session: sign token: %w", err)
	}
	return user, token, nil
}

// begin starts a session for user, persists it and notifies listeners.
func (m *Manager) begin(user service.User, token string) (service.User, error) {
	if err := m.save(token); err != nil {
		return service.User{}, err
	}

	m.mu.Lock()
	m.user, m.token, m.signedIn = user, token, true
	m.mu.Unlock()

	m.emit(user, true)
	return user, nil
}

func (m *Manager) save(token string) error {
	if m.tokenPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(storedToken{Token: token}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.tokenPath, data, 0600); err != nil {
		return fmt.Errorf("session: save token: %w", err)
	}
	return nil
}

// emit calls listeners outside the lock so they may call back into m.
func (m *Manager) emit(user service.User, signedIn bool) {
	m.mu.Lock()
	fns := make([]func(service.User, bool), 0, len(m.listeners))
	for id := 0; id < m.nextID; id++ {
		if fn, ok := m.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(user, signedIn)
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", task.Validationf("invalid email address %q", email)
	}
	return email, nil
}
