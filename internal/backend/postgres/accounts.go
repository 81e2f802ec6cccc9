package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

const uniqueViolation = "23505"

// Accounts implements service.Accounts.
type Accounts struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var _ service.Accounts = (*Accounts)(nil)

// Create implements service.Accounts.
func (a *Accounts) Create(ctx context.Context, email, fullName, passwordHash string) (service.Account, error) {
	acct := service.Account{
		User:         service.User{Email: strings.ToLower(email)},
		FullName:     fullName,
		PasswordHash: passwordHash,
	}
	ctx, cancel := bound(ctx, a.timeout)
	defer cancel()

	err := a.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, full_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id::text`,
		acct.Email, acct.FullName, acct.PasswordHash).Scan(&acct.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return service.Account{}, service.ErrAccountExists
		}
		return service.Account{}, task.Transport("create account", err)
	}
	return acct, nil
}

// FindByEmail implements service.Accounts.
func (a *Accounts) FindByEmail(ctx context.Context, email string) (service.Account, error) {
	ctx, cancel := bound(ctx, a.timeout)
	defer cancel()

	var acct service.Account
	err := a.pool.QueryRow(ctx, `
		SELECT id::text, email, full_name, password_hash
		FROM accounts WHERE email = $1`, strings.ToLower(email)).
		Scan(&acct.ID, &acct.Email, &acct.FullName, &acct.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return service.Account{}, service.ErrAccountNotFound
	}
	if err != nil {
		return service.Account{}, task.Transport("find account", err)
	}
	return acct, nil
}
