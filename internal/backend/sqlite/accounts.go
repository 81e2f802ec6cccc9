package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"tasktrack/internal/service"
	"tasktrack/internal/task"
)

// Accounts implements service.Accounts.
type Accounts struct {
	d *DB
}

var _ service.Accounts = (*Accounts)(nil)

// Create implements service.Accounts.
func (a *Accounts) Create(ctx context.Context, email, fullName, passwordHash string) (service.Account, error) {
	acct := service.Account{
		User:         service.User{ID: a.d.newID(), Email: strings.ToLower(email)},
		FullName:     fullName,
		PasswordHash: passwordHash,
	}
	ctx, cancel := a.d.bound(ctx)
	defer cancel()

	_, err := a.d.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, full_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		acct.ID, acct.Email, acct.FullName, acct.PasswordHash, a.d.timestamp())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return service.Account{}, service.ErrAccountExists
		}
		return service.Account{}, task.Transport("create account", err)
	}
	return acct, nil
}

// FindByEmail implements service.Accounts.
func (a *Accounts) FindByEmail(ctx context.Context, email string) (service.Account, error) {
	ctx, cancel := a.d.bound(ctx)
	defer cancel()

	var acct service.Account
	err := a.d.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, password_hash
		FROM accounts WHERE email = ?`, strings.ToLower(email)).
		Scan(&acct.ID, &acct.Email, &acct.FullName, &acct.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return service.Account{}, service.ErrAccountNotFound
	}
	if err != nil {
		return service.Account{}, task.Transport("find account", err)
	}
	return acct, nil
}
