// Package account implements the Account identity collaborator (spec.md
// §6.5): registration, login, TOTP enrollment/verification, and password
// lifecycle. Grounded on the original's
// name-account/internal/service/account/service.py and
// name-account/internal/repo/account/repo.py.
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors mirror the original's common.Err* exception types.
var (
	ErrAccountNotFound    = errors.New("account: not found")
	ErrLoginTaken         = errors.New("account: login already registered")
	ErrInvalidPassword    = errors.New("account: invalid password")
	ErrTwoFAAlreadySet    = errors.New("account: two-factor already enabled")
	ErrTwoFANotEnabled    = errors.New("account: two-factor not enabled")
	ErrTwoFACodeInvalid   = errors.New("account: two-factor code invalid")
)

// Account is the account-service's row, grounded on
// name-account/internal/model/account.py.
type Account struct {
	ID           int64
	Login        string
	Password     string
	TwoFAKey     string
	TwoFAEnabled bool
}

// Repo persists accounts over Postgres.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo builds a Repo over an existing pgxpool.Pool.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	var twoFAKey *string
	err := row.Scan(&a.ID, &a.Login, &a.Password, &twoFAKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if twoFAKey != nil {
		a.TwoFAKey = *twoFAKey
		a.TwoFAEnabled = true
	}
	return &a, nil
}

// AccountByID loads an account by id.
func (r *Repo) AccountByID(ctx context.Context, id int64) (*Account, error) {
	const q = `SELECT id, login, password, google_two_fa_key FROM accounts WHERE id = $1`
	a, err := scanAccount(r.pool.QueryRow(ctx, q, id))
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("account: account_by_id: %w", err)
	}
	return a, err
}

// AccountByLogin loads an account by login.
func (r *Repo) AccountByLogin(ctx context.Context, login string) (*Account, error) {
	const q = `SELECT id, login, password, google_two_fa_key FROM accounts WHERE login = $1`
	a, err := scanAccount(r.pool.QueryRow(ctx, q, login))
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("account: account_by_login: %w", err)
	}
	return a, err
}

// CreateAccount inserts a new account with a hashed password and returns its
// assigned id.
func (r *Repo) CreateAccount(ctx context.Context, login, hashedPassword string) (int64, error) {
	const q = `INSERT INTO accounts (login, password) VALUES ($1, $2)
		ON CONFLICT (login) DO NOTHING RETURNING id`
	var id int64
	err := r.pool.QueryRow(ctx, q, login, hashedPassword).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrLoginTaken
	}
	if err != nil {
		return 0, fmt.Errorf("account: create_account: %w", err)
	}
	return id, nil
}

// SetTwoFAKey persists a verified TOTP secret for id.
func (r *Repo) SetTwoFAKey(ctx context.Context, id int64, key string) error {
	const q = `UPDATE accounts SET google_two_fa_key = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, key, id)
	if err != nil {
		return fmt.Errorf("account: set_two_fa_key: %w", err)
	}
	return nil
}

// DeleteTwoFAKey clears id's TOTP secret, disabling two-factor.
func (r *Repo) DeleteTwoFAKey(ctx context.Context, id int64) error {
	const q = `UPDATE accounts SET google_two_fa_key = NULL WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("account: delete_two_fa_key: %w", err)
	}
	return nil
}

// UpdatePassword overwrites id's hashed password.
func (r *Repo) UpdatePassword(ctx context.Context, id int64, hashedPassword string) error {
	const q = `UPDATE accounts SET password = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, hashedPassword, id)
	if err != nil {
		return fmt.Errorf("account: update_password: %w", err)
	}
	return nil
}
