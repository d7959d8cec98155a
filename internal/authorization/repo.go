package authorization

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAccountNotFound mirrors the original's common.ErrAccountNotFound.
var ErrAccountNotFound = errors.New("authorization: account not found")

// Account is the authorization-service's view of an identity: just enough
// to issue and renew tokens, grounded on
// name-authorization/internal/model/account.py.
type Account struct {
	ID           int64
	RefreshToken string
	Role         string
	TwoFAStatus  bool
}

// Repo persists authorization accounts over Postgres, grounded on
// name-authorization/internal/repo/account/repo.py.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo builds a Repo over an existing pgxpool.Pool.
func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// AccountByID loads an account by id, or ErrAccountNotFound.
func (r *Repo) AccountByID(ctx context.Context, id int64) (*Account, error) {
	const q = `SELECT id, refresh_token, role, two_fa_status FROM authorization_accounts WHERE id = $1`
	var a Account
	err := r.pool.QueryRow(ctx, q, id).Scan(&a.ID, &a.RefreshToken, &a.Role, &a.TwoFAStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("authorization: account_by_id: %w", err)
	}
	return &a, nil
}

// AccountByRefreshToken loads the account currently holding refreshToken as
// its last-issued refresh token.
func (r *Repo) AccountByRefreshToken(ctx context.Context, refreshToken string) (*Account, error) {
	const q = `SELECT id, refresh_token, role, two_fa_status FROM authorization_accounts WHERE refresh_token = $1`
	var a Account
	err := r.pool.QueryRow(ctx, q, refreshToken).Scan(&a.ID, &a.RefreshToken, &a.Role, &a.TwoFAStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("authorization: account_by_refresh_token: %w", err)
	}
	return &a, nil
}

// CreateAccount inserts a new authorization account row for id if one does
// not already exist, mirroring the original's lazy "create on first token
// issuance" flow.
func (r *Repo) CreateAccount(ctx context.Context, id int64) error {
	const q = `INSERT INTO authorization_accounts (id, refresh_token, role, two_fa_status)
		VALUES ($1, '', 'viewer', false) ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("authorization: create_account: %w", err)
	}
	return nil
}

// UpdateRefreshToken persists the latest refresh token issued for id.
func (r *Repo) UpdateRefreshToken(ctx context.Context, id int64, refreshToken string) error {
	const q = `UPDATE authorization_accounts SET refresh_token = $1 WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, refreshToken, id)
	if err != nil {
		return fmt.Errorf("authorization: update_refresh_token: %w", err)
	}
	return nil
}
