package authorization

import (
	"context"
	"log/slog"
)

// accountRepo is the Repo's interface from the Service's side, so tests can
// substitute an in-memory double.
type accountRepo interface {
	AccountByID(ctx context.Context, id int64) (*Account, error)
	AccountByRefreshToken(ctx context.Context, refreshToken string) (*Account, error)
	CreateAccount(ctx context.Context, id int64) error
	UpdateRefreshToken(ctx context.Context, id int64, refreshToken string) error
}

// TokenPair is an issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Service implements the Authorization wire contract of spec.md §6.5,
// grounded line-for-line on the original's AuthorizationService.
type Service struct {
	repo   accountRepo
	issuer *TokenIssuer
	logger *slog.Logger
}

// NewService wires a Repo and TokenIssuer into a Service.
func NewService(repo accountRepo, issuer *TokenIssuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, issuer: issuer, logger: logger}
}

func (s *Service) ensureAccount(ctx context.Context, accountID int64) (*Account, error) {
	account, err := s.repo.AccountByID(ctx, accountID)
	if err == nil {
		return account, nil
	}
	if err != ErrAccountNotFound {
		return nil, err
	}
	if err := s.repo.CreateAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.AccountByID(ctx, accountID)
}

// CreateTokens issues a 15-minute access token and a 15-minute refresh
// token, lazily creating the account row if this is its first token
// issuance (POST /).
func (s *Service) CreateTokens(ctx context.Context, accountID int64, twoFA bool, role string) (*TokenPair, error) {
	account, err := s.ensureAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	access, err := s.issuer.IssueAccess(accountID, twoFA, role)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.IssueRefresh(accountID, twoFA, role)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRefreshToken(ctx, account.ID, refresh); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// CreateTokensTg issues a 15-minute access token and a 10-year refresh
// token (POST /tg).
func (s *Service) CreateTokensTg(ctx context.Context, accountID int64, twoFA bool, role string) (*TokenPair, error) {
	account, err := s.ensureAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	access, err := s.issuer.IssueAccess(accountID, twoFA, role)
	if err != nil {
		return nil, err
	}
	refresh, err := s.issuer.IssueRefreshTg(accountID, twoFA, role)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRefreshToken(ctx, account.ID, refresh); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// CheckToken validates an access token (GET /check).
func (s *Service) CheckToken(token string) (*TokenPayload, error) {
	return s.issuer.Verify(token)
}

// RefreshToken exchanges a still-valid refresh token for a fresh pair (POST
// /refresh), first confirming it is still the account's current refresh
// token (so a superseded token cannot be replayed).
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	account, err := s.repo.AccountByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	payload, err := s.issuer.Verify(refreshToken)
	if err != nil {
		return nil, err
	}
	return s.CreateTokens(ctx, payload.AccountID, payload.TwoFAStatus, account.Role)
}
