package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// accountRepo is the Repo's interface from the Service's side, so tests can
// substitute an in-memory double.
type accountRepo interface {
	AccountByID(ctx context.Context, id int64) (*Account, error)
	AccountByLogin(ctx context.Context, login string) (*Account, error)
	CreateAccount(ctx context.Context, login, hashedPassword string) (int64, error)
	SetTwoFAKey(ctx context.Context, id int64, key string) error
	DeleteTwoFAKey(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, hashedPassword string) error
}

// authIssuer is the Authorization wire contract's client-side shape, so the
// account service never talks to Postgres tables it doesn't own.
type authIssuer interface {
	Authorization(ctx context.Context, accountID int64, twoFA bool, role string) (*TokenPair, error)
	AuthorizationTg(ctx context.Context, accountID int64, twoFA bool, role string) (*TokenPair, error)
}

// TokenPair mirrors authclient.TokenPair, kept local so this package doesn't
// need to import the client package's type in its public surface.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthorizationData is what register/login hand back to the caller: the new
// or existing account id plus a fresh token pair.
type AuthorizationData struct {
	AccountID    int64
	AccessToken  string
	RefreshToken string
}

// Service implements the Account wire contract of spec.md §6.5, grounded on
// the original's AccountService.
type Service struct {
	repo           accountRepo
	auth           authIssuer
	passwordSecret string
	logger         *slog.Logger
}

// NewService wires a Repo and an Authorization client into a Service.
// passwordSecret is the pepper prefixed to every password before hashing,
// per spec.md §6.5.
func NewService(repo accountRepo, auth authIssuer, passwordSecret string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, auth: auth, passwordSecret: passwordSecret, logger: logger}
}

func (s *Service) hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(s.passwordSecret+password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("account: hash_password: %w", err)
	}
	return string(hashed), nil
}

func (s *Service) verifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(s.passwordSecret+password)) == nil
}

// Register creates a new account and returns a short-lived token pair.
func (s *Service) Register(ctx context.Context, login, password string) (*AuthorizationData, error) {
	hashed, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.CreateAccount(ctx, login, hashed)
	if err != nil {
		return nil, err
	}
	pair, err := s.auth.Authorization(ctx, id, false, "employee")
	if err != nil {
		return nil, err
	}
	return &AuthorizationData{AccountID: id, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// RegisterFromTg creates a new account and returns a 10-year token pair for
// the Telegram long-lived flow.
func (s *Service) RegisterFromTg(ctx context.Context, login, password string) (*AuthorizationData, error) {
	hashed, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.CreateAccount(ctx, login, hashed)
	if err != nil {
		return nil, err
	}
	pair, err := s.auth.AuthorizationTg(ctx, id, false, "employee")
	if err != nil {
		return nil, err
	}
	return &AuthorizationData{AccountID: id, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// Login verifies the given password against the stored account and returns
// a fresh token pair, carrying over the account's current two-factor state.
func (s *Service) Login(ctx context.Context, login, password string) (*AuthorizationData, error) {
	acc, err := s.repo.AccountByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if !s.verifyPassword(acc.Password, password) {
		return nil, ErrInvalidPassword
	}
	pair, err := s.auth.Authorization(ctx, acc.ID, acc.TwoFAEnabled, "employee")
	if err != nil {
		return nil, err
	}
	return &AuthorizationData{AccountID: acc.ID, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// GenerateTwoFAKey mints a new TOTP secret and its provisioning URI for
// accountID, for the caller to render as a QR code. The secret is not
// persisted until SetTwoFAKey verifies a code against it.
func (s *Service) GenerateTwoFAKey(accountID int64) (key string, provisioningURI string, err error) {
	k, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "release-machine",
		AccountName: fmt.Sprintf("account_id-%d", accountID),
	})
	if err != nil {
		return "", "", fmt.Errorf("account: generate_two_fa_key: %w", err)
	}
	return k.Secret(), k.String(), nil
}

// SetTwoFAKey verifies code against key and, on success, enables two-factor
// for accountID by persisting key.
func (s *Service) SetTwoFAKey(ctx context.Context, accountID int64, key, code string) error {
	acc, err := s.repo.AccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acc.TwoFAEnabled {
		return ErrTwoFAAlreadySet
	}
	if !totp.Validate(code, key) {
		return ErrTwoFACodeInvalid
	}
	return s.repo.SetTwoFAKey(ctx, accountID, key)
}

// DeleteTwoFAKey disables two-factor for accountID after verifying code
// against its currently-enrolled secret.
func (s *Service) DeleteTwoFAKey(ctx context.Context, accountID int64, code string) error {
	acc, err := s.repo.AccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !acc.TwoFAEnabled {
		return ErrTwoFANotEnabled
	}
	if !totp.Validate(code, acc.TwoFAKey) {
		return ErrTwoFACodeInvalid
	}
	return s.repo.DeleteTwoFAKey(ctx, accountID)
}

// VerifyTwoFA checks code against accountID's enrolled secret without
// mutating any state.
func (s *Service) VerifyTwoFA(ctx context.Context, accountID int64, code string) (bool, error) {
	acc, err := s.repo.AccountByID(ctx, accountID)
	if err != nil {
		return false, err
	}
	if !acc.TwoFAEnabled {
		return false, ErrTwoFANotEnabled
	}
	return totp.Validate(code, acc.TwoFAKey), nil
}

// RecoveryPassword overwrites accountID's password without verifying the
// old one (an out-of-band recovery flow).
func (s *Service) RecoveryPassword(ctx context.Context, accountID int64, newPassword string) error {
	hashed, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, accountID, hashed)
}

// ChangePassword verifies oldPassword before overwriting accountID's
// password with newPassword.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, newPassword, oldPassword string) error {
	acc, err := s.repo.AccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !s.verifyPassword(acc.Password, oldPassword) {
		return ErrInvalidPassword
	}
	hashed, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, accountID, hashed)
}
