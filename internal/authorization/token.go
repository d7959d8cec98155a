// Package authorization implements the Authorization identity collaborator
// (spec.md §6.5): signed-token issuance, verification, and renewal. Touched
// by the rest of the platform only at its wire contract — its internal
// logic is CRUD-plus-crypto, grounded on the original's
// name-authorization/internal/service/account/service.py.
package authorization

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenLifetime and the two refresh lifetimes are fixed by spec.md
// §6.5: 15-minute access lifetime; refresh is 15 minutes for the normal
// flow and 10 years for the Telegram long-lived flow.
const (
	AccessTokenLifetime     = 15 * time.Minute
	RefreshTokenLifetime    = 15 * time.Minute
	RefreshTokenLifetimeTg  = 10 * 365 * 24 * time.Hour
)

// ErrInvalidToken is returned when a token fails signature or claim
// validation.
var ErrInvalidToken = errors.New("authorization: invalid token")

// TokenPayload is the claim set signed into both access and refresh tokens,
// per spec.md §6.5: {account_id, two_fa_status, role, exp}.
type TokenPayload struct {
	AccountID   int64
	TwoFAStatus bool
	Role        string
	Exp         int64
}

type claims struct {
	AccountID   int64  `json:"account_id"`
	TwoFAStatus bool   `json:"two_fa_status"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens over a single symmetric
// secret — the only secret this identity collaborator holds, per spec.md §1
// ("a symmetric signing key").
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer builds a TokenIssuer over secret.
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

func (t *TokenIssuer) sign(accountID int64, twoFA bool, role string, lifetime time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		AccountID:   accountID,
		TwoFAStatus: twoFA,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(t.secret)
}

// IssueAccess signs a 15-minute access token.
func (t *TokenIssuer) IssueAccess(accountID int64, twoFA bool, role string) (string, error) {
	return t.sign(accountID, twoFA, role, AccessTokenLifetime)
}

// IssueRefresh signs a 15-minute refresh token (the `/` flow).
func (t *TokenIssuer) IssueRefresh(accountID int64, twoFA bool, role string) (string, error) {
	return t.sign(accountID, twoFA, role, RefreshTokenLifetime)
}

// IssueRefreshTg signs a 10-year refresh token (the `/tg` flow). Whether
// this long-lived token is intended to be single-use or reusable is left
// unresolved by the original (spec.md §9 Open Question) — see DESIGN.md for
// the decision this implementation makes.
func (t *TokenIssuer) IssueRefreshTg(accountID int64, twoFA bool, role string) (string, error) {
	return t.sign(accountID, twoFA, role, RefreshTokenLifetimeTg)
}

// Verify parses and validates a token's signature and expiry, returning its
// claims.
func (t *TokenIssuer) Verify(token string) (*TokenPayload, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return &TokenPayload{
		AccountID:   c.AccountID,
		TwoFAStatus: c.TwoFAStatus,
		Role:        c.Role,
		Exp:         c.ExpiresAt.Unix(),
	}, nil
}
