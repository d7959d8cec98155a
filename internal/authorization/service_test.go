package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	byID   map[int64]*Account
	byRT   map[string]*Account
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[int64]*Account{}, byRT: map[string]*Account{}}
}

func (f *fakeRepo) AccountByID(ctx context.Context, id int64) (*Account, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeRepo) AccountByRefreshToken(ctx context.Context, refreshToken string) (*Account, error) {
	a, ok := f.byRT[refreshToken]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeRepo) CreateAccount(ctx context.Context, id int64) error {
	f.byID[id] = &Account{ID: id, Role: "viewer"}
	return nil
}

func (f *fakeRepo) UpdateRefreshToken(ctx context.Context, id int64, refreshToken string) error {
	a := f.byID[id]
	a.RefreshToken = refreshToken
	f.byRT[refreshToken] = a
	return nil
}

func TestService_CreateTokens_LazilyCreatesAccount(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, NewTokenIssuer("secret"), nil)

	pair, err := svc.CreateTokens(context.Background(), 42, false, "operator")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	_, ok := repo.byID[42]
	assert.True(t, ok)
}

func TestService_CheckToken_RoundTrips(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, NewTokenIssuer("secret"), nil)

	pair, err := svc.CreateTokens(context.Background(), 1, true, "admin")
	require.NoError(t, err)

	payload, err := svc.CheckToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(1), payload.AccountID)
	assert.True(t, payload.TwoFAStatus)
	assert.Equal(t, "admin", payload.Role)
}

func TestService_CheckToken_WrongSecretRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, NewTokenIssuer("secret"), nil)

	pair, err := svc.CreateTokens(context.Background(), 1, false, "viewer")
	require.NoError(t, err)

	other := NewTokenIssuer("different-secret")
	_, err = other.Verify(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_RefreshToken_IssuesFreshPair(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, NewTokenIssuer("secret"), nil)

	pair, err := svc.CreateTokens(context.Background(), 7, false, "operator")
	require.NoError(t, err)

	fresh, err := svc.RefreshToken(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.AccessToken)
	assert.NotEqual(t, pair.AccessToken, fresh.AccessToken)
}

func TestService_RefreshToken_UnknownTokenRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, NewTokenIssuer("secret"), nil)

	_, err := svc.RefreshToken(context.Background(), "not-a-real-token")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestTokenIssuer_IssueRefreshTg_LongLifetime(t *testing.T) {
	issuer := NewTokenIssuer("secret")
	token, err := issuer.IssueRefreshTg(1, false, "operator")
	require.NoError(t, err)

	payload, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Greater(t, payload.Exp, time.Now().Add(365*24*time.Hour).Unix())
}
