package account

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	byID    map[int64]*Account
	byLogin map[string]*Account
	nextID  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[int64]*Account{}, byLogin: map[string]*Account{}}
}

func (f *fakeRepo) AccountByID(ctx context.Context, id int64) (*Account, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeRepo) AccountByLogin(ctx context.Context, login string) (*Account, error) {
	a, ok := f.byLogin[login]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeRepo) CreateAccount(ctx context.Context, login, hashedPassword string) (int64, error) {
	if _, ok := f.byLogin[login]; ok {
		return 0, ErrLoginTaken
	}
	f.nextID++
	a := &Account{ID: f.nextID, Login: login, Password: hashedPassword}
	f.byID[a.ID] = a
	f.byLogin[login] = a
	return a.ID, nil
}

func (f *fakeRepo) SetTwoFAKey(ctx context.Context, id int64, key string) error {
	a := f.byID[id]
	a.TwoFAKey = key
	a.TwoFAEnabled = true
	return nil
}

func (f *fakeRepo) DeleteTwoFAKey(ctx context.Context, id int64) error {
	a := f.byID[id]
	a.TwoFAKey = ""
	a.TwoFAEnabled = false
	return nil
}

func (f *fakeRepo) UpdatePassword(ctx context.Context, id int64, hashedPassword string) error {
	f.byID[id].Password = hashedPassword
	return nil
}

type fakeAuth struct {
	calls int
}

func (f *fakeAuth) Authorization(ctx context.Context, accountID int64, twoFA bool, role string) (*TokenPair, error) {
	f.calls++
	return &TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (f *fakeAuth) AuthorizationTg(ctx context.Context, accountID int64, twoFA bool, role string) (*TokenPair, error) {
	f.calls++
	return &TokenPair{AccessToken: "access", RefreshToken: "refresh-tg"}, nil
}

func newTestService() (*Service, *fakeRepo, *fakeAuth) {
	repo := newFakeRepo()
	auth := &fakeAuth{}
	return NewService(repo, auth, "pepper", nil), repo, auth
}

func TestService_Register_CreatesAccountAndIssuesTokens(t *testing.T) {
	svc, repo, auth := newTestService()

	data, err := svc.Register(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), data.AccountID)
	assert.Equal(t, "access", data.AccessToken)
	assert.Equal(t, 1, auth.calls)

	_, ok := repo.byLogin["alice"]
	assert.True(t, ok)
}

func TestService_Register_DuplicateLoginRejected(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Register(context.Background(), "alice", "hunter2")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "alice", "different")
	assert.ErrorIs(t, err, ErrLoginTaken)
}

func TestService_Login_WrongPasswordRejected(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Register(context.Background(), "alice", "hunter2")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidPassword)
}

func TestService_Login_CorrectPasswordIssuesTokens(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Register(context.Background(), "alice", "hunter2")
	require.NoError(t, err)

	data, err := svc.Login(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, data.AccessToken)
}

func TestService_TwoFA_EnrollVerifyAndDisable(t *testing.T) {
	svc, _, _ := newTestService()

	data, err := svc.Register(context.Background(), "alice", "hunter2")
	require.NoError(t, err)

	key, uri, err := svc.GenerateTwoFAKey(data.AccountID)
	require.NoError(t, err)
	assert.NotEmpty(t, uri)

	code, err := totp.GenerateCode(key, time.Now())
	require.NoError(t, err)

	err = svc.SetTwoFAKey(context.Background(), data.AccountID, key, code)
	require.NoError(t, err)

	// Re-enrolling while already enabled is rejected.
	err = svc.SetTwoFAKey(context.Background(), data.AccountID, key, code)
	assert.ErrorIs(t, err, ErrTwoFAAlreadySet)

	code2, err := totp.GenerateCode(key, time.Now())
	require.NoError(t, err)
	ok, err := svc.VerifyTwoFA(context.Background(), data.AccountID, code2)
	require.NoError(t, err)
	assert.True(t, ok)

	err = svc.DeleteTwoFAKey(context.Background(), data.AccountID, code2)
	require.NoError(t, err)

	_, err = svc.VerifyTwoFA(context.Background(), data.AccountID, code2)
	assert.ErrorIs(t, err, ErrTwoFANotEnabled)
}

func TestService_ChangePassword_RequiresOldPassword(t *testing.T) {
	svc, _, _ := newTestService()

	data, err := svc.Register(context.Background(), "alice", "hunter2")
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), data.AccountID, "newpass", "wrongold")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	err = svc.ChangePassword(context.Background(), data.AccountID, "newpass", "hunter2")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice", "newpass")
	require.NoError(t, err)
}

func TestService_RecoveryPassword_SkipsOldPasswordCheck(t *testing.T) {
	svc, _, _ := newTestService()

	data, err := svc.Register(context.Background(), "alice", "hunter2")
	require.NoError(t, err)

	err = svc.RecoveryPassword(context.Background(), data.AccountID, "recovered")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice", "recovered")
	require.NoError(t, err)
}
