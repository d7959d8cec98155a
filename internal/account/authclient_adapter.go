package account

import (
	"context"

	"github.com/gommgo/release-machine/internal/identity/authclient"
)

// authClientAdapter satisfies authIssuer over an authclient.Client, so
// cmd/accountsvc can wire the real HTTP client without this package
// depending on its concrete type.
type authClientAdapter struct {
	client *authclient.Client
}

// NewAuthClientAdapter wraps client as an authIssuer for Service.
func NewAuthClientAdapter(client *authclient.Client) *authClientAdapter {
	return &authClientAdapter{client: client}
}

func (a *authClientAdapter) Authorization(ctx context.Context, accountID int64, twoFA bool, role string) (*TokenPair, error) {
	pair, err := a.client.Authorization(ctx, accountID, twoFA, role)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

func (a *authClientAdapter) AuthorizationTg(ctx context.Context, accountID int64, twoFA bool, role string) (*TokenPair, error) {
	pair, err := a.client.AuthorizationTg(ctx, accountID, twoFA, role)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}
