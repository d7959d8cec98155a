// Package authclient is a thin typed HTTP client over the Authorization
// wire contract of spec.md §6.5, used by the Account service to mint token
// pairs on register/login. It has no call for GET /check.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gommgo/release-machine/internal/httpclient"
)

// TokenPair mirrors authorization.TokenPair across the wire.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Client calls an authorizationsvc instance.
type Client struct {
	baseURL string
	doer    httpclient.Doer
}

// New builds a Client against baseURL (no trailing slash) using doer.
func New(baseURL string, doer httpclient.Doer) *Client {
	return &Client{baseURL: baseURL, doer: doer}
}

type createRequest struct {
	AccountID   int64  `json:"account_id"`
	TwoFAStatus bool   `json:"two_fa_status"`
	Role        string `json:"role"`
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*TokenPair, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(httpclient.WithOperation(ctx, "identity_auth"), http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authclient: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("authclient: %s: unexpected status %d", path, resp.StatusCode)
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("authclient: %s: decode response: %w", path, err)
	}
	return &pair, nil
}

// Authorization issues a 15-minute refresh token pair (POST /).
func (c *Client) Authorization(ctx context.Context, accountID int64, twoFA bool, role string) (*TokenPair, error) {
	return c.post(ctx, "/", createRequest{AccountID: accountID, TwoFAStatus: twoFA, Role: role})
}

// AuthorizationTg issues a 10-year refresh token pair (POST /tg).
func (c *Client) AuthorizationTg(ctx context.Context, accountID int64, twoFA bool, role string) (*TokenPair, error) {
	return c.post(ctx, "/tg", createRequest{AccountID: accountID, TwoFAStatus: twoFA, Role: role})
}
