package client

import (
	"context"
	"math/big"
	"net/http"
	"net/url"

	"github.com/textileio/oraclefs/api"
	"github.com/textileio/oraclefs/auth"
	"github.com/textileio/oraclefs/oracles"
)

// Admin provides the admin api. The client token must be the daemon's
// admin token.
type Admin struct {
	c *Client
}

// CreateToken returns a new auth-token acting as addr.
func (a *Admin) CreateToken(ctx context.Context, addr oracles.Address) (string, error) {
	var res api.TokenResponse
	if err := a.c.do(ctx, http.MethodPost, "/admin/tokens", api.TokenRequest{Address: addr}, &res); err != nil {
		return "", err
	}
	return res.Token, nil
}

// Tokens lists every auth-token.
func (a *Admin) Tokens(ctx context.Context) ([]auth.Entry, error) {
	var res api.TokensResponse
	err := a.c.do(ctx, http.MethodGet, "/admin/tokens", nil, &res)
	return res.Tokens, err
}

// RevokeToken removes an auth-token.
func (a *Admin) RevokeToken(ctx context.Context, token string) error {
	return a.c.do(ctx, http.MethodDelete, "/admin/tokens/"+url.PathEscape(token), nil, nil)
}

// Deposit credits amount to addr and returns its new balance.
func (a *Admin) Deposit(ctx context.Context, addr oracles.Address, amount *big.Int) (*big.Int, error) {
	var res api.AmountResponse
	err := a.c.do(ctx, http.MethodPost, "/admin/deposit", api.DepositRequest{Address: addr, Amount: amount}, &res)
	return res.Amount, err
}
