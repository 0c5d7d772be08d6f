package client

import (
	"context"
	"math/big"
	"net/http"
	"net/url"

	"github.com/textileio/oraclefs/api"
	"github.com/textileio/oraclefs/escrow/transferstore"
	"github.com/textileio/oraclefs/oracles"
)

// Escrow provides balances, roles and the transfer history.
type Escrow struct {
	c *Client
}

// Register registers the caller with role. A nil stake registers a
// user without stake.
func (e *Escrow) Register(ctx context.Context, role oracles.Role, stake *big.Int) error {
	return e.c.do(ctx, http.MethodPost, "/register", api.RegisterRequest{Role: role.String(), Stake: stake}, nil)
}

// RoleOf returns the role of addr.
func (e *Escrow) RoleOf(ctx context.Context, addr oracles.Address) (oracles.Role, error) {
	var res api.RoleResponse
	if err := e.c.do(ctx, http.MethodGet, "/roles/"+url.PathEscape(addr.String()), nil, &res); err != nil {
		return oracles.None, err
	}
	if res.Role == oracles.None.String() {
		return oracles.None, nil
	}
	return oracles.ParseRole(res.Role)
}

// IsEligible returns true if addr holds role.
func (e *Escrow) IsEligible(ctx context.Context, addr oracles.Address, role oracles.Role) (bool, error) {
	var res api.EligibleResponse
	err := e.c.do(ctx, http.MethodGet, "/roles/"+url.PathEscape(addr.String())+"/"+role.String(), nil, &res)
	return res.Eligible, err
}

// Balance returns the available balance of addr.
func (e *Escrow) Balance(ctx context.Context, addr oracles.Address) (*big.Int, error) {
	var res api.AmountResponse
	err := e.c.do(ctx, http.MethodGet, "/balances/"+url.PathEscape(addr.String()), nil, &res)
	return res.Amount, err
}

// Held returns the total value held in escrow.
func (e *Escrow) Held(ctx context.Context) (*big.Int, error) {
	var res api.AmountResponse
	err := e.c.do(ctx, http.MethodGet, "/held", nil, &res)
	return res.Amount, err
}

// Transfers returns the transfers sent and received by addr.
func (e *Escrow) Transfers(ctx context.Context, addr oracles.Address) (sent, received []transferstore.Transfer, err error) {
	var res api.TransfersResponse
	err = e.c.do(ctx, http.MethodGet, "/transfers/"+url.PathEscape(addr.String()), nil, &res)
	return res.Sent, res.Received, err
}
