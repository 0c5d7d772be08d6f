package roles

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/textileio/oraclefs/escrow"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/tests"
)

func TestRegisterAs(t *testing.T) {
	t.Parallel()
	ds := tests.NewTxMapDatastore()
	params := oracles.DefaultParams()
	params.MinStake[oracles.Verifier] = big.NewInt(10)
	bank := escrow.New()
	r := New(params, bank)
	now := tests.NewClock().Now()

	run := func(caller oracles.Address, f func(c *oracles.Call) error) error {
		txn, err := ds.NewTransaction(false)
		require.NoError(t, err)
		defer txn.Discard()
		c := oracles.NewCall(context.Background(), txn, caller, now)
		if err := f(c); err != nil {
			return err
		}
		return txn.Commit()
	}
	require.NoError(t, run("admin", func(c *oracles.Call) error {
		return bank.Deposit(c, "v1", big.NewInt(15))
	}))

	err := run("v1", func(c *oracles.Call) error { return r.RegisterAs(c, oracles.Verifier, big.NewInt(5)) })
	require.ErrorIs(t, err, oracles.ErrInsufficientFunds)
	err = run("v1", func(c *oracles.Call) error { return r.RegisterAs(c, oracles.Role(9), nil) })
	require.ErrorIs(t, err, oracles.ErrInvalidArgument)

	require.NoError(t, run("v1", func(c *oracles.Call) error { return r.RegisterAs(c, oracles.Verifier, big.NewInt(10)) }))
	err = run("v1", func(c *oracles.Call) error { return r.RegisterAs(c, oracles.User, nil) })
	require.ErrorIs(t, err, oracles.ErrAlreadyRegistered)

	require.NoError(t, run("u1", func(c *oracles.Call) error { return r.RegisterAs(c, oracles.User, nil) }))

	role, err := r.RoleOf(ds, "v1")
	require.NoError(t, err)
	require.Equal(t, oracles.Verifier, role)
	role, err = r.RoleOf(ds, "stranger")
	require.NoError(t, err)
	require.Equal(t, oracles.None, role)

	ok, err := r.IsEligible(ds, "u1", oracles.Verifier)
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, r.Require(ds, "u1", oracles.Verifier), oracles.ErrNotEligible)
	require.NoError(t, r.Require(ds, "v1", oracles.Verifier))

	e, err := r.Get(ds, "v1")
	require.NoError(t, err)
	tests.RequireAmount(t, 10, e.Stake)
	held, err := bank.Held(ds)
	require.NoError(t, err)
	tests.RequireAmount(t, 10, held)
	_, err = r.Get(ds, "stranger")
	require.ErrorIs(t, err, oracles.ErrNotFound)
}
