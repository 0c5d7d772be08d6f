package reencrypt

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/textileio/oraclefs/escrow"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/oracles/roles"
	"github.com/textileio/oraclefs/tests"
)

type harness struct {
	t     *testing.T
	ds    *tests.TxMapDatastore
	clock *tests.Clock
	bank  *escrow.Bank
	roles *roles.Registry
	co    *Coordinator
}

func newHarness(t *testing.T) *harness {
	params := oracles.DefaultParams()
	bank := escrow.New()
	rr := roles.New(params, bank)
	h := &harness{
		t:     t,
		ds:    tests.NewTxMapDatastore(),
		clock: tests.NewClock(),
		bank:  bank,
		roles: rr,
		co:    New(params, rr, bank),
	}
	for _, a := range []oracles.Address{"re1", "re2"} {
		addr := a
		require.NoError(t, h.run(addr, func(c *oracles.Call) error {
			return rr.RegisterAs(c, oracles.Reencryptor, nil)
		}))
	}
	return h
}

func (h *harness) run(caller oracles.Address, f func(c *oracles.Call) error) error {
	txn, err := h.ds.NewTransaction(false)
	require.NoError(h.t, err)
	defer txn.Discard()
	c := oracles.NewCall(context.Background(), txn, caller, h.clock.Now())
	if err := f(c); err != nil {
		return err
	}
	return txn.Commit()
}

func (h *harness) open(claim oracles.ClaimID, purpose oracles.Transfer, offer uint64) {
	require.NoError(h.t, h.run("payer", func(c *oracles.Call) error {
		if err := h.bank.Deposit(c, "payer", big.NewInt(20)); err != nil {
			return err
		}
		if err := h.bank.ChargeFor(c, claim, big.NewInt(20), "reencryption reward"); err != nil {
			return err
		}
		_, err := h.co.Open(c, oracles.Job{ClaimID: claim, Purpose: purpose, OfferID: offer, Payer: "payer", Recipient: "buyer", Reward: big.NewInt(20)})
		return err
	}))
}

func (h *harness) participate(addr oracles.Address, claim oracles.ClaimID) error {
	return h.run(addr, func(c *oracles.Call) error {
		_, err := h.co.Participate(c, claim)
		return err
	})
}

func (h *harness) done(addr oracles.Address, claim oracles.ClaimID) error {
	return h.run(addr, func(c *oracles.Call) error {
		_, err := h.co.Done(c, claim)
		return err
	})
}

func (h *harness) consume(claim oracles.ClaimID, purpose oracles.Transfer, offer uint64) error {
	return h.run("owner", func(c *oracles.Call) error {
		_, err := h.co.Consume(c, claim, purpose, offer)
		return err
	})
}

func TestLifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.open(1, oracles.Purchase, 1)

	require.ErrorIs(t, h.participate("user", 1), oracles.ErrNotEligible)
	require.ErrorIs(t, h.participate("re1", 2), oracles.ErrNotFound)
	require.ErrorIs(t, h.consume(1, oracles.Purchase, 1), oracles.ErrPreconditionNotMet)

	require.NoError(t, h.participate("re1", 1))
	require.ErrorIs(t, h.participate("re2", 1), oracles.ErrAlreadyClaimed)
	require.ErrorIs(t, h.done("re2", 1), oracles.ErrNotClaimant)

	h.clock.Advance(4 * time.Minute)
	require.ErrorIs(t, h.done("re1", 1), oracles.ErrTooEarly)
	h.clock.Advance(time.Minute)
	require.NoError(t, h.done("re1", 1))
	require.ErrorIs(t, h.done("re1", 1), oracles.ErrAlreadyFinalized)
	require.ErrorIs(t, h.participate("re2", 1), oracles.ErrAlreadyClaimed)

	bal, err := h.bank.Balance(h.ds, "re1")
	require.NoError(t, err)
	tests.RequireAmount(t, 20, bal)

	require.ErrorIs(t, h.consume(1, oracles.License, 1), oracles.ErrPreconditionNotMet)
	require.ErrorIs(t, h.consume(1, oracles.Purchase, 2), oracles.ErrPreconditionNotMet)
	require.NoError(t, h.consume(1, oracles.Purchase, 1))
	require.ErrorIs(t, h.consume(1, oracles.Purchase, 1), oracles.ErrPreconditionNotMet)

	active, err := h.co.HasActive(h.ds, 1)
	require.NoError(t, err)
	require.False(t, active)

	// A consumed job doesn't block the next transfer of the claim.
	h.open(1, oracles.License, 1)
	j, err := h.co.Get(h.ds, 1, h.clock.Now())
	require.NoError(t, err)
	require.Equal(t, oracles.Unclaimed, j.Status)
	require.Equal(t, oracles.License, j.Purpose)
}

func TestOpenWhileActive(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.open(1, oracles.Delegation, 0)
	err := h.run("payer", func(c *oracles.Call) error {
		_, err := h.co.Open(c, oracles.Job{ClaimID: 1, Purpose: oracles.Purchase, OfferID: 1, Reward: big.NewInt(0)})
		return err
	})
	require.ErrorIs(t, err, oracles.ErrPreconditionNotMet)
}

func TestClaimTimeout(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.open(1, oracles.Delegation, 0)
	require.NoError(t, h.participate("re1", 1))

	h.clock.Advance(29 * time.Minute)
	require.ErrorIs(t, h.participate("re2", 1), oracles.ErrAlreadyClaimed)
	avail, err := h.co.Available(h.ds, h.clock.Now())
	require.NoError(t, err)
	require.Empty(t, avail)

	h.clock.Advance(time.Minute)
	require.ErrorIs(t, h.done("re1", 1), oracles.ErrNotClaimant)
	avail, err = h.co.Available(h.ds, h.clock.Now())
	require.NoError(t, err)
	require.Len(t, avail, 1)

	require.NoError(t, h.participate("re2", 1))
	require.ErrorIs(t, h.done("re1", 1), oracles.ErrNotClaimant)

	j, err := h.co.Get(h.ds, 1, h.clock.Now())
	require.NoError(t, err)
	require.Equal(t, oracles.Address("re2"), j.Claimant)
	require.Equal(t, 2, j.Attempts)

	h.clock.Advance(5 * time.Minute)
	require.NoError(t, h.done("re2", 1))
	bal, err := h.bank.Balance(h.ds, "re1")
	require.NoError(t, err)
	tests.RequireAmount(t, 0, bal)
}
