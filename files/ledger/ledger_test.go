package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/textileio/oraclefs/escrow"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/files/store"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/oracles/reencrypt"
	"github.com/textileio/oraclefs/oracles/roles"
	"github.com/textileio/oraclefs/oracles/rounds"
	"github.com/textileio/oraclefs/tests"
)

type harness struct {
	t     *testing.T
	ds    *tests.TxMapDatastore
	clock *tests.Clock
	bank  *escrow.Bank
	l     *Ledger
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
		l:     New(store.New(), rr, bank, rounds.New(params, rr), reencrypt.New(params, rr, bank)),
	}
	return h
}

// run executes f as caller, committing only if it succeeds.
func (h *harness) run(caller oracles.Address, f func(c *oracles.Call) error) error {
	h.t.Helper()
	txn, err := h.ds.NewTransaction(false)
	require.NoError(h.t, err)
	defer txn.Discard()
	c := oracles.NewCall(context.Background(), txn, caller, h.clock.Now())
	if err := f(c); err != nil {
		return err
	}
	require.NoError(h.t, txn.Commit())
	return nil
}

func (h *harness) user(addr oracles.Address, funds int64) {
	h.t.Helper()
	if funds > 0 {
		require.NoError(h.t, h.run(escrow.MintAccount, func(c *oracles.Call) error {
			return h.bank.Deposit(c, addr, big.NewInt(funds))
		}))
	}
	require.NoError(h.t, h.run(addr, h.l.Register))
}

func (h *harness) claim(id oracles.ClaimID) files.Claim {
	h.t.Helper()
	txn, err := h.ds.NewTransaction(true)
	require.NoError(h.t, err)
	defer txn.Discard()
	cl, err := h.l.GetClaim(txn, id)
	require.NoError(h.t, err)
	return cl
}

func rw(verifier, timeout int64) Reward {
	return Reward{Verifier: big.NewInt(verifier), Timeout: big.NewInt(timeout), Value: big.NewInt(verifier + timeout)}
}

func TestRegister(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.user("alice", 0)
	err := h.run("alice", h.l.Register)
	require.True(t, errors.Is(err, oracles.ErrAlreadyRegistered))
}

func TestAddFileValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.user("alice", 1000)

	err := h.run("alice", func(c *oracles.Call) error {
		_, err := h.l.AddFile(c, "a.txt", "", rw(10, 1))
		return err
	})
	require.True(t, errors.Is(err, oracles.ErrInvalidArgument))

	err = h.run("mallory", func(c *oracles.Call) error {
		_, err := h.l.AddFile(c, "a.txt", "bafy", rw(10, 1))
		return err
	})
	require.True(t, errors.Is(err, oracles.ErrNotEligible))

	err = h.run("alice", func(c *oracles.Call) error {
		_, err := h.l.AddFile(c, "a.txt", "bafy", Reward{Verifier: big.NewInt(10), Timeout: big.NewInt(1), Value: big.NewInt(5)})
		return err
	})
	require.True(t, errors.Is(err, oracles.ErrInsufficientFunds))

	var cl files.Claim
	require.NoError(t, h.run("alice", func(c *oracles.Call) (err error) {
		cl, err = h.l.AddFile(c, "a.txt", "bafy", Reward{Verifier: big.NewInt(10), Timeout: big.NewInt(1), Value: big.NewInt(50)})
		return err
	}))
	require.Equal(t, oracles.ClaimID(1), cl.ID)
	require.Equal(t, files.Verifying, cl.Status)

	txn, err := h.ds.NewTransaction(true)
	require.NoError(t, err)
	defer txn.Discard()
	bal, err := h.bank.Balance(txn, "alice")
	require.NoError(t, err)
	tests.RequireAmount(t, 989, bal)
}

func TestDelegates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.user("alice", 0)
	h.user("bob", 0)

	err := h.run("alice", func(c *oracles.Call) error { return h.l.AddDelegate(c, "alice") })
	require.True(t, errors.Is(err, oracles.ErrInvalidArgument))
	err = h.run("alice", func(c *oracles.Call) error { return h.l.AddDelegate(c, "carol") })
	require.True(t, errors.Is(err, oracles.ErrNotEligible))

	require.NoError(t, h.run("alice", func(c *oracles.Call) error { return h.l.AddDelegate(c, "bob") }))
	err = h.run("alice", func(c *oracles.Call) error { return h.l.AddDelegate(c, "bob") })
	require.True(t, errors.Is(err, oracles.ErrAlreadyRegistered))

	err = h.run("alice", func(c *oracles.Call) error {
		_, err := h.l.AddFileFor(c, "bob", "a.txt", "bafy", big.NewInt(5))
		return err
	})
	require.True(t, errors.Is(err, oracles.ErrNotEligible))

	var cl files.Claim
	require.NoError(t, h.run("bob", func(c *oracles.Call) (err error) {
		cl, err = h.l.AddFileFor(c, "alice", "a.txt", "bafy", big.NewInt(5))
		return err
	}))
	require.Equal(t, files.Pending, cl.Status)
	require.Equal(t, files.Delegated, cl.Origin)
	require.Equal(t, oracles.Address("alice"), cl.Owner)
	require.Equal(t, oracles.Address("bob"), cl.Uploader)

	err = h.run("alice", func(c *oracles.Call) error {
		_, err := h.l.AcceptFile(c, cl.ID, "a.txt", "bafy2", rw(0, 0))
		return err
	})
	require.True(t, errors.Is(err, oracles.ErrPreconditionNotMet))
}

func TestApplyOutcome(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.user("alice", 1000)

	var cl files.Claim
	require.NoError(t, h.run("alice", func(c *oracles.Call) (err error) {
		cl, err = h.l.SetIPNS(c, "0xabc", rw(10, 1))
		return err
	}))
	err := h.run("alice", func(c *oracles.Call) error {
		_, err := h.l.SetIPNS(c, "0xdef", rw(10, 1))
		return err
	})
	require.True(t, errors.Is(err, oracles.ErrPreconditionNotMet))

	h.clock.Advance(3 * time.Hour)
	require.NoError(t, h.run("tmo", func(c *oracles.Call) error {
		_, err := h.l.ApplyOutcome(c, cl.ID, oracles.Accepted)
		return err
	}))
	require.Equal(t, files.Accepted, h.claim(cl.ID).Status)

	err = h.run("tmo", func(c *oracles.Call) error {
		_, err := h.l.ApplyOutcome(c, cl.ID, oracles.Rejected)
		return err
	})
	require.True(t, errors.Is(err, oracles.ErrPreconditionNotMet))

	txn, err := h.ds.NewTransaction(true)
	require.NoError(t, err)
	defer txn.Discard()
	resolved, err := h.l.ResolveIPNS(txn, "alice")
	require.NoError(t, err)
	require.Equal(t, "0xabc", resolved.Pointer)
}

func TestRequestRequiresAcceptedFile(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.user("alice", 1000)
	h.user("bob", 1000)

	var cl files.Claim
	require.NoError(t, h.run("alice", func(c *oracles.Call) (err error) {
		cl, err = h.l.AddFile(c, "a.txt", "bafy", rw(10, 1))
		return err
	}))
	err := h.run("bob", func(c *oracles.Call) error {
		_, err := h.l.RequestPurchase(c, cl.ID, big.NewInt(100))
		return err
	})
	require.True(t, errors.Is(err, oracles.ErrPreconditionNotMet))

	require.NoError(t, h.run("tmo", func(c *oracles.Call) error {
		_, err := h.l.ApplyOutcome(c, cl.ID, oracles.Accepted)
		return err
	}))
	err = h.run("alice", func(c *oracles.Call) error {
		_, err := h.l.RequestLicense(c, cl.ID, big.NewInt(100))
		return err
	})
	require.True(t, errors.Is(err, oracles.ErrInvalidArgument))

	var o files.Offer
	require.NoError(t, h.run("bob", func(c *oracles.Call) (err error) {
		o, err = h.l.RequestLicense(c, cl.ID, big.NewInt(100))
		return err
	}))
	require.Equal(t, uint64(1), o.ID)
	require.Equal(t, files.Requested, o.Status)

	err = h.run("bob", func(c *oracles.Call) error {
		_, err := h.l.AcceptLicense(c, o.ID)
		return err
	})
	require.True(t, errors.Is(err, oracles.ErrNotEligible))

	require.NoError(t, h.run("bob", func(c *oracles.Call) error {
		_, err := h.l.CancelOffer(c, files.LicenseOffer, o.ID)
		return err
	}))
	err = h.run("alice", func(c *oracles.Call) error {
		_, err := h.l.AcceptLicense(c, o.ID)
		return err
	})
	require.True(t, errors.Is(err, oracles.ErrAlreadyFinalized))
}
