package rounds

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/require"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/tests"
)

type verifiers map[oracles.Address]bool

func (v verifiers) Require(_ datastore.Read, addr oracles.Address, role oracles.Role) error {
	if role == oracles.Verifier && v[addr] {
		return nil
	}
	return fmt.Errorf("%s: %w", addr, oracles.ErrNotEligible)
}

type harness struct {
	t     *testing.T
	ds    *tests.TxMapDatastore
	clock *tests.Clock
	e     *Engine
}

func newHarness(t *testing.T, voters ...oracles.Address) *harness {
	v := verifiers{}
	for _, a := range voters {
		v[a] = true
	}
	return &harness{
		t:     t,
		ds:    tests.NewTxMapDatastore(),
		clock: tests.NewClock(),
		e:     New(oracles.DefaultParams(), v),
	}
}

// run executes f as a staged call and commits only if it succeeds.
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

func (h *harness) open(claim oracles.ClaimID) {
	err := h.run("funder", func(c *oracles.Call) error {
		_, err := h.e.Open(c, claim, "funder", tests.Amount(100), tests.Amount(10))
		return err
	})
	require.NoError(h.t, err)
}

func (h *harness) respond(voter oracles.Address, claim oracles.ClaimID, accept bool) (int, error) {
	var idx int
	err := h.run(voter, func(c *oracles.Call) error {
		var err error
		idx, err = h.e.Respond(c, claim, accept)
		return err
	})
	return idx, err
}

func (h *harness) finalize(voter oracles.Address, claim oracles.ClaimID, idx int) error {
	return h.run(voter, func(c *oracles.Call) error {
		return h.e.Finalize(c, claim, idx)
	})
}

func (h *harness) get(claim oracles.ClaimID) oracles.Round {
	r, err := h.e.Get(h.ds, claim, h.clock.Now())
	require.NoError(h.t, err)
	return r
}

func TestOpen(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.open(1)

	r := h.get(1)
	require.Equal(t, oracles.Open, r.Status)
	require.Equal(t, oracles.Undecided, r.Outcome)
	require.Equal(t, h.clock.Now().Add(time.Hour), r.ResponseDeadline)
	require.Equal(t, h.clock.Now().Add(2*time.Hour), r.FinalizeDeadline)
	tests.RequireAmount(t, 110, r.Pool())

	err := h.run("funder", func(c *oracles.Call) error {
		_, err := h.e.Open(c, 1, "funder", tests.Amount(1), tests.Amount(1))
		return err
	})
	require.ErrorIs(t, err, oracles.ErrPreconditionNotMet)

	_, err = h.e.Get(h.ds, 2, h.clock.Now())
	require.ErrorIs(t, err, oracles.ErrNotFound)
}

func TestRespond(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "v1", "v2")
	h.open(1)

	idx, err := h.respond("v1", 1, true)
	require.NoError(t, err)
	require.Equal(t, 0, idx)
	idx, err = h.respond("v2", 1, false)
	require.NoError(t, err)
	require.Equal(t, 1, idx)

	_, err = h.respond("v1", 1, false)
	require.ErrorIs(t, err, oracles.ErrAlreadyVoted)
	_, err = h.respond("outsider", 1, true)
	require.ErrorIs(t, err, oracles.ErrNotEligible)

	r := h.get(1)
	require.Equal(t, 1, r.Yes)
	require.Equal(t, 1, r.No)
	require.Equal(t, 2, r.Pending)
	require.Equal(t, 0, r.FinalYes+r.FinalNo)
}

func TestRespondWindow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "v1", "v2")
	h.open(1)

	h.clock.Advance(time.Hour - time.Second)
	_, err := h.respond("v1", 1, true)
	require.NoError(t, err)

	h.clock.Advance(time.Second)
	_, err = h.respond("v2", 1, true)
	require.ErrorIs(t, err, oracles.ErrWindowClosed)
	err = h.finalize("v1", 1, 0)
	require.ErrorIs(t, err, oracles.ErrWindowNotYetClosed)
}

func TestFinalize(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "v1", "v2", "v3")
	h.open(1)
	for _, v := range []oracles.Address{"v1", "v2", "v3"} {
		_, err := h.respond(v, 1, v != "v3")
		require.NoError(t, err)
	}

	err := h.finalize("v1", 1, 0)
	require.ErrorIs(t, err, oracles.ErrWindowNotYetClosed)

	h.clock.Advance(61 * time.Minute)
	require.Equal(t, oracles.AwaitingFinalize, h.get(1).Status)

	err = h.finalize("v1", 1, 1)
	require.ErrorIs(t, err, oracles.ErrInvalidIndex)
	err = h.finalize("v1", 1, 7)
	require.ErrorIs(t, err, oracles.ErrInvalidIndex)

	require.NoError(t, h.finalize("v1", 1, 0))
	err = h.finalize("v1", 1, 0)
	require.ErrorIs(t, err, oracles.ErrAlreadyFinalized)
	require.NoError(t, h.finalize("v3", 1, 2))

	r := h.get(1)
	require.Equal(t, oracles.AwaitingFinalize, r.Status)
	require.Equal(t, 1, r.FinalYes)
	require.Equal(t, 1, r.FinalNo)
	require.Equal(t, 1, r.Pending)

	require.NoError(t, h.finalize("v2", 1, 1))
	r = h.get(1)
	require.Equal(t, oracles.Finalized, r.Status)
	require.Equal(t, oracles.Accepted, r.Outcome)
	require.Equal(t, 0, r.Pending)
}

func TestExpired(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "v1", "v2")
	h.open(1)
	_, err := h.respond("v1", 1, true)
	require.NoError(t, err)
	_, err = h.respond("v2", 1, true)
	require.NoError(t, err)

	h.clock.Advance(61 * time.Minute)
	require.NoError(t, h.finalize("v1", 1, 0))

	h.clock.Advance(time.Hour)
	r := h.get(1)
	require.Equal(t, oracles.Expired, r.Status)
	require.Equal(t, oracles.Rejected, r.Outcome)
	err = h.finalize("v2", 1, 1)
	require.ErrorIs(t, err, oracles.ErrWindowClosed)
}

func TestFinalizeWindowBoundary(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "v1", "v2", "v3")
	h.open(1)
	for _, v := range []oracles.Address{"v1", "v2", "v3"} {
		_, err := h.respond(v, 1, true)
		require.NoError(t, err)
	}
	r := h.get(1)

	h.clock.Advance(r.ResponseDeadline.Sub(h.clock.Now()))
	require.ErrorIs(t, h.finalize("v1", 1, 0), oracles.ErrWindowNotYetClosed)

	h.clock.Advance(time.Second)
	require.NoError(t, h.finalize("v1", 1, 0))

	h.clock.Advance(r.FinalizeDeadline.Sub(h.clock.Now()))
	require.True(t, r.FinalizeDeadline.Equal(h.clock.Now()))
	require.NoError(t, h.finalize("v2", 1, 1))
	require.Equal(t, oracles.AwaitingFinalize, h.get(1).Status)

	h.clock.Advance(time.Second)
	require.ErrorIs(t, h.finalize("v3", 1, 2), oracles.ErrWindowClosed)
	r = h.get(1)
	require.Equal(t, oracles.Expired, r.Status)
	require.Equal(t, 2, r.FinalYes)
}

func TestNoVotes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.open(1)
	h.clock.Advance(61 * time.Minute)
	r := h.get(1)
	require.Equal(t, oracles.Finalized, r.Status)
	require.Equal(t, oracles.Rejected, r.Outcome)
}

func TestTally(t *testing.T) {
	t.Parallel()
	require.Equal(t, oracles.Accepted, Tally(2, 1, 1))
	require.Equal(t, oracles.Rejected, Tally(3, 3, 1))
	require.Equal(t, oracles.Rejected, Tally(0, 0, 1))
	require.Equal(t, oracles.Rejected, Tally(2, 0, 3))
	require.Equal(t, oracles.Rejected, Tally(1, 2, 1))
}

func TestSettleable(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "v1")
	h.open(1)
	h.open(2)
	_, err := h.respond("v1", 2, true)
	require.NoError(t, err)

	rs, err := h.e.Settleable(h.ds, h.clock.Now())
	require.NoError(t, err)
	require.Empty(t, rs)

	h.clock.Advance(61 * time.Minute)
	rs, err = h.e.Settleable(h.ds, h.clock.Now())
	require.NoError(t, err)
	require.Len(t, rs, 1)
	require.Equal(t, oracles.ClaimID(1), rs[0].ClaimID)

	err = h.run("officer", func(c *oracles.Call) error {
		r, err := h.e.Load(c, 1)
		if err != nil {
			return err
		}
		_, err = h.e.MarkSettled(c, r)
		return err
	})
	require.NoError(t, err)

	err = h.run("officer", func(c *oracles.Call) error {
		r, err := h.e.Load(c, 1)
		if err != nil {
			return err
		}
		_, err = h.e.MarkSettled(c, r)
		return err
	})
	require.ErrorIs(t, err, oracles.ErrAlreadySettled)

	us, err := h.e.Unsettled(h.ds, h.clock.Now())
	require.NoError(t, err)
	require.Len(t, us, 1)
	require.Equal(t, oracles.ClaimID(2), us[0].ClaimID)
	require.Equal(t, oracles.AwaitingFinalize, us[0].Status)
}

func TestRejectedCallLeavesNoTrace(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "v1")
	h.open(1)
	before := h.ds.Len()
	err := h.run("v1", func(c *oracles.Call) error {
		if _, err := h.e.Respond(c, 1, true); err != nil {
			return err
		}
		return fmt.Errorf("aborted")
	})
	require.Error(t, err)
	require.Equal(t, before, h.ds.Len())
	require.Equal(t, 0, h.get(1).Pending)
}
