package oracles

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ipfs/go-datastore"
)

// Clock is the source of the current time for window guards.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock backed by the local wall clock.
type SystemClock struct{}

// Now returns the current local time truncated to seconds.
func (SystemClock) Now() time.Time {
	return time.Now().Truncate(time.Second)
}

// Call is the staged context of one state-mutating call. Every write
// goes to Txn, so a rejected call leaves committed state untouched.
type Call struct {
	Ctx    context.Context
	Txn    datastore.Txn
	Caller Address
	Now    time.Time

	events []Event
}

// NewCall returns a Call for caller at time now.
func NewCall(ctx context.Context, txn datastore.Txn, caller Address, now time.Time) *Call {
	return &Call{
		Ctx:    ctx,
		Txn:    txn,
		Caller: caller,
		Now:    now,
	}
}

// Emit stages an event. Events become visible only if the call commits.
func (c *Call) Emit(e Event) {
	e.Time = c.Now
	if e.Actor == EmptyAddress {
		e.Actor = c.Caller
	}
	c.events = append(c.events, e)
}

// Events returns the events staged by the call.
func (c *Call) Events() []Event {
	return c.events
}

// Event kinds.
const (
	EventRoleRegistered = "role-registered"
	EventDeposit        = "deposit"
	EventPayout         = "payout"

	EventClaimCreated  = "claim-created"
	EventClaimUpdated  = "claim-updated"
	EventDelegateAdded = "delegate-added"

	EventRoundOpened   = "round-opened"
	EventVoteCommitted = "vote-committed"
	EventVoteFinalized = "vote-finalized"
	EventRoundStatus   = "round-status"
	EventRoundSettled  = "round-settled"

	EventJobOpened   = "job-opened"
	EventJobClaimed  = "job-claimed"
	EventJobReverted = "job-reverted"
	EventJobDone     = "job-done"
	EventJobConsumed = "job-consumed"

	EventOfferStatus = "offer-status"
)

// Event is a structured record of a state transition.
type Event struct {
	Seq     uint64
	ID      string
	Kind    string
	ClaimID ClaimID  `json:",omitempty"`
	OfferID uint64   `json:",omitempty"`
	Actor   Address  `json:",omitempty"`
	Subject Address  `json:",omitempty"`
	Status  string   `json:",omitempty"`
	Amount  *big.Int `json:",omitempty"`
	Time    time.Time
}

// NextSeq increments and returns the counter stored at key. The first
// value is 1.
func NextSeq(txn datastore.Txn, key datastore.Key) (uint64, error) {
	var cur uint64
	buf, err := txn.Get(key)
	switch {
	case err == datastore.ErrNotFound:
	case err != nil:
		return 0, fmt.Errorf("getting sequence %s: %s", key, err)
	default:
		if len(buf) != 8 {
			return 0, fmt.Errorf("corrupted sequence %s", key)
		}
		cur = binary.BigEndian.Uint64(buf)
	}
	cur++
	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, cur)
	if err := txn.Put(key, next); err != nil {
		return 0, fmt.Errorf("saving sequence %s: %s", key, err)
	}
	return cur, nil
}
