package rounds

import (
	"fmt"
	"time"

	"github.com/textileio/oraclefs/oracles"
)

// Action is a call that mutates a round.
type Action int

const (
	// ActRespond commits a vote.
	ActRespond Action = iota
	// ActFinalize applies a committed vote to the final tally.
	ActFinalize
	// ActSettle distributes the reward pool.
	ActSettle
)

var actionStr = map[Action]string{
	ActRespond:  "respond",
	ActFinalize: "finalize",
	ActSettle:   "settle",
}

// transitions holds, for every status, the rejection of each action.
// A nil entry means the action is allowed.
var transitions = map[oracles.RoundStatus]map[Action]error{
	oracles.Open: {
		ActRespond:  nil,
		ActFinalize: oracles.ErrWindowNotYetClosed,
		ActSettle:   oracles.ErrWindowNotYetClosed,
	},
	oracles.AwaitingFinalize: {
		ActRespond:  oracles.ErrWindowClosed,
		ActFinalize: nil,
		ActSettle:   oracles.ErrWindowNotYetClosed,
	},
	oracles.Finalized: {
		ActRespond:  oracles.ErrWindowClosed,
		ActFinalize: nil,
		ActSettle:   nil,
	},
	oracles.Expired: {
		ActRespond:  oracles.ErrWindowClosed,
		ActFinalize: oracles.ErrWindowClosed,
		ActSettle:   nil,
	},
}

// Advance moves r to the status its deadlines and pending votes imply
// at now. It returns true if the status changed.
func Advance(r *oracles.Round, now time.Time, minVotes int) bool {
	prev := r.Status
	if r.Status == oracles.Open && now.After(r.ResponseDeadline) {
		r.Status = oracles.AwaitingFinalize
	}
	if r.Status == oracles.AwaitingFinalize {
		switch {
		case r.Pending == 0:
			r.Status = oracles.Finalized
			r.Outcome = Tally(r.FinalYes, r.FinalNo, minVotes)
		case now.After(r.FinalizeDeadline):
			r.Status = oracles.Expired
			r.Outcome = oracles.Rejected
		}
	}
	return r.Status != prev
}

// Tally returns the outcome of a finalized tally. Ties and tallies
// below minVotes are rejected.
func Tally(yes, no, minVotes int) oracles.Outcome {
	if yes+no < minVotes || yes <= no {
		return oracles.Rejected
	}
	return oracles.Accepted
}

// Check returns the rejection of action a on r at now, or nil if the
// action is allowed. r must already be advanced to now.
func Check(r oracles.Round, a Action, now time.Time) error {
	if r.Settled {
		switch a {
		case ActSettle:
			return fmt.Errorf("round of claim %s: %w", r.ClaimID, oracles.ErrAlreadySettled)
		case ActRespond:
			return fmt.Errorf("round of claim %s is settled: %w", r.ClaimID, oracles.ErrWindowClosed)
		}
	}
	// The response deadline instant closes voting but doesn't open
	// finalization yet.
	if a == ActRespond && r.Status == oracles.Open && !now.Before(r.ResponseDeadline) {
		return fmt.Errorf("responding to claim %s at deadline: %w", r.ClaimID, oracles.ErrWindowClosed)
	}
	if err := transitions[r.Status][a]; err != nil {
		return fmt.Errorf("%s on %s round of claim %s: %w", actionStr[a], r.Status, r.ClaimID, err)
	}
	return nil
}
