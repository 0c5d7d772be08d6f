package rounds

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	"github.com/textileio/oraclefs/oracles"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	log = logging.Logger("oracles-rounds")

	dsBaseRound     = datastore.NewKey("rounds").ChildString("round")
	dsBaseUnsettled = datastore.NewKey("rounds").ChildString("unsettled")
)

// Eligibility checks the role of a caller.
type Eligibility interface {
	Require(txn datastore.Read, addr oracles.Address, role oracles.Role) error
}

// Engine runs verification rounds. There is at most one round per
// claim, and it is keyed by the claim id.
type Engine struct {
	params oracles.Params
	roles  Eligibility

	metricOpened    metric.Int64Counter
	metricVotes     metric.Int64Counter
	metricFinalized metric.Int64Counter
}

// New returns a new Engine.
func New(params oracles.Params, roles Eligibility) *Engine {
	e := &Engine{
		params: params,
		roles:  roles,
	}
	e.initMetrics()
	return e
}

// Params returns the protocol parameters of the engine.
func (e *Engine) Params() oracles.Params {
	return e.params
}

// Open starts a round over claim. The pools must already be held in
// escrow, and funder receives any unclaimed reward at settlement.
func (e *Engine) Open(c *oracles.Call, claim oracles.ClaimID, funder oracles.Address, verifierPool, timeoutPool *big.Int) (oracles.Round, error) {
	if claim == oracles.EmptyClaimID {
		return oracles.Round{}, fmt.Errorf("opening round without claim: %w", oracles.ErrInvalidArgument)
	}
	if err := oracles.RequireAmount("verifier pool", verifierPool); err != nil {
		return oracles.Round{}, err
	}
	if err := oracles.RequireAmount("timeout pool", timeoutPool); err != nil {
		return oracles.Round{}, err
	}
	exists, err := c.Txn.Has(roundKey(claim))
	if err != nil {
		return oracles.Round{}, fmt.Errorf("checking round in datastore: %s", err)
	}
	if exists {
		return oracles.Round{}, fmt.Errorf("claim %s already has a round: %w", claim, oracles.ErrPreconditionNotMet)
	}
	r := oracles.Round{
		ClaimID:          claim,
		Funder:           funder,
		Votes:            []oracles.Vote{},
		OpenedAt:         c.Now,
		ResponseDeadline: c.Now.Add(e.params.ResponseWindow),
		FinalizeDeadline: c.Now.Add(e.params.ResponseWindow + e.params.FinalizeWindow),
		VerifierPool:     new(big.Int).Set(verifierPool),
		TimeoutPool:      new(big.Int).Set(timeoutPool),
		Status:           oracles.Open,
		Outcome:          oracles.Undecided,
	}
	if err := e.save(c.Txn, r); err != nil {
		return oracles.Round{}, err
	}
	if err := c.Txn.Put(unsettledKey(claim), []byte{}); err != nil {
		return oracles.Round{}, fmt.Errorf("indexing unsettled round: %s", err)
	}
	c.Emit(oracles.Event{Kind: oracles.EventRoundOpened, ClaimID: claim, Subject: funder, Amount: r.Pool()})
	e.metricOpened.Add(c.Ctx, 1)
	log.Infof("opened round for claim %s, response deadline %s", claim, r.ResponseDeadline.Format(time.RFC3339))
	return r, nil
}

// Respond commits the vote of the calling verifier. It returns the
// index of the vote, which the voter later passes to Finalize.
func (e *Engine) Respond(c *oracles.Call, claim oracles.ClaimID, accept bool) (int, error) {
	r, err := e.Load(c, claim)
	if err != nil {
		return 0, err
	}
	if err := e.roles.Require(c.Txn, c.Caller, oracles.Verifier); err != nil {
		return 0, err
	}
	if err := Check(r, ActRespond, c.Now); err != nil {
		return 0, err
	}
	if r.VoteOf(c.Caller) >= 0 {
		return 0, fmt.Errorf("%s on claim %s: %w", c.Caller, claim, oracles.ErrAlreadyVoted)
	}
	r.Votes = append(r.Votes, oracles.Vote{Voter: c.Caller, Accept: accept, Time: c.Now})
	if accept {
		r.Yes++
	} else {
		r.No++
	}
	r.Pending++
	if err := e.save(c.Txn, r); err != nil {
		return 0, err
	}
	idx := len(r.Votes) - 1
	c.Emit(oracles.Event{Kind: oracles.EventVoteCommitted, ClaimID: claim, Status: voteStr(accept)})
	e.metricVotes.Add(c.Ctx, 1, voteAttr(accept))
	log.Debugf("%s voted %s on claim %s at index %d", c.Caller, voteStr(accept), claim, idx)
	return idx, nil
}

// Finalize applies the vote at index to the final tally. Only the voter
// who committed it can finalize it, once the response window closed.
func (e *Engine) Finalize(c *oracles.Call, claim oracles.ClaimID, index int) error {
	r, err := e.Load(c, claim)
	if err != nil {
		return err
	}
	if err := Check(r, ActFinalize, c.Now); err != nil {
		return err
	}
	if index < 0 || index >= len(r.Votes) || r.Votes[index].Voter != c.Caller {
		return fmt.Errorf("vote %d of claim %s isn't from %s: %w", index, claim, c.Caller, oracles.ErrInvalidIndex)
	}
	v := &r.Votes[index]
	if v.Finalized {
		return fmt.Errorf("vote %d of claim %s: %w", index, claim, oracles.ErrAlreadyFinalized)
	}
	v.Finalized = true
	if v.Accept {
		r.FinalYes++
	} else {
		r.FinalNo++
	}
	r.Pending--
	changed := Advance(&r, c.Now, e.params.MinVotes)
	if err := e.save(c.Txn, r); err != nil {
		return err
	}
	c.Emit(oracles.Event{Kind: oracles.EventVoteFinalized, ClaimID: claim, Status: voteStr(v.Accept)})
	if changed {
		e.emitStatus(c, r)
	}
	e.metricFinalized.Add(c.Ctx, 1, voteAttr(v.Accept))
	return nil
}

// Get returns the round of claim as seen at now. The returned status is
// derived but not persisted.
func (e *Engine) Get(txn datastore.Read, claim oracles.ClaimID, now time.Time) (oracles.Round, error) {
	r, err := e.get(txn, claim)
	if err != nil {
		return oracles.Round{}, err
	}
	Advance(&r, now, e.params.MinVotes)
	return r, nil
}

// Load returns the round of claim advanced to the time of the call,
// persisting any status change.
func (e *Engine) Load(c *oracles.Call, claim oracles.ClaimID) (oracles.Round, error) {
	r, err := e.get(c.Txn, claim)
	if err != nil {
		return oracles.Round{}, err
	}
	if Advance(&r, c.Now, e.params.MinVotes) {
		if err := e.save(c.Txn, r); err != nil {
			return oracles.Round{}, err
		}
		e.emitStatus(c, r)
	}
	return r, nil
}

// MarkSettled records the settlement of r by the caller.
func (e *Engine) MarkSettled(c *oracles.Call, r oracles.Round) (oracles.Round, error) {
	if err := Check(r, ActSettle, c.Now); err != nil {
		return oracles.Round{}, err
	}
	r.Settled = true
	r.SettledBy = c.Caller
	r.SettledAt = c.Now
	if err := e.save(c.Txn, r); err != nil {
		return oracles.Round{}, err
	}
	if err := c.Txn.Delete(unsettledKey(r.ClaimID)); err != nil {
		return oracles.Round{}, fmt.Errorf("removing unsettled index: %s", err)
	}
	return r, nil
}

// Unsettled returns every round not yet settled, as seen at now and
// ordered by claim id.
func (e *Engine) Unsettled(txn datastore.Read, now time.Time) ([]oracles.Round, error) {
	q := query.Query{Prefix: dsBaseUnsettled.String(), KeysOnly: true}
	res, err := txn.Query(q)
	if err != nil {
		return nil, fmt.Errorf("querying unsettled rounds: %s", err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			log.Errorf("closing unsettled rounds query: %s", err)
		}
	}()
	var ret []oracles.Round
	for v := range res.Next() {
		if v.Error != nil {
			return nil, fmt.Errorf("iterating unsettled rounds: %s", v.Error)
		}
		claim, err := oracles.ParseClaimID(datastore.RawKey(v.Key).Name())
		if err != nil {
			return nil, fmt.Errorf("parsing unsettled index key %s: %s", v.Key, err)
		}
		r, err := e.Get(txn, claim, now)
		if err != nil {
			return nil, err
		}
		ret = append(ret, r)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ClaimID < ret[j].ClaimID })
	return ret, nil
}

// Settleable returns the unsettled rounds that can be settled at now.
func (e *Engine) Settleable(txn datastore.Read, now time.Time) ([]oracles.Round, error) {
	all, err := e.Unsettled(txn, now)
	if err != nil {
		return nil, err
	}
	var ret []oracles.Round
	for _, r := range all {
		if Check(r, ActSettle, now) == nil {
			ret = append(ret, r)
		}
	}
	return ret, nil
}

func (e *Engine) emitStatus(c *oracles.Call, r oracles.Round) {
	c.Emit(oracles.Event{Kind: oracles.EventRoundStatus, ClaimID: r.ClaimID, Status: r.Status.String()})
	log.Infof("round of claim %s is %s (%s, %d-%d)", r.ClaimID, r.Status, r.Outcome, r.FinalYes, r.FinalNo)
}

func (e *Engine) get(txn datastore.Read, claim oracles.ClaimID) (oracles.Round, error) {
	buf, err := txn.Get(roundKey(claim))
	if err == datastore.ErrNotFound {
		return oracles.Round{}, fmt.Errorf("round of claim %s: %w", claim, oracles.ErrNotFound)
	}
	if err != nil {
		return oracles.Round{}, fmt.Errorf("getting round from datastore: %s", err)
	}
	var r oracles.Round
	if err := json.Unmarshal(buf, &r); err != nil {
		return oracles.Round{}, fmt.Errorf("unmarshaling round: %s", err)
	}
	return r, nil
}

func (e *Engine) save(txn datastore.Txn, r oracles.Round) error {
	buf, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling round: %s", err)
	}
	if err := txn.Put(roundKey(r.ClaimID), buf); err != nil {
		return fmt.Errorf("saving round to datastore: %s", err)
	}
	return nil
}

func voteStr(accept bool) string {
	if accept {
		return "accept"
	}
	return "reject"
}

func voteAttr(accept bool) attribute.KeyValue {
	if accept {
		return attrVoteAccept
	}
	return attrVoteReject
}

func roundKey(claim oracles.ClaimID) datastore.Key {
	return dsBaseRound.ChildString(claim.String())
}

func unsettledKey(claim oracles.ClaimID) datastore.Key {
	return dsBaseUnsettled.ChildString(fmt.Sprintf("%020d", uint64(claim)))
}
