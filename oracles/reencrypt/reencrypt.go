package reencrypt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	"github.com/textileio/oraclefs/oracles"
	"go.opentelemetry.io/otel/metric"
)

var (
	log = logging.Logger("oracles-reencrypt")

	dsBaseJob    = datastore.NewKey("reencrypt").ChildString("job")
	dsBaseActive = datastore.NewKey("reencrypt").ChildString("active")
)

// Eligibility checks the role of a caller.
type Eligibility interface {
	Require(txn datastore.Read, addr oracles.Address, role oracles.Role) error
}

// Payer pays escrowed funds out to an address.
type Payer interface {
	Pay(c *oracles.Call, claim oracles.ClaimID, to oracles.Address, amount *big.Int, memo string) error
}

// Coordinator hands re-encryption jobs to reencryptors. Each claim has
// at most one active job, and a job stays active until it is done and
// consumed by the transfer that opened it.
type Coordinator struct {
	params oracles.Params
	roles  Eligibility
	bank   Payer

	metricTransitions metric.Int64Counter
}

// New returns a new Coordinator.
func New(params oracles.Params, roles Eligibility, bank Payer) *Coordinator {
	co := &Coordinator{
		params: params,
		roles:  roles,
		bank:   bank,
	}
	co.initMetrics()
	return co
}

// Open creates an unclaimed job. Its reward must already be held in
// escrow.
func (co *Coordinator) Open(c *oracles.Call, j oracles.Job) (oracles.Job, error) {
	if j.ClaimID == oracles.EmptyClaimID {
		return oracles.Job{}, fmt.Errorf("opening job without claim: %w", oracles.ErrInvalidArgument)
	}
	if err := oracles.RequireAmount("job reward", j.Reward); err != nil {
		return oracles.Job{}, err
	}
	prev, err := co.get(c.Txn, j.ClaimID)
	switch {
	case err == nil && prev.Active():
		return oracles.Job{}, fmt.Errorf("claim %s has an active %s job: %w", j.ClaimID, prev.Purpose, oracles.ErrPreconditionNotMet)
	case err != nil && !isNotFound(err):
		return oracles.Job{}, err
	}
	j.Status = oracles.Unclaimed
	j.Claimant = oracles.EmptyAddress
	j.ClaimedAt = time.Time{}
	j.Attempts = 0
	j.CreatedAt = c.Now
	j.DoneAt = time.Time{}
	j.Consumed = false
	if err := co.save(c.Txn, j); err != nil {
		return oracles.Job{}, err
	}
	if err := c.Txn.Put(activeKey(j.ClaimID), []byte{}); err != nil {
		return oracles.Job{}, fmt.Errorf("indexing active job: %s", err)
	}
	c.Emit(oracles.Event{Kind: oracles.EventJobOpened, ClaimID: j.ClaimID, OfferID: j.OfferID, Subject: j.Recipient, Status: j.Purpose.String(), Amount: j.Reward})
	co.count(c, "opened")
	log.Infof("opened %s job for claim %s with reward %s", j.Purpose, j.ClaimID, j.Reward)
	return j, nil
}

// Participate claims the job of claim for the calling reencryptor. A
// claim that timed out is released first, so another reencryptor can
// take over the job.
func (co *Coordinator) Participate(c *oracles.Call, claim oracles.ClaimID) (oracles.Job, error) {
	if err := co.roles.Require(c.Txn, c.Caller, oracles.Reencryptor); err != nil {
		return oracles.Job{}, err
	}
	j, err := co.load(c, claim)
	if err != nil {
		return oracles.Job{}, err
	}
	switch j.Status {
	case oracles.Claimed:
		return oracles.Job{}, fmt.Errorf("job of claim %s is held by %s: %w", claim, j.Claimant, oracles.ErrAlreadyClaimed)
	case oracles.Done:
		return oracles.Job{}, fmt.Errorf("job of claim %s is done: %w", claim, oracles.ErrAlreadyClaimed)
	}
	j.Status = oracles.Claimed
	j.Claimant = c.Caller
	j.ClaimedAt = c.Now
	j.Attempts++
	if err := co.save(c.Txn, j); err != nil {
		return oracles.Job{}, err
	}
	c.Emit(oracles.Event{Kind: oracles.EventJobClaimed, ClaimID: claim, OfferID: j.OfferID})
	co.count(c, "claimed")
	log.Infof("%s claimed job of claim %s (attempt %d)", c.Caller, claim, j.Attempts)
	return j, nil
}

// Done completes the job of claim and pays its reward to the claimant.
// A claim that timed out was already released, so its former claimant
// gets ErrNotClaimant.
func (co *Coordinator) Done(c *oracles.Call, claim oracles.ClaimID) (oracles.Job, error) {
	j, err := co.load(c, claim)
	if err != nil {
		return oracles.Job{}, err
	}
	if j.Status == oracles.Done {
		return oracles.Job{}, fmt.Errorf("job of claim %s: %w", claim, oracles.ErrAlreadyFinalized)
	}
	if j.Status != oracles.Claimed || j.Claimant != c.Caller {
		return oracles.Job{}, fmt.Errorf("%s doesn't hold job of claim %s: %w", c.Caller, claim, oracles.ErrNotClaimant)
	}
	if ready := j.ClaimedAt.Add(co.params.MinWorkTime); c.Now.Before(ready) {
		return oracles.Job{}, fmt.Errorf("job of claim %s can't be done before %s: %w", claim, ready.Format(time.RFC3339), oracles.ErrTooEarly)
	}
	j.Status = oracles.Done
	j.DoneAt = c.Now
	if err := co.save(c.Txn, j); err != nil {
		return oracles.Job{}, err
	}
	if err := co.bank.Pay(c, claim, c.Caller, j.Reward, "reencryption reward"); err != nil {
		return oracles.Job{}, err
	}
	c.Emit(oracles.Event{Kind: oracles.EventJobDone, ClaimID: claim, OfferID: j.OfferID, Amount: j.Reward})
	co.count(c, "done")
	log.Infof("%s completed job of claim %s", c.Caller, claim)
	return j, nil
}

// Consume marks the done job of claim as used by the transfer that
// opened it. It fails with ErrPreconditionNotMet unless such a job is
// done and not yet consumed.
func (co *Coordinator) Consume(c *oracles.Call, claim oracles.ClaimID, purpose oracles.Transfer, offer uint64) (oracles.Job, error) {
	j, err := co.load(c, claim)
	if isNotFound(err) {
		return oracles.Job{}, fmt.Errorf("no %s job for claim %s: %w", purpose, claim, oracles.ErrPreconditionNotMet)
	}
	if err != nil {
		return oracles.Job{}, err
	}
	if j.Purpose != purpose || j.OfferID != offer || j.Consumed {
		return oracles.Job{}, fmt.Errorf("no pending %s job for claim %s: %w", purpose, claim, oracles.ErrPreconditionNotMet)
	}
	if j.Status != oracles.Done {
		return oracles.Job{}, fmt.Errorf("%s job for claim %s is %s: %w", purpose, claim, j.Status, oracles.ErrPreconditionNotMet)
	}
	j.Consumed = true
	if err := co.save(c.Txn, j); err != nil {
		return oracles.Job{}, err
	}
	if err := c.Txn.Delete(activeKey(claim)); err != nil {
		return oracles.Job{}, fmt.Errorf("removing active job index: %s", err)
	}
	c.Emit(oracles.Event{Kind: oracles.EventJobConsumed, ClaimID: claim, OfferID: offer})
	co.count(c, "consumed")
	return j, nil
}

// Get returns the job of claim as seen at now. A timed out claim shows
// as unclaimed.
func (co *Coordinator) Get(txn datastore.Read, claim oracles.ClaimID, now time.Time) (oracles.Job, error) {
	j, err := co.get(txn, claim)
	if err != nil {
		return oracles.Job{}, err
	}
	co.release(&j, now)
	return j, nil
}

// HasActive returns true if claim has a job that isn't consumed.
func (co *Coordinator) HasActive(txn datastore.Read, claim oracles.ClaimID) (bool, error) {
	ok, err := txn.Has(activeKey(claim))
	if err != nil {
		return false, fmt.Errorf("checking active job index: %s", err)
	}
	return ok, nil
}

// Available returns the jobs a reencryptor can claim at now, ordered
// by claim id.
func (co *Coordinator) Available(txn datastore.Read, now time.Time) ([]oracles.Job, error) {
	all, err := co.Active(txn, now)
	if err != nil {
		return nil, err
	}
	var ret []oracles.Job
	for _, j := range all {
		if j.Status == oracles.Unclaimed {
			ret = append(ret, j)
		}
	}
	return ret, nil
}

// Active returns every job not yet consumed, ordered by claim id.
func (co *Coordinator) Active(txn datastore.Read, now time.Time) ([]oracles.Job, error) {
	res, err := txn.Query(query.Query{Prefix: dsBaseActive.String(), KeysOnly: true})
	if err != nil {
		return nil, fmt.Errorf("querying active jobs: %s", err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			log.Errorf("closing active jobs query: %s", err)
		}
	}()
	var ret []oracles.Job
	for v := range res.Next() {
		if v.Error != nil {
			return nil, fmt.Errorf("iterating active jobs: %s", v.Error)
		}
		claim, err := oracles.ParseClaimID(datastore.RawKey(v.Key).Name())
		if err != nil {
			return nil, fmt.Errorf("parsing active job key %s: %s", v.Key, err)
		}
		j, err := co.Get(txn, claim, now)
		if err != nil {
			return nil, err
		}
		ret = append(ret, j)
	}
	sort.Slice(ret, func(i, k int) bool { return ret[i].ClaimID < ret[k].ClaimID })
	return ret, nil
}

// load returns the job of claim, persisting the release of a timed out
// claim.
func (co *Coordinator) load(c *oracles.Call, claim oracles.ClaimID) (oracles.Job, error) {
	j, err := co.get(c.Txn, claim)
	if err != nil {
		return oracles.Job{}, err
	}
	prev := j.Claimant
	if co.release(&j, c.Now) {
		if err := co.save(c.Txn, j); err != nil {
			return oracles.Job{}, err
		}
		c.Emit(oracles.Event{Kind: oracles.EventJobReverted, ClaimID: claim, OfferID: j.OfferID, Subject: prev})
		co.count(c, "reverted")
		log.Infof("claim of %s on job %s timed out", prev, claim)
	}
	return j, nil
}

func (co *Coordinator) release(j *oracles.Job, now time.Time) bool {
	if j.Status != oracles.Claimed || !co.timedOut(*j, now) {
		return false
	}
	j.Status = oracles.Unclaimed
	j.Claimant = oracles.EmptyAddress
	j.ClaimedAt = time.Time{}
	return true
}

func (co *Coordinator) timedOut(j oracles.Job, now time.Time) bool {
	return !now.Before(j.ClaimedAt.Add(co.params.ClaimTimeout))
}

func (co *Coordinator) get(txn datastore.Read, claim oracles.ClaimID) (oracles.Job, error) {
	buf, err := txn.Get(jobKey(claim))
	if err == datastore.ErrNotFound {
		return oracles.Job{}, fmt.Errorf("job of claim %s: %w", claim, oracles.ErrNotFound)
	}
	if err != nil {
		return oracles.Job{}, fmt.Errorf("getting job from datastore: %s", err)
	}
	var j oracles.Job
	if err := json.Unmarshal(buf, &j); err != nil {
		return oracles.Job{}, fmt.Errorf("unmarshaling job: %s", err)
	}
	return j, nil
}

func (co *Coordinator) save(txn datastore.Txn, j oracles.Job) error {
	buf, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshaling job: %s", err)
	}
	if err := txn.Put(jobKey(j.ClaimID), buf); err != nil {
		return fmt.Errorf("saving job to datastore: %s", err)
	}
	return nil
}

func jobKey(claim oracles.ClaimID) datastore.Key {
	return dsBaseJob.ChildString(claim.String())
}

func activeKey(claim oracles.ClaimID) datastore.Key {
	return dsBaseActive.ChildString(fmt.Sprintf("%020d", uint64(claim)))
}

func isNotFound(err error) bool {
	return errors.Is(err, oracles.ErrNotFound)
}
