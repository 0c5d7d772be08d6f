package registry

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/textileio/oraclefs/escrow"
	"github.com/textileio/oraclefs/events"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/files/ledger"
	"github.com/textileio/oraclefs/files/store"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/oracles/reencrypt"
	"github.com/textileio/oraclefs/oracles/roles"
	"github.com/textileio/oraclefs/oracles/rounds"
	"github.com/textileio/oraclefs/oracles/settlement"
)

var log = logging.Logger("registry")

// Registry is the host of the file registry. It processes one mutating
// call at a time in a total order, and each call commits all of its
// writes and events or none of them.
type Registry struct {
	ds     datastore.TxnDatastore
	clock  oracles.Clock
	params oracles.Params

	bank    *escrow.Bank
	roles   *roles.Registry
	rounds  *rounds.Engine
	settler *settlement.Settler
	re      *reencrypt.Coordinator
	ledger  *ledger.Ledger
	events  *events.Log

	lock   sync.Mutex
	closed bool
}

// New returns a new Registry persisting to ds. Committed events are
// also forwarded to notifiers.
func New(ds datastore.TxnDatastore, clock oracles.Clock, params oracles.Params, notifiers ...events.Notifier) (*Registry, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("validating params: %s", err)
	}
	bank := escrow.New()
	rr := roles.New(params, bank)
	re := rounds.New(params, rr)
	co := reencrypt.New(params, rr, bank)
	r := &Registry{
		ds:      ds,
		clock:   clock,
		params:  params,
		bank:    bank,
		roles:   rr,
		rounds:  re,
		settler: settlement.New(params, re, rr, bank),
		re:      co,
		ledger:  ledger.New(store.New(), rr, bank, re, co),
		events:  events.New(notifiers...),
	}
	return r, nil
}

// Params returns the protocol parameters.
func (r *Registry) Params() oracles.Params {
	return r.params
}

// Now returns the current time of the registry clock.
func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

// Close closes the registry. The datastore isn't closed.
func (r *Registry) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.events.Close()
}

// Deposit credits amount to addr.
func (r *Registry) Deposit(ctx context.Context, to oracles.Address, amount *big.Int) error {
	return r.update(ctx, escrow.MintAccount, func(c *oracles.Call) error {
		return r.bank.Deposit(c, to, amount)
	})
}

// RegisterAs registers caller with role, staking stake.
func (r *Registry) RegisterAs(ctx context.Context, caller oracles.Address, role oracles.Role, stake *big.Int) error {
	return r.update(ctx, caller, func(c *oracles.Call) error {
		return r.roles.RegisterAs(c, role, stake)
	})
}

// Register registers caller as a user.
func (r *Registry) Register(ctx context.Context, caller oracles.Address) error {
	return r.update(ctx, caller, func(c *oracles.Call) error {
		return r.ledger.Register(c)
	})
}

// SetIPNS creates an IPNS claim of caller and opens its round.
func (r *Registry) SetIPNS(ctx context.Context, caller oracles.Address, pointer string, rw ledger.Reward) (files.Claim, error) {
	var cl files.Claim
	err := r.update(ctx, caller, func(c *oracles.Call) (err error) {
		cl, err = r.ledger.SetIPNS(c, pointer, rw)
		return err
	})
	return cl, err
}

// AddFile creates a file claim of caller and opens its round.
func (r *Registry) AddFile(ctx context.Context, caller oracles.Address, name, cid string, rw ledger.Reward) (files.Claim, error) {
	var cl files.Claim
	err := r.update(ctx, caller, func(c *oracles.Call) (err error) {
		cl, err = r.ledger.AddFile(c, name, cid, rw)
		return err
	})
	return cl, err
}

// AddDelegate lets delegate add files on behalf of caller.
func (r *Registry) AddDelegate(ctx context.Context, caller, delegate oracles.Address) error {
	return r.update(ctx, caller, func(c *oracles.Call) error {
		return r.ledger.AddDelegate(c, delegate)
	})
}

// AddFileFor creates a pending file claim of owner uploaded by caller.
func (r *Registry) AddFileFor(ctx context.Context, caller, owner oracles.Address, name, cid string, price *big.Int) (files.Claim, error) {
	var cl files.Claim
	err := r.update(ctx, caller, func(c *oracles.Call) (err error) {
		cl, err = r.ledger.AddFileFor(c, owner, name, cid, price)
		return err
	})
	return cl, err
}

// PayDelegateFor funds the delegated file id and opens its
// re-encryption job.
func (r *Registry) PayDelegateFor(ctx context.Context, caller oracles.Address, id oracles.ClaimID, reward, value *big.Int) (oracles.Job, error) {
	var j oracles.Job
	err := r.update(ctx, caller, func(c *oracles.Call) (err error) {
		j, err = r.ledger.PayDelegateFor(c, id, reward, value)
		return err
	})
	return j, err
}

// AcceptFile accepts the re-encrypted delegated file id and opens its
// round.
func (r *Registry) AcceptFile(ctx context.Context, caller oracles.Address, id oracles.ClaimID, name, cid string, rw ledger.Reward) (files.Claim, error) {
	var cl files.Claim
	err := r.update(ctx, caller, func(c *oracles.Call) (err error) {
		cl, err = r.ledger.AcceptFile(c, id, name, cid, rw)
		return err
	})
	return cl, err
}

// RequestPurchase offers value to buy a copy of file id.
func (r *Registry) RequestPurchase(ctx context.Context, caller oracles.Address, id oracles.ClaimID, value *big.Int) (files.Offer, error) {
	return r.offerCall(ctx, caller, func(c *oracles.Call) (files.Offer, error) {
		return r.ledger.RequestPurchase(c, id, value)
	})
}

// AcceptPurchase approves a purchase offer.
func (r *Registry) AcceptPurchase(ctx context.Context, caller oracles.Address, offer uint64) (files.Offer, error) {
	return r.offerCall(ctx, caller, func(c *oracles.Call) (files.Offer, error) {
		return r.ledger.AcceptPurchase(c, offer)
	})
}

// PayPurchaseOf funds the re-encryption job of a purchase offer.
func (r *Registry) PayPurchaseOf(ctx context.Context, caller oracles.Address, offer uint64, value *big.Int) (files.Offer, error) {
	return r.offerCall(ctx, caller, func(c *oracles.Call) (files.Offer, error) {
		return r.ledger.PayPurchaseOf(c, offer, value)
	})
}

// GoodPurchase completes a purchase, creating the claim of the copy.
func (r *Registry) GoodPurchase(ctx context.Context, caller oracles.Address, offer uint64, name, cid string, rw ledger.Reward) (files.Claim, error) {
	var cl files.Claim
	err := r.update(ctx, caller, func(c *oracles.Call) (err error) {
		cl, err = r.ledger.GoodPurchase(c, offer, name, cid, rw)
		return err
	})
	return cl, err
}

// RequestLicense offers value to license file id.
func (r *Registry) RequestLicense(ctx context.Context, caller oracles.Address, id oracles.ClaimID, value *big.Int) (files.Offer, error) {
	return r.offerCall(ctx, caller, func(c *oracles.Call) (files.Offer, error) {
		return r.ledger.RequestLicense(c, id, value)
	})
}

// AcceptLicense approves a license offer.
func (r *Registry) AcceptLicense(ctx context.Context, caller oracles.Address, offer uint64) (files.Offer, error) {
	return r.offerCall(ctx, caller, func(c *oracles.Call) (files.Offer, error) {
		return r.ledger.AcceptLicense(c, offer)
	})
}

// PayLicenseOf funds the re-encryption job of a license offer.
func (r *Registry) PayLicenseOf(ctx context.Context, caller oracles.Address, offer uint64, value *big.Int) (files.Offer, error) {
	return r.offerCall(ctx, caller, func(c *oracles.Call) (files.Offer, error) {
		return r.ledger.PayLicenseOf(c, offer, value)
	})
}

// GoodLicense completes a license.
func (r *Registry) GoodLicense(ctx context.Context, caller oracles.Address, offer uint64) (files.Claim, error) {
	var cl files.Claim
	err := r.update(ctx, caller, func(c *oracles.Call) (err error) {
		cl, err = r.ledger.GoodLicense(c, offer)
		return err
	})
	return cl, err
}

// CancelOffer withdraws an unpaid offer of caller.
func (r *Registry) CancelOffer(ctx context.Context, caller oracles.Address, kind files.OfferKind, offer uint64) (files.Offer, error) {
	return r.offerCall(ctx, caller, func(c *oracles.Call) (files.Offer, error) {
		return r.ledger.CancelOffer(c, kind, offer)
	})
}

// Respond commits the vote of caller on the round of claim and returns
// its index.
func (r *Registry) Respond(ctx context.Context, caller oracles.Address, claim oracles.ClaimID, accept bool) (int, error) {
	var idx int
	err := r.update(ctx, caller, func(c *oracles.Call) (err error) {
		idx, err = r.rounds.Respond(c, claim, accept)
		return err
	})
	return idx, err
}

// Finalize applies the vote at index of the round of claim.
func (r *Registry) Finalize(ctx context.Context, caller oracles.Address, claim oracles.ClaimID, index int) error {
	return r.update(ctx, caller, func(c *oracles.Call) error {
		return r.rounds.Finalize(c, claim, index)
	})
}

// Settle pays out the round of claim and applies its outcome to the
// claim.
func (r *Registry) Settle(ctx context.Context, caller oracles.Address, claim oracles.ClaimID) (oracles.Round, settlement.Distribution, error) {
	var rd oracles.Round
	var d settlement.Distribution
	err := r.update(ctx, caller, func(c *oracles.Call) (err error) {
		rd, d, err = r.settle(c, claim)
		return err
	})
	return rd, d, err
}

// RespondIPNS votes on the current IPNS claim of owner.
func (r *Registry) RespondIPNS(ctx context.Context, caller, owner oracles.Address, accept bool) (int, error) {
	var idx int
	err := r.update(ctx, caller, func(c *oracles.Call) error {
		claim, err := r.currentIPNS(c.Txn, owner)
		if err != nil {
			return err
		}
		idx, err = r.rounds.Respond(c, claim, accept)
		return err
	})
	return idx, err
}

// FinalizeIPNS finalizes a vote on the current IPNS claim of owner.
func (r *Registry) FinalizeIPNS(ctx context.Context, caller, owner oracles.Address, index int) error {
	return r.update(ctx, caller, func(c *oracles.Call) error {
		claim, err := r.currentIPNS(c.Txn, owner)
		if err != nil {
			return err
		}
		return r.rounds.Finalize(c, claim, index)
	})
}

// ReturnIPNSSettlement settles the round of the current IPNS claim of
// owner.
func (r *Registry) ReturnIPNSSettlement(ctx context.Context, caller, owner oracles.Address) (oracles.Round, settlement.Distribution, error) {
	var rd oracles.Round
	var d settlement.Distribution
	err := r.update(ctx, caller, func(c *oracles.Call) error {
		claim, err := r.currentIPNS(c.Txn, owner)
		if err != nil {
			return err
		}
		rd, d, err = r.settle(c, claim)
		return err
	})
	return rd, d, err
}

// RespondFile votes on the round of file claim id.
func (r *Registry) RespondFile(ctx context.Context, caller oracles.Address, id oracles.ClaimID, accept bool) (int, error) {
	return r.Respond(ctx, caller, id, accept)
}

// FinalizeFile finalizes a vote on the round of file claim id.
func (r *Registry) FinalizeFile(ctx context.Context, caller oracles.Address, id oracles.ClaimID, index int) error {
	return r.Finalize(ctx, caller, id, index)
}

// ReturnFileSettlement settles the round of file claim id.
func (r *Registry) ReturnFileSettlement(ctx context.Context, caller oracles.Address, id oracles.ClaimID) (oracles.Round, settlement.Distribution, error) {
	return r.Settle(ctx, caller, id)
}

// ParticipateFileRE claims the re-encryption job of claim id.
func (r *Registry) ParticipateFileRE(ctx context.Context, caller oracles.Address, id oracles.ClaimID) (oracles.Job, error) {
	var j oracles.Job
	err := r.update(ctx, caller, func(c *oracles.Call) (err error) {
		j, err = r.re.Participate(c, id)
		return err
	})
	return j, err
}

// DoneFileRE completes the re-encryption job of claim id.
func (r *Registry) DoneFileRE(ctx context.Context, caller oracles.Address, id oracles.ClaimID) (oracles.Job, error) {
	var j oracles.Job
	err := r.update(ctx, caller, func(c *oracles.Call) (err error) {
		j, err = r.re.Done(c, id)
		return err
	})
	return j, err
}

func (r *Registry) settle(c *oracles.Call, claim oracles.ClaimID) (oracles.Round, settlement.Distribution, error) {
	rd, d, err := r.settler.Settle(c, claim)
	if err != nil {
		return oracles.Round{}, settlement.Distribution{}, err
	}
	if _, err := r.ledger.ApplyOutcome(c, claim, rd.Outcome); err != nil {
		return oracles.Round{}, settlement.Distribution{}, err
	}
	return rd, d, nil
}

func (r *Registry) offerCall(ctx context.Context, caller oracles.Address, f func(c *oracles.Call) (files.Offer, error)) (files.Offer, error) {
	var o files.Offer
	err := r.update(ctx, caller, func(c *oracles.Call) (err error) {
		o, err = f(c)
		return err
	})
	return o, err
}

func (r *Registry) currentIPNS(txn datastore.Read, owner oracles.Address) (oracles.ClaimID, error) {
	cl, err := r.ledger.CurrentIPNS(txn, owner)
	if err != nil {
		return oracles.EmptyClaimID, err
	}
	return cl.ID, nil
}

// update runs f as one staged call of caller. The writes of f and its
// events are committed only if f succeeds.
func (r *Registry) update(ctx context.Context, caller oracles.Address, f func(c *oracles.Call) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed {
		return fmt.Errorf("registry is closed")
	}
	txn, err := r.ds.NewTransaction(false)
	if err != nil {
		return fmt.Errorf("creating transaction: %s", err)
	}
	defer txn.Discard()
	c := oracles.NewCall(ctx, txn, caller, r.clock.Now())
	if err := f(c); err != nil {
		log.Debugf("call of %s rejected: %s", caller, err)
		return err
	}
	evs, err := r.events.Append(txn, c.Events())
	if err != nil {
		return fmt.Errorf("appending events: %s", err)
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %s", err)
	}
	r.events.Publish(evs)
	return nil
}
