package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/textileio/oraclefs/escrow"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/files/store"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/oracles/reencrypt"
	"github.com/textileio/oraclefs/oracles/roles"
	"github.com/textileio/oraclefs/oracles/rounds"
)

var log = logging.Logger("files-ledger")

// Ledger orchestrates claims, delegate uploads, purchases and licenses.
// Every step that hands content to a new holder waits for a finished
// re-encryption job, and every new content claim opens a verification
// round funded by its caller.
type Ledger struct {
	store  *store.Store
	roles  *roles.Registry
	bank   *escrow.Bank
	rounds *rounds.Engine
	re     *reencrypt.Coordinator
}

// New returns a new Ledger.
func New(s *store.Store, rr *roles.Registry, bank *escrow.Bank, re *rounds.Engine, co *reencrypt.Coordinator) *Ledger {
	return &Ledger{
		store:  s,
		roles:  rr,
		bank:   bank,
		rounds: re,
		re:     co,
	}
}

// Reward is the escrow attached to open a verification round.
type Reward struct {
	Verifier *big.Int
	Timeout  *big.Int
	// Value is the amount attached to the call. Only Verifier+Timeout
	// is charged.
	Value *big.Int
}

// Register registers the caller as a user.
func (l *Ledger) Register(c *oracles.Call) error {
	return l.roles.RegisterAs(c, oracles.User, nil)
}

// SetIPNS creates an IPNS claim binding the caller to pointer and opens
// its round. The previous IPNS claim of the caller must be settled.
func (l *Ledger) SetIPNS(c *oracles.Call, pointer string, rw Reward) (files.Claim, error) {
	if err := l.requireUser(c); err != nil {
		return files.Claim{}, err
	}
	if pointer == "" {
		return files.Claim{}, fmt.Errorf("empty ipns pointer: %w", oracles.ErrInvalidArgument)
	}
	prev, err := l.store.CurrentIPNS(c.Txn, c.Caller)
	switch {
	case err == nil:
		r, err := l.rounds.Get(c.Txn, prev, c.Now)
		if err != nil {
			return files.Claim{}, err
		}
		if !r.Settled {
			return files.Claim{}, fmt.Errorf("ipns claim %s of %s isn't settled: %w", prev, c.Caller, oracles.ErrPreconditionNotMet)
		}
	case !errors.Is(err, oracles.ErrNotFound):
		return files.Claim{}, err
	}
	cl, err := l.newClaim(c, files.Claim{
		Kind:    files.IPNS,
		Owner:   c.Caller,
		Pointer: pointer,
		Status:  files.Verifying,
	})
	if err != nil {
		return files.Claim{}, err
	}
	if err := l.store.SetCurrentIPNS(c.Txn, c.Caller, cl.ID); err != nil {
		return files.Claim{}, err
	}
	if err := l.openRound(c, cl.ID, rw); err != nil {
		return files.Claim{}, err
	}
	log.Infof("%s set ipns %q as claim %s", c.Caller, pointer, cl.ID)
	return cl, nil
}

// AddFile creates a file claim owned by the caller and opens its round.
func (l *Ledger) AddFile(c *oracles.Call, name, cid string, rw Reward) (files.Claim, error) {
	if err := l.requireUser(c); err != nil {
		return files.Claim{}, err
	}
	if err := validateFile(name, cid); err != nil {
		return files.Claim{}, err
	}
	cl, err := l.newClaim(c, files.Claim{
		Kind:     files.File,
		Owner:    c.Caller,
		Uploader: c.Caller,
		Name:     name,
		CID:      cid,
		Origin:   files.Uploaded,
		Status:   files.Verifying,
	})
	if err != nil {
		return files.Claim{}, err
	}
	if err := l.openRound(c, cl.ID, rw); err != nil {
		return files.Claim{}, err
	}
	log.Infof("%s added file %q as claim %s", c.Caller, name, cl.ID)
	return cl, nil
}

// AddDelegate lets delegate add files on behalf of the caller.
func (l *Ledger) AddDelegate(c *oracles.Call, delegate oracles.Address) error {
	if err := l.requireUser(c); err != nil {
		return err
	}
	if err := delegate.Validate(); err != nil {
		return err
	}
	if delegate == c.Caller {
		return fmt.Errorf("%s can't delegate to itself: %w", c.Caller, oracles.ErrInvalidArgument)
	}
	if err := l.roles.Require(c.Txn, delegate, oracles.User); err != nil {
		return err
	}
	added, err := l.store.AddDelegate(c.Txn, c.Caller, delegate)
	if err != nil {
		return err
	}
	if !added {
		return fmt.Errorf("%s is a delegate of %s: %w", delegate, c.Caller, oracles.ErrAlreadyRegistered)
	}
	c.Emit(oracles.Event{Kind: oracles.EventDelegateAdded, Subject: delegate})
	log.Infof("%s added delegate %s", c.Caller, delegate)
	return nil
}

// AddFileFor creates a pending file claim owned by owner. The caller
// must be a delegate of owner, and price is owed to the caller once the
// owner accepts the re-encrypted file.
func (l *Ledger) AddFileFor(c *oracles.Call, owner oracles.Address, name, cid string, price *big.Int) (files.Claim, error) {
	if err := validateFile(name, cid); err != nil {
		return files.Claim{}, err
	}
	if err := oracles.RequireAmount("price", price); err != nil {
		return files.Claim{}, err
	}
	ok, err := l.store.IsDelegate(c.Txn, owner, c.Caller)
	if err != nil {
		return files.Claim{}, err
	}
	if !ok {
		return files.Claim{}, fmt.Errorf("%s isn't a delegate of %s: %w", c.Caller, owner, oracles.ErrNotEligible)
	}
	cl, err := l.newClaim(c, files.Claim{
		Kind:     files.File,
		Owner:    owner,
		Uploader: c.Caller,
		Name:     name,
		CID:      cid,
		Price:    new(big.Int).Set(price),
		Origin:   files.Delegated,
		Status:   files.Pending,
	})
	if err != nil {
		return files.Claim{}, err
	}
	log.Infof("%s added file %q for %s as claim %s", c.Caller, name, owner, cl.ID)
	return cl, nil
}

// PayDelegateFor escrows the price of a delegated file plus reward and
// opens the re-encryption job that hands the file to its owner.
func (l *Ledger) PayDelegateFor(c *oracles.Call, id oracles.ClaimID, reward, value *big.Int) (oracles.Job, error) {
	if err := oracles.RequireAmount("reward", reward); err != nil {
		return oracles.Job{}, err
	}
	cl, err := l.store.GetClaim(c.Txn, id)
	if err != nil {
		return oracles.Job{}, err
	}
	if err := l.requireOwnerOrDelegate(c.Txn, cl.Owner, c.Caller); err != nil {
		return oracles.Job{}, err
	}
	if cl.Origin != files.Delegated || cl.Status != files.Pending {
		return oracles.Job{}, fmt.Errorf("claim %s isn't a pending delegated file: %w", id, oracles.ErrPreconditionNotMet)
	}
	total := new(big.Int).Add(oracles.NonNil(cl.Price), reward)
	if err := oracles.CheckValue(value, total); err != nil {
		return oracles.Job{}, err
	}
	if err := l.bank.ChargeFor(c, id, total, "delegate price and reencryption reward"); err != nil {
		return oracles.Job{}, err
	}
	j, err := l.re.Open(c, oracles.Job{
		ClaimID:   id,
		Purpose:   oracles.Delegation,
		Payer:     c.Caller,
		Recipient: cl.Owner,
		Reward:    reward,
	})
	if err != nil {
		return oracles.Job{}, err
	}
	return j, nil
}

// AcceptFile takes a re-encrypted delegated file: it pays the price to
// the delegate, records the final name and cid, and opens the round of
// the claim. The re-encryption job must be done.
func (l *Ledger) AcceptFile(c *oracles.Call, id oracles.ClaimID, name, cid string, rw Reward) (files.Claim, error) {
	if err := validateFile(name, cid); err != nil {
		return files.Claim{}, err
	}
	cl, err := l.store.GetClaim(c.Txn, id)
	if err != nil {
		return files.Claim{}, err
	}
	if cl.Owner != c.Caller {
		return files.Claim{}, fmt.Errorf("%s doesn't own claim %s: %w", c.Caller, id, oracles.ErrNotEligible)
	}
	if cl.Origin != files.Delegated || cl.Status != files.Pending {
		return files.Claim{}, fmt.Errorf("claim %s isn't a pending delegated file: %w", id, oracles.ErrPreconditionNotMet)
	}
	if _, err := l.re.Consume(c, id, oracles.Delegation, 0); err != nil {
		return files.Claim{}, err
	}
	if err := l.bank.Pay(c, id, cl.Uploader, oracles.NonNil(cl.Price), "delegate price"); err != nil {
		return files.Claim{}, err
	}
	cl.Name = name
	cl.CID = cid
	cl.Status = files.Verifying
	if err := l.updateClaim(c, cl); err != nil {
		return files.Claim{}, err
	}
	if err := l.openRound(c, id, rw); err != nil {
		return files.Claim{}, err
	}
	log.Infof("%s accepted delegated file %s", c.Caller, id)
	return cl, nil
}

// ApplyOutcome records the outcome of the settled round of claim.
func (l *Ledger) ApplyOutcome(c *oracles.Call, id oracles.ClaimID, outcome oracles.Outcome) (files.Claim, error) {
	cl, err := l.store.GetClaim(c.Txn, id)
	if err != nil {
		return files.Claim{}, err
	}
	if cl.Status != files.Verifying {
		return files.Claim{}, fmt.Errorf("claim %s is %s: %w", id, cl.Status, oracles.ErrPreconditionNotMet)
	}
	switch outcome {
	case oracles.Accepted:
		cl.Status = files.Accepted
	case oracles.Rejected:
		cl.Status = files.Rejected
	default:
		return files.Claim{}, fmt.Errorf("applying %s outcome: %w", outcome, oracles.ErrInvalidArgument)
	}
	if err := l.updateClaim(c, cl); err != nil {
		return files.Claim{}, err
	}
	if cl.Kind == files.IPNS && cl.Status == files.Accepted {
		if err := l.store.SetResolvedIPNS(c.Txn, cl.Owner, cl.ID); err != nil {
			return files.Claim{}, err
		}
	}
	log.Infof("claim %s is %s", id, cl.Status)
	return cl, nil
}

// GetClaim returns the claim with id.
func (l *Ledger) GetClaim(txn datastore.Read, id oracles.ClaimID) (files.Claim, error) {
	return l.store.GetClaim(txn, id)
}

// ClaimsOf returns the claims owned by owner.
func (l *Ledger) ClaimsOf(txn datastore.Read, owner oracles.Address) ([]files.Claim, error) {
	return l.store.ClaimsOf(txn, owner)
}

// CurrentIPNS returns the latest IPNS claim of owner, whatever its
// verification status.
func (l *Ledger) CurrentIPNS(txn datastore.Read, owner oracles.Address) (files.Claim, error) {
	id, err := l.store.CurrentIPNS(txn, owner)
	if err != nil {
		return files.Claim{}, err
	}
	return l.store.GetClaim(txn, id)
}

// ResolveIPNS returns the latest accepted IPNS claim of owner.
func (l *Ledger) ResolveIPNS(txn datastore.Read, owner oracles.Address) (files.Claim, error) {
	id, err := l.store.ResolvedIPNS(txn, owner)
	if err != nil {
		return files.Claim{}, err
	}
	return l.store.GetClaim(txn, id)
}

// IsDelegate returns true if delegate acts for owner.
func (l *Ledger) IsDelegate(txn datastore.Read, owner, delegate oracles.Address) (bool, error) {
	return l.store.IsDelegate(txn, owner, delegate)
}

// DelegatesOf returns the delegates of owner.
func (l *Ledger) DelegatesOf(txn datastore.Read, owner oracles.Address) ([]oracles.Address, error) {
	return l.store.DelegatesOf(txn, owner)
}

func (l *Ledger) newClaim(c *oracles.Call, cl files.Claim) (files.Claim, error) {
	id, err := l.store.NextClaimID(c.Txn)
	if err != nil {
		return files.Claim{}, err
	}
	cl.ID = id
	cl.CreatedAt = c.Now
	cl.UpdatedAt = c.Now
	if err := l.store.PutClaim(c.Txn, cl); err != nil {
		return files.Claim{}, err
	}
	c.Emit(oracles.Event{Kind: oracles.EventClaimCreated, ClaimID: id, Subject: cl.Owner, Status: cl.Kind.String()})
	return cl, nil
}

func (l *Ledger) updateClaim(c *oracles.Call, cl files.Claim) error {
	cl.UpdatedAt = c.Now
	if err := l.store.PutClaim(c.Txn, cl); err != nil {
		return err
	}
	c.Emit(oracles.Event{Kind: oracles.EventClaimUpdated, ClaimID: cl.ID, Subject: cl.Owner, Status: cl.Status.String()})
	return nil
}

func (l *Ledger) openRound(c *oracles.Call, id oracles.ClaimID, rw Reward) error {
	if err := oracles.RequireAmount("verifier reward", rw.Verifier); err != nil {
		return err
	}
	if err := oracles.RequireAmount("timeout reward", rw.Timeout); err != nil {
		return err
	}
	total := new(big.Int).Add(rw.Verifier, rw.Timeout)
	if err := oracles.CheckValue(rw.Value, total); err != nil {
		return err
	}
	if err := l.bank.ChargeFor(c, id, total, "verification reward"); err != nil {
		return err
	}
	_, err := l.rounds.Open(c, id, c.Caller, rw.Verifier, rw.Timeout)
	return err
}

func (l *Ledger) requireUser(c *oracles.Call) error {
	return l.roles.Require(c.Txn, c.Caller, oracles.User)
}

func (l *Ledger) requireOwnerOrDelegate(txn datastore.Read, owner, caller oracles.Address) error {
	if owner == caller {
		return nil
	}
	ok, err := l.store.IsDelegate(txn, owner, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s doesn't act for %s: %w", caller, owner, oracles.ErrNotEligible)
	}
	return nil
}

func validateFile(name, cid string) error {
	if name == "" || cid == "" {
		return fmt.Errorf("file name and cid are required: %w", oracles.ErrInvalidArgument)
	}
	return nil
}
