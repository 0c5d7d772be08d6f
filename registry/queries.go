package registry

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ipfs/go-datastore"
	"github.com/textileio/oraclefs/escrow/transferstore"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/oracles"
)

// RoleOf returns the role of addr.
func (r *Registry) RoleOf(addr oracles.Address) (oracles.Role, error) {
	var role oracles.Role
	err := r.view(func(txn datastore.Read) (err error) {
		role, err = r.roles.RoleOf(txn, addr)
		return err
	})
	return role, err
}

// IsEligible returns true if addr is registered as role.
func (r *Registry) IsEligible(addr oracles.Address, role oracles.Role) (bool, error) {
	var ok bool
	err := r.view(func(txn datastore.Read) (err error) {
		ok, err = r.roles.IsEligible(txn, addr, role)
		return err
	})
	return ok, err
}

// Balance returns the balance of addr.
func (r *Registry) Balance(addr oracles.Address) (*big.Int, error) {
	var b *big.Int
	err := r.view(func(txn datastore.Read) (err error) {
		b, err = r.bank.Balance(txn, addr)
		return err
	})
	return b, err
}

// Held returns the funds held in escrow.
func (r *Registry) Held() (*big.Int, error) {
	var b *big.Int
	err := r.view(func(txn datastore.Read) (err error) {
		b, err = r.bank.Held(txn)
		return err
	})
	return b, err
}

// Transfers returns the transfers sent and received by addr.
func (r *Registry) Transfers(addr oracles.Address) (sent, received []transferstore.Transfer, err error) {
	err = r.view(func(txn datastore.Read) error {
		if sent, err = r.bank.TransfersFrom(txn, addr); err != nil {
			return err
		}
		received, err = r.bank.TransfersTo(txn, addr)
		return err
	})
	return sent, received, err
}

// Round returns the round of claim as seen now.
func (r *Registry) Round(claim oracles.ClaimID) (oracles.Round, error) {
	var rd oracles.Round
	err := r.view(func(txn datastore.Read) (err error) {
		rd, err = r.rounds.Get(txn, claim, r.clock.Now())
		return err
	})
	return rd, err
}

// UnsettledRounds returns every round not yet settled.
func (r *Registry) UnsettledRounds() ([]oracles.Round, error) {
	var rs []oracles.Round
	err := r.view(func(txn datastore.Read) (err error) {
		rs, err = r.rounds.Unsettled(txn, r.clock.Now())
		return err
	})
	return rs, err
}

// SettleableRounds returns the rounds a timeout officer can settle now.
func (r *Registry) SettleableRounds() ([]oracles.Round, error) {
	var rs []oracles.Round
	err := r.view(func(txn datastore.Read) (err error) {
		rs, err = r.rounds.Settleable(txn, r.clock.Now())
		return err
	})
	return rs, err
}

// Job returns the re-encryption job of claim as seen now.
func (r *Registry) Job(claim oracles.ClaimID) (oracles.Job, error) {
	var j oracles.Job
	err := r.view(func(txn datastore.Read) (err error) {
		j, err = r.re.Get(txn, claim, r.clock.Now())
		return err
	})
	return j, err
}

// ActiveJobs returns every re-encryption job that wasn't consumed.
func (r *Registry) ActiveJobs() ([]oracles.Job, error) {
	var js []oracles.Job
	err := r.view(func(txn datastore.Read) (err error) {
		js, err = r.re.Active(txn, r.clock.Now())
		return err
	})
	return js, err
}

// AvailableJobs returns the re-encryption jobs a reencryptor can claim
// now.
func (r *Registry) AvailableJobs() ([]oracles.Job, error) {
	var js []oracles.Job
	err := r.view(func(txn datastore.Read) (err error) {
		js, err = r.re.Available(txn, r.clock.Now())
		return err
	})
	return js, err
}

// Claim returns the claim with id.
func (r *Registry) Claim(id oracles.ClaimID) (files.Claim, error) {
	var cl files.Claim
	err := r.view(func(txn datastore.Read) (err error) {
		cl, err = r.ledger.GetClaim(txn, id)
		return err
	})
	return cl, err
}

// ClaimsOf returns the claims owned by owner.
func (r *Registry) ClaimsOf(owner oracles.Address) ([]files.Claim, error) {
	var cls []files.Claim
	err := r.view(func(txn datastore.Read) (err error) {
		cls, err = r.ledger.ClaimsOf(txn, owner)
		return err
	})
	return cls, err
}

// ResolveIPNS returns the latest accepted IPNS claim of owner.
func (r *Registry) ResolveIPNS(owner oracles.Address) (files.Claim, error) {
	var cl files.Claim
	err := r.view(func(txn datastore.Read) (err error) {
		cl, err = r.ledger.ResolveIPNS(txn, owner)
		return err
	})
	return cl, err
}

// CurrentIPNS returns the latest IPNS claim of owner.
func (r *Registry) CurrentIPNS(owner oracles.Address) (files.Claim, error) {
	var cl files.Claim
	err := r.view(func(txn datastore.Read) (err error) {
		cl, err = r.ledger.CurrentIPNS(txn, owner)
		return err
	})
	return cl, err
}

// Offer returns the offer of kind with id.
func (r *Registry) Offer(kind files.OfferKind, id uint64) (files.Offer, error) {
	var o files.Offer
	err := r.view(func(txn datastore.Read) (err error) {
		o, err = r.ledger.GetOffer(txn, kind, id)
		return err
	})
	return o, err
}

// OffersOf returns the offers of kind made on claim.
func (r *Registry) OffersOf(claim oracles.ClaimID, kind files.OfferKind) ([]files.Offer, error) {
	var offers []files.Offer
	err := r.view(func(txn datastore.Read) (err error) {
		offers, err = r.ledger.OffersOf(txn, claim, kind)
		return err
	})
	return offers, err
}

// DelegatesOf returns the delegates of owner.
func (r *Registry) DelegatesOf(owner oracles.Address) ([]oracles.Address, error) {
	var dels []oracles.Address
	err := r.view(func(txn datastore.Read) (err error) {
		dels, err = r.ledger.DelegatesOf(txn, owner)
		return err
	})
	return dels, err
}

// IsDelegate returns true if delegate acts for owner.
func (r *Registry) IsDelegate(owner, delegate oracles.Address) (bool, error) {
	var ok bool
	err := r.view(func(txn datastore.Read) (err error) {
		ok, err = r.ledger.IsDelegate(txn, owner, delegate)
		return err
	})
	return ok, err
}

// Events returns up to limit committed events after sequence since.
func (r *Registry) Events(since uint64, limit int) ([]oracles.Event, error) {
	var evs []oracles.Event
	err := r.view(func(txn datastore.Read) (err error) {
		evs, err = r.events.List(txn, since, limit)
		return err
	})
	return evs, err
}

// Watch writes every new committed event to ch until ctx is canceled.
func (r *Registry) Watch(ctx context.Context, ch chan<- oracles.Event) error {
	return r.events.Watch(ctx, ch)
}

// Listen returns a channel signaled after every committed call.
func (r *Registry) Listen() <-chan struct{} {
	return r.events.Listen()
}

// Unregister stops signaling a channel returned by Listen.
func (r *Registry) Unregister(c <-chan struct{}) {
	r.events.Unregister(c)
}

// view runs f over a read-only snapshot.
func (r *Registry) view(f func(txn datastore.Read) error) error {
	txn, err := r.ds.NewTransaction(true)
	if err != nil {
		return fmt.Errorf("creating read transaction: %s", err)
	}
	defer txn.Discard()
	return f(txn)
}
