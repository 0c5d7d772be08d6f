package ledger

import (
	"fmt"
	"math/big"

	"github.com/ipfs/go-datastore"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/oracles"
)

// RequestPurchase offers to buy a re-encrypted copy of an accepted
// file. The attached value is the offered price and is held in escrow.
func (l *Ledger) RequestPurchase(c *oracles.Call, id oracles.ClaimID, value *big.Int) (files.Offer, error) {
	return l.request(c, files.PurchaseOffer, id, value)
}

// AcceptPurchase approves a purchase offer. The caller must own the
// file or be one of its owner's delegates.
func (l *Ledger) AcceptPurchase(c *oracles.Call, offer uint64) (files.Offer, error) {
	return l.accept(c, files.PurchaseOffer, offer)
}

// PayPurchaseOf funds the re-encryption job of an accepted purchase
// with the attached value.
func (l *Ledger) PayPurchaseOf(c *oracles.Call, offer uint64, value *big.Int) (files.Offer, error) {
	return l.pay(c, files.PurchaseOffer, offer, value)
}

// GoodPurchase completes a purchase once its re-encryption job is done.
// It pays the price to the owner and creates a new claim for the copy,
// owned by the buyer and verified by a new round.
func (l *Ledger) GoodPurchase(c *oracles.Call, offer uint64, name, cid string, rw Reward) (files.Claim, error) {
	if err := validateFile(name, cid); err != nil {
		return files.Claim{}, err
	}
	o, _, err := l.complete(c, files.PurchaseOffer, offer)
	if err != nil {
		return files.Claim{}, err
	}
	cl, err := l.newClaim(c, files.Claim{
		Kind:     files.File,
		Owner:    o.Requester,
		Uploader: o.Requester,
		Name:     name,
		CID:      cid,
		Origin:   files.Purchased,
		OriginID: o.ClaimID,
		Status:   files.Verifying,
	})
	if err != nil {
		return files.Claim{}, err
	}
	if err := l.openRound(c, cl.ID, rw); err != nil {
		return files.Claim{}, err
	}
	o.Result = cl.ID
	if err := l.setOfferStatus(c, o, files.Finalized); err != nil {
		return files.Claim{}, err
	}
	log.Infof("%s purchased claim %s as claim %s", o.Requester, o.ClaimID, cl.ID)
	return cl, nil
}

// RequestLicense offers to license an accepted file. The attached value
// is the offered price and is held in escrow.
func (l *Ledger) RequestLicense(c *oracles.Call, id oracles.ClaimID, value *big.Int) (files.Offer, error) {
	return l.request(c, files.LicenseOffer, id, value)
}

// AcceptLicense approves a license offer.
func (l *Ledger) AcceptLicense(c *oracles.Call, offer uint64) (files.Offer, error) {
	return l.accept(c, files.LicenseOffer, offer)
}

// PayLicenseOf funds the re-encryption job of an accepted license with
// the attached value.
func (l *Ledger) PayLicenseOf(c *oracles.Call, offer uint64, value *big.Int) (files.Offer, error) {
	return l.pay(c, files.LicenseOffer, offer, value)
}

// GoodLicense completes a license once its re-encryption job is done.
// It pays the price to the owner and adds the requester to the
// licensees of the file. No claim is created.
func (l *Ledger) GoodLicense(c *oracles.Call, offer uint64) (files.Claim, error) {
	o, cl, err := l.complete(c, files.LicenseOffer, offer)
	if err != nil {
		return files.Claim{}, err
	}
	if !cl.Licensed(o.Requester) {
		cl.Licensees = append(cl.Licensees, o.Requester)
	}
	if err := l.updateClaim(c, cl); err != nil {
		return files.Claim{}, err
	}
	if err := l.setOfferStatus(c, o, files.Finalized); err != nil {
		return files.Claim{}, err
	}
	log.Infof("%s licensed claim %s", o.Requester, cl.ID)
	return cl, nil
}

// CancelOffer withdraws an offer that wasn't paid yet and refunds its
// price to the requester.
func (l *Ledger) CancelOffer(c *oracles.Call, kind files.OfferKind, offer uint64) (files.Offer, error) {
	o, err := l.store.GetOffer(c.Txn, kind, offer)
	if err != nil {
		return files.Offer{}, err
	}
	if o.Requester != c.Caller {
		return files.Offer{}, fmt.Errorf("%s didn't request %s offer %d: %w", c.Caller, kind, offer, oracles.ErrNotEligible)
	}
	if o.Status != files.Requested && o.Status != files.AcceptedOffer {
		return files.Offer{}, offerStatusErr(o, "cancel")
	}
	if err := l.bank.Pay(c, o.ClaimID, o.Requester, o.Price, kind.String()+" refund"); err != nil {
		return files.Offer{}, err
	}
	if err := l.setOfferStatus(c, o, files.Cancelled); err != nil {
		return files.Offer{}, err
	}
	return o, nil
}

// GetOffer returns the offer of kind with id.
func (l *Ledger) GetOffer(txn datastore.Read, kind files.OfferKind, id uint64) (files.Offer, error) {
	return l.store.GetOffer(txn, kind, id)
}

// OffersOf returns the offers of kind made on claim.
func (l *Ledger) OffersOf(txn datastore.Read, id oracles.ClaimID, kind files.OfferKind) ([]files.Offer, error) {
	return l.store.OffersOf(txn, id, kind)
}

func (l *Ledger) request(c *oracles.Call, kind files.OfferKind, id oracles.ClaimID, value *big.Int) (files.Offer, error) {
	if err := l.requireUser(c); err != nil {
		return files.Offer{}, err
	}
	if err := oracles.RequireAmount("price", value); err != nil {
		return files.Offer{}, err
	}
	cl, err := l.store.GetClaim(c.Txn, id)
	if err != nil {
		return files.Offer{}, err
	}
	if cl.Kind != files.File || cl.Status != files.Accepted {
		return files.Offer{}, fmt.Errorf("claim %s isn't an accepted file: %w", id, oracles.ErrPreconditionNotMet)
	}
	if cl.Owner == c.Caller {
		return files.Offer{}, fmt.Errorf("%s owns claim %s: %w", c.Caller, id, oracles.ErrInvalidArgument)
	}
	if err := l.bank.ChargeFor(c, id, value, kind.String()+" price"); err != nil {
		return files.Offer{}, err
	}
	n, err := l.store.NextOfferID(c.Txn, kind)
	if err != nil {
		return files.Offer{}, err
	}
	o := files.Offer{
		ID:        n,
		Kind:      kind,
		ClaimID:   id,
		Requester: c.Caller,
		Price:     new(big.Int).Set(value),
		CreatedAt: c.Now,
	}
	if err := l.setOfferStatus(c, o, files.Requested); err != nil {
		return files.Offer{}, err
	}
	log.Infof("%s requested %s %d of claim %s for %s", c.Caller, kind, n, id, value)
	o.Status = files.Requested
	o.UpdatedAt = c.Now
	return o, nil
}

func (l *Ledger) accept(c *oracles.Call, kind files.OfferKind, offer uint64) (files.Offer, error) {
	o, err := l.store.GetOffer(c.Txn, kind, offer)
	if err != nil {
		return files.Offer{}, err
	}
	cl, err := l.store.GetClaim(c.Txn, o.ClaimID)
	if err != nil {
		return files.Offer{}, err
	}
	if err := l.requireOwnerOrDelegate(c.Txn, cl.Owner, c.Caller); err != nil {
		return files.Offer{}, err
	}
	if o.Status != files.Requested {
		return files.Offer{}, offerStatusErr(o, "accept")
	}
	if err := l.setOfferStatus(c, o, files.AcceptedOffer); err != nil {
		return files.Offer{}, err
	}
	o.Status = files.AcceptedOffer
	return o, nil
}

func (l *Ledger) pay(c *oracles.Call, kind files.OfferKind, offer uint64, value *big.Int) (files.Offer, error) {
	if err := oracles.RequireAmount("reward", value); err != nil {
		return files.Offer{}, err
	}
	o, err := l.store.GetOffer(c.Txn, kind, offer)
	if err != nil {
		return files.Offer{}, err
	}
	if o.Requester != c.Caller {
		return files.Offer{}, fmt.Errorf("%s didn't request %s offer %d: %w", c.Caller, kind, offer, oracles.ErrNotEligible)
	}
	if o.Status != files.AcceptedOffer {
		return files.Offer{}, offerStatusErr(o, "pay")
	}
	if err := l.bank.ChargeFor(c, o.ClaimID, value, "reencryption reward"); err != nil {
		return files.Offer{}, err
	}
	if _, err := l.re.Open(c, oracles.Job{
		ClaimID:   o.ClaimID,
		Purpose:   kind.Transfer(),
		OfferID:   o.ID,
		Payer:     c.Caller,
		Recipient: c.Caller,
		Reward:    value,
	}); err != nil {
		return files.Offer{}, err
	}
	o.Reward = new(big.Int).Set(value)
	if err := l.setOfferStatus(c, o, files.Paid); err != nil {
		return files.Offer{}, err
	}
	o.Status = files.Paid
	return o, nil
}

// complete consumes the finished job of a paid offer and pays its price
// to the owner of the file.
func (l *Ledger) complete(c *oracles.Call, kind files.OfferKind, offer uint64) (files.Offer, files.Claim, error) {
	o, err := l.store.GetOffer(c.Txn, kind, offer)
	if err != nil {
		return files.Offer{}, files.Claim{}, err
	}
	if o.Requester != c.Caller {
		return files.Offer{}, files.Claim{}, fmt.Errorf("%s didn't request %s offer %d: %w", c.Caller, kind, offer, oracles.ErrNotEligible)
	}
	if o.Status != files.Paid {
		return files.Offer{}, files.Claim{}, offerStatusErr(o, "finalize")
	}
	if _, err := l.re.Consume(c, o.ClaimID, kind.Transfer(), o.ID); err != nil {
		return files.Offer{}, files.Claim{}, err
	}
	cl, err := l.store.GetClaim(c.Txn, o.ClaimID)
	if err != nil {
		return files.Offer{}, files.Claim{}, err
	}
	if err := l.bank.Pay(c, o.ClaimID, cl.Owner, o.Price, kind.String()+" price"); err != nil {
		return files.Offer{}, files.Claim{}, err
	}
	return o, cl, nil
}

func (l *Ledger) setOfferStatus(c *oracles.Call, o files.Offer, status files.OfferStatus) error {
	o.Status = status
	o.UpdatedAt = c.Now
	if err := l.store.PutOffer(c.Txn, o); err != nil {
		return err
	}
	c.Emit(oracles.Event{Kind: oracles.EventOfferStatus, ClaimID: o.ClaimID, OfferID: o.ID, Subject: o.Requester, Status: o.Kind.String() + "/" + status.String()})
	return nil
}

func offerStatusErr(o files.Offer, action string) error {
	if o.Status == files.Finalized || o.Status == files.Cancelled {
		return fmt.Errorf("can't %s %s offer %d: %s: %w", action, o.Kind, o.ID, o.Status, oracles.ErrAlreadyFinalized)
	}
	return fmt.Errorf("can't %s %s offer %d: %s: %w", action, o.Kind, o.ID, o.Status, oracles.ErrPreconditionNotMet)
}
