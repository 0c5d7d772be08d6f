package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/oracles"
)

var (
	log = logging.Logger("files-store")

	dsBase          = datastore.NewKey("files")
	dsClaimSeq      = dsBase.ChildString("seq").ChildString("claim")
	dsBaseOfferSeq  = dsBase.ChildString("seq").ChildString("offer")
	dsBaseClaim     = dsBase.ChildString("claim")
	dsBaseOwner     = dsBase.ChildString("owner")
	dsBaseOffer     = dsBase.ChildString("offer")
	dsBaseOffersOf  = dsBase.ChildString("offersof")
	dsBaseDelegate  = dsBase.ChildString("delegate")
	dsBaseIPNSCur   = dsBase.ChildString("ipns").ChildString("current")
	dsBaseIPNSValid = dsBase.ChildString("ipns").ChildString("resolved")
)

// Store persists claims, offers, delegate relationships and IPNS
// indexes.
type Store struct{}

// New returns a new Store.
func New() *Store {
	return &Store{}
}

// NextClaimID reserves the next claim id. IPNS and file claims share
// the sequence.
func (s *Store) NextClaimID(txn datastore.Txn) (oracles.ClaimID, error) {
	n, err := oracles.NextSeq(txn, dsClaimSeq)
	if err != nil {
		return oracles.EmptyClaimID, err
	}
	return oracles.ClaimID(n), nil
}

// PutClaim saves c and indexes it under its owner.
func (s *Store) PutClaim(txn datastore.Txn, c files.Claim) error {
	if err := put(txn, claimKey(c.ID), c); err != nil {
		return fmt.Errorf("saving claim: %s", err)
	}
	if err := txn.Put(ownerKey(c.Owner, c.ID), []byte{}); err != nil {
		return fmt.Errorf("indexing claim owner: %s", err)
	}
	return nil
}

// GetClaim returns the claim with id.
func (s *Store) GetClaim(txn datastore.Read, id oracles.ClaimID) (files.Claim, error) {
	var c files.Claim
	if err := get(txn, claimKey(id), &c); err != nil {
		return files.Claim{}, fmt.Errorf("claim %s: %w", id, err)
	}
	return c, nil
}

// ClaimsOf returns the claims owned by owner, ordered by id.
func (s *Store) ClaimsOf(txn datastore.Read, owner oracles.Address) ([]files.Claim, error) {
	ids, err := childIDs(txn, dsBaseOwner.ChildString(owner.String()))
	if err != nil {
		return nil, err
	}
	ret := make([]files.Claim, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetClaim(txn, oracles.ClaimID(id))
		if err != nil {
			return nil, err
		}
		ret = append(ret, c)
	}
	return ret, nil
}

// NextOfferID reserves the next offer id of kind. Each kind has its own
// sequence.
func (s *Store) NextOfferID(txn datastore.Txn, kind files.OfferKind) (uint64, error) {
	return oracles.NextSeq(txn, dsBaseOfferSeq.ChildString(kind.String()))
}

// PutOffer saves o and indexes it under its claim.
func (s *Store) PutOffer(txn datastore.Txn, o files.Offer) error {
	if err := put(txn, offerKey(o.Kind, o.ID), o); err != nil {
		return fmt.Errorf("saving offer: %s", err)
	}
	k := dsBaseOffersOf.ChildString(o.ClaimID.String()).ChildString(o.Kind.String()).ChildString(pad(o.ID))
	if err := txn.Put(k, []byte{}); err != nil {
		return fmt.Errorf("indexing offer: %s", err)
	}
	return nil
}

// GetOffer returns the offer of kind with id.
func (s *Store) GetOffer(txn datastore.Read, kind files.OfferKind, id uint64) (files.Offer, error) {
	var o files.Offer
	if err := get(txn, offerKey(kind, id), &o); err != nil {
		return files.Offer{}, fmt.Errorf("%s offer %d: %w", kind, id, err)
	}
	return o, nil
}

// OffersOf returns the offers of kind made on claim, ordered by id.
func (s *Store) OffersOf(txn datastore.Read, claim oracles.ClaimID, kind files.OfferKind) ([]files.Offer, error) {
	ids, err := childIDs(txn, dsBaseOffersOf.ChildString(claim.String()).ChildString(kind.String()))
	if err != nil {
		return nil, err
	}
	ret := make([]files.Offer, 0, len(ids))
	for _, id := range ids {
		o, err := s.GetOffer(txn, kind, id)
		if err != nil {
			return nil, err
		}
		ret = append(ret, o)
	}
	return ret, nil
}

// AddDelegate records delegate as acting for owner. It returns false
// if the relationship already existed.
func (s *Store) AddDelegate(txn datastore.Txn, owner, delegate oracles.Address) (bool, error) {
	k := dsBaseDelegate.ChildString(owner.String()).ChildString(delegate.String())
	exists, err := txn.Has(k)
	if err != nil {
		return false, fmt.Errorf("checking delegate: %s", err)
	}
	if exists {
		return false, nil
	}
	if err := txn.Put(k, []byte{}); err != nil {
		return false, fmt.Errorf("saving delegate: %s", err)
	}
	return true, nil
}

// IsDelegate returns true if delegate acts for owner.
func (s *Store) IsDelegate(txn datastore.Read, owner, delegate oracles.Address) (bool, error) {
	if owner.Validate() != nil || delegate.Validate() != nil {
		return false, nil
	}
	ok, err := txn.Has(dsBaseDelegate.ChildString(owner.String()).ChildString(delegate.String()))
	if err != nil {
		return false, fmt.Errorf("checking delegate: %s", err)
	}
	return ok, nil
}

// DelegatesOf returns the delegates of owner.
func (s *Store) DelegatesOf(txn datastore.Read, owner oracles.Address) ([]oracles.Address, error) {
	res, err := txn.Query(query.Query{Prefix: dsBaseDelegate.ChildString(owner.String()).String() + "/", KeysOnly: true})
	if err != nil {
		return nil, fmt.Errorf("querying delegates: %s", err)
	}
	defer closeResults(res)
	var ret []oracles.Address
	for r := range res.Next() {
		if r.Error != nil {
			return nil, fmt.Errorf("iterating delegates: %s", r.Error)
		}
		ret = append(ret, oracles.Address(datastore.RawKey(r.Key).Name()))
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret, nil
}

// SetCurrentIPNS records id as the latest IPNS claim of owner.
func (s *Store) SetCurrentIPNS(txn datastore.Txn, owner oracles.Address, id oracles.ClaimID) error {
	if err := txn.Put(dsBaseIPNSCur.ChildString(owner.String()), []byte(id.String())); err != nil {
		return fmt.Errorf("saving current ipns claim: %s", err)
	}
	return nil
}

// CurrentIPNS returns the latest IPNS claim of owner, whatever its
// status.
func (s *Store) CurrentIPNS(txn datastore.Read, owner oracles.Address) (oracles.ClaimID, error) {
	return getID(txn, dsBaseIPNSCur.ChildString(owner.String()), "ipns claim of "+owner.String())
}

// SetResolvedIPNS records id as the latest accepted IPNS claim of owner.
func (s *Store) SetResolvedIPNS(txn datastore.Txn, owner oracles.Address, id oracles.ClaimID) error {
	if err := txn.Put(dsBaseIPNSValid.ChildString(owner.String()), []byte(id.String())); err != nil {
		return fmt.Errorf("saving resolved ipns claim: %s", err)
	}
	return nil
}

// ResolvedIPNS returns the latest accepted IPNS claim of owner.
func (s *Store) ResolvedIPNS(txn datastore.Read, owner oracles.Address) (oracles.ClaimID, error) {
	return getID(txn, dsBaseIPNSValid.ChildString(owner.String()), "resolved ipns of "+owner.String())
}

func getID(txn datastore.Read, k datastore.Key, what string) (oracles.ClaimID, error) {
	buf, err := txn.Get(k)
	if err == datastore.ErrNotFound {
		return oracles.EmptyClaimID, fmt.Errorf("%s: %w", what, oracles.ErrNotFound)
	}
	if err != nil {
		return oracles.EmptyClaimID, fmt.Errorf("getting %s: %s", what, err)
	}
	return oracles.ParseClaimID(string(buf))
}

func childIDs(txn datastore.Read, parent datastore.Key) ([]uint64, error) {
	res, err := txn.Query(query.Query{Prefix: parent.String() + "/", KeysOnly: true})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %s", parent, err)
	}
	defer closeResults(res)
	var ids []uint64
	for r := range res.Next() {
		if r.Error != nil {
			return nil, fmt.Errorf("iterating %s: %s", parent, r.Error)
		}
		id, err := strconv.ParseUint(datastore.RawKey(r.Key).Name(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing index key %s: %s", r.Key, err)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func closeResults(res query.Results) {
	if err := res.Close(); err != nil {
		log.Errorf("closing query result: %s", err)
	}
}

func put(txn datastore.Txn, k datastore.Key, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling json: %s", err)
	}
	return txn.Put(k, buf)
}

func get(txn datastore.Read, k datastore.Key, v interface{}) error {
	buf, err := txn.Get(k)
	if errors.Is(err, datastore.ErrNotFound) {
		return oracles.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("getting from datastore: %s", err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("unmarshaling json: %s", err)
	}
	return nil
}

func claimKey(id oracles.ClaimID) datastore.Key {
	return dsBaseClaim.ChildString(id.String())
}

func ownerKey(owner oracles.Address, id oracles.ClaimID) datastore.Key {
	return dsBaseOwner.ChildString(owner.String()).ChildString(pad(uint64(id)))
}

func offerKey(kind files.OfferKind, id uint64) datastore.Key {
	return dsBaseOffer.ChildString(kind.String()).ChildString(strconv.FormatUint(id, 10))
}

func pad(n uint64) string {
	return fmt.Sprintf("%020d", n)
}
