package client

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"

	"github.com/textileio/oraclefs/api"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/oracles"
)

// Files provides the claim ledger api.
type Files struct {
	c *Client
}

// SetIPNS publishes a new IPNS pointer for the caller.
func (f *Files) SetIPNS(ctx context.Context, pointer string, rw api.Reward) (files.Claim, error) {
	var res files.Claim
	err := f.c.do(ctx, http.MethodPost, "/ipns", api.SetIPNSRequest{Pointer: pointer, Reward: rw}, &res)
	return res, err
}

// AddFile creates a file claim of the caller.
func (f *Files) AddFile(ctx context.Context, name, cid string, rw api.Reward) (files.Claim, error) {
	var res files.Claim
	err := f.c.do(ctx, http.MethodPost, "/files", api.FileRequest{Name: name, CID: cid, Reward: rw}, &res)
	return res, err
}

// AddDelegate authorizes delegate to upload for the caller.
func (f *Files) AddDelegate(ctx context.Context, delegate oracles.Address) error {
	return f.c.do(ctx, http.MethodPost, "/delegates", api.DelegateRequest{Delegate: delegate}, nil)
}

// AddFileFor uploads a file on behalf of owner.
func (f *Files) AddFileFor(ctx context.Context, owner oracles.Address, name, cid string, price *big.Int) (files.Claim, error) {
	var res files.Claim
	err := f.c.do(ctx, http.MethodPost, "/delegated", api.FileForRequest{Owner: owner, Name: name, CID: cid, Price: price}, &res)
	return res, err
}

// PayDelegateFor pays the re-encryption job of a delegated upload.
func (f *Files) PayDelegateFor(ctx context.Context, id oracles.ClaimID, reward, value *big.Int) (oracles.Job, error) {
	var res oracles.Job
	err := f.c.do(ctx, http.MethodPost, claimPath("/claims/%s/paydelegate", id), api.PayDelegateRequest{Reward: reward, Value: value}, &res)
	return res, err
}

// AcceptFile takes ownership of a re-encrypted delegated upload.
func (f *Files) AcceptFile(ctx context.Context, id oracles.ClaimID, name, cid string, rw api.Reward) (files.Claim, error) {
	var res files.Claim
	err := f.c.do(ctx, http.MethodPost, claimPath("/claims/%s/accept", id), api.FileRequest{Name: name, CID: cid, Reward: rw}, &res)
	return res, err
}

// Request opens an offer of kind on claim id.
func (f *Files) Request(ctx context.Context, kind files.OfferKind, id oracles.ClaimID, value *big.Int) (files.Offer, error) {
	var res files.Offer
	err := f.c.do(ctx, http.MethodPost, claimPath("/claims/%s/offers/%s", id, kind), api.ValueRequest{Value: value}, &res)
	return res, err
}

// Accept accepts an offer as the claim owner.
func (f *Files) Accept(ctx context.Context, kind files.OfferKind, offer uint64) (files.Offer, error) {
	var res files.Offer
	err := f.c.do(ctx, http.MethodPost, offerPath(kind, offer, "accept"), nil, &res)
	return res, err
}

// Pay pays the re-encryption reward of an accepted offer.
func (f *Files) Pay(ctx context.Context, kind files.OfferKind, offer uint64, value *big.Int) (files.Offer, error) {
	var res files.Offer
	err := f.c.do(ctx, http.MethodPost, offerPath(kind, offer, "pay"), api.ValueRequest{Value: value}, &res)
	return res, err
}

// GoodPurchase completes a purchase, creating the buyer's copy.
func (f *Files) GoodPurchase(ctx context.Context, offer uint64, name, cid string, rw api.Reward) (files.Claim, error) {
	var res files.Claim
	err := f.c.do(ctx, http.MethodPost, offerPath(files.PurchaseOffer, offer, "good"), api.FileRequest{Name: name, CID: cid, Reward: rw}, &res)
	return res, err
}

// GoodLicense completes a license, adding the caller as licensee.
func (f *Files) GoodLicense(ctx context.Context, offer uint64) (files.Claim, error) {
	var res files.Claim
	err := f.c.do(ctx, http.MethodPost, offerPath(files.LicenseOffer, offer, "good"), nil, &res)
	return res, err
}

// Cancel cancels an offer and refunds its price.
func (f *Files) Cancel(ctx context.Context, kind files.OfferKind, offer uint64) (files.Offer, error) {
	var res files.Offer
	err := f.c.do(ctx, http.MethodPost, offerPath(kind, offer, "cancel"), nil, &res)
	return res, err
}

// Claim returns a claim by id.
func (f *Files) Claim(ctx context.Context, id oracles.ClaimID) (files.Claim, error) {
	var res files.Claim
	err := f.c.do(ctx, http.MethodGet, claimPath("/claims/%s", id), nil, &res)
	return res, err
}

// ClaimsOf returns the claims owned by owner.
func (f *Files) ClaimsOf(ctx context.Context, owner oracles.Address) ([]files.Claim, error) {
	var res api.ClaimsResponse
	err := f.c.do(ctx, http.MethodGet, ownerPath(owner, "claims"), nil, &res)
	return res.Claims, err
}

// ResolveIPNS returns the latest accepted IPNS claim of owner.
func (f *Files) ResolveIPNS(ctx context.Context, owner oracles.Address) (files.Claim, error) {
	var res files.Claim
	err := f.c.do(ctx, http.MethodGet, ownerPath(owner, "ipns"), nil, &res)
	return res, err
}

// CurrentIPNS returns the latest IPNS claim of owner, verified or not.
func (f *Files) CurrentIPNS(ctx context.Context, owner oracles.Address) (files.Claim, error) {
	var res files.Claim
	err := f.c.do(ctx, http.MethodGet, ownerPath(owner, "ipns/current"), nil, &res)
	return res, err
}

// DelegatesOf returns the delegates of owner.
func (f *Files) DelegatesOf(ctx context.Context, owner oracles.Address) ([]oracles.Address, error) {
	var res api.DelegatesResponse
	err := f.c.do(ctx, http.MethodGet, ownerPath(owner, "delegates"), nil, &res)
	return res.Delegates, err
}

// IsDelegate returns true if delegate can upload for owner.
func (f *Files) IsDelegate(ctx context.Context, owner, delegate oracles.Address) (bool, error) {
	var res api.EligibleResponse
	err := f.c.do(ctx, http.MethodGet, ownerPath(owner, "delegates/"+url.PathEscape(delegate.String())), nil, &res)
	return res.Eligible, err
}

// Offer returns an offer.
func (f *Files) Offer(ctx context.Context, kind files.OfferKind, offer uint64) (files.Offer, error) {
	var res files.Offer
	err := f.c.do(ctx, http.MethodGet, fmt.Sprintf("/offers/%s/%d", kind, offer), nil, &res)
	return res, err
}

// OffersOf returns the offers of kind on claim id.
func (f *Files) OffersOf(ctx context.Context, id oracles.ClaimID, kind files.OfferKind) ([]files.Offer, error) {
	var res api.OffersResponse
	err := f.c.do(ctx, http.MethodGet, claimPath("/claims/%s/offers/%s", id, kind), nil, &res)
	return res.Offers, err
}

func offerPath(kind files.OfferKind, offer uint64, action string) string {
	return fmt.Sprintf("/offers/%s/%d/%s", kind, offer, action)
}

func ownerPath(owner oracles.Address, rest string) string {
	return "/owners/" + url.PathEscape(owner.String()) + "/" + rest
}
