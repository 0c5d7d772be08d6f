package files

import (
	"fmt"
	"math/big"
	"time"

	"github.com/textileio/oraclefs/oracles"
)

// ClaimKind is the kind of content a claim attests.
type ClaimKind int

const (
	// IPNS claims bind an owner to a name pointer.
	IPNS ClaimKind = iota + 1
	// File claims bind an owner to a named content identifier.
	File
)

// ClaimKindStr maps ClaimKind values to readable names.
var ClaimKindStr = map[ClaimKind]string{
	IPNS: "ipns",
	File: "file",
}

func (k ClaimKind) String() string {
	return ClaimKindStr[k]
}

// Origin is how a file claim came to be.
type Origin int

const (
	// Uploaded files were added by their owner.
	Uploaded Origin = iota + 1
	// Delegated files were added by a delegate on behalf of the owner.
	Delegated
	// Purchased files are re-encrypted copies of another file.
	Purchased
)

// OriginStr maps Origin values to readable names.
var OriginStr = map[Origin]string{
	Uploaded:  "uploaded",
	Delegated: "delegated",
	Purchased: "purchased",
}

func (o Origin) String() string {
	return OriginStr[o]
}

// ClaimStatus is the verification state of a claim.
type ClaimStatus int

const (
	// Pending claims wait for payment and re-encryption before a
	// round can be opened.
	Pending ClaimStatus = iota + 1
	// Verifying claims have an unsettled round.
	Verifying
	// Accepted claims passed verification.
	Accepted
	// Rejected claims failed verification.
	Rejected
)

// ClaimStatusStr maps ClaimStatus values to readable names.
var ClaimStatusStr = map[ClaimStatus]string{
	Pending:   "pending",
	Verifying: "verifying",
	Accepted:  "accepted",
	Rejected:  "rejected",
}

func (s ClaimStatus) String() string {
	return ClaimStatusStr[s]
}

// Claim is a unit of content needing attestation.
type Claim struct {
	ID    oracles.ClaimID
	Kind  ClaimKind
	Owner oracles.Address
	// Uploader is the address that provided the content. It differs
	// from Owner for delegated uploads.
	Uploader oracles.Address `json:",omitempty"`

	Pointer string `json:",omitempty"`
	Name    string `json:",omitempty"`
	CID     string `json:",omitempty"`

	// Price is owed to the uploader of a delegated file.
	Price    *big.Int        `json:",omitempty"`
	Origin   Origin          `json:",omitempty"`
	OriginID oracles.ClaimID `json:",omitempty"`

	Status    ClaimStatus
	Licensees []oracles.Address `json:",omitempty"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Licensed returns true if addr holds a license on c.
func (c Claim) Licensed(addr oracles.Address) bool {
	for _, l := range c.Licensees {
		if l == addr {
			return true
		}
	}
	return false
}

// OfferKind is the kind of transfer an offer asks for.
type OfferKind int

const (
	// PurchaseOffer asks for a re-encrypted copy under a new claim.
	PurchaseOffer OfferKind = iota + 1
	// LicenseOffer asks for usage rights on the existing claim.
	LicenseOffer
)

// OfferKindStr maps OfferKind values to readable names.
var OfferKindStr = map[OfferKind]string{
	PurchaseOffer: "purchase",
	LicenseOffer:  "license",
}

func (k OfferKind) String() string {
	return OfferKindStr[k]
}

// Transfer returns the re-encryption purpose of offers of kind k.
func (k OfferKind) Transfer() oracles.Transfer {
	if k == LicenseOffer {
		return oracles.License
	}
	return oracles.Purchase
}

// ParseOfferKind parses the name of an offer kind.
func ParseOfferKind(s string) (OfferKind, error) {
	for k, n := range OfferKindStr {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown offer kind %q: %w", s, oracles.ErrInvalidArgument)
}

// OfferStatus is the state of an offer.
type OfferStatus int

const (
	// Requested offers hold the price in escrow.
	Requested OfferStatus = iota + 1
	// AcceptedOffer offers were approved by the owner or a delegate.
	AcceptedOffer
	// Paid offers funded the re-encryption job.
	Paid
	// Finalized offers completed the transfer.
	Finalized
	// Cancelled offers were withdrawn and refunded.
	Cancelled
)

// OfferStatusStr maps OfferStatus values to readable names.
var OfferStatusStr = map[OfferStatus]string{
	Requested:     "requested",
	AcceptedOffer: "accepted",
	Paid:          "paid",
	Finalized:     "finalized",
	Cancelled:     "cancelled",
}

func (s OfferStatus) String() string {
	return OfferStatusStr[s]
}

// Offer is a request to purchase or license a file.
type Offer struct {
	ID        uint64
	Kind      OfferKind
	ClaimID   oracles.ClaimID
	Requester oracles.Address
	Price     *big.Int
	Reward    *big.Int `json:",omitempty"`
	Status    OfferStatus
	// Result is the claim created by a finalized purchase.
	Result    oracles.ClaimID `json:",omitempty"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
