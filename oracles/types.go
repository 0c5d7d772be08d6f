package oracles

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Address identifies a party. The host authenticates it, so the
// registry only checks that it is well formed.
type Address string

// EmptyAddress is the zero Address.
var EmptyAddress = Address("")

const (
	// EscrowAddress is the account holding escrowed funds.
	EscrowAddress = Address("escrow")
	// MintAddress is the source of deposited funds.
	MintAddress = Address("mint")
)

// Validate returns an error if the address can't be used as a
// datastore key segment or names a reserved account.
func (a Address) Validate() error {
	switch a {
	case EmptyAddress:
		return fmt.Errorf("empty address: %w", ErrInvalidArgument)
	case ".", "..":
		return fmt.Errorf("address %q isn't a key segment: %w", string(a), ErrInvalidArgument)
	}
	if strings.Contains(string(a), "/") {
		return fmt.Errorf("address %q contains '/': %w", string(a), ErrInvalidArgument)
	}
	if a.Reserved() {
		return fmt.Errorf("address %q is reserved: %w", string(a), ErrInvalidArgument)
	}
	return nil
}

// Reserved returns true if a is an account of the escrow bank.
func (a Address) Reserved() bool {
	return a == EscrowAddress || a == MintAddress
}

// String returns a string representation of the Address.
func (a Address) String() string {
	return string(a)
}

// Role is the single role an address holds.
type Role int

const (
	// None is the role of an unregistered address.
	None Role = iota
	// User can own, upload, buy and license files.
	User
	// Verifier votes to accept or reject a claim.
	Verifier
	// TimeoutOfficer settles finished or expired rounds.
	TimeoutOfficer
	// Reencryptor performs the re-encryption step of a transfer.
	Reencryptor
)

// RoleStr maps Role values to readable names.
var RoleStr = map[Role]string{
	None:           "none",
	User:           "user",
	Verifier:       "verifier",
	TimeoutOfficer: "timeout-officer",
	Reencryptor:    "reencryptor",
}

// String returns a string representation of the Role.
func (r Role) String() string {
	if s, ok := RoleStr[r]; ok {
		return s
	}
	return "role(" + strconv.Itoa(int(r)) + ")"
}

// Valid returns true if r is a role an address can register as.
func (r Role) Valid() bool {
	return r >= User && r <= Reencryptor
}

// ParseRole parses a role name or its numeric value.
func ParseRole(s string) (Role, error) {
	for r, name := range RoleStr {
		if name == s && r != None {
			return r, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || !Role(n).Valid() {
		return None, fmt.Errorf("unknown role %q: %w", s, ErrInvalidArgument)
	}
	return Role(n), nil
}

// ClaimID identifies a claim. Ids are assigned once from a single
// monotonic sequence and never reused.
type ClaimID uint64

// EmptyClaimID is the zero ClaimID, never assigned.
const EmptyClaimID = ClaimID(0)

// String returns a string representation of the ClaimID.
func (c ClaimID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// ParseClaimID parses a decimal ClaimID.
func ParseClaimID(s string) (ClaimID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return EmptyClaimID, fmt.Errorf("invalid claim id %q: %w", s, ErrInvalidArgument)
	}
	return ClaimID(n), nil
}

// RoundStatus is the state of a verification round.
type RoundStatus int

const (
	// Open accepts votes until the response deadline.
	Open RoundStatus = iota
	// AwaitingFinalize waits for every voter to finalize its vote.
	AwaitingFinalize
	// Finalized means every recorded vote was finalized.
	Finalized
	// Expired means the finalize window closed with votes pending.
	Expired
)

// RoundStatusStr maps RoundStatus values to readable names.
var RoundStatusStr = map[RoundStatus]string{
	Open:             "open",
	AwaitingFinalize: "awaiting-finalize",
	Finalized:        "finalized",
	Expired:          "expired",
}

func (s RoundStatus) String() string {
	return RoundStatusStr[s]
}

// Outcome is the verdict of a round.
type Outcome int

const (
	// Undecided is the outcome of a round that isn't final yet.
	Undecided Outcome = iota
	// Accepted means the claim was verified.
	Accepted
	// Rejected means the claim was refused or didn't get enough participation.
	Rejected
)

// OutcomeStr maps Outcome values to readable names.
var OutcomeStr = map[Outcome]string{
	Undecided: "undecided",
	Accepted:  "accepted",
	Rejected:  "rejected",
}

func (o Outcome) String() string {
	return OutcomeStr[o]
}

// Vote is a committed attestation of a verifier.
type Vote struct {
	Voter     Address
	Accept    bool
	Time      time.Time
	Finalized bool
}

// Round is one voting cycle over a single claim.
type Round struct {
	ClaimID ClaimID
	Funder  Address

	Votes []Vote
	// Yes and No count every committed vote.
	Yes int
	No  int
	// FinalYes and FinalNo count finalized votes only.
	FinalYes int
	FinalNo  int
	Pending  int

	OpenedAt         time.Time
	ResponseDeadline time.Time
	FinalizeDeadline time.Time

	VerifierPool *big.Int
	TimeoutPool  *big.Int

	Status  RoundStatus
	Outcome Outcome

	Settled   bool
	SettledBy Address
	SettledAt time.Time
}

// Pool returns the total escrowed reward of the round.
func (r Round) Pool() *big.Int {
	return new(big.Int).Add(r.VerifierPool, r.TimeoutPool)
}

// VoteOf returns the index of the vote of addr, or -1.
func (r Round) VoteOf(addr Address) int {
	for i := range r.Votes {
		if r.Votes[i].Voter == addr {
			return i
		}
	}
	return -1
}

// Transfer names the ledger flow a re-encryption job serves.
type Transfer int

const (
	// Delegation re-encrypts a delegate upload for its owner.
	Delegation Transfer = iota + 1
	// Purchase re-encrypts a file for its buyer.
	Purchase
	// License re-encrypts a file for a licensee.
	License
)

// TransferStr maps Transfer values to readable names.
var TransferStr = map[Transfer]string{
	Delegation: "delegation",
	Purchase:   "purchase",
	License:    "license",
}

func (t Transfer) String() string {
	return TransferStr[t]
}

// JobStatus is the state of a re-encryption job.
type JobStatus int

const (
	// Unclaimed jobs can be taken by any reencryptor.
	Unclaimed JobStatus = iota
	// Claimed jobs are held by one reencryptor until done or timeout.
	Claimed
	// Done jobs were completed by their claimant.
	Done
)

// JobStatusStr maps JobStatus values to readable names.
var JobStatusStr = map[JobStatus]string{
	Unclaimed: "unclaimed",
	Claimed:   "claimed",
	Done:      "done",
}

func (s JobStatus) String() string {
	return JobStatusStr[s]
}

// Job is the re-encryption work needed to hand a claim to a new holder.
type Job struct {
	ClaimID   ClaimID
	Purpose   Transfer
	OfferID   uint64
	Payer     Address
	Recipient Address
	Reward    *big.Int

	Status    JobStatus
	Claimant  Address
	ClaimedAt time.Time
	// Attempts counts how many times the job was claimed.
	Attempts  int
	CreatedAt time.Time
	DoneAt    time.Time
	Consumed  bool
}

// Active returns true while the job blocks a new transfer of its claim.
func (j Job) Active() bool {
	return !(j.Status == Done && j.Consumed)
}

// Amount parses a decimal amount. Negative amounts are rejected.
func Amount(s string) (*big.Int, error) {
	a, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parsing amount %q: %w", s, ErrInvalidArgument)
	}
	if a.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q: %w", s, ErrInvalidArgument)
	}
	return a, nil
}

// NonNil returns a or a fresh zero value if a is nil.
func NonNil(a *big.Int) *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return a
}

// RequireAmount checks that a is present and not negative.
func RequireAmount(name string, a *big.Int) error {
	if a == nil {
		return fmt.Errorf("%s is missing: %w", name, ErrInvalidArgument)
	}
	if a.Sign() < 0 {
		return fmt.Errorf("%s is negative: %w", name, ErrInvalidArgument)
	}
	return nil
}

// CheckValue returns ErrInsufficientFunds if the value attached to a
// call doesn't cover required.
func CheckValue(attached, required *big.Int) error {
	if NonNil(attached).Cmp(NonNil(required)) < 0 {
		return fmt.Errorf("attached %s, required %s: %w", NonNil(attached), NonNil(required), ErrInsufficientFunds)
	}
	return nil
}
