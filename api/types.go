// Package api holds the JSON bodies exchanged between the gateway and
// its clients.
package api

import (
	"math/big"

	"github.com/textileio/oraclefs/auth"
	"github.com/textileio/oraclefs/escrow/transferstore"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/oracles/settlement"
)

// ErrorResponse is returned with every non-2xx status. Kind is the
// error taxonomy name, empty for infrastructure failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// TokenRequest asks for an auth-token acting as Address.
type TokenRequest struct {
	Address oracles.Address `json:"address"`
}

// TokenResponse carries a generated auth-token.
type TokenResponse struct {
	Token string `json:"token"`
}

// TokensResponse lists registered auth-tokens.
type TokensResponse struct {
	Tokens []auth.Entry `json:"tokens"`
}

// DepositRequest credits Amount to Address.
type DepositRequest struct {
	Address oracles.Address `json:"address"`
	Amount  *big.Int        `json:"amount"`
}

// RegisterRequest registers the caller with Role staking Stake.
type RegisterRequest struct {
	Role  string   `json:"role"`
	Stake *big.Int `json:"stake,omitempty"`
}

// RoleResponse is the role held by an address.
type RoleResponse struct {
	Address oracles.Address `json:"address"`
	Role    string          `json:"role"`
}

// EligibleResponse answers an eligibility check.
type EligibleResponse struct {
	Eligible bool `json:"eligible"`
}

// AmountResponse carries a balance or the held escrow.
type AmountResponse struct {
	Amount *big.Int `json:"amount"`
}

// TransfersResponse is the transfer history of an address.
type TransfersResponse struct {
	Sent     []transferstore.Transfer `json:"sent"`
	Received []transferstore.Transfer `json:"received"`
}

// Reward is the verification reward attached to a new claim.
type Reward struct {
	Verifier *big.Int `json:"verifier"`
	Timeout  *big.Int `json:"timeout"`
	Value    *big.Int `json:"value"`
}

// SetIPNSRequest publishes a new IPNS pointer for the caller.
type SetIPNSRequest struct {
	Pointer string `json:"pointer"`
	Reward  Reward `json:"reward"`
}

// FileRequest names a file by its content identifier.
type FileRequest struct {
	Name   string `json:"name"`
	CID    string `json:"cid"`
	Reward Reward `json:"reward"`
}

// DelegateRequest authorizes Delegate to upload for the caller.
type DelegateRequest struct {
	Delegate oracles.Address `json:"delegate"`
}

// FileForRequest uploads a file on behalf of Owner.
type FileForRequest struct {
	Owner oracles.Address `json:"owner"`
	Name  string          `json:"name"`
	CID   string          `json:"cid"`
	Price *big.Int        `json:"price"`
}

// PayDelegateRequest pays the re-encryption of a delegated upload.
type PayDelegateRequest struct {
	Reward *big.Int `json:"reward"`
	Value  *big.Int `json:"value"`
}

// ValueRequest attaches Value to an offer call.
type ValueRequest struct {
	Value *big.Int `json:"value"`
}

// RespondRequest is a verifier vote.
type RespondRequest struct {
	Accept bool `json:"accept"`
}

// RespondResponse is the index of a committed vote.
type RespondResponse struct {
	Index int `json:"index"`
}

// FinalizeRequest finalizes the vote at Index.
type FinalizeRequest struct {
	Index int `json:"index"`
}

// SettleResponse is the settled round and its payouts.
type SettleResponse struct {
	Round        oracles.Round           `json:"round"`
	Distribution settlement.Distribution `json:"distribution"`
}

// ClaimsResponse lists claims.
type ClaimsResponse struct {
	Claims []files.Claim `json:"claims"`
}

// OffersResponse lists offers.
type OffersResponse struct {
	Offers []files.Offer `json:"offers"`
}

// RoundsResponse lists rounds.
type RoundsResponse struct {
	Rounds []oracles.Round `json:"rounds"`
}

// JobsResponse lists re-encryption jobs.
type JobsResponse struct {
	Jobs []oracles.Job `json:"jobs"`
}

// DelegatesResponse lists the delegates of an owner.
type DelegatesResponse struct {
	Delegates []oracles.Address `json:"delegates"`
}

// EventsResponse is a page of the event log.
type EventsResponse struct {
	Events []oracles.Event `json:"events"`
}
