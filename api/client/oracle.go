package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/textileio/oraclefs/api"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/oracles/settlement"
)

// Oracle provides the verification, settlement and re-encryption api.
type Oracle struct {
	c *Client
}

// Respond votes on the round of claim id.
func (o *Oracle) Respond(ctx context.Context, id oracles.ClaimID, accept bool) (int, error) {
	var res api.RespondResponse
	err := o.c.do(ctx, http.MethodPost, claimPath("/rounds/%s/respond", id), api.RespondRequest{Accept: accept}, &res)
	return res.Index, err
}

// Finalize finalizes the caller's vote at index.
func (o *Oracle) Finalize(ctx context.Context, id oracles.ClaimID, index int) error {
	return o.c.do(ctx, http.MethodPost, claimPath("/rounds/%s/finalize", id), api.FinalizeRequest{Index: index}, nil)
}

// Settle distributes the rewards of a finished round.
func (o *Oracle) Settle(ctx context.Context, id oracles.ClaimID) (oracles.Round, settlement.Distribution, error) {
	var res api.SettleResponse
	err := o.c.do(ctx, http.MethodPost, claimPath("/rounds/%s/settle", id), nil, &res)
	return res.Round, res.Distribution, err
}

// RespondIPNS votes on the current IPNS claim of owner.
func (o *Oracle) RespondIPNS(ctx context.Context, owner oracles.Address, accept bool) (int, error) {
	var res api.RespondResponse
	err := o.c.do(ctx, http.MethodPost, ownerPath(owner, "ipns/respond"), api.RespondRequest{Accept: accept}, &res)
	return res.Index, err
}

// FinalizeIPNS finalizes the caller's vote on the current IPNS claim
// of owner.
func (o *Oracle) FinalizeIPNS(ctx context.Context, owner oracles.Address, index int) error {
	return o.c.do(ctx, http.MethodPost, ownerPath(owner, "ipns/finalize"), api.FinalizeRequest{Index: index}, nil)
}

// SettleIPNS settles the round of the current IPNS claim of owner.
func (o *Oracle) SettleIPNS(ctx context.Context, owner oracles.Address) (oracles.Round, settlement.Distribution, error) {
	var res api.SettleResponse
	err := o.c.do(ctx, http.MethodPost, ownerPath(owner, "ipns/settle"), nil, &res)
	return res.Round, res.Distribution, err
}

// Round returns the round of claim id.
func (o *Oracle) Round(ctx context.Context, id oracles.ClaimID) (oracles.Round, error) {
	var res oracles.Round
	err := o.c.do(ctx, http.MethodGet, claimPath("/rounds/%s", id), nil, &res)
	return res, err
}

// UnsettledRounds returns every round not settled yet.
func (o *Oracle) UnsettledRounds(ctx context.Context) ([]oracles.Round, error) {
	return o.rounds(ctx, "unsettled")
}

// SettleableRounds returns every round that can be settled now.
func (o *Oracle) SettleableRounds(ctx context.Context) ([]oracles.Round, error) {
	return o.rounds(ctx, "settleable")
}

// Participate claims the re-encryption job of claim id.
func (o *Oracle) Participate(ctx context.Context, id oracles.ClaimID) (oracles.Job, error) {
	var res oracles.Job
	err := o.c.do(ctx, http.MethodPost, claimPath("/jobs/%s/participate", id), nil, &res)
	return res, err
}

// Done completes the caller's re-encryption job of claim id.
func (o *Oracle) Done(ctx context.Context, id oracles.ClaimID) (oracles.Job, error) {
	var res oracles.Job
	err := o.c.do(ctx, http.MethodPost, claimPath("/jobs/%s/done", id), nil, &res)
	return res, err
}

// Job returns the re-encryption job of claim id.
func (o *Oracle) Job(ctx context.Context, id oracles.ClaimID) (oracles.Job, error) {
	var res oracles.Job
	err := o.c.do(ctx, http.MethodGet, claimPath("/jobs/%s", id), nil, &res)
	return res, err
}

// AvailableJobs returns the jobs nobody holds.
func (o *Oracle) AvailableJobs(ctx context.Context) ([]oracles.Job, error) {
	return o.jobs(ctx, "available")
}

// ActiveJobs returns every job blocking a transfer.
func (o *Oracle) ActiveJobs(ctx context.Context) ([]oracles.Job, error) {
	return o.jobs(ctx, "active")
}

func (o *Oracle) rounds(ctx context.Context, filter string) ([]oracles.Round, error) {
	var res api.RoundsResponse
	err := o.c.do(ctx, http.MethodGet, fmt.Sprintf("/rounds?filter=%s", filter), nil, &res)
	return res.Rounds, err
}

func (o *Oracle) jobs(ctx context.Context, filter string) ([]oracles.Job, error) {
	var res api.JobsResponse
	err := o.c.do(ctx, http.MethodGet, fmt.Sprintf("/jobs?filter=%s", filter), nil, &res)
	return res.Jobs, err
}
