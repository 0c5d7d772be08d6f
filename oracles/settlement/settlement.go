package settlement

import (
	"fmt"
	"math/big"

	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/oracles/rounds"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var log = logging.Logger("oracles-settlement")

// Payer pays escrowed funds out to an address.
type Payer interface {
	Pay(c *oracles.Call, claim oracles.ClaimID, to oracles.Address, amount *big.Int, memo string) error
}

// Eligibility checks the role of a caller.
type Eligibility interface {
	Require(txn datastore.Read, addr oracles.Address, role oracles.Role) error
}

// Share is an amount owed to one address.
type Share struct {
	To     oracles.Address
	Amount *big.Int
}

// Distribution is how the pool of a round is paid out.
type Distribution struct {
	ClaimID oracles.ClaimID
	Outcome oracles.Outcome
	// Majority is the vote direction rewarded from the verifier pool.
	// It is true only for accepted rounds.
	Majority bool
	Voters   []Share
	// Officer is the timeout pool paid to the settling officer.
	Officer *big.Int
	// Refund is returned to the funder: division dust and the whole
	// verifier pool when no finalized vote agrees with the outcome.
	Refund *big.Int
	Late   bool
}

// Total returns the sum of every payment in d.
func (d Distribution) Total() *big.Int {
	t := new(big.Int).Add(oracles.NonNil(d.Officer), oracles.NonNil(d.Refund))
	for _, s := range d.Voters {
		t.Add(t, s.Amount)
	}
	return t
}

// Plan computes the distribution of r. The verifier pool is split
// equally among finalized votes agreeing with the outcome of r, so
// rounds rejected for low participation or expiry reward no votes.
func Plan(r oracles.Round) Distribution {
	d := Distribution{
		ClaimID:  r.ClaimID,
		Outcome:  r.Outcome,
		Majority: r.Outcome == oracles.Accepted,
		Officer:  new(big.Int).Set(oracles.NonNil(r.TimeoutPool)),
		Refund:   new(big.Int),
	}
	var winners []oracles.Address
	for _, v := range r.Votes {
		if v.Finalized && v.Accept == d.Majority {
			winners = append(winners, v.Voter)
		}
	}
	pool := oracles.NonNil(r.VerifierPool)
	if len(winners) == 0 {
		d.Refund.Set(pool)
		return d
	}
	share, dust := new(big.Int).QuoRem(pool, big.NewInt(int64(len(winners))), new(big.Int))
	for _, w := range winners {
		d.Voters = append(d.Voters, Share{To: w, Amount: new(big.Int).Set(share)})
	}
	d.Refund.Set(dust)
	return d
}

// Settler pays out settleable rounds.
type Settler struct {
	params oracles.Params
	rounds *rounds.Engine
	roles  Eligibility
	bank   Payer

	metricSettled metric.Int64Counter
	metricLate    metric.Int64Counter
}

// New returns a new Settler.
func New(params oracles.Params, re *rounds.Engine, roles Eligibility, bank Payer) *Settler {
	s := &Settler{
		params: params,
		rounds: re,
		roles:  roles,
		bank:   bank,
	}
	s.initMetrics()
	return s
}

// Settle pays out the round of claim. The caller must be a timeout
// officer and the round must be Finalized or Expired. It returns the
// settled round and the executed distribution.
func (s *Settler) Settle(c *oracles.Call, claim oracles.ClaimID) (oracles.Round, Distribution, error) {
	if err := s.roles.Require(c.Txn, c.Caller, oracles.TimeoutOfficer); err != nil {
		return oracles.Round{}, Distribution{}, err
	}
	r, err := s.rounds.Load(c, claim)
	if err != nil {
		return oracles.Round{}, Distribution{}, err
	}
	r, err = s.rounds.MarkSettled(c, r)
	if err != nil {
		return oracles.Round{}, Distribution{}, err
	}
	d := Plan(r)
	if d.Total().Cmp(r.Pool()) > 0 {
		return oracles.Round{}, Distribution{}, fmt.Errorf("distribution of claim %s exceeds its pool", claim)
	}
	for _, sh := range d.Voters {
		if err := s.bank.Pay(c, claim, sh.To, sh.Amount, "verifier reward"); err != nil {
			return oracles.Round{}, Distribution{}, err
		}
	}
	if err := s.bank.Pay(c, claim, c.Caller, d.Officer, "timeout reward"); err != nil {
		return oracles.Round{}, Distribution{}, err
	}
	if err := s.bank.Pay(c, claim, r.Funder, d.Refund, "verifier refund"); err != nil {
		return oracles.Round{}, Distribution{}, err
	}

	if c.Now.After(r.FinalizeDeadline.Add(s.params.SettleGrace)) {
		d.Late = true
		log.Warnf("round of claim %s settled %s after its finalize deadline", claim, c.Now.Sub(r.FinalizeDeadline))
		s.metricLate.Add(c.Ctx, 1)
	}
	c.Emit(oracles.Event{Kind: oracles.EventRoundSettled, ClaimID: claim, Status: r.Outcome.String(), Amount: r.Pool()})
	s.metricSettled.Add(c.Ctx, 1, attribute.Key("outcome").String(r.Outcome.String()))
	log.Infof("settled round of claim %s as %s: %d voters rewarded, refund %s", claim, r.Outcome, len(d.Voters), d.Refund)
	return r, d, nil
}
