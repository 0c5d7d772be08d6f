package oracles

import (
	"fmt"
	"math/big"
	"time"
)

// Params are the protocol windows and thresholds.
type Params struct {
	// ResponseWindow is how long a round accepts votes after opening.
	ResponseWindow time.Duration
	// FinalizeWindow is how long voters can finalize after the
	// response deadline.
	FinalizeWindow time.Duration
	// SettleGrace is the extra time after the finalize deadline in
	// which settlement is expected. Later settlements still succeed.
	SettleGrace time.Duration
	// MinVotes is the number of finalized votes needed to accept.
	MinVotes int
	// MinWorkTime is the minimum time between claiming and completing
	// a re-encryption job.
	MinWorkTime time.Duration
	// ClaimTimeout is how long a claimant holds a job.
	ClaimTimeout time.Duration
	// MinStake is the stake charged when registering as a role.
	MinStake map[Role]*big.Int
}

// DefaultParams returns the default protocol parameters.
func DefaultParams() Params {
	return Params{
		ResponseWindow: time.Hour,
		FinalizeWindow: time.Hour,
		SettleGrace:    24 * time.Hour,
		MinVotes:       1,
		MinWorkTime:    5 * time.Minute,
		ClaimTimeout:   30 * time.Minute,
		MinStake:       map[Role]*big.Int{},
	}
}

// Stake returns the stake required for role.
func (p Params) Stake(r Role) *big.Int {
	if s, ok := p.MinStake[r]; ok && s != nil {
		return s
	}
	return new(big.Int)
}

// Validate checks that the windows are usable.
func (p Params) Validate() error {
	if p.ResponseWindow <= 0 || p.FinalizeWindow <= 0 {
		return fmt.Errorf("response and finalize windows must be positive")
	}
	if p.SettleGrace < 0 {
		return fmt.Errorf("settle grace can't be negative")
	}
	if p.MinVotes < 0 {
		return fmt.Errorf("min votes can't be negative")
	}
	if p.MinWorkTime < 0 || p.ClaimTimeout <= p.MinWorkTime {
		return fmt.Errorf("claim timeout must be greater than min work time")
	}
	for r, s := range p.MinStake {
		if !r.Valid() || (s != nil && s.Sign() < 0) {
			return fmt.Errorf("invalid stake for role %s", r)
		}
	}
	return nil
}
