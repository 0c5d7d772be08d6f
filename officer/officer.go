package officer

import (
	"context"
	"errors"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/oracles/settlement"
)

var log = logging.Logger("officer")

// Host is the registry the officer settles rounds on.
type Host interface {
	SettleableRounds() ([]oracles.Round, error)
	Settle(ctx context.Context, caller oracles.Address, claim oracles.ClaimID) (oracles.Round, settlement.Distribution, error)
	Listen() <-chan struct{}
	Unregister(c <-chan struct{})
}

// Officer is a timeout officer that settles every settleable round. It
// runs on a fixed interval and after every committed call of the host.
type Officer struct {
	host     Host
	addr     oracles.Address
	interval time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	finished chan struct{}
}

// New starts an officer settling rounds as addr, which must be
// registered as a timeout officer.
func New(host Host, addr oracles.Address, interval time.Duration) (*Officer, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Officer{
		host:     host,
		addr:     addr,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		finished: make(chan struct{}),
	}
	go o.run(host.Listen())
	return o, nil
}

// SettleAll settles every round that is settleable now and returns how
// many were settled.
func (o *Officer) SettleAll(ctx context.Context) (int, error) {
	rs, err := o.host.SettleableRounds()
	if err != nil {
		return 0, fmt.Errorf("listing settleable rounds: %s", err)
	}
	var n int
	for _, r := range rs {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		rd, d, err := o.host.Settle(ctx, o.addr, r.ClaimID)
		if errors.Is(err, oracles.ErrAlreadySettled) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("settling round of claim %s: %w", r.ClaimID, err)
		}
		n++
		log.Infof("settled claim %s as %s, earned %s", rd.ClaimID, rd.Outcome, d.Officer)
	}
	return n, nil
}

// Close stops the officer.
func (o *Officer) Close() error {
	log.Info("closing...")
	defer log.Info("closed")
	o.cancel()
	<-o.finished
	return nil
}

func (o *Officer) run(sig <-chan struct{}) {
	defer close(o.finished)
	defer o.host.Unregister(sig)
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			log.Info("graceful shutdown of officer")
			return
		case _, ok := <-sig:
			if !ok {
				log.Info("host closed, stopping officer")
				return
			}
		case <-ticker.C:
		}
		if _, err := o.SettleAll(o.ctx); err != nil {
			if errors.Is(err, oracles.ErrNotEligible) {
				log.Errorf("%s isn't a timeout officer, stopping", o.addr)
				return
			}
			log.Errorf("settling rounds: %s", err)
		}
	}
}
