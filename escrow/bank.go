package escrow

import (
	"fmt"
	"math/big"

	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/textileio/oraclefs/escrow/transferstore"
	"github.com/textileio/oraclefs/oracles"
	"go.opentelemetry.io/otel/metric"
)

var (
	log = logging.Logger("escrow")

	dsBaseBalance = datastore.NewKey("escrow").ChildString("balance")
)

const (
	// HeldAccount is the account holding escrowed funds.
	HeldAccount = oracles.EscrowAddress
	// MintAccount is the source of deposited funds.
	MintAccount = oracles.MintAddress
)

// Bank keeps account balances and the escrow account. It is the value
// transfer primitive of the registry: calls attach funds that are
// charged into escrow and later paid out to specific addresses.
type Bank struct {
	transfers *transferstore.Store

	metricCharged metric.Int64Counter
	metricPaid    metric.Int64Counter
}

// New returns a new Bank.
func New() *Bank {
	b := &Bank{
		transfers: transferstore.New(),
	}
	b.initMetrics()
	return b
}

// Balance returns the balance of addr.
func (b *Bank) Balance(txn datastore.Read, addr oracles.Address) (*big.Int, error) {
	buf, err := txn.Get(balanceKey(addr))
	if err == datastore.ErrNotFound {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting balance from datastore: %s", err)
	}
	bal, ok := new(big.Int).SetString(string(buf), 10)
	if !ok {
		return nil, fmt.Errorf("corrupted balance of %s", addr)
	}
	return bal, nil
}

// Held returns the total escrowed funds.
func (b *Bank) Held(txn datastore.Read) (*big.Int, error) {
	return b.Balance(txn, HeldAccount)
}

// Deposit credits amount to addr. It stands in for the native funds of
// the host ledger.
func (b *Bank) Deposit(c *oracles.Call, to oracles.Address, amount *big.Int) error {
	if err := to.Validate(); err != nil {
		return err
	}
	if err := oracles.RequireAmount("deposit", amount); err != nil {
		return err
	}
	if err := b.move(c, MintAccount, to, amount, "deposit", oracles.EmptyClaimID); err != nil {
		return err
	}
	c.Emit(oracles.Event{Kind: oracles.EventDeposit, Subject: to, Amount: amount})
	return nil
}

// Charge moves amount from the caller into escrow.
func (b *Bank) Charge(c *oracles.Call, amount *big.Int, memo string) error {
	return b.ChargeFor(c, oracles.EmptyClaimID, amount, memo)
}

// ChargeFor moves amount from the caller into escrow on behalf of a claim.
func (b *Bank) ChargeFor(c *oracles.Call, claim oracles.ClaimID, amount *big.Int, memo string) error {
	if err := oracles.RequireAmount(memo, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if c.Caller.Reserved() {
		return fmt.Errorf("reserved account %s can't be charged: %w", c.Caller, oracles.ErrNotEligible)
	}
	if err := b.move(c, c.Caller, HeldAccount, amount, memo, claim); err != nil {
		return err
	}
	b.metricCharged.Add(c.Ctx, counterValue(amount))
	return nil
}

// Pay moves amount out of escrow to addr. It fails if escrow doesn't
// hold enough funds, which leaves the whole call without effect.
func (b *Bank) Pay(c *oracles.Call, claim oracles.ClaimID, to oracles.Address, amount *big.Int, memo string) error {
	if err := to.Validate(); err != nil {
		return err
	}
	if err := oracles.RequireAmount(memo, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := b.move(c, HeldAccount, to, amount, memo, claim); err != nil {
		return fmt.Errorf("paying %s: %s", memo, err)
	}
	c.Emit(oracles.Event{Kind: oracles.EventPayout, ClaimID: claim, Subject: to, Status: memo, Amount: amount})
	b.metricPaid.Add(c.Ctx, counterValue(amount))
	log.Debugf("paid %s to %s for %s", amount, to, memo)
	return nil
}

// TransfersFrom returns the transfers sent by addr.
func (b *Bank) TransfersFrom(txn datastore.Read, addr oracles.Address) ([]transferstore.Transfer, error) {
	return b.transfers.From(txn, addr)
}

// TransfersTo returns the transfers received by addr.
func (b *Bank) TransfersTo(txn datastore.Read, addr oracles.Address) ([]transferstore.Transfer, error) {
	return b.transfers.To(txn, addr)
}

func (b *Bank) move(c *oracles.Call, from, to oracles.Address, amount *big.Int, memo string, claim oracles.ClaimID) error {
	if from != MintAccount {
		bal, err := b.Balance(c.Txn, from)
		if err != nil {
			return err
		}
		if bal.Cmp(amount) < 0 {
			return fmt.Errorf("%s has %s, needs %s for %s: %w", from, bal, amount, memo, oracles.ErrInsufficientFunds)
		}
		if err := b.setBalance(c.Txn, from, bal.Sub(bal, amount)); err != nil {
			return err
		}
	}
	bal, err := b.Balance(c.Txn, to)
	if err != nil {
		return err
	}
	if err := b.setBalance(c.Txn, to, bal.Add(bal, amount)); err != nil {
		return err
	}
	t := transferstore.Transfer{
		From:    from,
		To:      to,
		Amount:  new(big.Int).Set(amount),
		Memo:    memo,
		ClaimID: claim,
		Time:    c.Now,
	}
	if _, err := b.transfers.Put(c.Txn, t); err != nil {
		return fmt.Errorf("recording transfer: %s", err)
	}
	return nil
}

func (b *Bank) setBalance(txn datastore.Txn, addr oracles.Address, bal *big.Int) error {
	if err := txn.Put(balanceKey(addr), []byte(bal.String())); err != nil {
		return fmt.Errorf("saving balance: %s", err)
	}
	return nil
}

func balanceKey(addr oracles.Address) datastore.Key {
	return dsBaseBalance.ChildString(addr.String())
}
