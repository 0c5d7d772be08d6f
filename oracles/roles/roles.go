package roles

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/textileio/oraclefs/oracles"
)

var (
	log = logging.Logger("oracles-roles")

	dsBase = datastore.NewKey("roles")
)

// Charger moves the stake of a registering address into escrow.
type Charger interface {
	Charge(c *oracles.Call, amount *big.Int, memo string) error
}

// Entry is the registration of an address.
type Entry struct {
	Address      oracles.Address
	Role         oracles.Role
	Stake        *big.Int
	RegisteredAt time.Time
}

// Registry tracks the role and stake of every registered address.
// A role is chosen once and can't be changed or revoked.
type Registry struct {
	params oracles.Params
	bank   Charger
}

// New returns a new Registry.
func New(params oracles.Params, bank Charger) *Registry {
	return &Registry{
		params: params,
		bank:   bank,
	}
}

// RegisterAs registers the caller with role, charging stake into escrow.
func (r *Registry) RegisterAs(c *oracles.Call, role oracles.Role, stake *big.Int) error {
	if err := c.Caller.Validate(); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("registering as %s: %w", role, oracles.ErrInvalidArgument)
	}
	current, err := r.RoleOf(c.Txn, c.Caller)
	if err != nil {
		return err
	}
	if current != oracles.None {
		return fmt.Errorf("%s is registered as %s: %w", c.Caller, current, oracles.ErrAlreadyRegistered)
	}
	stake = oracles.NonNil(stake)
	if err := oracles.CheckValue(stake, r.params.Stake(role)); err != nil {
		return fmt.Errorf("staking as %s: %w", role, err)
	}
	if stake.Sign() > 0 {
		if err := r.bank.Charge(c, stake, fmt.Sprintf("stake %s", role)); err != nil {
			return err
		}
	}
	e := Entry{
		Address:      c.Caller,
		Role:         role,
		Stake:        stake,
		RegisteredAt: c.Now,
	}
	buf, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling role entry: %s", err)
	}
	if err := c.Txn.Put(makeKey(c.Caller), buf); err != nil {
		return fmt.Errorf("saving role entry: %s", err)
	}
	c.Emit(oracles.Event{Kind: oracles.EventRoleRegistered, Status: role.String(), Amount: stake})
	log.Infof("%s registered as %s", c.Caller, role)
	return nil
}

// Get returns the registration of addr. If there isn't one, it
// returns ErrNotFound.
func (r *Registry) Get(txn datastore.Read, addr oracles.Address) (Entry, error) {
	buf, err := txn.Get(makeKey(addr))
	if err == datastore.ErrNotFound {
		return Entry{}, fmt.Errorf("role of %s: %w", addr, oracles.ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("getting role entry from datastore: %s", err)
	}
	var e Entry
	if err := json.Unmarshal(buf, &e); err != nil {
		return Entry{}, fmt.Errorf("unmarshaling role entry: %s", err)
	}
	return e, nil
}

// RoleOf returns the role of addr, or oracles.None if it isn't registered.
func (r *Registry) RoleOf(txn datastore.Read, addr oracles.Address) (oracles.Role, error) {
	if addr.Validate() != nil {
		return oracles.None, nil
	}
	e, err := r.Get(txn, addr)
	if err == nil {
		return e.Role, nil
	}
	if errors.Is(err, oracles.ErrNotFound) {
		return oracles.None, nil
	}
	return oracles.None, err
}

// IsEligible returns true if addr is registered as role.
func (r *Registry) IsEligible(txn datastore.Read, addr oracles.Address, role oracles.Role) (bool, error) {
	current, err := r.RoleOf(txn, addr)
	if err != nil {
		return false, err
	}
	return current == role, nil
}

// Require returns ErrNotEligible if addr isn't registered as role.
func (r *Registry) Require(txn datastore.Read, addr oracles.Address, role oracles.Role) error {
	ok, err := r.IsEligible(txn, addr, role)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s isn't a %s: %w", addr, role, oracles.ErrNotEligible)
	}
	return nil
}

func makeKey(addr oracles.Address) datastore.Key {
	return dsBase.ChildString(addr.String())
}
