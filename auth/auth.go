package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	"github.com/textileio/oraclefs/oracles"
)

var (
	// ErrNotFound indicates that the auth-token isn't registered.
	ErrNotFound = errors.New("auth token not found")

	dsBase = ds.NewKey("auth")
	log    = logging.Logger("auth")
)

// Auth maps auth-tokens to the Address that the gateway acts as
// when a request carries the token.
type Auth struct {
	lock sync.Mutex
	ds   ds.Datastore
}

// Entry is a registered auth-token.
type Entry struct {
	Token   string
	Address oracles.Address
}

// New returns a new Auth.
func New(store ds.Datastore) *Auth {
	return &Auth{
		ds: store,
	}
}

// Generate generates a new auth-token mapped to addr.
func (r *Auth) Generate(addr oracles.Address) (string, error) {
	if err := addr.Validate(); err != nil {
		return "", err
	}
	log.Infof("generating auth-token for %s", addr)
	r.lock.Lock()
	defer r.lock.Unlock()
	e := Entry{
		Token:   uuid.New().String(),
		Address: addr,
	}
	buf, err := json.Marshal(&e)
	if err != nil {
		return "", fmt.Errorf("marshaling new auth token for %s: %s", addr, err)
	}
	if err := r.ds.Put(makeKey(e.Token), buf); err != nil {
		return "", fmt.Errorf("saving generated token for %s to datastore: %s", addr, err)
	}
	return e.Token, nil
}

// Get returns the Address associated with token.
// It returns ErrNotFound if there isn't such.
func (r *Auth) Get(token string) (oracles.Address, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	buf, err := r.ds.Get(makeKey(token))
	if err == ds.ErrNotFound {
		return oracles.EmptyAddress, ErrNotFound
	}
	if err != nil {
		return oracles.EmptyAddress, fmt.Errorf("getting token %s from datastore: %s", token, err)
	}
	var e Entry
	if err := json.Unmarshal(buf, &e); err != nil {
		return oracles.EmptyAddress, fmt.Errorf("unmarshaling %s information from datastore: %s", token, err)
	}
	return e.Address, nil
}

// Revoke removes token. It returns ErrNotFound if it wasn't registered.
func (r *Auth) Revoke(token string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	k := makeKey(token)
	exists, err := r.ds.Has(k)
	if err != nil {
		return fmt.Errorf("checking token %s in datastore: %s", token, err)
	}
	if !exists {
		return ErrNotFound
	}
	if err := r.ds.Delete(k); err != nil {
		return fmt.Errorf("deleting token %s from datastore: %s", token, err)
	}
	return nil
}

// List returns every registered auth-token.
func (r *Auth) List() ([]Entry, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	res, err := r.ds.Query(query.Query{Prefix: dsBase.String()})
	if err != nil {
		return nil, fmt.Errorf("querying auth tokens: %s", err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			log.Errorf("closing auth tokens query result: %s", err)
		}
	}()
	var ret []Entry
	for v := range res.Next() {
		if v.Error != nil {
			return nil, fmt.Errorf("iterating auth tokens: %s", v.Error)
		}
		var e Entry
		if err := json.Unmarshal(v.Value, &e); err != nil {
			return nil, fmt.Errorf("unmarshaling auth token: %s", err)
		}
		ret = append(ret, e)
	}
	return ret, nil
}

func makeKey(token string) ds.Key {
	return dsBase.ChildString(token)
}
