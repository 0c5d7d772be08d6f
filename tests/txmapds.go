package tests

import (
	"fmt"
	"sync"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
)

// TxMapDatastore is a in-memory datastore that satisfies TxnDatastore.
type TxMapDatastore struct {
	*datastore.MapDatastore
	lock sync.RWMutex
}

var _ datastore.TxnDatastore = (*TxMapDatastore)(nil)

// NewTxMapDatastore returns a new TxMapDatastore.
func NewTxMapDatastore() *TxMapDatastore {
	return &TxMapDatastore{
		MapDatastore: datastore.NewMapDatastore(),
	}
}

// Get returns the value for a key.
func (d *TxMapDatastore) Get(key datastore.Key) ([]byte, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.MapDatastore.Get(key)
}

// Has returns true if the key exists.
func (d *TxMapDatastore) Has(key datastore.Key) (bool, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.MapDatastore.Has(key)
}

// Put sets the value of a key.
func (d *TxMapDatastore) Put(key datastore.Key, data []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.MapDatastore.Put(key, data)
}

// Delete deletes a key.
func (d *TxMapDatastore) Delete(key datastore.Key) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.MapDatastore.Delete(key)
}

// Query executes a query in the datastore. Results are materialized so
// the caller can write while iterating.
func (d *TxMapDatastore) Query(q query.Query) (query.Results, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	res, err := d.MapDatastore.Query(query.Query{Prefix: q.Prefix})
	if err != nil {
		return nil, err
	}
	entries, err := res.Rest()
	if err != nil {
		return nil, fmt.Errorf("iterating map query: %s", err)
	}
	return query.NaiveQueryApply(q, query.ResultsWithEntries(q, entries)), nil
}

// Len returns the number of stored keys.
func (d *TxMapDatastore) Len() int {
	res, err := d.Query(query.Query{KeysOnly: true})
	if err != nil {
		return 0
	}
	entries, _ := res.Rest()
	return len(entries)
}

// NewTransaction creates a transaction. Writes are buffered until
// Commit and are visible to reads of the same transaction.
func (d *TxMapDatastore) NewTransaction(readOnly bool) (datastore.Txn, error) {
	return &simpleTx{
		ops:      make(map[datastore.Key]op),
		target:   d,
		readOnly: readOnly,
	}, nil
}

type op struct {
	delete bool
	value  []byte
}

type simpleTx struct {
	lock     sync.RWMutex
	ops      map[datastore.Key]op
	target   *TxMapDatastore
	readOnly bool
	done     bool
}

func (bt *simpleTx) Get(k datastore.Key) ([]byte, error) {
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	if o, ok := bt.ops[k]; ok {
		if o.delete {
			return nil, datastore.ErrNotFound
		}
		return o.value, nil
	}
	return bt.target.Get(k)
}

func (bt *simpleTx) Has(k datastore.Key) (bool, error) {
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	if o, ok := bt.ops[k]; ok {
		return !o.delete, nil
	}
	return bt.target.Has(k)
}

func (bt *simpleTx) GetSize(k datastore.Key) (int, error) {
	v, err := bt.Get(k)
	if err != nil {
		return -1, err
	}
	return len(v), nil
}

func (bt *simpleTx) Query(q query.Query) (query.Results, error) {
	bt.lock.RLock()
	defer bt.lock.RUnlock()
	res, err := bt.target.Query(query.Query{Prefix: q.Prefix})
	if err != nil {
		return nil, err
	}
	entries, err := res.Rest()
	if err != nil {
		return nil, fmt.Errorf("iterating target query: %s", err)
	}
	merged := make(map[string]query.Entry, len(entries))
	for _, e := range entries {
		merged[e.Key] = e
	}
	for k, o := range bt.ops {
		if o.delete {
			delete(merged, k.String())
			continue
		}
		merged[k.String()] = query.Entry{Key: k.String(), Value: o.value, Size: len(o.value)}
	}
	all := make([]query.Entry, 0, len(merged))
	for _, e := range merged {
		all = append(all, e)
	}
	return query.NaiveQueryApply(q, query.ResultsWithEntries(q, all)), nil
}

func (bt *simpleTx) Put(key datastore.Key, val []byte) error {
	bt.lock.Lock()
	defer bt.lock.Unlock()
	if bt.readOnly {
		return fmt.Errorf("put in read-only transaction")
	}
	bt.ops[key] = op{value: val}
	return nil
}

func (bt *simpleTx) Delete(key datastore.Key) error {
	bt.lock.Lock()
	defer bt.lock.Unlock()
	if bt.readOnly {
		return fmt.Errorf("delete in read-only transaction")
	}
	bt.ops[key] = op{delete: true}
	return nil
}

func (bt *simpleTx) Discard() {
	bt.lock.Lock()
	defer bt.lock.Unlock()
	bt.ops = map[datastore.Key]op{}
	bt.done = true
}

func (bt *simpleTx) Commit() error {
	bt.lock.Lock()
	defer bt.lock.Unlock()
	if bt.done {
		return fmt.Errorf("transaction already finished")
	}
	bt.done = true
	bt.target.lock.Lock()
	defer bt.target.lock.Unlock()
	for k, op := range bt.ops {
		var err error
		if op.delete {
			err = bt.target.MapDatastore.Delete(k)
		} else {
			err = bt.target.MapDatastore.Put(k, op.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
