package transferstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
	"github.com/textileio/oraclefs/oracles"
)

var (
	log = logging.Logger("escrow-transferstore")

	// ErrNotFound indicates the transfer doesn't exist.
	ErrNotFound = errors.New("transfer not found")

	dsBaseTransfer  = datastore.NewKey("transfers").ChildString("record")
	dsBaseIndexFrom = datastore.NewKey("transfers").ChildString("index").ChildString("from").String()
	dsBaseIndexTo   = datastore.NewKey("transfers").ChildString("index").ChildString("to").String()
)

// Transfer is a movement of value between two accounts.
type Transfer struct {
	ID      string
	From    oracles.Address
	To      oracles.Address
	Amount  *big.Int
	Memo    string
	ClaimID oracles.ClaimID `json:",omitempty"`
	Time    time.Time
}

// Store keeps the history of transfers with indexes by sender and
// recipient.
type Store struct{}

// New creates a new Store.
func New() *Store {
	return &Store{}
}

// Put saves a transfer within txn and returns it with its assigned id.
func (s *Store) Put(txn datastore.Txn, t Transfer) (Transfer, error) {
	t.ID = uuid.New().String()
	bytes, err := json.Marshal(t)
	if err != nil {
		return Transfer{}, fmt.Errorf("marshaling json: %v", err)
	}
	dataKey := recordKey(t.ID)
	if err := txn.Put(dataKey, bytes); err != nil {
		return Transfer{}, fmt.Errorf("putting transfer: %v", err)
	}
	if err := txn.Put(indexFromKey(t), dataKey.Bytes()); err != nil {
		return Transfer{}, fmt.Errorf("putting from index: %v", err)
	}
	if err := txn.Put(indexToKey(t), dataKey.Bytes()); err != nil {
		return Transfer{}, fmt.Errorf("putting to index: %v", err)
	}
	return t, nil
}

// Get retrieves a transfer by id.
func (s *Store) Get(txn datastore.Read, id string) (Transfer, error) {
	return s.get(txn, recordKey(id))
}

// From returns all transfers sent from addr, oldest first.
func (s *Store) From(txn datastore.Read, addr oracles.Address) ([]Transfer, error) {
	return s.withIndexPrefix(txn, indexFromPrefix(addr))
}

// To returns all transfers received by addr, oldest first.
func (s *Store) To(txn datastore.Read, addr oracles.Address) ([]Transfer, error) {
	return s.withIndexPrefix(txn, indexToPrefix(addr))
}

// FromTo returns all transfers sent from one address to another.
func (s *Store) FromTo(txn datastore.Read, from, to oracles.Address) ([]Transfer, error) {
	return s.withIndexPrefix(txn, indexFromToPrefix(from, to))
}

func (s *Store) withIndexPrefix(txn datastore.Read, prefix string) ([]Transfer, error) {
	q := query.Query{Prefix: prefix + "/"}
	res, err := txn.Query(q)
	if err != nil {
		return nil, fmt.Errorf("querying datastore: %s", err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			log.Errorf("closing index query result: %s", err)
		}
	}()
	var transfers []Transfer
	for r := range res.Next() {
		if r.Error != nil {
			return nil, fmt.Errorf("iter next: %s", r.Error)
		}
		t, err := s.get(txn, datastore.NewKey(string(r.Value)))
		if err != nil {
			return nil, fmt.Errorf("getting transfer: %v", err)
		}
		transfers = append(transfers, t)
	}
	sortByTime(transfers)
	return transfers, nil
}

func (s *Store) get(txn datastore.Read, key datastore.Key) (Transfer, error) {
	bytes, err := txn.Get(key)
	if err == datastore.ErrNotFound {
		return Transfer{}, ErrNotFound
	}
	if err != nil {
		return Transfer{}, fmt.Errorf("getting transfer bytes from ds: %v", err)
	}
	var t Transfer
	if err := json.Unmarshal(bytes, &t); err != nil {
		return Transfer{}, fmt.Errorf("unmarshaling bytes into transfer: %v", err)
	}
	return t, nil
}

func recordKey(id string) datastore.Key {
	return dsBaseTransfer.ChildString(id)
}

func indexFromPrefix(from oracles.Address) string {
	return fmt.Sprintf("%s/%s", dsBaseIndexFrom, from)
}

func indexToPrefix(to oracles.Address) string {
	return fmt.Sprintf("%s/%s", dsBaseIndexTo, to)
}

func indexFromToPrefix(from, to oracles.Address) string {
	return fmt.Sprintf("%s/%s", indexFromPrefix(from), to)
}

func indexToFromPrefix(to, from oracles.Address) string {
	return fmt.Sprintf("%s/%s", indexToPrefix(to), from)
}

func indexFromKey(t Transfer) datastore.Key {
	return datastore.NewKey(indexFromToPrefix(t.From, t.To)).ChildString(fmt.Sprintf("%020d", t.Time.UnixNano())).ChildString(t.ID)
}

func indexToKey(t Transfer) datastore.Key {
	return datastore.NewKey(indexToFromPrefix(t.To, t.From)).ChildString(fmt.Sprintf("%020d", t.Time.UnixNano())).ChildString(t.ID)
}
