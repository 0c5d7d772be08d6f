package transferstore

import (
	"math/big"
	"testing"
	"time"

	"github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/require"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/tests"
)

var createAddress = tests.NewAddressGetter("addr")

func TestPut(t *testing.T) {
	t.Parallel()
	s, ds := create(t)
	requirePut(t, s, ds, "addr-a", "addr-b", 100)
}

func TestGet(t *testing.T) {
	t.Parallel()
	s, ds := create(t)
	tr := requirePut(t, s, ds, "addr-a", "addr-b", 100)
	res, err := s.Get(ds, tr.ID)
	require.NoError(t, err)
	require.Equal(t, tr.ID, res.ID)
	require.Equal(t, 0, tr.Amount.Cmp(res.Amount))
	require.Equal(t, tr.From, res.From)
	require.Equal(t, tr.To, res.To)
	require.True(t, res.Time.Equal(tr.Time))

	_, err = s.Get(ds, "missing")
	require.Equal(t, ErrNotFound, err)
}

func TestFrom(t *testing.T) {
	t.Parallel()
	s, ds := create(t)
	addr1 := createAddress()
	addr2 := createAddress()
	requirePut(t, s, ds, addr1, addr2, 100)
	requirePut(t, s, ds, addr1, addr2, 200)
	requirePut(t, s, ds, addr1, addr2, 300)
	requirePut(t, s, ds, addr2, addr1, 400)
	res, err := s.From(ds, addr1)
	require.NoError(t, err)
	require.Len(t, res, 3)
	requireSorted(t, res)
}

func TestTo(t *testing.T) {
	t.Parallel()
	s, ds := create(t)
	addr1 := createAddress()
	addr2 := createAddress()
	requirePut(t, s, ds, addr1, addr2, 100)
	requirePut(t, s, ds, addr1, addr2, 200)
	requirePut(t, s, ds, addr2, addr1, 400)
	res, err := s.To(ds, addr2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	requireSorted(t, res)
}

func TestFromTo(t *testing.T) {
	t.Parallel()
	s, ds := create(t)
	addr1 := createAddress()
	addr2 := createAddress()
	addr3 := createAddress()
	requirePut(t, s, ds, addr1, addr2, 100)
	requirePut(t, s, ds, addr1, addr3, 200)
	requirePut(t, s, ds, addr1, addr2, 300)
	res, err := s.FromTo(ds, addr1, addr2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	requireSorted(t, res)
}

func TestPrefixIsolation(t *testing.T) {
	t.Parallel()
	s, ds := create(t)
	requirePut(t, s, ds, "user1", "user2", 100)
	requirePut(t, s, ds, "user10", "user2", 100)
	res, err := s.From(ds, "user1")
	require.NoError(t, err)
	require.Len(t, res, 1)
}

func create(t *testing.T) (*Store, *tests.TxMapDatastore) {
	t.Helper()
	return New(), tests.NewTxMapDatastore()
}

func requirePut(t *testing.T, s *Store, ds datastore.TxnDatastore, from, to oracles.Address, amt int64) Transfer {
	t.Helper()
	txn, err := ds.NewTransaction(false)
	require.NoError(t, err)
	defer txn.Discard()
	tr, err := s.Put(txn, Transfer{
		From:   from,
		To:     to,
		Amount: big.NewInt(amt),
		Memo:   "test",
		Time:   time.Unix(1600000000+amt, 0),
	})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	require.NotEmpty(t, tr.ID)
	return tr
}

func requireSorted(t *testing.T, ts []Transfer) {
	t.Helper()
	for i := 1; i < len(ts); i++ {
		require.False(t, ts[i].Time.Before(ts[i-1].Time))
	}
}
