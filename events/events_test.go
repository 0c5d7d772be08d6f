package events

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	"github.com/stretchr/testify/require"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/tests"
)

var bigComparer = cmp.Comparer(func(a, b *big.Int) bool {
	return oracles.NonNil(a).Cmp(oracles.NonNil(b)) == 0
})

func appendCommitted(t *testing.T, l *Log, ds *tests.TxMapDatastore, evs ...oracles.Event) []oracles.Event {
	t.Helper()
	txn, err := ds.NewTransaction(false)
	require.NoError(t, err)
	defer txn.Discard()
	res, err := l.Append(txn, evs)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	l.Publish(res)
	return res
}

func TestAppendAndList(t *testing.T) {
	t.Parallel()
	ds := tests.NewTxMapDatastore()
	l := New()
	defer func() { require.NoError(t, l.Close()) }()
	now := tests.NewClock().Now()

	first := appendCommitted(t, l, ds,
		oracles.Event{Kind: oracles.EventRoundOpened, ClaimID: 1, Time: now},
		oracles.Event{Kind: oracles.EventVoteCommitted, ClaimID: 1, Actor: "v1", Status: "accept", Time: now},
	)
	second := appendCommitted(t, l, ds, oracles.Event{Kind: oracles.EventRoundStatus, ClaimID: 1, Status: "finalized", Time: now})

	require.Equal(t, uint64(1), first[0].Seq)
	require.Equal(t, uint64(3), second[0].Seq)
	for _, e := range append(first, second...) {
		_, err := cid.Decode(e.ID)
		require.NoError(t, err)
	}
	require.NotEqual(t, first[0].ID, first[1].ID)

	all, err := l.List(ds, 0, 0)
	require.NoError(t, err)
	want := append(append([]oracles.Event{}, first...), second...)
	if diff := cmp.Diff(want, all, bigComparer); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	page, err := l.List(ds, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, uint64(2), page[0].Seq)
}

// countingRead counts the reads issued against a datastore.
type countingRead struct {
	datastore.Read
	gets    int
	queries int
}

func (r *countingRead) Get(key datastore.Key) ([]byte, error) {
	r.gets++
	return r.Read.Get(key)
}

func (r *countingRead) Query(q query.Query) (query.Results, error) {
	r.queries++
	return r.Read.Query(q)
}

func TestListReadsOnlyRequestedEvents(t *testing.T) {
	t.Parallel()
	ds := tests.NewTxMapDatastore()
	l := New()
	defer func() { require.NoError(t, l.Close()) }()
	now := tests.NewClock().Now()
	for i := 0; i < 50; i++ {
		appendCommitted(t, l, ds, oracles.Event{Kind: oracles.EventDeposit, Subject: "alice", Time: now})
	}

	r := &countingRead{Read: ds}
	tail, err := l.List(r, 45, 0)
	require.NoError(t, err)
	require.Len(t, tail, 5)
	require.Equal(t, uint64(46), tail[0].Seq)
	require.Equal(t, uint64(50), tail[4].Seq)
	require.Equal(t, 6, r.gets)
	require.Equal(t, 0, r.queries)

	page, err := l.List(ds, 10, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.Equal(t, uint64(11), page[0].Seq)
	require.Equal(t, uint64(13), page[2].Seq)

	empty, err := l.List(ds, 50, 10)
	require.NoError(t, err)
	require.Empty(t, empty)

	empty, err = l.List(tests.NewTxMapDatastore(), 0, 0)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestDiscardedEventsAreNotPersisted(t *testing.T) {
	t.Parallel()
	ds := tests.NewTxMapDatastore()
	l := New()
	txn, err := ds.NewTransaction(false)
	require.NoError(t, err)
	_, err = l.Append(txn, []oracles.Event{{Kind: oracles.EventDeposit}})
	require.NoError(t, err)
	txn.Discard()

	evs, err := l.List(ds, 0, 0)
	require.NoError(t, err)
	require.Empty(t, evs)
	res := appendCommitted(t, l, ds, oracles.Event{Kind: oracles.EventDeposit})
	require.Equal(t, uint64(1), res[0].Seq)
}

func TestWatchAndListen(t *testing.T) {
	t.Parallel()
	ds := tests.NewTxMapDatastore()
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan oracles.Event, 10)
	watching := make(chan error)
	go func() { watching <- l.Watch(ctx, ch) }()
	sig := l.Listen()

	// Wait until the watcher is registered.
	require.Eventually(t, func() bool {
		l.lock.Lock()
		defer l.lock.Unlock()
		return len(l.watchers) == 1
	}, time.Second, 10*time.Millisecond)

	appendCommitted(t, l, ds, oracles.Event{Kind: oracles.EventJobOpened, ClaimID: 2})
	select {
	case e := <-ch:
		require.Equal(t, oracles.EventJobOpened, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("event wasn't delivered")
	}
	select {
	case <-sig:
	case <-time.After(time.Second):
		t.Fatal("listener wasn't signaled")
	}

	cancel()
	require.NoError(t, <-watching)
	l.Unregister(sig)
	_, ok := <-sig
	require.False(t, ok)
	require.NoError(t, l.Close())
}

func TestWebhook(t *testing.T) {
	t.Parallel()
	received := make(chan oracles.Event, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e oracles.Event
		if err := json.NewDecoder(r.Body).Decode(&e); err == nil {
			received <- e
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, []string{oracles.EventRoundSettled})
	defer func() { require.NoError(t, wh.Close()) }()
	ds := tests.NewTxMapDatastore()
	l := New(wh)
	appendCommitted(t, l, ds,
		oracles.Event{Kind: oracles.EventVoteCommitted, ClaimID: 1},
		oracles.Event{Kind: oracles.EventRoundSettled, ClaimID: 1, Status: "accepted"},
	)
	select {
	case e := <-received:
		require.Equal(t, oracles.EventRoundSettled, e.Kind)
		require.Equal(t, uint64(2), e.Seq)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook wasn't called")
	}
	select {
	case e := <-received:
		t.Fatalf("unexpected event %s", e.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}
