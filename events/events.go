package events

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	logging "github.com/ipfs/go-log/v2"
	"github.com/multiformats/go-multihash"
	"github.com/textileio/oraclefs/oracles"
)

var (
	log = logging.Logger("events")

	dsSeq     = datastore.NewKey("events").ChildString("seq")
	dsBaseLog = datastore.NewKey("events").ChildString("log")
)

// Notifier receives every committed event.
type Notifier interface {
	Notify(e oracles.Event)
}

// Log is a datastore backed event log. Events are persisted as part of
// the call that emitted them and published to watchers once the call
// commits.
type Log struct {
	notifiers []Notifier

	lock      sync.Mutex
	watchers  []chan oracles.Event
	listeners []chan struct{}
	closed    bool
}

// New returns a new Log that also forwards events to notifiers.
func New(notifiers ...Notifier) *Log {
	return &Log{
		notifiers: notifiers,
	}
}

// Append assigns sequence numbers and ids to evs and saves them in txn.
func (l *Log) Append(txn datastore.Txn, evs []oracles.Event) ([]oracles.Event, error) {
	ret := make([]oracles.Event, len(evs))
	for i, e := range evs {
		seq, err := oracles.NextSeq(txn, dsSeq)
		if err != nil {
			return nil, err
		}
		e.Seq = seq
		e.ID = ""
		id, err := eventID(e)
		if err != nil {
			return nil, err
		}
		e.ID = id
		buf, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshaling event: %s", err)
		}
		if err := txn.Put(eventKey(seq), buf); err != nil {
			return nil, fmt.Errorf("saving event to datastore: %s", err)
		}
		ret[i] = e
	}
	return ret, nil
}

// Publish delivers committed events to watchers, wakes up listeners and
// forwards them to notifiers.
func (l *Log) Publish(evs []oracles.Event) {
	if len(evs) == 0 {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed {
		return
	}
	for _, e := range evs {
		for _, w := range l.watchers {
			select {
			case w <- e:
			default:
				log.Warn("slow event receiver")
			}
		}
		for _, n := range l.notifiers {
			n.Notify(e)
		}
	}
	for _, c := range l.listeners {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

// List returns up to limit events with a sequence number greater than
// since. A limit of zero returns every event. Sequence numbers are
// contiguous, so only the returned events are read.
func (l *Log) List(txn datastore.Read, since uint64, limit int) ([]oracles.Event, error) {
	head, err := l.head(txn)
	if err != nil {
		return nil, err
	}
	if since >= head {
		return nil, nil
	}
	last := head
	if limit > 0 && head-since > uint64(limit) {
		last = since + uint64(limit)
	}
	evs := make([]oracles.Event, 0, last-since)
	for seq := since + 1; seq <= last; seq++ {
		buf, err := txn.Get(eventKey(seq))
		if err != nil {
			return nil, fmt.Errorf("getting event %d: %s", seq, err)
		}
		var e oracles.Event
		if err := json.Unmarshal(buf, &e); err != nil {
			return nil, fmt.Errorf("unmarshaling event: %s", err)
		}
		evs = append(evs, e)
	}
	return evs, nil
}

// head returns the sequence number of the last appended event.
func (l *Log) head(txn datastore.Read) (uint64, error) {
	buf, err := txn.Get(dsSeq)
	if err == datastore.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting event sequence: %s", err)
	}
	if len(buf) != 8 {
		return 0, fmt.Errorf("corrupted event sequence")
	}
	return binary.BigEndian.Uint64(buf), nil
}

// Watch is a blocking function that writes to the channel all new
// published events. The client should cancel the ctx to stop writing to
// the channel and free resources.
func (l *Log) Watch(ctx context.Context, c chan<- oracles.Event) error {
	l.lock.Lock()
	if l.closed {
		l.lock.Unlock()
		return fmt.Errorf("event log is closed")
	}
	ic := make(chan oracles.Event, 100)
	l.watchers = append(l.watchers, ic)
	l.lock.Unlock()

	defer l.removeWatcher(ic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ic:
			if !ok {
				return fmt.Errorf("event log was closed with a listening client")
			}
			select {
			case c <- e:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Listen returns a channel that is signaled after every publication.
// Signals are coalesced, so a slow listener sees at most one pending.
func (l *Log) Listen() <-chan struct{} {
	c := make(chan struct{}, 1)
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed {
		close(c)
		return c
	}
	l.listeners = append(l.listeners, c)
	return c
}

// Unregister stops signaling a channel returned by Listen and closes it.
func (l *Log) Unregister(c <-chan struct{}) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for i := range l.listeners {
		if l.listeners[i] == c {
			close(l.listeners[i])
			l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
			return
		}
	}
}

// Close closes every watcher and listener.
func (l *Log) Close() error {
	log.Info("closing...")
	defer log.Info("closed")
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for _, w := range l.watchers {
		close(w)
	}
	for _, c := range l.listeners {
		close(c)
	}
	l.watchers = nil
	l.listeners = nil
	return nil
}

func (l *Log) removeWatcher(ic chan oracles.Event) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for i := range l.watchers {
		if l.watchers[i] == ic {
			l.watchers = append(l.watchers[:i], l.watchers[i+1:]...)
			return
		}
	}
}

// eventID returns the cid of the json encoding of e.
func eventID(e oracles.Event) (string, error) {
	buf, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshaling event: %s", err)
	}
	mh, err := multihash.Sum(buf, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hashing event: %s", err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

func eventKey(seq uint64) datastore.Key {
	return dsBaseLog.ChildString(fmt.Sprintf("%020d", seq))
}
