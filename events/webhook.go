package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/textileio/oraclefs/oracles"
)

// Webhook posts events as json to an HTTP endpoint. Delivery is best
// effort and never blocks the publisher.
type Webhook struct {
	endpoint string
	client   *http.Client
	kinds    map[string]struct{}

	queue    chan oracles.Event
	ctx      context.Context
	cancel   context.CancelFunc
	finished chan struct{}
}

var _ Notifier = (*Webhook)(nil)

// NewWebhook returns a Webhook posting to endpoint. If kinds isn't
// empty, only events of those kinds are delivered.
func NewWebhook(endpoint string, kinds []string) *Webhook {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Webhook{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		kinds:    map[string]struct{}{},
		queue:    make(chan oracles.Event, 1000),
		ctx:      ctx,
		cancel:   cancel,
		finished: make(chan struct{}),
	}
	for _, k := range kinds {
		w.kinds[k] = struct{}{}
	}
	go w.run()
	return w
}

// Notify queues e for delivery.
func (w *Webhook) Notify(e oracles.Event) {
	if len(w.kinds) > 0 {
		if _, ok := w.kinds[e.Kind]; !ok {
			return
		}
	}
	select {
	case w.queue <- e:
	default:
		log.Warnf("webhook queue is full, dropping event %d", e.Seq)
	}
}

// Close stops delivering events.
func (w *Webhook) Close() error {
	w.cancel()
	<-w.finished
	return nil
}

func (w *Webhook) run() {
	defer close(w.finished)
	for {
		select {
		case <-w.ctx.Done():
			return
		case e := <-w.queue:
			if err := w.post(e); err != nil {
				log.Errorf("delivering event %d to webhook: %s", e.Seq, err)
			}
		}
	}
}

func (w *Webhook) post(e oracles.Event) error {
	buf, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %s", err)
	}
	req, err := http.NewRequestWithContext(w.ctx, http.MethodPost, w.endpoint, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("creating request: %s", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting event: %s", err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			log.Errorf("closing webhook response body: %s", err)
		}
	}()
	if res.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %s", res.Status)
	}
	return nil
}
