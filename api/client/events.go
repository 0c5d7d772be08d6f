package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/textileio/oraclefs/api"
	"github.com/textileio/oraclefs/oracles"
)

// Events provides the event log api.
type Events struct {
	c *Client
}

// List returns up to limit events with a sequence greater than since.
func (e *Events) List(ctx context.Context, since uint64, limit int) ([]oracles.Event, error) {
	var res api.EventsResponse
	err := e.c.do(ctx, http.MethodGet, fmt.Sprintf("/events?since=%d&limit=%d", since, limit), nil, &res)
	return res.Events, err
}

// Watch is a blocking function that writes every new event to ch until
// ctx is canceled or the gateway closes the stream.
func (e *Events) Watch(ctx context.Context, ch chan<- oracles.Event) error {
	res, err := e.c.request(ctx, e.c.stream, http.MethodGet, "/events/watch", nil)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	dec := json.NewDecoder(res.Body)
	for {
		var ev oracles.Event
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("decoding watched event: %s", err)
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}
