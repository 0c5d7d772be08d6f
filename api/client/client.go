package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/textileio/oraclefs/api"
	"github.com/textileio/oraclefs/buildinfo"
	"github.com/textileio/oraclefs/oracles"
)

// Client provides the client api.
type Client struct {
	Admin  *Admin
	Escrow *Escrow
	Files  *Files
	Oracle *Oracle
	Events *Events

	base   string
	token  string
	http   *http.Client
	stream *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken authenticates mutating calls with an auth-token. Admin
// calls use it as the admin token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient returns a client of the gateway at target, which can be a
// host:port or a full URL.
func NewClient(target string, opts ...Option) (*Client, error) {
	if !strings.Contains(target, "://") {
		target = "http://" + target
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parsing gateway address: %s", err)
	}
	c := &Client{
		base: strings.TrimSuffix(u.String(), "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stream = &http.Client{Transport: c.http.Transport}
	c.Admin = &Admin{c: c}
	c.Escrow = &Escrow{c: c}
	c.Files = &Files{c: c}
	c.Oracle = &Oracle{c: c}
	c.Events = &Events{c: c}
	return c, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Health returns nil if the gateway is serving.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// BuildInfo returns build information of the daemon.
func (c *Client) BuildInfo(ctx context.Context) (buildinfo.Info, error) {
	var res buildinfo.Info
	err := c.do(ctx, http.MethodGet, "/buildinfo", nil, &res)
	return res, err
}

// Params returns the protocol parameters of the registry.
func (c *Client) Params(ctx context.Context) (oracles.Params, error) {
	var res oracles.Params
	err := c.do(ctx, http.MethodGet, "/params", nil, &res)
	return res, err
}

func (c *Client) request(ctx context.Context, hc *http.Client, method, path string, body interface{}) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %s", err)
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %s", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		defer func() { _ = res.Body.Close() }()
		return nil, decodeError(res)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	res, err := c.request(ctx, c.http, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %s", err)
	}
	return nil
}

// decodeError rebuilds a gateway error so errors.Is matches the
// taxonomy sentinels.
func decodeError(res *http.Response) error {
	var e api.ErrorResponse
	if err := json.NewDecoder(res.Body).Decode(&e); err != nil || e.Error == "" {
		return fmt.Errorf("gateway returned %s", res.Status)
	}
	if sentinel := oracles.KindErr(e.Kind); sentinel != nil {
		return &Error{Status: res.StatusCode, Message: e.Error, err: sentinel}
	}
	return &Error{Status: res.StatusCode, Message: e.Error}
}

// Error is a failed gateway call.
type Error struct {
	Status  int
	Message string
	err     error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the taxonomy sentinel of the error, if any.
func (e *Error) Unwrap() error {
	return e.err
}

func claimPath(format string, id oracles.ClaimID, a ...interface{}) string {
	return fmt.Sprintf(format, append([]interface{}{id}, a...)...)
}
