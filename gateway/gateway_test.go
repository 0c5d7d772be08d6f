package gateway

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/textileio/oraclefs/api"
	"github.com/textileio/oraclefs/auth"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/registry"
	"github.com/textileio/oraclefs/tests"
)

const adminToken = "admin-secret"

type harness struct {
	t     *testing.T
	clock *tests.Clock
	srv   *httptest.Server
}

func setup(t *testing.T) *harness {
	t.Helper()
	ds := tests.NewTxMapDatastore()
	clock := tests.NewClock()
	reg, err := registry.New(ds, clock, oracles.DefaultParams())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reg.Close()) })
	g := New("127.0.0.1:0", reg, auth.New(ds), adminToken)
	srv := httptest.NewServer(g.router)
	t.Cleanup(srv.Close)
	return &harness{t: t, clock: clock, srv: srv}
}

func (h *harness) do(method, path, token string, body, out interface{}) int {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := h.srv.Client().Do(req)
	require.NoError(h.t, err)
	defer func() { require.NoError(h.t, res.Body.Close()) }()
	if out != nil && res.StatusCode != http.StatusNoContent {
		require.NoError(h.t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

// user issues a token for addr, funds it and registers it with role.
func (h *harness) user(addr oracles.Address, role oracles.Role, funds int64) string {
	h.t.Helper()
	var tok api.TokenResponse
	require.Equal(h.t, http.StatusOK, h.do(http.MethodPost, "/admin/tokens", adminToken, api.TokenRequest{Address: addr}, &tok))
	if funds > 0 {
		var bal api.AmountResponse
		require.Equal(h.t, http.StatusOK, h.do(http.MethodPost, "/admin/deposit", adminToken, api.DepositRequest{Address: addr, Amount: big.NewInt(funds)}, &bal))
		tests.RequireAmount(h.t, funds, bal.Amount)
	}
	require.Equal(h.t, http.StatusOK, h.do(http.MethodPost, "/register", tok.Token, api.RegisterRequest{Role: role.String()}, nil))
	return tok.Token
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := setup(t)
	require.Equal(t, http.StatusNoContent, h.do(http.MethodGet, "/health", "", nil, nil))
}

func TestAuthentication(t *testing.T) {
	t.Parallel()
	h := setup(t)

	var e api.ErrorResponse
	require.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/register", "", api.RegisterRequest{Role: "user"}, &e))
	require.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/register", "bogus", api.RegisterRequest{Role: "user"}, &e))
	require.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/admin/tokens", "bogus", api.TokenRequest{Address: "alice"}, &e))

	tok := h.user("alice", oracles.User, 0)
	var role api.RoleResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/roles/alice", "", nil, &role))
	require.Equal(t, "user", role.Role)

	e = api.ErrorResponse{}
	require.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/register", tok, api.RegisterRequest{Role: "verifier"}, &e))
	require.Equal(t, "AlreadyRegistered", e.Kind)

	var tokens api.TokensResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/admin/tokens", adminToken, nil, &tokens))
	require.Len(t, tokens.Tokens, 1)
	require.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/admin/tokens/"+tok, adminToken, nil, nil))
	require.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/register", tok, api.RegisterRequest{Role: "user"}, &e))
}

func TestIPNSRoundOverHTTP(t *testing.T) {
	t.Parallel()
	h := setup(t)
	alice := h.user("alice", oracles.User, 1000)
	v0 := h.user("v0", oracles.Verifier, 0)
	v1 := h.user("v1", oracles.Verifier, 0)
	officer := h.user("officer", oracles.TimeoutOfficer, 0)

	var cl files.Claim
	req := api.SetIPNSRequest{
		Pointer: "0x123",
		Reward:  api.Reward{Verifier: big.NewInt(100), Timeout: big.NewInt(20), Value: big.NewInt(120)},
	}
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/ipns", alice, req, &cl))
	require.Equal(t, oracles.ClaimID(1), cl.ID)
	require.Equal(t, files.Verifying, cl.Status)

	var idx api.RespondResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/owners/alice/ipns/respond", v0, api.RespondRequest{Accept: true}, &idx))
	require.Equal(t, 0, idx.Index)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/rounds/1/respond", v1, api.RespondRequest{Accept: true}, &idx))
	require.Equal(t, 1, idx.Index)

	var e api.ErrorResponse
	require.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/rounds/1/respond", v1, api.RespondRequest{Accept: false}, &e))
	require.Equal(t, "AlreadyVoted", e.Kind)
	e = api.ErrorResponse{}
	require.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/rounds/1/respond", alice, api.RespondRequest{Accept: false}, &e))
	require.Equal(t, "NotEligible", e.Kind)

	h.clock.Advance(time.Hour + time.Minute)
	require.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/owners/alice/ipns/finalize", v0, api.FinalizeRequest{Index: 0}, nil))
	require.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/rounds/1/finalize", v1, api.FinalizeRequest{Index: 1}, nil))

	var settleable api.RoundsResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/rounds?filter=settleable", "", nil, &settleable))
	require.Len(t, settleable.Rounds, 1)

	var sr api.SettleResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/owners/alice/ipns/settle", officer, nil, &sr))
	require.Equal(t, oracles.Accepted, sr.Round.Outcome)
	require.Len(t, sr.Distribution.Voters, 2)

	var resolved files.Claim
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/owners/alice/ipns", "", nil, &resolved))
	require.Equal(t, "0x123", resolved.Pointer)

	var bal api.AmountResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/balances/v0", "", nil, &bal))
	tests.RequireAmount(t, 50, bal.Amount)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/held", "", nil, &bal))
	tests.RequireAmount(t, 0, bal.Amount)

	var evs api.EventsResponse
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/events?since=0&limit=1000", "", nil, &evs))
	require.NotEmpty(t, evs.Events)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()
	h := setup(t)

	var e api.ErrorResponse
	require.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/claims/42", "", nil, &e))
	require.Equal(t, "NotFound", e.Kind)
	e = api.ErrorResponse{}
	require.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/claims/zero", "", nil, &e))
	require.Equal(t, "InvalidArgument", e.Kind)
	e = api.ErrorResponse{}
	require.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/offers/rent/1", "", nil, &e))
	require.Equal(t, "InvalidArgument", e.Kind)

	bob := h.user("bob", oracles.User, 10)
	e = api.ErrorResponse{}
	req := api.FileRequest{Name: "a.txt", CID: "bafy", Reward: api.Reward{Verifier: big.NewInt(100), Timeout: big.NewInt(1), Value: big.NewInt(101)}}
	require.Equal(t, http.StatusPaymentRequired, h.do(http.MethodPost, "/files", bob, req, &e))
	require.Equal(t, "InsufficientFunds", e.Kind)
}
