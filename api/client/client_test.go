package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/phayes/freeport"
	"github.com/stretchr/testify/require"
	"github.com/textileio/oraclefs/api"
	"github.com/textileio/oraclefs/auth"
	"github.com/textileio/oraclefs/buildinfo"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/gateway"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/registry"
	"github.com/textileio/oraclefs/tests"
	"github.com/textileio/oraclefs/util"
)

const adminToken = "admin"

var ctx = context.Background()

type server struct {
	addr  string
	clock *tests.Clock
}

func setupServer(t *testing.T) server {
	t.Helper()
	port, err := freeport.GetFreePort()
	require.NoError(t, err)
	addr, err := util.TCPAddr(fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", port))
	require.NoError(t, err)

	ds := tests.NewTxMapDatastore()
	clock := tests.NewClock()
	reg, err := registry.New(ds, clock, oracles.DefaultParams())
	require.NoError(t, err)
	g := gateway.New(addr, reg, auth.New(ds), adminToken)
	require.NoError(t, g.Start())
	t.Cleanup(func() {
		require.NoError(t, g.Stop())
		require.NoError(t, reg.Close())
	})
	return server{addr: g.Addr(), clock: clock}
}

func newClient(t *testing.T, addr, token string) *Client {
	t.Helper()
	c, err := NewClient(addr, WithToken(token))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

// party returns a client acting as a funded address registered with role.
func party(t *testing.T, admin *Client, addr string, a oracles.Address, role oracles.Role, funds int64) *Client {
	t.Helper()
	token, err := admin.Admin.CreateToken(ctx, a)
	require.NoError(t, err)
	if funds > 0 {
		bal, err := admin.Admin.Deposit(ctx, a, big.NewInt(funds))
		require.NoError(t, err)
		tests.RequireAmount(t, funds, bal)
	}
	c := newClient(t, addr, token)
	require.NoError(t, c.Escrow.Register(ctx, role, nil))
	return c
}

func rw(verifier, timeout int64) api.Reward {
	return api.Reward{
		Verifier: big.NewInt(verifier),
		Timeout:  big.NewInt(timeout),
		Value:    big.NewInt(verifier + timeout),
	}
}

func TestClient(t *testing.T) {
	t.Parallel()
	s := setupServer(t)
	c := newClient(t, s.addr, "")
	require.NoError(t, c.Health(ctx))
	info, err := c.BuildInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, buildinfo.Get(), info)
	p, err := c.Params(ctx)
	require.NoError(t, err)
	require.Equal(t, oracles.DefaultParams().ResponseWindow, p.ResponseWindow)
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()
	s := setupServer(t)
	admin := newClient(t, s.addr, adminToken)
	alice := party(t, admin, s.addr, "alice", oracles.User, 0)

	err := alice.Escrow.Register(ctx, oracles.Verifier, nil)
	require.True(t, errors.Is(err, oracles.ErrAlreadyRegistered))
	var gerr *Error
	require.True(t, errors.As(err, &gerr))
	require.Equal(t, 409, gerr.Status)

	_, err = alice.Files.Claim(ctx, 7)
	require.True(t, errors.Is(err, oracles.ErrNotFound))

	_, err = alice.Files.AddFile(ctx, "a.txt", "bafy", rw(10, 1))
	require.True(t, errors.Is(err, oracles.ErrInsufficientFunds))

	anon := newClient(t, s.addr, "")
	err = anon.Escrow.Register(ctx, oracles.User, nil)
	require.Error(t, err)
	require.True(t, errors.As(err, &gerr))
	require.Equal(t, 401, gerr.Status)
}

func TestFileLifecycle(t *testing.T) {
	t.Parallel()
	s := setupServer(t)
	admin := newClient(t, s.addr, adminToken)
	alice := party(t, admin, s.addr, "alice", oracles.User, 10000)
	bob := party(t, admin, s.addr, "bob", oracles.User, 10000)
	v := []*Client{
		party(t, admin, s.addr, "v0", oracles.Verifier, 0),
		party(t, admin, s.addr, "v1", oracles.Verifier, 0),
		party(t, admin, s.addr, "v2", oracles.Verifier, 0),
	}
	officer := party(t, admin, s.addr, "officer", oracles.TimeoutOfficer, 0)
	reenc := party(t, admin, s.addr, "reenc", oracles.Reencryptor, 0)

	cl, err := alice.Files.AddFile(ctx, "song.mp3", "bafysong", rw(90, 30))
	require.NoError(t, err)
	require.Equal(t, files.Verifying, cl.Status)

	votes := []bool{true, true, false}
	for i, vc := range v {
		idx, err := vc.Oracle.Respond(ctx, cl.ID, votes[i])
		require.NoError(t, err)
		require.Equal(t, i, idx)
	}
	s.clock.Advance(time.Hour + time.Minute)
	for i, vc := range v {
		require.NoError(t, vc.Oracle.Finalize(ctx, cl.ID, i))
	}
	rounds, err := officer.Oracle.SettleableRounds(ctx)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	rd, d, err := officer.Oracle.Settle(ctx, cl.ID)
	require.NoError(t, err)
	require.Equal(t, oracles.Accepted, rd.Outcome)
	require.Len(t, d.Voters, 2)
	_, _, err = officer.Oracle.Settle(ctx, cl.ID)
	require.True(t, errors.Is(err, oracles.ErrAlreadySettled))

	cl, err = alice.Files.Claim(ctx, cl.ID)
	require.NoError(t, err)
	require.Equal(t, files.Accepted, cl.Status)

	o, err := bob.Files.Request(ctx, files.LicenseOffer, cl.ID, big.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, files.Requested, o.Status)
	_, err = alice.Files.Accept(ctx, files.LicenseOffer, o.ID)
	require.NoError(t, err)
	_, err = bob.Files.Pay(ctx, files.LicenseOffer, o.ID, big.NewInt(40))
	require.NoError(t, err)

	jobs, err := reenc.Oracle.AvailableJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	_, err = reenc.Oracle.Participate(ctx, cl.ID)
	require.NoError(t, err)
	s.clock.Advance(10 * time.Minute)
	_, err = reenc.Oracle.Done(ctx, cl.ID)
	require.NoError(t, err)

	cl, err = bob.Files.GoodLicense(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, cl.Licensed("bob"))

	offers, err := alice.Files.OffersOf(ctx, cl.ID, files.LicenseOffer)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	require.Equal(t, files.Finalized, offers[0].Status)

	sent, received, err := bob.Escrow.Transfers(ctx, "bob")
	require.NoError(t, err)
	require.NotEmpty(t, sent)
	require.NotEmpty(t, received)

	evs, err := alice.Events.List(ctx, 0, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, evs)
}

func TestWatch(t *testing.T) {
	t.Parallel()
	s := setupServer(t)
	admin := newClient(t, s.addr, adminToken)
	watcher := newClient(t, s.addr, "")

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch := make(chan oracles.Event, 10)
	errc := make(chan error, 1)
	go func() { errc <- watcher.Events.Watch(wctx, ch) }()

	require.Eventually(t, func() bool {
		_, err := admin.Admin.Deposit(ctx, "alice", big.NewInt(5))
		if err != nil {
			return false
		}
		select {
		case <-ch:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch didn't return after cancel")
	}
}
