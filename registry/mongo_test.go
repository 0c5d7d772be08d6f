package registry

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	mongods "github.com/textileio/go-ds-mongo"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/tests"
)

func TestMongoPersistence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mongo integration test in short mode")
	}
	tests.RunFlaky(t, func(ft *tests.FlakyT) {
		uri, purge, err := tests.LaunchMongoDocker()
		require.NoError(ft, err)
		ft.Cleanup(purge)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		ds, err := mongods.New(ctx, uri, "oraclefs", mongods.WithCollName("registry"))
		require.NoError(ft, err)
		ft.Cleanup(func() { _ = ds.Close() })

		clock := tests.NewClock()
		r, err := New(ds, clock, oracles.DefaultParams())
		require.NoError(ft, err)
		require.NoError(ft, r.Deposit(ctx, "alice", big.NewInt(1000)))
		require.NoError(ft, r.Register(ctx, "alice"))
		require.NoError(ft, r.RegisterAs(ctx, "vrf", oracles.Verifier, nil))
		cl, err := r.AddFile(ctx, "alice", "a.txt", "bafya", reward(100, 10))
		require.NoError(ft, err)
		_, err = r.RespondFile(ctx, "vrf", cl.ID, true)
		require.NoError(ft, err)
		require.NoError(ft, r.Close())

		r, err = New(ds, clock, oracles.DefaultParams())
		require.NoError(ft, err)
		defer func() { require.NoError(ft, r.Close()) }()

		role, err := r.RoleOf("alice")
		require.NoError(ft, err)
		require.Equal(ft, oracles.User, role)
		bal, err := r.Balance("alice")
		require.NoError(ft, err)
		require.Equal(ft, int64(890), bal.Int64())
		rd, err := r.Round(cl.ID)
		require.NoError(ft, err)
		require.Equal(ft, 1, rd.Yes)

		evs, err := r.Events(0, 100)
		require.NoError(ft, err)
		require.NotEmpty(ft, evs)
	})
}
