package officer

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/files/ledger"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/registry"
	"github.com/textileio/oraclefs/tests"
)

func TestSettleAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := tests.NewClock()
	r, err := registry.New(tests.NewTxMapDatastore(), clock, oracles.DefaultParams())
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	require.NoError(t, r.Deposit(ctx, "owner", big.NewInt(1000)))
	require.NoError(t, r.Register(ctx, "owner"))
	require.NoError(t, r.RegisterAs(ctx, "officer", oracles.TimeoutOfficer, nil))
	for i := 0; i < 2; i++ {
		_, err := r.AddFile(ctx, "owner", "f", "bafy", ledger.Reward{
			Verifier: big.NewInt(10), Timeout: big.NewInt(5), Value: big.NewInt(15),
		})
		require.NoError(t, err)
	}

	o, err := New(r, "officer", time.Hour)
	require.NoError(t, err)
	defer func() { require.NoError(t, o.Close()) }()

	n, err := o.SettleAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	clock.Advance(61 * time.Minute)
	// Any committed call wakes up the officer.
	require.NoError(t, r.Deposit(ctx, "someone", big.NewInt(1)))
	require.Eventually(t, func() bool {
		rs, err := r.UnsettledRounds()
		return err == nil && len(rs) == 0
	}, 5*time.Second, 20*time.Millisecond)

	bal, err := r.Balance("officer")
	require.NoError(t, err)
	tests.RequireAmount(t, 10, bal)
	for _, id := range []oracles.ClaimID{1, 2} {
		cl, err := r.Claim(id)
		require.NoError(t, err)
		require.Equal(t, files.Rejected, cl.Status)
	}
}

func TestNotAnOfficer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := tests.NewClock()
	r, err := registry.New(tests.NewTxMapDatastore(), clock, oracles.DefaultParams())
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()
	require.NoError(t, r.Deposit(ctx, "owner", big.NewInt(1000)))
	require.NoError(t, r.Register(ctx, "owner"))
	_, err = r.AddFile(ctx, "owner", "f", "bafy", ledger.Reward{
		Verifier: big.NewInt(10), Timeout: big.NewInt(5), Value: big.NewInt(15),
	})
	require.NoError(t, err)
	clock.Advance(61 * time.Minute)

	o, err := New(r, "owner", time.Hour)
	require.NoError(t, err)
	_, err = o.SettleAll(ctx)
	require.ErrorIs(t, err, oracles.ErrNotEligible)
	require.NoError(t, o.Close())
}
