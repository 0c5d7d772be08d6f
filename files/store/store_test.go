package store

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/textileio/oraclefs/files"
	"github.com/textileio/oraclefs/oracles"
	"github.com/textileio/oraclefs/tests"
)

func TestClaims(t *testing.T) {
	t.Parallel()
	ds := tests.NewTxMapDatastore()
	s := New()
	txn, err := ds.NewTransaction(false)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		id, err := s.NextClaimID(txn)
		require.NoError(t, err)
		require.Equal(t, oracles.ClaimID(i+1), id)
		owner := oracles.Address("alice")
		if i == 1 {
			owner = "alice2"
		}
		require.NoError(t, s.PutClaim(txn, files.Claim{ID: id, Kind: files.File, Owner: owner, Status: files.Verifying}))
	}
	require.NoError(t, txn.Commit())

	cs, err := s.ClaimsOf(ds, "alice")
	require.NoError(t, err)
	require.Len(t, cs, 2)
	require.Equal(t, oracles.ClaimID(1), cs[0].ID)
	require.Equal(t, oracles.ClaimID(3), cs[1].ID)

	_, err = s.GetClaim(ds, 9)
	require.ErrorIs(t, err, oracles.ErrNotFound)
}

func TestOffers(t *testing.T) {
	t.Parallel()
	ds := tests.NewTxMapDatastore()
	s := New()
	txn, err := ds.NewTransaction(false)
	require.NoError(t, err)
	defer txn.Discard()

	p1, err := s.NextOfferID(txn, files.PurchaseOffer)
	require.NoError(t, err)
	l1, err := s.NextOfferID(txn, files.LicenseOffer)
	require.NoError(t, err)
	p2, err := s.NextOfferID(txn, files.PurchaseOffer)
	require.NoError(t, err)
	require.Equal(t, uint64(1), p1)
	require.Equal(t, uint64(1), l1)
	require.Equal(t, uint64(2), p2)

	require.NoError(t, s.PutOffer(txn, files.Offer{ID: p1, Kind: files.PurchaseOffer, ClaimID: 4, Price: tests.Amount(3)}))
	require.NoError(t, s.PutOffer(txn, files.Offer{ID: l1, Kind: files.LicenseOffer, ClaimID: 4, Price: tests.Amount(1)}))
	require.NoError(t, s.PutOffer(txn, files.Offer{ID: p2, Kind: files.PurchaseOffer, ClaimID: 4, Price: tests.Amount(5)}))

	offers, err := s.OffersOf(txn, 4, files.PurchaseOffer)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	tests.RequireAmount(t, 5, offers[1].Price)

	o, err := s.GetOffer(txn, files.LicenseOffer, 1)
	require.NoError(t, err)
	tests.RequireAmount(t, 1, o.Price)
	_, err = s.GetOffer(txn, files.LicenseOffer, 2)
	require.ErrorIs(t, err, oracles.ErrNotFound)
}

func TestDelegatesAndIPNS(t *testing.T) {
	t.Parallel()
	ds := tests.NewTxMapDatastore()
	s := New()
	txn, err := ds.NewTransaction(false)
	require.NoError(t, err)
	defer txn.Discard()

	added, err := s.AddDelegate(txn, "owner", "d1")
	require.NoError(t, err)
	require.True(t, added)
	added, err = s.AddDelegate(txn, "owner", "d1")
	require.NoError(t, err)
	require.False(t, added)
	_, err = s.AddDelegate(txn, "owner1", "d2")
	require.NoError(t, err)

	ok, err := s.IsDelegate(txn, "owner", "d1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.IsDelegate(txn, "owner", "d2")
	require.NoError(t, err)
	require.False(t, ok)
	ds1, err := s.DelegatesOf(txn, "owner")
	require.NoError(t, err)
	require.Equal(t, []oracles.Address{"d1"}, ds1)

	_, err = s.CurrentIPNS(txn, "owner")
	require.ErrorIs(t, err, oracles.ErrNotFound)
	require.NoError(t, s.SetCurrentIPNS(txn, "owner", 7))
	id, err := s.CurrentIPNS(txn, "owner")
	require.NoError(t, err)
	require.Equal(t, oracles.ClaimID(7), id)
	_, err = s.ResolvedIPNS(txn, "owner")
	require.ErrorIs(t, err, oracles.ErrNotFound)
}
