package tests

import (
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/textileio/oraclefs/oracles"
)

// CheckErr is a helper for checking an error and failing a test
func CheckErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

// Clock is a settable oracles.Clock for tests.
type Clock struct {
	lock sync.Mutex
	now  time.Time
}

var _ oracles.Clock = (*Clock)(nil)

// NewClock returns a Clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current test time.
func (c *Clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

// NewAddressGetter returns a function that generates distinct addresses
// with the given prefix.
func NewAddressGetter(prefix string) func() oracles.Address {
	var lock sync.Mutex
	var i int
	return func() oracles.Address {
		lock.Lock()
		defer lock.Unlock()
		i++
		return oracles.Address(fmt.Sprintf("%s%d", prefix, i))
	}
}

// Amount returns a big.Int from an int64.
func Amount(v int64) *big.Int {
	return big.NewInt(v)
}

// RequireAmount asserts a big.Int value.
func RequireAmount(t *testing.T, expected int64, actual *big.Int) {
	t.Helper()
	require.NotNil(t, actual)
	require.Equal(t, 0, big.NewInt(expected).Cmp(actual), "expected %d, got %s", expected, actual)
}
