package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTCPAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		maddr string
		addr  string
		err   bool
	}{
		{maddr: "/ip4/127.0.0.1/tcp/6006", addr: "127.0.0.1:6006"},
		{maddr: "/ip6/::1/tcp/6006", addr: "[::1]:6006"},
		{maddr: "/ip4/127.0.0.1/udp/6006", err: true},
		{maddr: "/tcp/6006", err: true},
		{maddr: "not-a-multiaddr", err: true},
	}
	for _, tt := range tests {
		addr, err := TCPAddr(tt.maddr)
		if tt.err {
			require.Error(t, err, tt.maddr)
			continue
		}
		require.NoError(t, err, tt.maddr)
		require.Equal(t, tt.addr, addr)
	}
}

func TestTCPAddrFromMultiAddrNil(t *testing.T) {
	t.Parallel()
	_, err := TCPAddrFromMultiAddr(nil)
	require.Error(t, err)
}
