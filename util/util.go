package util

import (
	"context"
	"fmt"
	"net"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	madns "github.com/multiformats/go-multiaddr-dns"
)

var resolveTimeout = time.Second * 5

// TCPAddr parses a listen multiaddr such as /ip4/127.0.0.1/tcp/6006
// and returns its host:port form.
func TCPAddr(s string) (string, error) {
	maddr, err := ma.NewMultiaddr(s)
	if err != nil {
		return "", fmt.Errorf("parsing multiaddr %q: %s", s, err)
	}
	return TCPAddrFromMultiAddr(maddr)
}

// TCPAddrFromMultiAddr returns the host:port form of a tcp multiaddr.
// Dns components are resolved to the first ip address.
func TCPAddrFromMultiAddr(maddr ma.Multiaddr) (string, error) {
	if maddr == nil {
		return "", fmt.Errorf("empty multiaddr")
	}
	if madns.Matches(maddr) {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()
		resolved, err := madns.Resolve(ctx, maddr)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %s", maddr, err)
		}
		if len(resolved) == 0 {
			return "", fmt.Errorf("%s resolved to no addresses", maddr)
		}
		maddr = resolved[0]
	}
	host, err := maddr.ValueForProtocol(ma.P_IP4)
	if err != nil {
		if host, err = maddr.ValueForProtocol(ma.P_IP6); err != nil {
			return "", fmt.Errorf("%s has no ip component", maddr)
		}
	}
	port, err := maddr.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return "", fmt.Errorf("%s has no tcp component", maddr)
	}
	return net.JoinHostPort(host, port), nil
}
