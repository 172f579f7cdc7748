package discovery

import (
	"errors"
	"net/netip"

	"scatterlink/crypto"
	"scatterlink/identity"
)

var ErrNotFound = errors.New("discovery: peer not found")

// AddrInfo is the minimal record discovery provides: where a peer can
// be reached and which key seals traffic to it. The application decides
// how to use capabilities.
type AddrInfo struct {
	PeerID       identity.PeerID
	SealKey      crypto.PeerKey
	Endpoint     netip.AddrPort
	Capabilities map[string]string
}

// Resolver is a generic discovery interface. Implementations can be
// backed by DHT, mDNS/DNS-SD, bootstrap lists, etc. The tunnel engine
// consults a Resolver through its recall cache, so Lookup only runs on
// cache misses.
type Resolver interface {
	Announce(info AddrInfo) error
	Lookup(peerID identity.PeerID) (AddrInfo, error)
	List() ([]AddrInfo, error)
}
