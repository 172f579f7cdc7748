package engine

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"scatterlink/crypto"
)

// DefaultKeepalive is the keepalive interval assigned to new peers
// when the config does not override it.
const DefaultKeepalive = 25 * time.Second

// PeerState tracks where a peer is in its session lifecycle.
type PeerState uint8

const (
	// StateRegistered: the peer is in the table; no traffic proven yet,
	// or the session was torn down and the peer is pending removal.
	StateRegistered PeerState = iota + 1
	// StateHandshaking: a handshake with the peer is in flight.
	StateHandshaking
	// StateEstablished: a seal/open round trip with the peer succeeded.
	StateEstablished
)

func (s PeerState) String() string {
	switch s {
	case StateRegistered:
		return "REGISTERED"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateEstablished:
		return "ESTABLISHED"
	default:
		return "UNREGISTERED"
	}
}

// peerSession is the engine-owned record for one mesh participant.
// Byte counters are atomic so concurrent routes to different peers
// never contend on the table lock; the remaining mutable fields are
// guarded by the session's own mutex.
type peerSession struct {
	key       crypto.PeerKey
	keepalive time.Duration

	rxBytes atomic.Uint64
	txBytes atomic.Uint64

	mu            sync.Mutex
	endpoint      netip.AddrPort // zero value while known-but-unreachable
	state         PeerState
	lastHandshake time.Time
}

func (p *peerSession) setEndpoint(ep netip.AddrPort) {
	p.mu.Lock()
	p.endpoint = ep
	p.mu.Unlock()
}

func (p *peerSession) setState(s PeerState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// markEstablished records a successful seal/open round trip.
func (p *peerSession) markEstablished(at time.Time) {
	p.mu.Lock()
	p.state = StateEstablished
	p.lastHandshake = at
	p.mu.Unlock()
}

func (p *peerSession) info() PeerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PeerInfo{
		PublicKey:         p.key,
		Endpoint:          p.endpoint,
		State:             p.state,
		LastHandshake:     p.lastHandshake,
		RxBytes:           p.rxBytes.Load(),
		TxBytes:           p.txBytes.Load(),
		KeepaliveInterval: p.keepalive,
	}
}

// PeerInfo is a point-in-time snapshot of a peer session. The live
// record never leaves the engine.
type PeerInfo struct {
	PublicKey         crypto.PeerKey
	Endpoint          netip.AddrPort // !IsValid() while unreachable
	State             PeerState
	LastHandshake     time.Time // zero if never handshaken
	RxBytes           uint64
	TxBytes           uint64
	KeepaliveInterval time.Duration
}
