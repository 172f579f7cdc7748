package engine

import (
	"errors"
	"net/netip"
	"sync"
	"time"

	"scatterlink/cache"
	"scatterlink/crypto"
	"scatterlink/discovery"
	"scatterlink/event"
	"scatterlink/identity"
	"scatterlink/scatter"
)

var (
	ErrPeerNotFound  = errors.New("engine: peer not found")
	ErrDuplicatePeer = errors.New("engine: peer already registered")
	ErrNoResolver    = errors.New("engine: no discovery resolver configured")
)

// Sealer is the cryptographic boundary the engine routes through.
// *crypto.Manager satisfies it.
type Sealer interface {
	Seal(payload []byte, peer crypto.PeerKey) ([]byte, error)
	Open(ciphertext []byte, peer crypto.PeerKey) ([]byte, error)
}

// Config carries the engine's construction-time scalars. Zero values
// fall back to defaults; there is no dynamic reconfiguration.
type Config struct {
	// Dimensions is the number of parallel transmission paths (1..256).
	Dimensions int
	// Keepalive is assigned to newly admitted peers.
	Keepalive time.Duration
	// Sink receives lifecycle events; nil means discard.
	Sink event.Sink
	// Resolver backs ResolveEndpoint on recall-cache misses. Optional.
	Resolver discovery.Resolver
	// Recall caches resolved endpoints. Nil allocates a private cache
	// when a Resolver is configured.
	Recall *cache.Recall[discovery.AddrInfo]
	// EndpointPriority is the recall priority for freshly resolved
	// endpoints (clamped to the cache's range; default 5).
	EndpointPriority int
}

// Engine owns the peer table and the scatter state, and turns
// plaintext payloads into sealed, dimension-tagged packets. One Engine
// instance belongs to the process composition root and is shared by
// reference; it holds no ambient globals.
type Engine struct {
	cfg     Config
	sealer  Sealer
	sink    event.Sink
	scatter *scatterState
	recall  *cache.Recall[discovery.AddrInfo]

	mu    sync.RWMutex
	peers map[crypto.PeerKey]*peerSession
}

// Routed is the outcome of a successful route: the sealed packet to
// hand to the transport and the dimension it was assigned.
type Routed struct {
	Dimension uint8
	Packet    []byte
}

// New creates an Engine around the given sealer.
func New(sealer Sealer, cfg Config) (*Engine, error) {
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Dimensions < 1 || cfg.Dimensions > MaxDimensions {
		return nil, ErrInvalidDimensions
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = DefaultKeepalive
	}
	if cfg.Sink == nil {
		cfg.Sink = event.NopSink{}
	}
	if cfg.EndpointPriority == 0 {
		cfg.EndpointPriority = 5
	}
	recall := cfg.Recall
	if recall == nil && cfg.Resolver != nil {
		recall = cache.New[discovery.AddrInfo](cache.DefaultMaxSize)
	}
	return &Engine{
		cfg:     cfg,
		sealer:  sealer,
		sink:    cfg.Sink,
		scatter: newScatterState(cfg.Dimensions),
		recall:  recall,
		peers:   make(map[crypto.PeerKey]*peerSession),
	}, nil
}

// Dimensions returns the configured dimension count.
func (e *Engine) Dimensions() int { return e.cfg.Dimensions }

// AddPeer admits a new peer. The endpoint may be the zero value for a
// known-but-unreachable peer; PeerConnected is only emitted once an
// endpoint is known. Re-registering an existing key is an explicit
// distinct intent and fails with ErrDuplicatePeer; use UpdatePeer.
func (e *Engine) AddPeer(key crypto.PeerKey, endpoint netip.AddrPort) error {
	e.mu.Lock()
	if _, ok := e.peers[key]; ok {
		e.mu.Unlock()
		return ErrDuplicatePeer
	}
	p := &peerSession{
		key:       key,
		keepalive: e.cfg.Keepalive,
		endpoint:  endpoint,
		state:     StateRegistered,
	}
	e.peers[key] = p
	e.mu.Unlock()

	if endpoint.IsValid() {
		e.sink.Emit(event.PeerConnected{Key: key, Endpoint: endpoint})
	}
	return nil
}

// UpdatePeer re-registers a peer: the endpoint is replaced if the peer
// exists, or the peer is admitted if it does not.
func (e *Engine) UpdatePeer(key crypto.PeerKey, endpoint netip.AddrPort) error {
	e.mu.RLock()
	p, ok := e.peers[key]
	e.mu.RUnlock()
	if !ok {
		return e.AddPeer(key, endpoint)
	}
	p.setEndpoint(endpoint)
	if endpoint.IsValid() {
		e.sink.Emit(event.PeerConnected{Key: key, Endpoint: endpoint})
	}
	return nil
}

// RemovePeer removes a session. Peers are never removed implicitly.
func (e *Engine) RemovePeer(key crypto.PeerKey) error {
	e.mu.Lock()
	if _, ok := e.peers[key]; !ok {
		e.mu.Unlock()
		return ErrPeerNotFound
	}
	delete(e.peers, key)
	e.mu.Unlock()

	e.sink.Emit(event.PeerDisconnected{Key: key})
	return nil
}

// Peer returns a snapshot of one session.
func (e *Engine) Peer(key crypto.PeerKey) (PeerInfo, error) {
	e.mu.RLock()
	p, ok := e.peers[key]
	e.mu.RUnlock()
	if !ok {
		return PeerInfo{}, ErrPeerNotFound
	}
	return p.info(), nil
}

// Peers returns snapshots of every session, in no particular order.
func (e *Engine) Peers() []PeerInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]PeerInfo, 0, len(e.peers))
	for _, p := range e.peers {
		out = append(out, p.info())
	}
	return out
}

// MarkHandshaking records that a handshake with the peer is in flight.
func (e *Engine) MarkHandshaking(key crypto.PeerKey) error {
	e.mu.RLock()
	p, ok := e.peers[key]
	e.mu.RUnlock()
	if !ok {
		return ErrPeerNotFound
	}
	p.setState(StateHandshaking)
	return nil
}

// MarkEstablished records a completed seal/open round trip with the
// peer, observable afterwards via PeerInfo.LastHandshake.
func (e *Engine) MarkEstablished(key crypto.PeerKey) error {
	e.mu.RLock()
	p, ok := e.peers[key]
	e.mu.RUnlock()
	if !ok {
		return ErrPeerNotFound
	}
	p.markEstablished(time.Now())
	return nil
}

// RoutePacket selects the least-loaded active dimension, tags and
// seals the payload for dest, and accounts the sealed bytes to the
// chosen dimension. On any failure no load counter moves: only
// successful routes count toward load. The sealed packet is returned
// for an external transport; routing itself never touches the network.
func (e *Engine) RoutePacket(payload []byte, dest crypto.PeerKey) (Routed, error) {
	e.mu.RLock()
	p, ok := e.peers[dest]
	e.mu.RUnlock()
	if !ok {
		return Routed{}, ErrPeerNotFound
	}

	dim, err := e.scatter.selectDimension()
	if err != nil {
		return Routed{}, err
	}

	sealed, err := e.sealer.Seal(scatter.Tag(uint8(dim), payload), dest)
	if err != nil {
		return Routed{}, err
	}

	e.scatter.addLoad(dim, uint64(len(sealed)))
	p.txBytes.Add(uint64(len(sealed)))
	e.sink.Emit(event.PacketRouted{Dimension: uint8(dim), Bytes: len(sealed)})
	return Routed{Dimension: uint8(dim), Packet: sealed}, nil
}

// OpenPacket is the inbound inverse of RoutePacket: it opens a sealed
// packet from source, recovers the dimension tag, and accounts the
// received bytes. A successful open proves a seal/open round trip with
// the peer and moves it to Established.
func (e *Engine) OpenPacket(ciphertext []byte, source crypto.PeerKey) (uint8, []byte, error) {
	e.mu.RLock()
	p, ok := e.peers[source]
	e.mu.RUnlock()
	if !ok {
		return 0, nil, ErrPeerNotFound
	}

	tagged, err := e.sealer.Open(ciphertext, source)
	if err != nil {
		return 0, nil, err
	}
	dim, payload, err := scatter.Strip(tagged)
	if err != nil {
		return 0, nil, err
	}

	p.rxBytes.Add(uint64(len(ciphertext)))
	p.markEstablished(time.Now())
	return dim, payload, nil
}

// ResolveEndpoint resolves a peer's address, consulting the recall
// cache before the discovery resolver. Cache hits are reinforced by
// the read; fresh lookups are stored at the configured priority.
func (e *Engine) ResolveEndpoint(peerID identity.PeerID) (discovery.AddrInfo, error) {
	if e.recall != nil {
		if info, ok := e.recall.Recall(peerID.String()); ok {
			return info, nil
		}
	}
	if e.cfg.Resolver == nil {
		return discovery.AddrInfo{}, ErrNoResolver
	}
	info, err := e.cfg.Resolver.Lookup(peerID)
	if err != nil {
		return discovery.AddrInfo{}, err
	}
	if e.recall != nil {
		e.recall.Store(peerID.String(), info, e.cfg.EndpointPriority)
	}
	return info, nil
}

// ReportThreat emits a signed threat signature for downstream
// alerting. Fire and forget.
func (e *Engine) ReportThreat(signature []byte, source crypto.PeerKey) {
	e.sink.Emit(event.ThreatSignature{Signature: signature, Source: source})
}

// Rotate is the explicit administrative rebalance of the active
// dimension set, used to exclude degraded paths. Routing never
// triggers it.
func (e *Engine) Rotate(active []bool) error {
	return e.scatter.rotate(active)
}

// ResetLoads zeroes every dimension's cumulative load counter.
func (e *Engine) ResetLoads() { e.scatter.resetLoads() }

// Loads returns a snapshot of cumulative bytes routed per dimension
// since the last reset.
func (e *Engine) Loads() []uint64 { return e.scatter.snapshotLoads() }

// ActiveDimensions returns a snapshot of the active flag set.
func (e *Engine) ActiveDimensions() []bool { return e.scatter.snapshotActive() }

// LastRotation returns when Rotate last ran (zero if never).
func (e *Engine) LastRotation() time.Time { return e.scatter.rotatedAt() }
