package scatterlink

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"scatterlink/cache"
	"scatterlink/crypto"
	"scatterlink/discovery"
	"scatterlink/engine"
	"scatterlink/event"
	"scatterlink/session"
	"scatterlink/transport/quic"
)

var ErrNotListening = errors.New("scatterlink: node is not listening")

// NodeConfig carries the construction-time scalars for a Node.
// Everything is fixed at construction; there is no dynamic
// reconfiguration.
type NodeConfig struct {
	// EvolutionInterval bounds how long a single KEM key stays live.
	EvolutionInterval time.Duration
	// Dimensions is the number of transmission paths (default 7).
	Dimensions int
	// Keepalive is assigned to admitted peers.
	Keepalive time.Duration
	// EventBuffer sizes the lifecycle event sink.
	EventBuffer int
	// CacheSize bounds the recall cache (default 10,000 entries).
	CacheSize int
	// Capabilities are advertised in the handshake HELLO.
	Capabilities map[string]string
	// Resolver backs endpoint resolution. Optional.
	Resolver discovery.Resolver
}

// Node is the composition root: it owns the single crypto manager,
// tunnel engine, recall cache and event sink for the process, and is
// passed by reference to everything that needs them.
type Node struct {
	mgr      *crypto.Manager
	eng      *engine.Engine
	sink     *event.ChannelSink
	recall   *cache.Recall[discovery.AddrInfo]
	caps     map[string]string
	listener *quic.Listener
}

// NewNode builds a node. Key-generation failure aborts construction.
func NewNode(cfg NodeConfig) (*Node, error) {
	mgr, err := crypto.NewManager(cfg.EvolutionInterval)
	if err != nil {
		return nil, err
	}
	sink := event.NewChannelSink(cfg.EventBuffer)
	recall := cache.New[discovery.AddrInfo](cfg.CacheSize)
	eng, err := engine.New(mgr, engine.Config{
		Dimensions: cfg.Dimensions,
		Keepalive:  cfg.Keepalive,
		Sink:       sink,
		Resolver:   cfg.Resolver,
		Recall:     recall,
	})
	if err != nil {
		return nil, err
	}

	capsCopy := map[string]string{}
	for k, v := range cfg.Capabilities {
		capsCopy[k] = v
	}
	return &Node{
		mgr:    mgr,
		eng:    eng,
		sink:   sink,
		recall: recall,
		caps:   capsCopy,
	}, nil
}

// Manager exposes the node's crypto manager.
func (n *Node) Manager() *crypto.Manager { return n.mgr }

// Engine exposes the node's tunnel engine.
func (n *Node) Engine() *engine.Engine { return n.eng }

// Recall exposes the node's recall cache for orchestrating callers.
func (n *Node) Recall() *cache.Recall[discovery.AddrInfo] { return n.recall }

// Events returns the lifecycle event stream. Events are dropped, not
// queued, when the consumer falls behind.
func (n *Node) Events() <-chan event.Event { return n.sink.Events() }

// Run evolves the node's keys on their schedule until ctx is
// cancelled.
func (n *Node) Run(ctx context.Context) error { return n.mgr.Run(ctx) }

// Listen starts accepting peer connections.
func (n *Node) Listen(addr string) error {
	ln, err := quic.Listen(addr)
	if err != nil {
		return err
	}
	n.listener = ln
	return nil
}

// ListenAddr returns the bound address, or "" when not listening.
func (n *Node) ListenAddr() string {
	if n.listener == nil {
		return ""
	}
	return n.listener.AddrString()
}

// Close stops listening.
func (n *Node) Close() error {
	if n.listener == nil {
		return nil
	}
	return n.listener.Close()
}

// Accept waits for an inbound connection, runs the handshake, and
// admits the peer into the engine.
func (n *Node) Accept(ctx context.Context) (*session.Session, error) {
	if n.listener == nil {
		return nil, ErrNotListening
	}
	conn, err := n.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	sess, err := session.HandshakeServer(ctx, conn, n.mgr, session.HandshakeOptions{Capabilities: n.caps})
	if err != nil {
		return nil, err
	}
	n.admit(sess)
	return sess, nil
}

// Dial connects to a peer, runs the handshake, and admits the peer
// into the engine.
func (n *Node) Dial(ctx context.Context, addr string) (*session.Session, error) {
	conn, err := quic.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	sess, err := session.HandshakeClient(ctx, conn, n.mgr, session.HandshakeOptions{Capabilities: n.caps})
	if err != nil {
		return nil, err
	}
	n.admit(sess)
	return sess, nil
}

// admit registers the handshaken peer. The handshake probe already
// proved a seal/open round trip, so the peer lands established.
func (n *Node) admit(sess *session.Session) {
	key := sess.RemoteSealKey()
	endpoint := remoteEndpoint(sess)
	if err := n.eng.AddPeer(key, endpoint); errors.Is(err, engine.ErrDuplicatePeer) {
		_ = n.eng.UpdatePeer(key, endpoint)
	}
	_ = n.eng.MarkEstablished(key)
}

func remoteEndpoint(sess *session.Session) netip.AddrPort {
	addr, err := netip.ParseAddrPort(sess.Connection().RemoteAddr().String())
	if err != nil {
		return netip.AddrPort{}
	}
	return addr
}
