// Package event defines the lifecycle events the tunnel engine
// produces and the sink boundary that consumes them. Delivery is
// fire-and-forget: a full or slow sink never blocks packet routing.
package event

import (
	"net/netip"

	"scatterlink/crypto"
)

// Kind discriminates the closed set of event variants.
type Kind uint8

const (
	KindPeerConnected Kind = iota + 1
	KindPeerDisconnected
	KindPacketRouted
	KindThreatSignature
)

func (k Kind) String() string {
	switch k {
	case KindPeerConnected:
		return "PEER_CONNECTED"
	case KindPeerDisconnected:
		return "PEER_DISCONNECTED"
	case KindPacketRouted:
		return "PACKET_ROUTED"
	case KindThreatSignature:
		return "THREAT_SIGNATURE"
	default:
		return "UNKNOWN"
	}
}

// Event is one discrete lifecycle record.
type Event interface {
	Kind() Kind
}

// PeerConnected is emitted when a peer with a known endpoint joins the
// mesh.
type PeerConnected struct {
	Key      crypto.PeerKey
	Endpoint netip.AddrPort
}

func (PeerConnected) Kind() Kind { return KindPeerConnected }

// PeerDisconnected is emitted on explicit peer removal.
type PeerDisconnected struct {
	Key crypto.PeerKey
}

func (PeerDisconnected) Kind() Kind { return KindPeerDisconnected }

// PacketRouted is emitted after a successful route: the dimension the
// packet left on and the sealed byte count.
type PacketRouted struct {
	Dimension uint8
	Bytes     int
}

func (PacketRouted) Kind() Kind { return KindPacketRouted }

// ThreatSignature carries a signed threat report for downstream
// alerting and analytics.
type ThreatSignature struct {
	Signature []byte
	Source    crypto.PeerKey
}

func (ThreatSignature) Kind() Kind { return KindThreatSignature }
