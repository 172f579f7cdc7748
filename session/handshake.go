package session

import (
	"context"
	"errors"

	q "github.com/quic-go/quic-go"

	"scatterlink/crypto"
	"scatterlink/identity"
	"scatterlink/protocol"
)

var (
	ErrHandshakeExpectedHello = errors.New("session: handshake expected HELLO")
	ErrHandshakeExpectedProbe = errors.New("session: handshake expected PROBE")
	ErrProbeFailed            = errors.New("session: handshake probe failed")
)

// HandshakeOptions carries the optional handshake inputs.
type HandshakeOptions struct {
	Capabilities map[string]string
}

// The handshake runs in two phases on a dedicated control stream:
//
//  1. HELLO exchange: each side sends a signed HELLO advertising its
//     identity key and current seal key.
//  2. PROBE exchange: each side seals its channel ephemeral key to the
//     peer's seal key with the crypto manager and opens the peer's
//     probe in return. A successful open on both sides is the
//     seal/open round trip that establishes the peer; it also
//     completes the forward-secret channel.

// HandshakeClient performs the handshake as the connecting side. The
// client opens the control stream.
func HandshakeClient(ctx context.Context, conn q.Connection, mgr *crypto.Manager, opts HandshakeOptions) (*Session, error) {
	control, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}

	remoteHello, err := exchangeHello(control, mgr, opts, true)
	if err != nil {
		return nil, err
	}
	remoteID, err := identity.ParsePeerIDHex(remoteHello.PeerID)
	if err != nil {
		return nil, err
	}
	remoteSeal, err := remoteHello.PeerSealKey()
	if err != nil {
		return nil, err
	}

	channel, err := crypto.NewChannelInitiator()
	if err != nil {
		return nil, err
	}
	if err := sendProbe(control, mgr, channel, remoteSeal); err != nil {
		return nil, err
	}
	if err := receiveProbe(control, mgr, channel, remoteSeal); err != nil {
		return nil, err
	}

	return &Session{
		conn:         conn,
		control:      control,
		controlID:    control.StreamID(),
		localPeerID:  mgr.Identity().PeerID(),
		remotePeerID: remoteID,
		remoteSeal:   remoteSeal,
		caps:         remoteHello.Capabilities,
		channel:      channel,
	}, nil
}

// HandshakeServer performs the handshake as the accepting side.
func HandshakeServer(ctx context.Context, conn q.Connection, mgr *crypto.Manager, opts HandshakeOptions) (*Session, error) {
	control, err := conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}

	remoteHello, err := exchangeHello(control, mgr, opts, false)
	if err != nil {
		return nil, err
	}
	remoteID, err := identity.ParsePeerIDHex(remoteHello.PeerID)
	if err != nil {
		return nil, err
	}
	remoteSeal, err := remoteHello.PeerSealKey()
	if err != nil {
		return nil, err
	}

	channel, err := crypto.NewChannelResponder()
	if err != nil {
		return nil, err
	}
	if err := receiveProbe(control, mgr, channel, remoteSeal); err != nil {
		return nil, err
	}
	if err := sendProbe(control, mgr, channel, remoteSeal); err != nil {
		return nil, err
	}

	return &Session{
		conn:         conn,
		control:      control,
		controlID:    control.StreamID(),
		localPeerID:  mgr.Identity().PeerID(),
		remotePeerID: remoteID,
		remoteSeal:   remoteSeal,
		caps:         remoteHello.Capabilities,
		channel:      channel,
	}, nil
}

// exchangeHello sends the local HELLO and reads and verifies the
// remote one. The client speaks first.
func exchangeHello(control q.Stream, mgr *crypto.Manager, opts HandshakeOptions, speakFirst bool) (protocol.Hello, error) {
	send := func() error {
		local, err := protocol.NewHello(mgr.Identity(), mgr.PublicKey(), opts.Capabilities)
		if err != nil {
			return err
		}
		if err := local.Sign(mgr.Identity()); err != nil {
			return err
		}
		payload, err := protocol.EncodeHello(local)
		if err != nil {
			return err
		}
		return protocol.WriteFrame(control, protocol.Frame{Type: protocol.MessageTypeHello, Payload: payload})
	}
	recv := func() (protocol.Hello, error) {
		frame, err := protocol.ReadFrame(control)
		if err != nil {
			return protocol.Hello{}, err
		}
		if frame.Type != protocol.MessageTypeHello {
			return protocol.Hello{}, ErrHandshakeExpectedHello
		}
		remote, err := protocol.DecodeHello(frame.Payload)
		if err != nil {
			return protocol.Hello{}, err
		}
		if err := remote.Verify(); err != nil {
			return protocol.Hello{}, err
		}
		return remote, nil
	}

	if speakFirst {
		if err := send(); err != nil {
			return protocol.Hello{}, err
		}
		return recv()
	}
	remote, err := recv()
	if err != nil {
		return protocol.Hello{}, err
	}
	if err := send(); err != nil {
		return protocol.Hello{}, err
	}
	return remote, nil
}

// sendProbe seals our channel ephemeral key to the peer.
func sendProbe(control q.Stream, mgr *crypto.Manager, channel *crypto.Channel, remoteSeal crypto.PeerKey) error {
	eph := channel.LocalEphemeralPublic()
	sealed, err := mgr.Seal(eph[:], remoteSeal)
	if err != nil {
		return err
	}
	return protocol.WriteFrame(control, protocol.Frame{Type: protocol.MessageTypeProbe, Payload: sealed})
}

// receiveProbe opens the peer's probe and completes our channel with
// the ephemeral key it carries.
func receiveProbe(control q.Stream, mgr *crypto.Manager, channel *crypto.Channel, remoteSeal crypto.PeerKey) error {
	frame, err := protocol.ReadFrame(control)
	if err != nil {
		return err
	}
	if frame.Type != protocol.MessageTypeProbe {
		return ErrHandshakeExpectedProbe
	}
	plain, err := mgr.Open(frame.Payload, remoteSeal)
	if err != nil {
		return ErrProbeFailed
	}
	if len(plain) != 32 {
		return ErrProbeFailed
	}
	var peerEph [32]byte
	copy(peerEph[:], plain)
	return channel.Complete(peerEph)
}
