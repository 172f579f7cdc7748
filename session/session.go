// Package session provides authenticated sessions between mesh nodes:
// a signed HELLO exchange binding the QUIC connection to a peer
// identity and seal key, a seal/open probe that establishes the peer,
// and resumption tickets that skip the probe on reconnect.
package session

import (
	"context"

	q "github.com/quic-go/quic-go"

	"scatterlink/crypto"
	"scatterlink/identity"
)

// Session is an authenticated link to one peer. The QUIC connection
// provides transport encryption; identity and the seal key are bound
// by the signed HELLO, and the probe-established channel carries
// control traffic with forward secrecy.
type Session struct {
	conn         q.Connection
	control      q.Stream
	controlID    q.StreamID
	localPeerID  identity.PeerID
	remotePeerID identity.PeerID
	remoteSeal   crypto.PeerKey
	caps         map[string]string
	channel      *crypto.Channel
}

func (s *Session) Connection() q.Connection { return s.conn }

func (s *Session) LocalPeerID() identity.PeerID { return s.localPeerID }

func (s *Session) RemotePeerID() identity.PeerID { return s.remotePeerID }

// RemoteSealKey returns the peer's advertised KEM key, the key packets
// to this peer are sealed against.
func (s *Session) RemoteSealKey() crypto.PeerKey { return s.remoteSeal }

func (s *Session) RemoteCapabilities() map[string]string {
	out := map[string]string{}
	for k, v := range s.caps {
		out[k] = v
	}
	return out
}

// Channel returns the probe-established secure channel.
func (s *Session) Channel() *crypto.Channel { return s.channel }

// OpenStream opens an application data stream (a dimension lane).
func (s *Session) OpenStream(ctx context.Context) (q.Stream, error) {
	return s.conn.OpenStreamSync(ctx)
}

// AcceptStream accepts an application data stream, skipping the
// control stream.
func (s *Session) AcceptStream(ctx context.Context) (q.Stream, error) {
	for {
		st, err := s.conn.AcceptStream(ctx)
		if err != nil {
			return nil, err
		}
		if st.StreamID() == s.controlID {
			_ = st.Close()
			continue
		}
		return st, nil
	}
}

func (s *Session) CloseWithError(code q.ApplicationErrorCode, msg string) error {
	return s.conn.CloseWithError(code, msg)
}
