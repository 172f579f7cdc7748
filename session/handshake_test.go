package session

import (
	"context"
	"testing"
	"time"

	"scatterlink/crypto"
	"scatterlink/transport/quic"
)

func newManager(t *testing.T) *crypto.Manager {
	t.Helper()
	mgr, err := crypto.NewManager(time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

// handshakePair runs a real loopback QUIC handshake and returns both
// sessions.
func handshakePair(t *testing.T, clientMgr, serverMgr *crypto.Manager, clientOpts, serverOpts HandshakeOptions) (*Session, *Session) {
	t.Helper()

	ln, err := quic.Listen("[::1]:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type result struct {
		sess *Session
		err  error
	}
	serverCh := make(chan result, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			serverCh <- result{err: err}
			return
		}
		sess, err := HandshakeServer(ctx, conn, serverMgr, serverOpts)
		serverCh <- result{sess: sess, err: err}
	}()

	conn, err := quic.Dial(ctx, ln.AddrString())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	clientSess, err := HandshakeClient(ctx, conn, clientMgr, clientOpts)
	if err != nil {
		t.Fatalf("HandshakeClient: %v", err)
	}

	srv := <-serverCh
	if srv.err != nil {
		t.Fatalf("HandshakeServer: %v", srv.err)
	}
	return clientSess, srv.sess
}

func TestHandshakeLoopback(t *testing.T) {
	clientMgr := newManager(t)
	serverMgr := newManager(t)

	clientSess, serverSess := handshakePair(t, clientMgr, serverMgr,
		HandshakeOptions{Capabilities: map[string]string{"role": "client"}},
		HandshakeOptions{Capabilities: map[string]string{"role": "server"}})
	defer clientSess.CloseWithError(0, "done")

	if clientSess.RemotePeerID() != serverMgr.Identity().PeerID() {
		t.Fatalf("client sees wrong peer id")
	}
	if serverSess.RemotePeerID() != clientMgr.Identity().PeerID() {
		t.Fatalf("server sees wrong peer id")
	}
	if clientSess.RemoteSealKey() != serverMgr.PublicKey() {
		t.Fatalf("client learned wrong seal key")
	}
	if serverSess.RemoteSealKey() != clientMgr.PublicKey() {
		t.Fatalf("server learned wrong seal key")
	}
	if clientSess.RemoteCapabilities()["role"] != "server" {
		t.Fatalf("client capabilities: %v", clientSess.RemoteCapabilities())
	}
	if serverSess.RemoteCapabilities()["role"] != "client" {
		t.Fatalf("server capabilities: %v", serverSess.RemoteCapabilities())
	}
}

func TestHandshakeEstablishesChannel(t *testing.T) {
	clientSess, serverSess := handshakePair(t, newManager(t), newManager(t),
		HandshakeOptions{}, HandshakeOptions{})
	defer clientSess.CloseWithError(0, "done")

	if !clientSess.Channel().IsEstablished() || !serverSess.Channel().IsEstablished() {
		t.Fatalf("probe did not establish the channel")
	}

	ct, err := clientSess.Channel().Encrypt([]byte("control message"), nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := serverSess.Channel().Decrypt(ct, nil)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt) != "control message" {
		t.Fatalf("channel round trip mismatch: %q", pt)
	}

	clientSecret, err := clientSess.Channel().ResumptionSecret()
	if err != nil {
		t.Fatalf("client ResumptionSecret: %v", err)
	}
	serverSecret, err := serverSess.Channel().ResumptionSecret()
	if err != nil {
		t.Fatalf("server ResumptionSecret: %v", err)
	}
	if clientSecret != serverSecret {
		t.Fatalf("resumption secrets differ")
	}
}

func TestSessionDataStreams(t *testing.T) {
	clientSess, serverSess := handshakePair(t, newManager(t), newManager(t),
		HandshakeOptions{}, HandshakeOptions{})
	defer clientSess.CloseWithError(0, "done")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := clientSess.OpenStream(ctx)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	msg := []byte("lane payload")
	if _, err := out.Write(msg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	in, err := serverSess.AcceptStream(ctx)
	if err != nil {
		t.Fatalf("AcceptStream: %v", err)
	}
	buf := make([]byte, len(msg))
	total := 0
	for total < len(msg) {
		n, err := in.Read(buf[total:])
		total += n
		if err != nil {
			break
		}
	}
	if string(buf[:total]) != string(msg) {
		t.Fatalf("stream payload mismatch: %q", buf[:total])
	}
}
