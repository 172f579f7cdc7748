package scatterlink

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"scatterlink/cache"
	"scatterlink/engine"
	"scatterlink/event"
	"scatterlink/scatter"
)

func newNodePair(t *testing.T) (*Node, *Node, *Link, *Link) {
	t.Helper()

	server, err := NewNode(NodeConfig{Dimensions: 3, EventBuffer: 64})
	if err != nil {
		t.Fatalf("NewNode server: %v", err)
	}
	client, err := NewNode(NodeConfig{Dimensions: 3, EventBuffer: 64})
	if err != nil {
		t.Fatalf("NewNode client: %v", err)
	}

	if err := server.Listen("[::1]:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	scfg := &scatter.Config{DataShards: 2, ParityShards: 1}
	type accepted struct {
		link *Link
		err  error
	}
	acceptCh := make(chan accepted, 1)
	go func() {
		sess, err := server.Accept(ctx)
		if err != nil {
			acceptCh <- accepted{err: err}
			return
		}
		link, err := server.Attach(ctx, sess, LinkOptions{Scatter: scfg})
		acceptCh <- accepted{link: link, err: err}
	}()

	sess, err := client.Dial(ctx, server.ListenAddr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	clientLink, err := client.Attach(ctx, sess, LinkOptions{Scatter: scfg})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	srv := <-acceptCh
	if srv.err != nil {
		t.Fatalf("server accept: %v", srv.err)
	}

	t.Cleanup(func() {
		clientLink.Close()
		srv.link.Close()
	})
	return server, client, srv.link, clientLink
}

func waitDelivery(t *testing.T, link *Link) Delivery {
	t.Helper()
	select {
	case d := <-link.Deliveries():
		return d
	case <-time.After(10 * time.Second):
		t.Fatalf("no delivery")
		return Delivery{}
	}
}

func TestNodeDialAdmitsPeers(t *testing.T) {
	server, client, _, _ := newNodePair(t)

	srvPeers := server.Engine().Peers()
	if len(srvPeers) != 1 {
		t.Fatalf("server has %d peers, want 1", len(srvPeers))
	}
	if srvPeers[0].PublicKey != client.Manager().PublicKey() {
		t.Fatalf("server admitted wrong peer key")
	}
	if srvPeers[0].State != engine.StateEstablished {
		t.Fatalf("server peer state = %v, want ESTABLISHED", srvPeers[0].State)
	}

	cliPeers := client.Engine().Peers()
	if len(cliPeers) != 1 || cliPeers[0].PublicKey != server.Manager().PublicKey() {
		t.Fatalf("client peer table wrong: %+v", cliPeers)
	}
}

func TestLinkSendDeliver(t *testing.T) {
	_, client, serverLink, clientLink := newNodePair(t)

	payload := []byte("hello across the mesh")
	if err := clientLink.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	d := waitDelivery(t, serverLink)
	if !bytes.Equal(d.Payload, payload) {
		t.Fatalf("delivered %q, want %q", d.Payload, payload)
	}
	if int(d.Dimension) >= client.Engine().Dimensions() {
		t.Fatalf("delivery on out-of-range dimension %d", d.Dimension)
	}

	// Load accounting moved on the sender.
	var total uint64
	for _, load := range client.Engine().Loads() {
		total += load
	}
	if total == 0 {
		t.Fatalf("no load accounted after a successful send")
	}
}

func TestLinkBidirectional(t *testing.T) {
	_, _, serverLink, clientLink := newNodePair(t)

	if err := clientLink.Send([]byte("ping")); err != nil {
		t.Fatalf("client Send: %v", err)
	}
	if d := waitDelivery(t, serverLink); string(d.Payload) != "ping" {
		t.Fatalf("server got %q", d.Payload)
	}

	if err := serverLink.Send([]byte("pong")); err != nil {
		t.Fatalf("server Send: %v", err)
	}
	if d := waitDelivery(t, clientLink); string(d.Payload) != "pong" {
		t.Fatalf("client got %q", d.Payload)
	}
}

func TestLinkSendScattered(t *testing.T) {
	_, _, serverLink, clientLink := newNodePair(t)

	payload := make([]byte, 20_000)
	for i := range payload {
		payload[i] = byte(i * 13)
	}
	if err := clientLink.SendScattered(payload); err != nil {
		t.Fatalf("SendScattered: %v", err)
	}

	d := waitDelivery(t, serverLink)
	if !bytes.Equal(d.Payload, payload) {
		t.Fatalf("scattered payload mismatch (%d vs %d bytes)", len(d.Payload), len(payload))
	}
}

func TestLinkNoScatterCodec(t *testing.T) {
	server, err := NewNode(NodeConfig{Dimensions: 2})
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	client, err := NewNode(NodeConfig{Dimensions: 2})
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	if err := server.Listen("[::1]:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		sess, err := server.Accept(ctx)
		if err == nil {
			_, _ = server.Attach(ctx, sess, LinkOptions{})
		}
	}()

	sess, err := client.Dial(ctx, server.ListenAddr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	link, err := client.Attach(ctx, sess, LinkOptions{})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer link.Close()

	if err := link.SendScattered([]byte("x")); err != ErrNoScatterCode {
		t.Fatalf("expected ErrNoScatterCode, got %v", err)
	}
}

func TestLinkCloseUnblocksReaders(t *testing.T) {
	_, _, serverLink, clientLink := newNodePair(t)

	// Traffic in both directions leaves the client with live inbound
	// streams whose readers are parked in a blocking read.
	if err := clientLink.Send([]byte("ping")); err != nil {
		t.Fatalf("client Send: %v", err)
	}
	waitDelivery(t, serverLink)
	if err := serverLink.Send([]byte("pong")); err != nil {
		t.Fatalf("server Send: %v", err)
	}
	waitDelivery(t, clientLink)

	// Closing the client side alone must return promptly, well inside
	// the transport idle timeout, even though the peer still holds its
	// end of those streams open.
	done := make(chan struct{})
	go func() {
		clientLink.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Close blocked on inbound stream readers")
	}
}

func TestGatherShardBounded(t *testing.T) {
	codec, err := scatter.NewCodec(scatter.Config{DataShards: 2, ParityShards: 1})
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	l := &Link{gatherers: cache.New[*scatter.Gatherer](4)}

	// A hostile or lossy peer can open shard sets that never complete;
	// the tracked set count must stay bounded regardless.
	for i := 0; i < 100; i++ {
		shards, err := codec.Scatter([]byte(fmt.Sprintf("orphan set %d", i)))
		if err != nil {
			t.Fatalf("Scatter: %v", err)
		}
		if _, done := l.gatherShard(shards[0].Encode()); done {
			t.Fatalf("single shard completed a 2+1 set")
		}
	}
	if got := l.gatherers.Len(); got > 4 {
		t.Fatalf("tracked %d shard sets, limit 4", got)
	}
}

func TestGatherShardActiveSetSurvivesFlood(t *testing.T) {
	codec, _ := scatter.NewCodec(scatter.Config{DataShards: 3, ParityShards: 1})
	l := &Link{gatherers: cache.New[*scatter.Gatherer](4)}

	payload := []byte("the set still receiving shards")
	active, err := codec.Scatter(payload)
	if err != nil {
		t.Fatalf("Scatter: %v", err)
	}

	// Two early shards reinforce the active set past the orphans'
	// baseline priority, so the flood evicts orphans instead.
	l.gatherShard(active[0].Encode())
	l.gatherShard(active[1].Encode())

	for i := 0; i < 20; i++ {
		orphan, _ := codec.Scatter([]byte(fmt.Sprintf("flood %d", i)))
		l.gatherShard(orphan[0].Encode())
	}

	out, done := l.gatherShard(active[2].Encode())
	if !done {
		t.Fatalf("active set was evicted by the flood")
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("reassembled payload mismatch")
	}
}

func TestNodeEvents(t *testing.T) {
	_, client, _, clientLink := newNodePair(t)

	if err := clientLink.Send([]byte("traffic")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.After(10 * time.Second)
	var sawConnected, sawRouted bool
	for !(sawConnected && sawRouted) {
		select {
		case ev := <-client.Events():
			switch ev.Kind() {
			case event.KindPeerConnected:
				sawConnected = true
			case event.KindPacketRouted:
				sawRouted = true
			}
		case <-deadline:
			t.Fatalf("events missing: connected=%v routed=%v", sawConnected, sawRouted)
		}
	}
}

func TestNodeNotListening(t *testing.T) {
	n, err := NewNode(NodeConfig{})
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	if _, err := n.Accept(context.Background()); err != ErrNotListening {
		t.Fatalf("expected ErrNotListening, got %v", err)
	}
	if n.ListenAddr() != "" {
		t.Fatalf("ListenAddr nonempty without listener")
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNodeRunStopsOnCancel(t *testing.T) {
	n, err := NewNode(NodeConfig{EvolutionInterval: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}
