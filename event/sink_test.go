package event

import (
	"testing"
	"time"
)

func TestChannelSinkDelivers(t *testing.T) {
	sink := NewChannelSink(4)
	want := PacketRouted{Dimension: 3, Bytes: 128}
	sink.Emit(want)

	select {
	case ev := <-sink.Events():
		got, ok := ev.(PacketRouted)
		if !ok {
			t.Fatalf("event type %T", ev)
		}
		if got != want {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event delivered")
	}
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	sink := NewChannelSink(2)

	// Nothing consumes; the third emit must return immediately and be
	// counted as dropped rather than block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			sink.Emit(PacketRouted{Dimension: uint8(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Emit blocked on a full sink")
	}
	if got := sink.Dropped(); got != 1 {
		t.Fatalf("Dropped = %d, want 1", got)
	}
	if got := len(sink.Events()); got != 2 {
		t.Fatalf("buffered = %d, want 2", got)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindPeerConnected:    "PEER_CONNECTED",
		KindPeerDisconnected: "PEER_DISCONNECTED",
		KindPacketRouted:     "PACKET_ROUTED",
		KindThreatSignature:  "THREAT_SIGNATURE",
		Kind(99):             "UNKNOWN",
	}
	for k, want := range cases {
		if k.String() != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}

func TestEventKinds(t *testing.T) {
	if (PeerConnected{}).Kind() != KindPeerConnected {
		t.Fatalf("PeerConnected kind mismatch")
	}
	if (PeerDisconnected{}).Kind() != KindPeerDisconnected {
		t.Fatalf("PeerDisconnected kind mismatch")
	}
	if (PacketRouted{}).Kind() != KindPacketRouted {
		t.Fatalf("PacketRouted kind mismatch")
	}
	if (ThreatSignature{}).Kind() != KindThreatSignature {
		t.Fatalf("ThreatSignature kind mismatch")
	}
}
