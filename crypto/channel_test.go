package crypto

import (
	"bytes"
	"testing"
)

func newChannelPair(t *testing.T) (*Channel, *Channel) {
	t.Helper()
	init, err := NewChannelInitiator()
	if err != nil {
		t.Fatalf("NewChannelInitiator: %v", err)
	}
	resp, err := NewChannelResponder()
	if err != nil {
		t.Fatalf("NewChannelResponder: %v", err)
	}
	if err := init.Complete(resp.LocalEphemeralPublic()); err != nil {
		t.Fatalf("initiator Complete: %v", err)
	}
	if err := resp.Complete(init.LocalEphemeralPublic()); err != nil {
		t.Fatalf("responder Complete: %v", err)
	}
	return init, resp
}

func TestChannelRoundTrip(t *testing.T) {
	init, resp := newChannelPair(t)

	ad := []byte("control")
	for i := 0; i < 5; i++ {
		msg := []byte{byte(i), 0xAA, 0xBB}
		ct, err := init.Encrypt(msg, ad)
		if err != nil {
			t.Fatalf("Encrypt %d: %v", i, err)
		}
		pt, err := resp.Decrypt(ct, ad)
		if err != nil {
			t.Fatalf("Decrypt %d: %v", i, err)
		}
		if !bytes.Equal(pt, msg) {
			t.Fatalf("message %d mismatch", i)
		}
	}

	// The other direction uses its own chain.
	ct, err := resp.Encrypt([]byte("reply"), ad)
	if err != nil {
		t.Fatalf("responder Encrypt: %v", err)
	}
	pt, err := init.Decrypt(ct, ad)
	if err != nil {
		t.Fatalf("initiator Decrypt: %v", err)
	}
	if string(pt) != "reply" {
		t.Fatalf("reply mismatch: %q", pt)
	}
}

func TestChannelNotEstablished(t *testing.T) {
	init, err := NewChannelInitiator()
	if err != nil {
		t.Fatalf("NewChannelInitiator: %v", err)
	}
	if _, err := init.Encrypt([]byte("x"), nil); err != ErrChannelNotEstablished {
		t.Fatalf("Encrypt before Complete: got %v", err)
	}
	if _, err := init.Decrypt([]byte("xxxxxxxxxx"), nil); err != ErrChannelNotEstablished {
		t.Fatalf("Decrypt before Complete: got %v", err)
	}
	if _, err := init.ResumptionSecret(); err != ErrChannelNotEstablished {
		t.Fatalf("ResumptionSecret before Complete: got %v", err)
	}
}

func TestChannelResumptionSecretsMatch(t *testing.T) {
	init, resp := newChannelPair(t)

	a, err := init.ResumptionSecret()
	if err != nil {
		t.Fatalf("initiator ResumptionSecret: %v", err)
	}
	b, err := resp.ResumptionSecret()
	if err != nil {
		t.Fatalf("responder ResumptionSecret: %v", err)
	}
	if a != b {
		t.Fatalf("resumption secrets differ")
	}
}

func TestChannelCompleteTwice(t *testing.T) {
	init, resp := newChannelPair(t)
	gen := init.SendGeneration()
	if err := init.Complete(resp.LocalEphemeralPublic()); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if init.SendGeneration() != gen {
		t.Fatalf("second Complete reset the send chain")
	}
}

func TestChannelWrongAD(t *testing.T) {
	init, resp := newChannelPair(t)
	ct, err := init.Encrypt([]byte("payload"), []byte("right"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := resp.Decrypt(ct, []byte("wrong")); err == nil {
		t.Fatalf("expected failure with mismatched associated data")
	}
}
