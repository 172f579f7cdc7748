package identity

import "testing"

func TestPeerIDStable(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	a := kp.PeerID()
	b := PeerIDFromPublicKey(kp.PublicKey)
	if a != b {
		t.Fatalf("PeerID not stable for the same key")
	}

	parsed, err := ParsePeerIDHex(a.String())
	if err != nil {
		t.Fatalf("ParsePeerIDHex: %v", err)
	}
	if parsed != a {
		t.Fatalf("hex round trip mismatch")
	}
}

func TestParsePeerIDHexInvalid(t *testing.T) {
	if _, err := ParsePeerIDHex("zzzz"); err == nil {
		t.Fatalf("expected error for non-hex input")
	}
	if _, err := ParsePeerIDHex("abcd"); err == nil {
		t.Fatalf("expected error for short input")
	}
}

func TestSignVerify(t *testing.T) {
	kp, _ := GenerateKeyPair()
	msg := []byte("session binding")
	sig := kp.Sign(msg)
	if !Verify(kp.PublicKey, msg, sig) {
		t.Fatalf("valid signature rejected")
	}
	if Verify(kp.PublicKey, []byte("other"), sig) {
		t.Fatalf("signature verified for a different message")
	}

	other, _ := GenerateKeyPair()
	if Verify(other.PublicKey, msg, sig) {
		t.Fatalf("signature verified under a different key")
	}
}

func TestNewKeyPairValidation(t *testing.T) {
	kp, _ := GenerateKeyPair()
	if _, err := NewKeyPair(kp.PublicKey, kp.PrivateKey); err != nil {
		t.Fatalf("NewKeyPair: %v", err)
	}
	if _, err := NewKeyPair(kp.PublicKey[:16], kp.PrivateKey); err == nil {
		t.Fatalf("short public key accepted")
	}
	if _, err := NewKeyPair(kp.PublicKey, kp.PrivateKey[:16]); err == nil {
		t.Fatalf("short private key accepted")
	}
}
