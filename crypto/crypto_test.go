package crypto

import (
	"bytes"
	"testing"
)

func TestX25519ECDH(t *testing.T) {
	alice, err := GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	bob, err := GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}

	sharedAlice, err := ECDH(alice.PrivateKey, bob.PublicKey)
	if err != nil {
		t.Fatalf("ECDH alice: %v", err)
	}
	sharedBob, err := ECDH(bob.PrivateKey, alice.PublicKey)
	if err != nil {
		t.Fatalf("ECDH bob: %v", err)
	}

	if !bytes.Equal(sharedAlice, sharedBob) {
		t.Fatalf("shared secrets do not match")
	}
}

func TestECDHRejectsZeroPoint(t *testing.T) {
	kp, _ := GenerateX25519()
	var zero [32]byte
	if _, err := ECDH(kp.PrivateKey, zero); err != ErrInvalidPublicKey {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}
}

func TestAEADRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	aead, err := NewAEAD(key)
	if err != nil {
		t.Fatalf("NewAEAD: %v", err)
	}

	plaintext := []byte("hello scatterlink")
	ad := []byte("additional data")

	ciphertext := aead.Seal(plaintext, ad)
	if len(ciphertext) != len(plaintext)+aead.NonceSize()+aead.Overhead() {
		t.Fatalf("unexpected ciphertext length")
	}

	decrypted, err := aead.Open(ciphertext, ad)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("decrypted != plaintext")
	}

	// Tamper with the tag region
	ciphertext[len(ciphertext)-1] ^= 0xff
	if _, err := aead.Open(ciphertext, ad); err != ErrDecryptionFailed {
		t.Fatalf("expected decryption failure on tampered ciphertext")
	}
}

func TestDeriveChannelKeys(t *testing.T) {
	alice, _ := GenerateX25519()
	bob, _ := GenerateX25519()
	shared, _ := ECDH(alice.PrivateKey, bob.PublicKey)

	k1, k2, resume, err := DeriveChannelKeys(shared, alice.PublicKey, bob.PublicKey)
	if err != nil {
		t.Fatalf("DeriveChannelKeys: %v", err)
	}
	if len(k1) != 32 || len(k2) != 32 || len(resume) != 32 {
		t.Fatalf("unexpected key lengths")
	}
	if bytes.Equal(k1, k2) {
		t.Fatalf("initiator and responder keys should differ")
	}
	if bytes.Equal(k1, resume) || bytes.Equal(k2, resume) {
		t.Fatalf("resumption secret should differ from chain keys")
	}
}

func TestZeroize(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Zeroize(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroized", i)
		}
	}
}
