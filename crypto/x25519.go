package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
)

// PeerKey is the 32-byte static KEM public key that identifies a mesh
// participant for sealing purposes.
type PeerKey [32]byte

// X25519KeyPair is an X25519 keypair used for encapsulation.
type X25519KeyPair struct {
	PublicKey  [32]byte
	PrivateKey [32]byte
}

var ErrInvalidPublicKey = errors.New("crypto: invalid X25519 public key")

// GenerateX25519 generates a fresh X25519 keypair.
func GenerateX25519() (X25519KeyPair, error) {
	var kp X25519KeyPair
	if _, err := io.ReadFull(rand.Reader, kp.PrivateKey[:]); err != nil {
		return X25519KeyPair{}, err
	}
	// Clamp private key per RFC 7748
	kp.PrivateKey[0] &= 248
	kp.PrivateKey[31] &= 127
	kp.PrivateKey[31] |= 64

	curve25519.ScalarBaseMult(&kp.PublicKey, &kp.PrivateKey)
	return kp, nil
}

// ECDH computes the X25519 shared secret. The 32 raw bytes must be run
// through HKDF before use as a cipher key.
func ECDH(privateKey, peerPublicKey [32]byte) ([]byte, error) {
	// Reject the all-zero (low order) point outright.
	var zero [32]byte
	if peerPublicKey == zero {
		return nil, ErrInvalidPublicKey
	}
	return curve25519.X25519(privateKey[:], peerPublicKey[:])
}

// Zeroize overwrites b with zeros. Go gives no hard guarantee the
// compiler keeps the stores, but it removes the material from the
// obvious places.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
