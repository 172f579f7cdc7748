package ratchet

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrOpenFailed = errors.New("ratchet: message authentication failed")

// AEAD seals and opens with a single-use message key. Because every
// ratchet step yields a fresh key, a fixed all-zero nonce is safe and
// keeps the wire format to ciphertext || tag with no nonce prefix.
type AEAD struct {
	key [32]byte
}

// NewAEAD wraps a 32-byte single-use message key.
func NewAEAD(key []byte) (*AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("ratchet: invalid message key size")
	}
	a := &AEAD{}
	copy(a.key[:], key)
	return a, nil
}

// Seal encrypts and authenticates plaintext: ciphertext || tag (16).
func (a *AEAD) Seal(plaintext, ad []byte) []byte {
	aead, err := chacha20poly1305.New(a.key[:])
	if err != nil {
		// Key length is enforced in NewAEAD.
		panic(err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	return aead.Seal(nil, nonce, plaintext, ad)
}

// Open decrypts and verifies ciphertext produced by Seal.
func (a *AEAD) Open(ciphertext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(a.key[:])
	if err != nil {
		panic(err)
	}
	if len(ciphertext) < aead.Overhead() {
		return nil, ErrOpenFailed
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	pt, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return pt, nil
}

// Overhead returns the authentication tag overhead.
func (a *AEAD) Overhead() int { return chacha20poly1305.Overhead }
