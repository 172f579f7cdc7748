package crypto

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"scatterlink/identity"
)

var (
	ErrKeyGeneration        = errors.New("crypto: key generation failed")
	ErrKeyEvolution         = errors.New("crypto: key evolution failed")
	ErrEncryptionFailed     = errors.New("crypto: encryption failed")
	ErrInvalidCiphertext    = errors.New("crypto: invalid ciphertext")
	ErrAuthenticationFailed = errors.New("crypto: authentication failed")
)

const (
	// SealOverhead is the fixed size added to every sealed payload:
	// the ephemeral encapsulation key plus the Poly1305 tag.
	// Output length is always input length + SealOverhead.
	SealOverhead = 32 + 16

	// DefaultEvolutionInterval bounds how long a single KEM key stays live.
	DefaultEvolutionInterval = time.Hour
)

// KeyInfo describes the temporal metadata of the current KEM key.
type KeyInfo struct {
	CreatedAt  time.Time
	Evolutions uint64
}

// Manager owns the local asymmetric key material: one X25519 KEM pair
// for sealing and one Ed25519 pair for signing. The KEM pair evolves
// on a schedule; the secret half never leaves the Manager.
//
// Seal and Open are read-only with respect to Manager state and safe
// to call concurrently with EvolveKeys.
type Manager struct {
	mu        sync.RWMutex
	interval  time.Duration
	kem       X25519KeyPair
	createdAt time.Time
	evolved   uint64
	signer    identity.KeyPair
}

// NewManager generates the initial KEM and signing key pairs.
// A key-generation failure is fatal to construction; there is no retry.
func NewManager(evolutionInterval time.Duration) (*Manager, error) {
	if evolutionInterval <= 0 {
		evolutionInterval = DefaultEvolutionInterval
	}
	kem, err := GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	signer, err := identity.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return &Manager{
		interval:  evolutionInterval,
		kem:       kem,
		createdAt: time.Now(),
		signer:    signer,
	}, nil
}

// PublicKey returns a copy of the current KEM public key.
func (m *Manager) PublicKey() PeerKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return PeerKey(m.kem.PublicKey)
}

// Identity returns the signing identity keypair (public half usable by
// callers; the Ed25519 private key stays inside the returned value).
func (m *Manager) Identity() identity.KeyPair {
	return m.signer
}

// Sign signs a message with the identity key. Used for threat
// signatures and handshake material.
func (m *Manager) Sign(message []byte) []byte {
	return m.signer.Sign(message)
}

// KeyInfo reports the creation time and evolution count of the
// current KEM key.
func (m *Manager) KeyInfo() KeyInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return KeyInfo{CreatedAt: m.createdAt, Evolutions: m.evolved}
}

// Seal encrypts payload for the peer identified by peerKey.
//
// A fresh X25519 keypair is generated per packet and encapsulated
// against the peer's static key; the AEAD key is derived via
// HKDF-SHA256 bound to both encapsulation keys, and the sender's
// current static public key rides as associated data.
//
// Output: ephemeralPub (32) || ciphertext || tag (16).
func (m *Manager) Seal(payload []byte, peerKey PeerKey) ([]byte, error) {
	m.mu.RLock()
	senderPub := m.kem.PublicKey
	m.mu.RUnlock()

	eph, err := GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	shared, err := ECDH(eph.PrivateKey, [32]byte(peerKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	key, err := deriveSealKey(shared, eph.PublicKey, [32]byte(peerKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	// The key is single-use, so a fixed all-zero nonce is safe.
	nonce := make([]byte, chacha20poly1305.NonceSize)
	out := make([]byte, 32, 32+len(payload)+aead.Overhead())
	copy(out, eph.PublicKey[:])
	out = aead.Seal(out, nonce, payload, senderPub[:])

	Zeroize(eph.PrivateKey[:])
	Zeroize(shared)
	Zeroize(key)
	return out, nil
}

// Open reverses Seal for a packet sealed to our current KEM key by the
// peer identified by peerKey.
//
// ErrInvalidCiphertext and ErrAuthenticationFailed are both
// drop-the-packet signals; retrying with the same input cannot succeed.
func (m *Manager) Open(ciphertext []byte, peerKey PeerKey) ([]byte, error) {
	if len(ciphertext) < SealOverhead {
		return nil, ErrInvalidCiphertext
	}

	var ephPub [32]byte
	copy(ephPub[:], ciphertext[:32])

	m.mu.RLock()
	priv := m.kem.PrivateKey
	recipientPub := m.kem.PublicKey
	m.mu.RUnlock()

	shared, err := ECDH(priv, ephPub)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	key, err := deriveSealKey(shared, ephPub, recipientPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	plaintext, err := aead.Open(nil, nonce, ciphertext[32:], peerKey[:])

	Zeroize(shared)
	Zeroize(key)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// EvolveKeys replaces the KEM key pair once the evolution interval has
// elapsed. The swap is atomic with respect to Seal/Open/PublicKey; the
// old secret is zeroized. Calling before the interval elapses is a
// no-op, not an error.
func (m *Manager) EvolveKeys() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.createdAt) <= m.interval {
		return nil
	}
	next, err := GenerateX25519()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyEvolution, err)
	}
	Zeroize(m.kem.PrivateKey[:])
	m.kem = next
	m.createdAt = time.Now()
	m.evolved++
	return nil
}

// Run evolves keys on a timer until ctx is cancelled. An evolution
// failure leaves the current key in place and stops the loop; restart
// policy belongs to the caller.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.EvolveKeys(); err != nil {
				return err
			}
		}
	}
}
