package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a key of the requested length using HKDF-SHA256.
// salt can be nil (zero salt); info provides context binding.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	hk := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, length)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return key, nil
}

// deriveSealKey derives the single-use AEAD key for one sealed packet.
// The info binds the key to the ephemeral encapsulation key and the
// recipient's static key, so a ciphertext cannot be replayed against a
// different key pair.
func deriveSealKey(sharedSecret []byte, ephemeralPub, recipientPub [32]byte) ([]byte, error) {
	info := make([]byte, 0, 64+len("scatterlink-seal-v1"))
	info = append(info, []byte("scatterlink-seal-v1")...)
	info = append(info, ephemeralPub[:]...)
	info = append(info, recipientPub[:]...)
	return DeriveKey(sharedSecret, nil, info, 32)
}

// DeriveChannelKeys derives directional chain keys plus a resumption
// secret from a completed ephemeral exchange.
// Returns (initiatorKey, responderKey, resumptionSecret), 32 bytes each.
func DeriveChannelKeys(sharedSecret []byte, initiatorPub, responderPub [32]byte) ([]byte, []byte, []byte, error) {
	info := make([]byte, 0, 64+len("scatterlink-channel-keys"))
	info = append(info, []byte("scatterlink-channel-keys")...)
	info = append(info, initiatorPub[:]...)
	info = append(info, responderPub[:]...)

	keyMaterial, err := DeriveKey(sharedSecret, nil, info, 96)
	if err != nil {
		return nil, nil, nil, err
	}
	return keyMaterial[:32], keyMaterial[32:64], keyMaterial[64:96], nil
}
