// Package crypto provides the cryptographic core of scatterlink.
//
// Design goals:
//   - Fast on commodity hardware (no AES-NI required)
//   - Hybrid sealing: ephemeral X25519 encapsulation per packet
//   - AEAD encryption via ChaCha20-Poly1305 (RFC 8439)
//   - Key derivation via HKDF-SHA256
//   - Scheduled key evolution to bound the exposure window of any
//     single key (see Manager)
package crypto
