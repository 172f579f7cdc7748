package ratchet

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
)

var (
	ErrRatchetExhausted  = errors.New("ratchet: maximum generation reached")
	ErrInvalidGeneration = errors.New("ratchet: invalid generation number")
	ErrBadKeySize        = errors.New("ratchet: initial key must be 32 bytes")
)

// MaxGeneration is the maximum number of ratchet steps before the
// owning session must re-key.
const MaxGeneration = 1 << 32

// deriveStep derives (nextChainKey, messageKey) from a chain key.
// chainKey || 0x01 -> messageKey, chainKey || 0x02 -> nextChainKey.
func deriveStep(chainKey [32]byte) (next [32]byte, message [32]byte) {
	h := sha256.New()
	h.Write(chainKey[:])
	h.Write([]byte{0x01})
	copy(message[:], h.Sum(nil))

	h = sha256.New()
	h.Write(chainKey[:])
	h.Write([]byte{0x02})
	copy(next[:], h.Sum(nil))
	return next, message
}

// Chain is the sending half of the ratchet.
type Chain struct {
	mu         sync.Mutex
	chainKey   [32]byte
	generation uint64
}

// NewChain creates a sending chain from an initial 32-byte key.
func NewChain(initialKey []byte) (*Chain, error) {
	if len(initialKey) != 32 {
		return nil, ErrBadKeySize
	}
	c := &Chain{}
	copy(c.chainKey[:], initialKey)
	return c, nil
}

// Step advances the ratchet, returning the AEAD for the current
// message and its generation. The old chain key is overwritten in
// place, which is what provides forward secrecy.
func (c *Chain) Step() (*AEAD, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation >= MaxGeneration {
		return nil, 0, ErrRatchetExhausted
	}

	next, msgKey := deriveStep(c.chainKey)
	gen := c.generation
	c.chainKey = next
	c.generation++

	aead, err := NewAEAD(msgKey[:])
	if err != nil {
		return nil, 0, err
	}
	return aead, gen, nil
}

// Generation returns the current generation number.
func (c *Chain) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Export returns the current chain state for resumption tickets.
// The caller is handling live keying material.
func (c *Chain) Export() (chainKey [32]byte, generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chainKey, c.generation
}

// Message is one ratcheted, encrypted payload.
type Message struct {
	Generation uint64
	Ciphertext []byte
}

// Seal encrypts plaintext and advances the ratchet.
func (c *Chain) Seal(plaintext, ad []byte) (Message, error) {
	aead, gen, err := c.Step()
	if err != nil {
		return Message{}, err
	}
	return Message{Generation: gen, Ciphertext: aead.Seal(plaintext, ad)}, nil
}

// Encode serializes a Message: generation (8, big endian) || ciphertext.
func (m Message) Encode() []byte {
	out := make([]byte, 8+len(m.Ciphertext))
	binary.BigEndian.PutUint64(out[:8], m.Generation)
	copy(out[8:], m.Ciphertext)
	return out
}

// DecodeMessage deserializes a Message.
func DecodeMessage(data []byte) (Message, error) {
	if len(data) < 8 {
		return Message{}, errors.New("ratchet: message too short")
	}
	return Message{
		Generation: binary.BigEndian.Uint64(data[:8]),
		Ciphertext: data[8:],
	}, nil
}

// Receiver is the receiving half, tolerating out-of-order delivery up
// to maxSkip generations by caching skipped chain keys.
type Receiver struct {
	mu         sync.Mutex
	skipped    map[uint64][32]byte
	current    [32]byte
	currentGen uint64
	maxSkip    int
}

// NewReceiver creates a receiving chain from the initial key.
func NewReceiver(initialKey []byte, maxSkip int) (*Receiver, error) {
	if len(initialKey) != 32 {
		return nil, ErrBadKeySize
	}
	r := &Receiver{
		skipped: make(map[uint64][32]byte),
		maxSkip: maxSkip,
	}
	copy(r.current[:], initialKey)
	return r, nil
}

// Open decrypts a Message, handling out-of-order delivery.
func (r *Receiver) Open(msg Message, ad []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gen := msg.Generation

	// In-order fast path.
	if gen == r.currentGen {
		next, msgKey := deriveStep(r.current)
		aead, err := NewAEAD(msgKey[:])
		if err != nil {
			return nil, err
		}
		pt, err := aead.Open(msg.Ciphertext, ad)
		if err != nil {
			return nil, err
		}
		r.current = next
		r.currentGen++
		return pt, nil
	}

	// A late message whose chain key we cached earlier.
	if cached, ok := r.skipped[gen]; ok {
		_, msgKey := deriveStep(cached)
		aead, err := NewAEAD(msgKey[:])
		if err != nil {
			return nil, err
		}
		delete(r.skipped, gen)
		return aead.Open(msg.Ciphertext, ad)
	}

	// A message from the future: cache the intermediate chain keys.
	if gen > r.currentGen {
		if int(gen-r.currentGen) > r.maxSkip {
			return nil, ErrInvalidGeneration
		}
		chainKey := r.current
		for i := r.currentGen; i < gen; i++ {
			next, _ := deriveStep(chainKey)
			r.skipped[i] = chainKey
			chainKey = next
		}
		next, msgKey := deriveStep(chainKey)
		r.current = next
		r.currentGen = gen + 1

		aead, err := NewAEAD(msgKey[:])
		if err != nil {
			return nil, err
		}
		return aead.Open(msg.Ciphertext, ad)
	}

	// From the past with no cached key: the key is gone.
	return nil, ErrInvalidGeneration
}
