package crypto

import (
	"errors"
	"sync"

	"scatterlink/crypto/ratchet"
)

var ErrChannelNotEstablished = errors.New("crypto: secure channel not established")

// defaultMaxSkip bounds how many out-of-order generations a channel
// receiver tolerates before rejecting a message.
const defaultMaxSkip = 1000

// Channel is an end-to-end encrypted link with forward secrecy,
// combining an ephemeral X25519 exchange with directional symmetric
// ratchets. The session layer uses it for the handshake probe and
// control traffic; the per-packet route path uses Manager.Seal instead.
type Channel struct {
	mu           sync.Mutex
	established  bool
	isInitiator  bool
	localEph     X25519KeyPair
	remoteEphPub [32]byte
	resumption   [32]byte
	sendChain    *ratchet.Chain
	recvChain    *ratchet.Receiver
}

// NewChannelInitiator creates the initiating side of a channel.
func NewChannelInitiator() (*Channel, error) {
	eph, err := GenerateX25519()
	if err != nil {
		return nil, err
	}
	return &Channel{isInitiator: true, localEph: eph}, nil
}

// NewChannelResponder creates the responding side of a channel.
func NewChannelResponder() (*Channel, error) {
	eph, err := GenerateX25519()
	if err != nil {
		return nil, err
	}
	return &Channel{isInitiator: false, localEph: eph}, nil
}

// LocalEphemeralPublic returns the local ephemeral key to send to the peer.
func (c *Channel) LocalEphemeralPublic() [32]byte {
	return c.localEph.PublicKey
}

// Complete finishes the key exchange with the peer's ephemeral key and
// initializes both ratchet directions. Calling it twice is a no-op.
func (c *Channel) Complete(peerEphPub [32]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.established {
		return nil
	}
	c.remoteEphPub = peerEphPub

	shared, err := ECDH(c.localEph.PrivateKey, peerEphPub)
	if err != nil {
		return err
	}

	var initiatorPub, responderPub [32]byte
	if c.isInitiator {
		initiatorPub, responderPub = c.localEph.PublicKey, peerEphPub
	} else {
		initiatorPub, responderPub = peerEphPub, c.localEph.PublicKey
	}

	initKey, respKey, resume, err := DeriveChannelKeys(shared, initiatorPub, responderPub)
	if err != nil {
		return err
	}
	copy(c.resumption[:], resume)

	// The initiator sends on the initiator key; the responder receives
	// on it, and vice versa.
	myKey, theirKey := initKey, respKey
	if !c.isInitiator {
		myKey, theirKey = respKey, initKey
	}

	if c.sendChain, err = ratchet.NewChain(myKey); err != nil {
		return err
	}
	if c.recvChain, err = ratchet.NewReceiver(theirKey, defaultMaxSkip); err != nil {
		return err
	}

	Zeroize(shared)
	Zeroize(c.localEph.PrivateKey[:])
	c.established = true
	return nil
}

// IsEstablished reports whether the channel is ready for use.
func (c *Channel) IsEstablished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.established
}

// ResumptionSecret returns the secret a ticket store seals into a
// resumption ticket. Only valid after Complete.
func (c *Channel) ResumptionSecret() ([32]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.established {
		return [32]byte{}, ErrChannelNotEstablished
	}
	return c.resumption, nil
}

// Encrypt seals a message with forward secrecy.
func (c *Channel) Encrypt(plaintext, ad []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.established {
		return nil, ErrChannelNotEstablished
	}
	msg, err := c.sendChain.Seal(plaintext, ad)
	if err != nil {
		return nil, err
	}
	return msg.Encode(), nil
}

// Decrypt opens a message sealed by the peer.
func (c *Channel) Decrypt(ciphertext, ad []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.established {
		return nil, ErrChannelNotEstablished
	}
	msg, err := ratchet.DecodeMessage(ciphertext)
	if err != nil {
		return nil, err
	}
	return c.recvChain.Open(msg, ad)
}

// SendGeneration returns the current send ratchet generation.
func (c *Channel) SendGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendChain == nil {
		return 0
	}
	return c.sendChain.Generation()
}
