package session

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"scatterlink/crypto"
	"scatterlink/identity"
)

var (
	ErrTicketExpired  = errors.New("session: ticket expired")
	ErrTicketInvalid  = errors.New("session: ticket invalid")
	ErrTicketNotFound = errors.New("session: ticket not found")
)

const (
	TicketKeySize  = 32
	TicketLifetime = 24 * time.Hour

	// ticketBody: peerID (32) + issuedAt (8) + expiresAt (8) +
	// resumption key (32).
	ticketBodySize = 80
)

// Ticket enables fast session resumption without the probe exchange.
// It carries the channel resumption secret, sealed so only the issuer
// can read it.
type Ticket struct {
	ID            [16]byte
	IssuedAt      int64 // unix seconds
	ExpiresAt     int64
	PeerID        identity.PeerID
	ResumptionKey [32]byte
}

// TicketStore issues and validates resumption tickets.
type TicketStore struct {
	mu      sync.RWMutex
	tickets map[[16]byte]*Ticket
	key     [TicketKeySize]byte // seals ticket state on the wire
}

// NewTicketStore creates a store with a random sealing key.
func NewTicketStore() (*TicketStore, error) {
	ts := &TicketStore{tickets: make(map[[16]byte]*Ticket)}
	if _, err := rand.Read(ts.key[:]); err != nil {
		return nil, err
	}
	return ts, nil
}

// NewTicketStoreWithKey creates a store sharing a sealing key, so a
// cluster of nodes can honor each other's tickets.
func NewTicketStoreWithKey(key [TicketKeySize]byte) *TicketStore {
	return &TicketStore{tickets: make(map[[16]byte]*Ticket), key: key}
}

// Issue creates a ticket for a peer's established channel.
func (ts *TicketStore) Issue(peerID identity.PeerID, resumptionKey [32]byte) (*Ticket, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	ticket := &Ticket{
		IssuedAt:      now.Unix(),
		ExpiresAt:     now.Add(TicketLifetime).Unix(),
		PeerID:        peerID,
		ResumptionKey: resumptionKey,
	}
	if _, err := rand.Read(ticket.ID[:]); err != nil {
		return nil, err
	}

	ts.tickets[ticket.ID] = ticket
	return ticket, nil
}

// Lookup retrieves and validates a ticket by ID.
func (ts *TicketStore) Lookup(ticketID [16]byte) (*Ticket, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	ticket, ok := ts.tickets[ticketID]
	if !ok {
		return nil, ErrTicketNotFound
	}
	if time.Now().Unix() > ticket.ExpiresAt {
		return nil, ErrTicketExpired
	}
	return ticket, nil
}

// Revoke invalidates a ticket.
func (ts *TicketStore) Revoke(ticketID [16]byte) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.tickets, ticketID)
}

// Cleanup removes expired tickets and reports how many went.
func (ts *TicketStore) Cleanup() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now().Unix()
	removed := 0
	for id, ticket := range ts.tickets {
		if now > ticket.ExpiresAt {
			delete(ts.tickets, id)
			removed++
		}
	}
	return removed
}

// EncodeTicket seals a ticket for wire transmission.
// Format: ticketID (16) || nonce (12) || ciphertext || tag (16)
func (ts *TicketStore) EncodeTicket(ticket *Ticket) ([]byte, error) {
	plain := make([]byte, ticketBodySize)
	copy(plain[0:32], ticket.PeerID[:])
	binary.BigEndian.PutUint64(plain[32:40], uint64(ticket.IssuedAt))
	binary.BigEndian.PutUint64(plain[40:48], uint64(ticket.ExpiresAt))
	copy(plain[48:80], ticket.ResumptionKey[:])

	aead, err := crypto.NewAEAD(ts.key[:])
	if err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(plain, ticket.ID[:])

	out := make([]byte, 16+len(ciphertext))
	copy(out[:16], ticket.ID[:])
	copy(out[16:], ciphertext)
	return out, nil
}

// DecodeTicket opens and validates a ticket from wire format.
func (ts *TicketStore) DecodeTicket(data []byte) (*Ticket, error) {
	if len(data) < 16+12+16+ticketBodySize { // id + nonce + tag + body
		return nil, ErrTicketInvalid
	}

	var ticketID [16]byte
	copy(ticketID[:], data[:16])

	aead, err := crypto.NewAEAD(ts.key[:])
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(data[16:], ticketID[:])
	if err != nil {
		return nil, ErrTicketInvalid
	}
	if len(plain) != ticketBodySize {
		return nil, ErrTicketInvalid
	}

	ticket := &Ticket{ID: ticketID}
	copy(ticket.PeerID[:], plain[0:32])
	ticket.IssuedAt = int64(binary.BigEndian.Uint64(plain[32:40]))
	ticket.ExpiresAt = int64(binary.BigEndian.Uint64(plain[40:48]))
	copy(ticket.ResumptionKey[:], plain[48:80])

	if time.Now().Unix() > ticket.ExpiresAt {
		return nil, ErrTicketExpired
	}
	return ticket, nil
}

// Count returns the number of live tickets.
func (ts *TicketStore) Count() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.tickets)
}
