// Package memory provides an in-memory discovery resolver for tests,
// examples and embedding in applications.
package memory

import (
	"sync"

	"scatterlink/discovery"
	"scatterlink/identity"
)

type Store struct {
	mu    sync.RWMutex
	peers map[identity.PeerID]discovery.AddrInfo
}

func New() *Store {
	return &Store{peers: map[identity.PeerID]discovery.AddrInfo{}}
}

func cloneCaps(caps map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range caps {
		out[k] = v
	}
	return out
}

func (s *Store) Announce(info discovery.AddrInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info.Capabilities = cloneCaps(info.Capabilities)
	s.peers[info.PeerID] = info
	return nil
}

func (s *Store) Lookup(peerID identity.PeerID) (discovery.AddrInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.peers[peerID]
	if !ok {
		return discovery.AddrInfo{}, discovery.ErrNotFound
	}
	info.Capabilities = cloneCaps(info.Capabilities)
	return info, nil
}

func (s *Store) List() ([]discovery.AddrInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]discovery.AddrInfo, 0, len(s.peers))
	for _, info := range s.peers {
		info.Capabilities = cloneCaps(info.Capabilities)
		out = append(out, info)
	}
	return out, nil
}
