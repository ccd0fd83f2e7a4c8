package store

import (
	"context"
	"sync"

	"github.com/jmerrifield20/quorumledger/internal/chain"
)

// MemoryStore keeps node state in memory. State does not survive restarts.
type MemoryStore struct {
	mu           sync.RWMutex
	proposals    []chain.Ledger
	ledger       *chain.Ledger
	participants []chain.Identity
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadProposals implements node.Store.
func (s *MemoryStore) LoadProposals(_ context.Context) ([]chain.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLedgers(s.proposals), nil
}

// SaveProposals implements node.Store.
func (s *MemoryStore) SaveProposals(_ context.Context, proposals []chain.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals = cloneLedgers(proposals)
	return nil
}

// LoadLedger implements node.Store.
func (s *MemoryStore) LoadLedger(_ context.Context) (*chain.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ledger == nil {
		return nil, nil
	}
	l := s.ledger.Clone()
	return &l, nil
}

// SaveLedger implements node.Store.
func (s *MemoryStore) SaveLedger(_ context.Context, l *chain.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l == nil {
		s.ledger = nil
		return nil
	}
	cp := l.Clone()
	s.ledger = &cp
	return nil
}

// LoadParticipants implements node.Store.
func (s *MemoryStore) LoadParticipants(_ context.Context) ([]chain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chain.Identity(nil), s.participants...), nil
}

// SaveParticipants implements node.Store.
func (s *MemoryStore) SaveParticipants(_ context.Context, ids []chain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants = append([]chain.Identity(nil), ids...)
	return nil
}
