package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jmerrifield20/quorumledger/internal/chain"
	"go.uber.org/multierr"
)

type part uint8

const (
	partProposals part = 1 << iota
	partLedger
	partParticipants
)

// snapshot is node state captured under the lock at a given version.
// Proposal ledgers are never modified after insertion, so copying the slice
// header is enough.
type snapshot struct {
	version      uint64
	dirty        part
	proposals    []chain.Ledger
	held         *chain.Ledger
	participants []chain.Identity
}

// snapshotLocked bumps the version and captures the parts named by dirty,
// plus any part whose last write failed. n.mu must be held for writing.
func (n *Node) snapshotLocked(dirty part) snapshot {
	dirty |= n.persister.pendingParts()
	n.version++
	s := snapshot{version: n.version, dirty: dirty}
	if dirty&partProposals != 0 {
		s.proposals = make([]chain.Ledger, len(n.proposals))
		copy(s.proposals, n.proposals)
	}
	if dirty&partLedger != 0 && n.held != nil {
		held := n.held.Clone()
		s.held = &held
	}
	if dirty&partParticipants != 0 {
		s.participants = n.registry.List()
	}
	return s
}

// persister writes snapshots to a Store outside the node lock. Each part
// remembers the version it was last written at, so a snapshot that lost the
// race to a newer one is not written over it. A part whose newest write
// failed stays pending until a later snapshot writes it.
type persister struct {
	mu     sync.Mutex
	store  Store
	saved  [3]uint64
	failed [3]uint64

	pending atomic.Uint32
}

// pendingParts returns the parts whose newest write failed. It does not take
// p.mu, so it is safe to call under the node lock while a write is running.
func (p *persister) pendingParts() part {
	return part(p.pending.Load())
}

// persist writes every dirty part of s that is newer than what the store
// already holds. A failing part does not stop the others; all failures are
// returned together.
func (p *persister) persist(ctx context.Context, s snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	save := func(i int, bit part, name string, write func() error) {
		if s.dirty&bit == 0 || s.version <= p.saved[i] {
			return
		}
		if serr := write(); serr != nil {
			err = multierr.Append(err, fmt.Errorf("persist %s: %w", name, serr))
			if s.version > p.failed[i] {
				p.failed[i] = s.version
			}
			return
		}
		p.saved[i] = s.version
	}
	save(0, partProposals, "proposals", func() error { return p.store.SaveProposals(ctx, s.proposals) })
	save(1, partLedger, "ledger", func() error { return p.store.SaveLedger(ctx, s.held) })
	save(2, partParticipants, "participants", func() error { return p.store.SaveParticipants(ctx, s.participants) })

	var pending part
	for i, bit := range []part{partProposals, partLedger, partParticipants} {
		if p.failed[i] > p.saved[i] {
			pending |= bit
		}
	}
	p.pending.Store(uint32(pending))
	return err
}
