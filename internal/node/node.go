// Package node holds the mutable state of a ledger node: the proposals
// received so far, the ledger this node extends with new messages, and the
// participant registry. All mutations are serialised by one lock; state is
// persisted from snapshots after the lock is released.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmerrifield20/quorumledger/internal/chain"
	"github.com/jmerrifield20/quorumledger/internal/participants"
	"go.uber.org/zap"
)

var (
	// ErrUnregisteredParticipant is returned when a message names a sender or
	// recipient that is not registered.
	ErrUnregisteredParticipant = errors.New("sender or recipient is not a registered participant")

	// ErrAlreadyInitialized is returned by CreateGenesis once proposals or
	// participants exist.
	ErrAlreadyInitialized = errors.New("ledger or participants already initialized")

	// ErrNoLedger is returned when the node does not hold a ledger yet.
	ErrNoLedger = errors.New("no ledger held")
)

// Store persists node state. Each Save call must be all-or-nothing.
// Implementations live in internal/store.
type Store interface {
	LoadProposals(ctx context.Context) ([]chain.Ledger, error)
	SaveProposals(ctx context.Context, proposals []chain.Ledger) error

	// LoadLedger returns nil when no ledger has been saved.
	LoadLedger(ctx context.Context) (*chain.Ledger, error)
	SaveLedger(ctx context.Context, l *chain.Ledger) error

	LoadParticipants(ctx context.Context) ([]chain.Identity, error)
	SaveParticipants(ctx context.Context, ids []chain.Identity) error
}

// Option configures a Node.
type Option func(*Node)

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(n *Node) { n.now = now }
}

// Node is the stateful ledger service. It is safe for concurrent use.
type Node struct {
	mu        sync.RWMutex
	proposals []chain.Ledger
	held      *chain.Ledger
	registry  *participants.Registry
	version   uint64

	persister *persister
	logger    *zap.Logger
	now       func() time.Time
}

// New restores a Node from store.
func New(ctx context.Context, store Store, logger *zap.Logger, opts ...Option) (*Node, error) {
	proposals, err := store.LoadProposals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load proposals: %w", err)
	}
	held, err := store.LoadLedger(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	ids, err := store.LoadParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	n := &Node{
		proposals: proposals,
		held:      held,
		registry:  participants.New(ids...),
		persister: &persister{store: store},
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range opts {
		o(n)
	}

	if held != nil {
		if v := chain.Validate(*held); !v.Valid {
			logger.Warn("held ledger failed integrity check",
				zap.Int("failed_at", v.FailedAt),
				zap.String("reason", string(v.Reason)),
			)
		}
	}
	logger.Info("node state restored",
		zap.Int("proposals", len(proposals)),
		zap.Int("participants", len(ids)),
		zap.Bool("holds_ledger", held != nil),
	)
	return n, nil
}

// CreateGenesis initialises a fresh node with the genesis ledger. The ledger
// becomes both the held ledger and the first proposal.
func (n *Node) CreateGenesis(ctx context.Context) (chain.Ledger, error) {
	n.mu.Lock()
	if len(n.proposals) > 0 || n.registry.Len() > 0 {
		n.mu.Unlock()
		return chain.Ledger{}, ErrAlreadyInitialized
	}
	genesis := chain.NewGenesis(n.now())
	held := genesis.Clone()
	n.held = &held
	n.proposals = append(n.proposals, genesis.Clone())
	snap := n.snapshotLocked(partProposals | partLedger | partParticipants)
	n.mu.Unlock()

	n.logger.Info("genesis created", zap.String("hash", genesis.Blocks[0].Hash))
	return genesis, n.persister.persist(ctx, snap)
}

// RegisterParticipant adds id to the registry.
func (n *Node) RegisterParticipant(ctx context.Context, id chain.Identity) error {
	n.mu.Lock()
	if err := n.registry.Register(id); err != nil {
		n.mu.Unlock()
		return err
	}
	snap := n.snapshotLocked(partParticipants)
	n.mu.Unlock()

	n.logger.Info("participant registered", zap.Stringer("identity", id))
	return n.persister.persist(ctx, snap)
}

// IsRegistered reports whether id is a registered participant.
func (n *Node) IsRegistered(id chain.Identity) bool {
	return n.registry.IsRegistered(id)
}

// Participants returns all registered identities.
func (n *Node) Participants() []chain.Identity {
	return n.registry.List()
}

// SendMessage appends msg to the held ledger. Sender and recipient must both
// be registered. A message without a timestamp is stamped with the entry time.
// If no ledger is held, a new one is started with this entry at index 1.
func (n *Node) SendMessage(ctx context.Context, msg chain.Message) (chain.Entry, error) {
	n.mu.Lock()
	if !n.registry.IsRegistered(msg.Sender) || !n.registry.IsRegistered(msg.Recipient) {
		n.mu.Unlock()
		return chain.Entry{}, ErrUnregisteredParticipant
	}

	now := n.now()
	if msg.Timestamp == "" {
		msg.Timestamp = chain.FormatTimestamp(now)
	}

	var current chain.Ledger
	if n.held != nil {
		current = *n.held
	} else {
		current = chain.Ledger{Network: chain.DefaultNetwork(now), Status: chain.DefaultStatus()}
	}
	next, entry := chain.Append(current, msg, now)
	n.held = &next
	snap := n.snapshotLocked(partLedger)
	n.mu.Unlock()

	n.logger.Debug("entry appended",
		zap.Int("index", entry.Index),
		zap.String("hash", entry.Hash),
	)
	return entry, n.persister.persist(ctx, snap)
}

// HeldLedger returns a copy of the ledger this node extends.
func (n *Node) HeldLedger() (chain.Ledger, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.held == nil {
		return chain.Ledger{}, ErrNoLedger
	}
	return n.held.Clone(), nil
}

// VerifyHeld validates the held ledger.
func (n *Node) VerifyHeld() (chain.Verdict, error) {
	l, err := n.HeldLedger()
	if err != nil {
		return chain.Verdict{}, err
	}
	return chain.Validate(l), nil
}

// CheckIntegrity re-validates the held ledger. A node that holds no ledger
// yet is considered intact. It satisfies health.ProbeFunc.
func (n *Node) CheckIntegrity(_ context.Context) error {
	v, err := n.VerifyHeld()
	if errors.Is(err, ErrNoLedger) {
		return nil
	}
	if err != nil {
		return err
	}
	return v.Err()
}

// Flush rewrites every part whose last save failed. It is a no-op when the
// store is up to date, and satisfies health.ProbeFunc.
func (n *Node) Flush(ctx context.Context) error {
	n.mu.Lock()
	if n.persister.pendingParts() == 0 {
		n.mu.Unlock()
		return nil
	}
	snap := n.snapshotLocked(0)
	n.mu.Unlock()

	n.logger.Info("retrying failed saves")
	return n.persister.persist(ctx, snap)
}

// ShareProposal validates l and, if it is a well-formed chain, records it as
// a proposal and returns the resulting consensus winner. An invalid ledger is
// rejected with a *chain.ValidationError and leaves the node unchanged.
func (n *Node) ShareProposal(ctx context.Context, l chain.Ledger) (chain.Resolution, error) {
	if v := chain.Validate(l); !v.Valid {
		n.logger.Warn("proposal rejected",
			zap.Int("failed_at", v.FailedAt),
			zap.String("reason", string(v.Reason)),
		)
		return chain.Resolution{}, v.Err()
	}

	n.mu.Lock()
	n.proposals = append(n.proposals, l.Clone())
	snap := n.snapshotLocked(partProposals)
	n.mu.Unlock()

	res, err := chain.Resolve(snap.proposals)
	if err != nil {
		return chain.Resolution{}, err
	}
	if perr := n.persister.persist(ctx, snap); perr != nil {
		return res, perr
	}
	return res, nil
}

// Latest returns the current consensus winner, or chain.ErrEmptyConsensusSet
// when no proposals have been recorded.
func (n *Node) Latest() (chain.Resolution, error) {
	return chain.Resolve(n.Proposals())
}

// Proposals returns the recorded proposals in submission order. The returned
// slice is a copy; the ledgers in it must not be modified.
func (n *Node) Proposals() []chain.Ledger {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]chain.Ledger, len(n.proposals))
	copy(out, n.proposals)
	return out
}

// Sync replaces the held ledger with the current consensus winner.
func (n *Node) Sync(ctx context.Context) (chain.Resolution, error) {
	res, err := n.Latest()
	if err != nil {
		return chain.Resolution{}, err
	}

	n.mu.Lock()
	adopted := res.Ledger.Clone()
	n.held = &adopted
	snap := n.snapshotLocked(partLedger)
	n.mu.Unlock()

	n.logger.Info("adopted consensus ledger",
		zap.Int("blocks", adopted.Len()),
		zap.Int("votes", res.Votes),
		zap.Int("proposals", res.Total),
	)
	return res, n.persister.persist(ctx, snap)
}
