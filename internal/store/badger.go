package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/jmerrifield20/quorumledger/internal/chain"
	"go.uber.org/zap"
)

var (
	keyProposals    = []byte("node/proposals")
	keyLedger       = []byte("node/ledger")
	keyParticipants = []byte("node/participants")
)

// BadgerStore keeps node state in an embedded Badger database. Each save is
// a single Badger transaction.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}

// OpenBadgerStore opens (or creates) a Badger database in dir.
func OpenBadgerStore(dir string, logger *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{logger.Named("badger").Sugar()})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Ping reports an error once the database has been closed.
func (s *BadgerStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// RunGC runs value log garbage collection every interval until ctx is done.
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for {
				// Each successful pass may free another file.
				if err := s.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						s.logger.Warn("badger value log gc", zap.Error(err))
					}
					break
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// LoadProposals implements node.Store.
func (s *BadgerStore) LoadProposals(_ context.Context) ([]chain.Ledger, error) {
	data, err := s.get(keyProposals)
	if err != nil || data == nil {
		return nil, err
	}
	chains, err := decodeChains(data)
	if err != nil {
		return nil, fmt.Errorf("decode proposals: %w", err)
	}
	return chains, nil
}

// SaveProposals implements node.Store.
func (s *BadgerStore) SaveProposals(_ context.Context, proposals []chain.Ledger) error {
	if proposals == nil {
		proposals = []chain.Ledger{}
	}
	return s.put(keyProposals, chainsDoc{Chains: proposals})
}

// LoadLedger implements node.Store.
func (s *BadgerStore) LoadLedger(_ context.Context) (*chain.Ledger, error) {
	data, err := s.get(keyLedger)
	if err != nil || data == nil {
		return nil, err
	}
	l, err := decodeLedger(data)
	if err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return l, nil
}

// SaveLedger implements node.Store. A nil ledger deletes the key.
func (s *BadgerStore) SaveLedger(_ context.Context, l *chain.Ledger) error {
	if l == nil {
		return s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(keyLedger)
		})
	}
	return s.put(keyLedger, l)
}

// LoadParticipants implements node.Store.
func (s *BadgerStore) LoadParticipants(_ context.Context) ([]chain.Identity, error) {
	data, err := s.get(keyParticipants)
	if err != nil || data == nil {
		return nil, err
	}
	ids, err := decodeParticipants(data)
	if err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return ids, nil
}

// SaveParticipants implements node.Store.
func (s *BadgerStore) SaveParticipants(_ context.Context, ids []chain.Identity) error {
	if ids == nil {
		ids = []chain.Identity{}
	}
	return s.put(keyParticipants, participantsDoc{Participants: ids})
}

// get returns nil data without error when key is absent.
func (s *BadgerStore) get(key []byte) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return data, nil
}

func (s *BadgerStore) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return fmt.Errorf("badger put %s: %w", key, err)
	}
	return nil
}
