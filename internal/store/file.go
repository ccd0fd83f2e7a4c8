package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jmerrifield20/quorumledger/internal/chain"
)

// File names inside the data directory.
const (
	ChainsFile       = "blockchain.json"
	LedgerFile       = "ledger.json"
	ParticipantsFile = "participants.json"
)

// FileStore keeps node state as JSON documents in a directory. Every save
// writes a temporary file, syncs it and renames it over the target, so a
// crash never leaves a half-written document behind.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Ping checks that the data directory still exists and is a directory.
func (s *FileStore) Ping(_ context.Context) error {
	fi, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// LoadProposals implements node.Store.
func (s *FileStore) LoadProposals(_ context.Context) ([]chain.Ledger, error) {
	data, err := s.read(ChainsFile)
	if err != nil || data == nil {
		return nil, err
	}
	chains, err := decodeChains(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ChainsFile, err)
	}
	return chains, nil
}

// SaveProposals implements node.Store.
func (s *FileStore) SaveProposals(_ context.Context, proposals []chain.Ledger) error {
	if proposals == nil {
		proposals = []chain.Ledger{}
	}
	return s.write(ChainsFile, chainsDoc{Chains: proposals})
}

// LoadLedger implements node.Store.
func (s *FileStore) LoadLedger(_ context.Context) (*chain.Ledger, error) {
	data, err := s.read(LedgerFile)
	if err != nil || data == nil {
		return nil, err
	}
	l, err := decodeLedger(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", LedgerFile, err)
	}
	return l, nil
}

// SaveLedger implements node.Store. A nil ledger removes the document.
func (s *FileStore) SaveLedger(_ context.Context, l *chain.Ledger) error {
	if l == nil {
		err := os.Remove(filepath.Join(s.dir, LedgerFile))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return s.write(LedgerFile, l)
}

// LoadParticipants implements node.Store.
func (s *FileStore) LoadParticipants(_ context.Context) ([]chain.Identity, error) {
	data, err := s.read(ParticipantsFile)
	if err != nil || data == nil {
		return nil, err
	}
	ids, err := decodeParticipants(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ParticipantsFile, err)
	}
	return ids, nil
}

// SaveParticipants implements node.Store.
func (s *FileStore) SaveParticipants(_ context.Context, ids []chain.Identity) error {
	if ids == nil {
		ids = []chain.Identity{}
	}
	return s.write(ParticipantsFile, participantsDoc{Participants: ids})
}

// read returns nil data without error when the file does not exist.
func (s *FileStore) read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (s *FileStore) write(name string, v any) error {
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
