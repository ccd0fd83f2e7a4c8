// Package store provides persistence backends for node state.
//
// Four implementations of node.Store are provided:
//   - MemoryStore: in-process, for testing and ephemeral nodes.
//   - FileStore: JSON files in a data directory, replaced atomically.
//   - BadgerStore: embedded key-value store.
//   - PostgresStore: durable, shared database.
package store

import (
	"encoding/json"

	"github.com/jmerrifield20/quorumledger/internal/chain"
)

// Document shapes shared by the file and badger backends. The chains and
// participants documents match the files written by earlier node versions.

type chainsDoc struct {
	Chains []chain.Ledger `json:"chains"`
}

type participantsDoc struct {
	Participants []chain.Identity `json:"participants"`
}

func decodeChains(data []byte) ([]chain.Ledger, error) {
	var doc chainsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Chains, nil
}

func decodeParticipants(data []byte) ([]chain.Identity, error) {
	var doc participantsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Participants, nil
}

func decodeLedger(data []byte) (*chain.Ledger, error) {
	var l chain.Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func cloneLedgers(in []chain.Ledger) []chain.Ledger {
	if in == nil {
		return nil
	}
	out := make([]chain.Ledger, len(in))
	for i, l := range in {
		out[i] = l.Clone()
	}
	return out
}
