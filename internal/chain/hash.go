package chain

import (
	"crypto/sha256"
	"encoding/hex"
)

// DigestSize is the length of a hex-encoded digest.
const DigestSize = 2 * sha256.Size

// Digest computes the lowercase hex SHA-256 of the canonical encoding of an
// entry's index, previousHash, timestamp, message and proof. The stored Hash
// field is never an input.
func Digest(e Entry) string {
	// The hashed fields are strings and ints only, so encoding cannot fail.
	b, _ := Canonical(e.hashedFields())
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (e Entry) hashedFields() map[string]any {
	return map[string]any{
		"index":        e.Index,
		"previousHash": e.PreviousHash,
		"timestamp":    e.Timestamp,
		"message":      e.Message.fields(),
		"proof":        e.Proof,
	}
}

// fields includes the stored hash; it is the form compared by Resolve.
func (e Entry) fields() map[string]any {
	m := e.hashedFields()
	m["hash"] = e.Hash
	return m
}

func (m Message) fields() map[string]any {
	return map[string]any{
		"sender":    m.Sender.fields(),
		"recipient": m.Recipient.fields(),
		"content":   m.Content,
		"timestamp": m.Timestamp,
	}
}

func (id Identity) fields() map[string]any {
	return map[string]any{
		"ipAddress": id.IPAddress,
		"uuid":      id.UUID,
	}
}

func (l Ledger) fields() map[string]any {
	blocks := make([]any, len(l.Blocks))
	for i, e := range l.Blocks {
		blocks[i] = e.fields()
	}
	return map[string]any{
		"blocks":  blocks,
		"network": l.Network,
		"status":  l.Status,
	}
}

// CanonicalLedger returns the canonical encoding of a whole ledger, stored
// hashes and metadata included. Two ledgers are the same proposal exactly
// when their canonical encodings are equal.
func CanonicalLedger(l Ledger) ([]byte, error) {
	return Canonical(l.fields())
}
