package chain

import "time"

// Append builds the entry that extends current with msg and returns the
// extended ledger alongside it. current is not modified.
//
// The new entry's index is the tail index plus one (1 for an empty ledger),
// its previous hash is the recomputed digest of the tail ("0" for an empty
// ledger), its timestamp is now and its proof is 0. Callers are responsible
// for checking that sender and recipient are registered and for serialising
// concurrent appends.
func Append(current Ledger, msg Message, now time.Time) (Ledger, Entry) {
	entry := Entry{
		Index:        1,
		PreviousHash: GenesisPreviousHash,
		Timestamp:    FormatTimestamp(now),
		Message:      msg,
		Proof:        0,
	}
	if tail, ok := current.Tail(); ok {
		entry.Index = tail.Index + 1
		entry.PreviousHash = Digest(tail)
	}
	entry.Hash = Digest(entry)

	next := current.Clone()
	next.Blocks = append(next.Blocks, entry)
	return next, entry
}
