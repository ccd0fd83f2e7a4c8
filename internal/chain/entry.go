package chain

import (
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the ISO-8601 layout used for timestamps stamped by this
// package. Timestamps received from other nodes are kept verbatim.
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

// GenesisPreviousHash is the sentinel previous hash of the genesis entry.
const GenesisPreviousHash = "0"

// GenesisContent is the message content carried by the genesis entry.
const GenesisContent = "Genesis block"

// GenesisIdentity is the sentinel sender and recipient of the genesis message.
var GenesisIdentity = Identity{IPAddress: "0.0.0.0", UUID: uuid.Nil.String()}

// Identity identifies a participant by network address and unique id.
// Two identities are equal only when both fields match.
type Identity struct {
	IPAddress string `json:"ipAddress"`
	UUID      string `json:"uuid"`
}

func (id Identity) String() string {
	return id.IPAddress + "/" + id.UUID
}

// Message is the payload embedded in a ledger entry.
type Message struct {
	Sender    Identity `json:"sender"`
	Recipient Identity `json:"recipient"`
	Content   string   `json:"content"`
	Timestamp string   `json:"timestamp"`
}

// Entry is a single block of the ledger.
type Entry struct {
	Index        int     `json:"index"`
	PreviousHash string  `json:"previousHash"`
	Timestamp    string  `json:"timestamp"`
	Message      Message `json:"message"`
	Proof        int     `json:"proof"`
	Hash         string  `json:"hash"`
}

// Ledger is a proposed chain of entries plus opaque network metadata and a
// status flag. The zero value is an empty ledger.
type Ledger struct {
	Blocks  []Entry `json:"blocks"`
	Network Opaque  `json:"network"`
	Status  Opaque  `json:"status"`
}

// Len returns the number of entries in the ledger.
func (l Ledger) Len() int { return len(l.Blocks) }

// Tail returns the last entry, or false if the ledger is empty.
func (l Ledger) Tail() (Entry, bool) {
	if len(l.Blocks) == 0 {
		return Entry{}, false
	}
	return l.Blocks[len(l.Blocks)-1], true
}

// Clone returns a deep copy of l that shares no mutable state with it.
func (l Ledger) Clone() Ledger {
	out := Ledger{
		Network: l.Network.Clone(),
		Status:  l.Status.Clone(),
	}
	if l.Blocks != nil {
		out.Blocks = make([]Entry, len(l.Blocks))
		copy(out.Blocks, l.Blocks)
	}
	return out
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NewGenesisEntry builds the genesis entry stamped at now. Its hash is
// computed like any other entry's.
func NewGenesisEntry(now time.Time) Entry {
	ts := FormatTimestamp(now)
	e := Entry{
		Index:        1,
		PreviousHash: GenesisPreviousHash,
		Timestamp:    ts,
		Message: Message{
			Sender:    GenesisIdentity,
			Recipient: GenesisIdentity,
			Content:   GenesisContent,
			Timestamp: ts,
		},
		Proof: 0,
	}
	e.Hash = Digest(e)
	return e
}

// NewGenesis returns a ledger holding only the genesis entry, with default
// network metadata and status.
func NewGenesis(now time.Time) Ledger {
	return Ledger{
		Blocks:  []Entry{NewGenesisEntry(now)},
		Network: DefaultNetwork(now),
		Status:  DefaultStatus(),
	}
}

// DefaultNetwork is the network metadata attached to locally created ledgers.
func DefaultNetwork(now time.Time) Opaque {
	return Opaque{
		"nodes":       []any{},
		"version":     "1.0.0",
		"lastUpdated": FormatTimestamp(now),
	}
}

// DefaultStatus is the status attached to locally created ledgers.
func DefaultStatus() Opaque {
	return Opaque{"isValid": true, "error": nil}
}
