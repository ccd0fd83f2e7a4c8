package chain

// Reason names the check a ledger failed.
type Reason string

const (
	ReasonEmpty   Reason = "empty ledger"
	ReasonGenesis Reason = "genesis entry must have index 1 and previous hash \"0\""
	ReasonIndex   Reason = "index does not follow previous entry"
	ReasonLink    Reason = "previous hash does not match digest of previous entry"
	ReasonDigest  Reason = "stored hash does not match entry digest"
)

// Verdict is the outcome of Validate. FailedAt is the position of the first
// failing entry, or -1 when the ledger is valid or empty.
type Verdict struct {
	Valid    bool   `json:"valid"`
	FailedAt int    `json:"failedAt"`
	Reason   Reason `json:"reason,omitempty"`
}

// Err returns nil for a valid verdict and a *ValidationError otherwise.
func (v Verdict) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Index: v.FailedAt, Reason: v.Reason}
}

// Validate checks that l is a well-formed hash chain anchored at a genesis
// entry. Every digest is recomputed from current field values; stored hashes
// are never trusted. There is no partial acceptance.
func Validate(l Ledger) Verdict {
	if len(l.Blocks) == 0 {
		return reject(-1, ReasonEmpty)
	}

	genesis := l.Blocks[0]
	if genesis.Index != 1 || genesis.PreviousHash != GenesisPreviousHash {
		return reject(0, ReasonGenesis)
	}
	prevDigest := Digest(genesis)
	if genesis.Hash != prevDigest {
		return reject(0, ReasonDigest)
	}

	for i := 1; i < len(l.Blocks); i++ {
		curr := l.Blocks[i]
		if curr.Index != l.Blocks[i-1].Index+1 {
			return reject(i, ReasonIndex)
		}
		if curr.PreviousHash != prevDigest {
			return reject(i, ReasonLink)
		}
		d := Digest(curr)
		if curr.Hash != d {
			return reject(i, ReasonDigest)
		}
		prevDigest = d
	}
	return Verdict{Valid: true, FailedAt: -1}
}

func reject(at int, reason Reason) Verdict {
	return Verdict{FailedAt: at, Reason: reason}
}
