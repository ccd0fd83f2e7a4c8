package chain

import (
	"errors"
	"fmt"
)

// ErrInvalidChain is returned when a ledger fails validation. The whole
// proposal must be rejected.
var ErrInvalidChain = errors.New("invalid chain")

// ErrEmptyConsensusSet is returned by Resolve when there are no proposals.
var ErrEmptyConsensusSet = errors.New("no proposals to resolve")

// ValidationError describes the first entry that failed validation.
// It unwraps to ErrInvalidChain.
type ValidationError struct {
	Index  int // position in Blocks, -1 for an empty ledger
	Reason Reason
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid chain: %s", e.Reason)
	}
	return fmt.Sprintf("invalid chain: block %d: %s", e.Index, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidChain }
