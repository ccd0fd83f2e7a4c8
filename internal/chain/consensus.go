package chain

import "fmt"

// Resolution is the outcome of a plurality vote over proposals.
type Resolution struct {
	Ledger   Ledger // deep copy of the winning proposal
	Votes    int    // submissions of the winning ledger
	Total    int    // all submissions considered
	Distinct int    // distinct ledgers among them
}

// Resolve returns the ledger submitted most often among proposals, compared
// by canonical encoding. When several ledgers share the highest count, the
// one whose first submission came earliest wins, so the result depends only
// on the order of proposals. An empty input yields ErrEmptyConsensusSet.
func Resolve(proposals []Ledger) (Resolution, error) {
	if len(proposals) == 0 {
		return Resolution{}, ErrEmptyConsensusSet
	}

	keys := make([]string, len(proposals))
	counts := make(map[string]int, len(proposals))
	for i, p := range proposals {
		b, err := CanonicalLedger(p)
		if err != nil {
			return Resolution{}, fmt.Errorf("encode proposal %d: %w", i, err)
		}
		keys[i] = string(b)
		counts[keys[i]]++
	}

	best := 0
	for i := 1; i < len(proposals); i++ {
		// Strictly greater keeps the earliest submission on ties.
		if counts[keys[i]] > counts[keys[best]] {
			best = i
		}
	}

	return Resolution{
		Ledger:   proposals[best].Clone(),
		Votes:    counts[keys[best]],
		Total:    len(proposals),
		Distinct: len(counts),
	}, nil
}
