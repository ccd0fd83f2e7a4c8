package chain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jmerrifield20/quorumledger/internal/chain"
	"pgregory.net/rapid"
)

// drawLedger builds genesis plus a random number of appended messages with
// arbitrary Unicode content.
func drawLedger(t *rapid.T) chain.Ledger {
	l := chain.NewGenesis(t0)
	contents := rapid.SliceOfN(rapid.String(), 0, 8).Draw(t, "contents")
	for i, c := range contents {
		m := msg(c)
		l, _ = chain.Append(l, m, t0.Add(time.Duration(i+1)*time.Second))
	}
	return l
}

func TestProperty_appendedLedgersValidate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := drawLedger(t)
		if v := chain.Validate(l); !v.Valid {
			t.Fatalf("appended ledger rejected: %+v", v)
		}
		for i := 1; i < l.Len(); i++ {
			if l.Blocks[i].Index != l.Blocks[i-1].Index+1 {
				t.Fatalf("index %d does not follow %d", l.Blocks[i].Index, l.Blocks[i-1].Index)
			}
			if l.Blocks[i].PreviousHash != chain.Digest(l.Blocks[i-1]) {
				t.Fatalf("entry %d not linked to its predecessor", i)
			}
		}
	})
}

func TestProperty_contentTamperingDetectedAtEntry(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := drawLedger(t)
		k := rapid.IntRange(0, l.Len()-1).Draw(t, "k")
		replacement := rapid.String().Draw(t, "replacement")
		if replacement == l.Blocks[k].Message.Content {
			t.Skip("replacement equals original")
		}

		tampered := l.Clone()
		tampered.Blocks[k].Message.Content = replacement
		v := chain.Validate(tampered)
		if v.Valid || v.FailedAt != k || v.Reason != chain.ReasonDigest {
			t.Fatalf("tampering at %d: got %+v", k, v)
		}
	})
}

func TestProperty_resolveWinnerHasMostVotes(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		pool := []chain.Ledger{drawLedger(t), drawLedger(t), drawLedger(t)}
		picks := rapid.SliceOfN(rapid.IntRange(0, len(pool)-1), 1, 12).Draw(t, "picks")

		proposals := make([]chain.Ledger, len(picks))
		for i, p := range picks {
			proposals[i] = pool[p]
		}
		res, err := chain.Resolve(proposals)
		if err != nil {
			t.Fatal(err)
		}

		winner, _ := chain.CanonicalLedger(res.Ledger)
		counts := map[string]int{}
		first := map[string]int{}
		for i, p := range proposals {
			b, _ := chain.CanonicalLedger(p)
			if _, seen := first[string(b)]; !seen {
				first[string(b)] = i
			}
			counts[string(b)]++
		}
		if counts[string(winner)] != res.Votes {
			t.Fatalf("votes %d, but winner appears %d times", res.Votes, counts[string(winner)])
		}
		for key, c := range counts {
			if c > res.Votes {
				t.Fatalf("a ledger with %d votes beat the winner's %d", c, res.Votes)
			}
			if c == res.Votes && first[key] < first[string(winner)] {
				t.Fatalf("tie not broken towards the earliest submission")
			}
		}
		if res.Total != len(proposals) || res.Distinct != len(counts) {
			t.Fatalf("totals: got %d/%d, want %d/%d", res.Total, res.Distinct, len(proposals), len(counts))
		}
	})
}

func TestProperty_canonicalIsASCIIJSON(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.String().Draw(t, "s")
		b, err := chain.Canonical(map[string]any{"k": s})
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range b {
			if c < 0x20 || c > 0x7e {
				t.Fatalf("non-printable byte %#x in %q", c, b)
			}
		}
		var back map[string]string
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatalf("canonical output is not JSON: %v", err)
		}
		// Invalid UTF-8 in s decodes as U+FFFD, as encoding/json does.
		want := string([]rune(s))
		if back["k"] != want {
			t.Fatalf("round trip: got %q, want %q", back["k"], want)
		}
	})
}
