package vocab

import (
	"fmt"
	"sort"

	errorskg "github.com/sweetpotato0/gptbpe/errors"
)

// Pair is an ordered pair of adjacent symbols.
type Pair struct {
	Left  string
	Right string
}

// Merged is the symbol produced by merging the pair.
func (p Pair) Merged() string {
	return p.Left + p.Right
}

// MergeRanks maps a symbol pair to its priority. Lower rank merges earlier.
// It is immutable and safe for concurrent use.
type MergeRanks struct {
	ranks map[Pair]int
	rules []Pair
}

// NewMergeRanks builds the rank table from an ordered rule list: rules[i] has rank i.
// A pair may appear only once.
func NewMergeRanks(rules []Pair) (*MergeRanks, error) {
	m := &MergeRanks{
		ranks: make(map[Pair]int, len(rules)),
		rules: make([]Pair, len(rules)),
	}
	copy(m.rules, rules)
	for i, p := range rules {
		if p.Left == "" || p.Right == "" {
			return nil, fmt.Errorf("%w: rule %d has an empty symbol", errorskg.ErrInvalidMerges, i)
		}
		if prev, ok := m.ranks[p]; ok {
			return nil, fmt.Errorf("%w: pair (%q, %q) at ranks %d and %d", errorskg.ErrInvalidMerges, p.Left, p.Right, prev, i)
		}
		m.ranks[p] = i
	}
	return m, nil
}

// Rank returns the rank of the pair (left, right).
func (m *MergeRanks) Rank(left, right string) (int, bool) {
	r, ok := m.ranks[Pair{Left: left, Right: right}]
	return r, ok
}

// Len returns the number of rules.
func (m *MergeRanks) Len() int {
	return len(m.rules)
}

// Rules returns a copy of the rules in rank order.
func (m *MergeRanks) Rules() []Pair {
	out := make([]Pair, len(m.rules))
	copy(out, m.rules)
	return out
}

// CheckClosure verifies that every symbol a merge can produce is a vocabulary
// token, so the merger can never emit something Encode cannot look up.
func CheckClosure(v *Vocabulary, m *MergeRanks) error {
	for i, p := range m.rules {
		if _, ok := v.ID(p.Merged()); !ok {
			return fmt.Errorf("%w: rule %d (%q, %q) produces %q which is not in the vocabulary",
				errorskg.ErrInvalidMerges, i, p.Left, p.Right, p.Merged())
		}
	}
	return nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
}
