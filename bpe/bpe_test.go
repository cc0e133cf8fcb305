package bpe

import (
	"reflect"
	"strings"
	"testing"

	"github.com/sweetpotato0/gptbpe/vocab"
)

// rankMap allows duplicate ranks, which vocab.MergeRanks never produces.
type rankMap map[[2]string]int

func (m rankMap) Rank(left, right string) (int, bool) {
	r, ok := m[[2]string{left, right}]
	return r, ok
}

func helloRanks(t *testing.T) *vocab.MergeRanks {
	t.Helper()
	m, err := vocab.NewMergeRanks([]vocab.Pair{
		{Left: "h", Right: "e"},
		{Left: "l", Right: "l"},
		{Left: "he", Right: "ll"},
		{Left: "hell", Right: "o"},
	})
	if err != nil {
		t.Fatalf("NewMergeRanks: %v", err)
	}
	return m
}

func TestMergeHello(t *testing.T) {
	m, err := New(helloRanks(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := m.Merge("hello"); !reflect.DeepEqual(got, []string{"hello"}) {
		t.Errorf("Merge(hello) = %q, want [hello]", got)
	}

	got, rounds := merge(helloRanks(t), []string{"h", "e", "l", "l", "o"})
	if !reflect.DeepEqual(got, []string{"hello"}) || rounds != 4 {
		t.Errorf("merge = %q in %d rounds, want [hello] in 4", got, rounds)
	}
}

func TestMergeSteps(t *testing.T) {
	ranks := helloRanks(t)
	word := []string{"h", "e", "l", "l", "o"}
	want := [][]string{
		{"he", "l", "l", "o"},
		{"he", "ll", "o"},
		{"hell", "o"},
		{"hello"},
	}
	for i, step := range want {
		pair, ok := lowestPair(ranks, word)
		if !ok {
			t.Fatalf("step %d: no pair found", i)
		}
		word = apply(word, pair)
		if !reflect.DeepEqual(word, step) {
			t.Fatalf("step %d: got %q, want %q", i, word, step)
		}
	}
}

func TestMergeCases(t *testing.T) {
	tests := []struct {
		name  string
		ranks rankMap
		in    []string
		want  []string
	}{
		{name: "empty", ranks: rankMap{}, in: []string{}, want: []string{}},
		{name: "single symbol", ranks: rankMap{{"a", "a"}: 0}, in: []string{"a"}, want: []string{"a"}},
		{name: "no known pair", ranks: rankMap{{"x", "y"}: 0}, in: []string{"a", "b", "c"}, want: []string{"a", "b", "c"}},
		{
			name:  "non overlapping",
			ranks: rankMap{{"a", "a"}: 0},
			in:    []string{"a", "a", "a"},
			want:  []string{"aa", "a"},
		},
		{
			name:  "every occurrence in one pass",
			ranks: rankMap{{"a", "b"}: 0},
			in:    []string{"a", "b", "c", "a", "b"},
			want:  []string{"ab", "c", "ab"},
		},
		{
			name:  "lowest rank first",
			ranks: rankMap{{"b", "c"}: 0, {"a", "b"}: 1},
			in:    []string{"a", "b", "c"},
			want:  []string{"a", "bc"},
		},
		{
			name:  "equal ranks pick first occurring pair",
			ranks: rankMap{{"c", "d"}: 5, {"a", "b"}: 5},
			in:    []string{"a", "b", "c", "d"},
			want:  []string{"ab", "cd"},
		},
		{
			name:  "equal ranks with overlap",
			ranks: rankMap{{"b", "c"}: 3, {"a", "b"}: 3},
			in:    []string{"a", "b", "c"},
			want:  []string{"ab", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.ranks)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			got := m.MergeSymbols(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MergeSymbols(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMergeRoundsBound(t *testing.T) {
	ranks := rankMap{{"a", "a"}: 0, {"aa", "aa"}: 1, {"aaaa", "a"}: 2, {"aaaa", "aaaa"}: 3}
	for n := 1; n <= 16; n++ {
		word := strings.Split(strings.Repeat("a", n), "")
		out, rounds := merge(ranks, word)
		if rounds > n-1 {
			t.Errorf("n=%d: %d rounds exceeds %d", n, rounds, n-1)
		}
		if got := strings.Join(out, ""); got != strings.Repeat("a", n) {
			t.Errorf("n=%d: merged symbols %q lost characters", n, out)
		}
	}
}

func TestMergeSymbolsDoesNotModifyInput(t *testing.T) {
	m, _ := New(rankMap{{"a", "b"}: 0})
	in := []string{"a", "b"}
	_ = m.MergeSymbols(in)
	if !reflect.DeepEqual(in, []string{"a", "b"}) {
		t.Errorf("input modified: %q", in)
	}
}

func TestMergeDeterministic(t *testing.T) {
	m, _ := New(helloRanks(t))
	first := m.Merge("hellohello")
	for i := 0; i < 10; i++ {
		if got := m.Merge("hellohello"); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: %q != %q", i, got, first)
		}
	}
}

func TestMergeCache(t *testing.T) {
	m, err := New(helloRanks(t), WithCacheSize(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.CacheLen() != 0 {
		t.Fatalf("CacheLen() = %d, want 0", m.CacheLen())
	}

	want := m.Merge("hello")
	if got := m.Merge("hello"); !reflect.DeepEqual(got, want) {
		t.Errorf("cached Merge = %q, want %q", got, want)
	}
	m.Merge("he")
	m.Merge("ll")
	if m.CacheLen() != 2 {
		t.Errorf("CacheLen() = %d, want 2", m.CacheLen())
	}

	uncached, _ := New(helloRanks(t), WithCacheSize(0))
	uncached.Merge("hello")
	if uncached.CacheLen() != 0 {
		t.Errorf("disabled cache has %d entries", uncached.CacheLen())
	}
}

func TestNewNilRanks(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Errorf("expected error for nil ranks")
	}
}
