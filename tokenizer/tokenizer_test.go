package tokenizer

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/sweetpotato0/gptbpe/bytelevel"
	"github.com/sweetpotato0/gptbpe/config"
	errorskg "github.com/sweetpotato0/gptbpe/errors"
	"github.com/sweetpotato0/gptbpe/pkg/logging"
	"github.com/sweetpotato0/gptbpe/segment"
	"github.com/sweetpotato0/gptbpe/source"
	"github.com/sweetpotato0/gptbpe/vocab"
)

func helloTables(t *testing.T) (*vocab.Vocabulary, *vocab.MergeRanks) {
	t.Helper()
	v, err := vocab.FromMap(map[string]int{
		"h": 0, "e": 1, "l": 2, "o": 3,
		"he": 4, "ll": 5, "hell": 6, "hello": 7,
	})
	if err != nil {
		t.Fatalf("vocab: %v", err)
	}
	m, err := vocab.NewMergeRanks([]vocab.Pair{
		{Left: "h", Right: "e"},
		{Left: "l", Right: "l"},
		{Left: "he", Right: "ll"},
		{Left: "hell", Right: "o"},
	})
	if err != nil {
		t.Fatalf("merges: %v", err)
	}
	return v, m
}

// byteTables builds a vocabulary holding every byte symbol, followed by the
// given merges and their results.
func byteTables(t *testing.T, rules ...vocab.Pair) (*vocab.Vocabulary, *vocab.MergeRanks) {
	t.Helper()
	table := bytelevel.Default()
	ids := make(map[string]int, 256+len(rules))
	for b := 0; b < 256; b++ {
		ids[string(table.ByteToChar(byte(b)))] = b
	}
	for i, r := range rules {
		ids[r.Merged()] = 256 + i
	}
	v, err := vocab.FromMap(ids)
	if err != nil {
		t.Fatalf("vocab: %v", err)
	}
	m, err := vocab.NewMergeRanks(rules)
	if err != nil {
		t.Fatalf("merges: %v", err)
	}
	return v, m
}

func newQuiet(t *testing.T, v *vocab.Vocabulary, m *vocab.MergeRanks, opts ...Option) *BPE {
	t.Helper()
	tok, err := New(v, m, append([]Option{WithLogger(logging.Discard())}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tok
}

func TestEncodeHello(t *testing.T) {
	v, m := helloTables(t)
	tok := newQuiet(t, v, m)

	ids, err := tok.Encode("hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !reflect.DeepEqual(ids, []int{7}) {
		t.Errorf("Encode(hello) = %v, want [7]", ids)
	}

	text, err := tok.Decode(ids)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if text != "hello" {
		t.Errorf("Decode = %q, want hello", text)
	}
}

func TestEncodeEmpty(t *testing.T) {
	v, m := helloTables(t)
	tok := newQuiet(t, v, m)

	ids, err := tok.Encode("")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Errorf("Encode(\"\") = %#v, want empty slice", ids)
	}
	text, err := tok.Decode(nil)
	if err != nil || text != "" {
		t.Errorf("Decode(nil) = %q, %v", text, err)
	}
}

func TestRoundTrip(t *testing.T) {
	v, m := byteTables(t,
		vocab.Pair{Left: "Ġ", Right: "t"},
		vocab.Pair{Left: "h", Right: "e"},
		vocab.Pair{Left: "Ġt", Right: "he"},
		vocab.Pair{Left: "Ċ", Right: "Ċ"},
	)
	inputs := []string{
		"the",
		"Hello world! The the the",
		"  leading and trailing spaces  ",
		"line one\n\nline two\r\n\ttabbed",
		"I'm sure they've said we'll go, it's fine",
		"números 12345 and ½ ⅓",
		"日本語のテキスト 🤖🎉",
		"é combining",
		"zero​width",
		"\x00\x01\x7f control",
	}
	for _, seg := range []segment.Segmenter{segment.MustGPT2(), segment.Scanner{}} {
		tok := newQuiet(t, v, m, WithSegmenter(seg))
		for _, in := range inputs {
			ids, err := tok.Encode(in)
			if err != nil {
				t.Fatalf("Encode(%q): %v", in, err)
			}
			out, err := tok.Decode(ids)
			if err != nil {
				t.Fatalf("Decode(%q): %v", in, err)
			}
			if out != in {
				t.Errorf("%T: round trip of %q gave %q", seg, in, out)
			}
		}
	}
}

func TestRoundTripInvalidUTF8(t *testing.T) {
	v, m := byteTables(t)
	tok := newQuiet(t, v, m, WithSegmenter(segment.Scanner{}))

	in := "ok \xff\xfe bytes"
	ids, err := tok.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := tok.DecodeBytes(ids)
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if string(out) != in {
		t.Errorf("round trip = %q, want %q", out, in)
	}
}

func TestEncodeMergesAcrossSpace(t *testing.T) {
	v, m := byteTables(t,
		vocab.Pair{Left: "Ġ", Right: "t"},
		vocab.Pair{Left: "h", Right: "e"},
		vocab.Pair{Left: "Ġt", Right: "he"},
	)
	tok := newQuiet(t, v, m)

	pieces, err := tok.Tokenize("the the")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	heID, _ := v.ID("he")
	spaceTheID, _ := v.ID("Ġthe")
	tID, _ := v.ID("t")
	want := []Piece{
		{Text: "the", IDs: []int{tID, heID}},
		{Text: " the", IDs: []int{spaceTheID}},
	}
	if !reflect.DeepEqual(pieces, want) {
		t.Errorf("Tokenize = %+v, want %+v", pieces, want)
	}

	n, err := tok.CountTokens("the the")
	if err != nil || n != 3 {
		t.Errorf("CountTokens = %d, %v; want 3", n, err)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	v, m := byteTables(t, vocab.Pair{Left: "Ġ", Right: "t"}, vocab.Pair{Left: "h", Right: "e"})
	tok := newQuiet(t, v, m, WithCacheSize(16))

	text := strings.Repeat("the quick brown fox ", 20)
	first, err := tok.Encode(text)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := tok.Encode(text)
			if err != nil {
				t.Errorf("Encode: %v", err)
				return
			}
			if !reflect.DeepEqual(got, first) {
				t.Errorf("concurrent Encode differs")
			}
		}()
	}
	wg.Wait()
}

func TestEncodeUnknownToken(t *testing.T) {
	v, err := vocab.FromMap(map[string]int{"h": 0, "e": 1})
	if err != nil {
		t.Fatal(err)
	}
	m, err := vocab.NewMergeRanks([]vocab.Pair{{Left: "h", Right: "e"}})
	if err != nil {
		t.Fatal(err)
	}
	tok := newQuiet(t, v, m)

	ids, err := tok.Encode("he")
	if ids != nil {
		t.Errorf("expected no partial result, got %v", ids)
	}
	if !errors.Is(err, errorskg.ErrUnknownToken) {
		t.Fatalf("error = %v, want ErrUnknownToken", err)
	}
	var terr *errorskg.TokenizeError
	if !errors.As(err, &terr) {
		t.Fatalf("error %T is not a TokenizeError", err)
	}
	if terr.Stage != errorskg.StageVocabularyLookup || terr.Fragment != "he" {
		t.Errorf("TokenizeError = %+v", terr)
	}

	if _, err := tok.CountTokens("he"); !errors.Is(err, errorskg.ErrUnknownToken) {
		t.Errorf("CountTokens error = %v", err)
	}
	if _, err := tok.Tokenize("he"); !errors.Is(err, errorskg.ErrUnknownToken) {
		t.Errorf("Tokenize error = %v", err)
	}

	_, err = New(v, m, WithStrictTables(true), WithLogger(logging.Discard()))
	if !errors.Is(err, errorskg.ErrInvalidMerges) {
		t.Errorf("strict New error = %v, want ErrInvalidMerges", err)
	}
}

func TestDecodeUnknownID(t *testing.T) {
	v, m := helloTables(t)

	tests := []struct {
		name    string
		policy  UnknownIDPolicy
		ids     []int
		want    string
		wantErr error
	}{
		{name: "fail", policy: FailOnUnknownID(), ids: []int{7, 99}, wantErr: errorskg.ErrUnknownTokenID},
		{name: "fail negative", policy: FailOnUnknownID(), ids: []int{-1}, wantErr: errorskg.ErrUnknownTokenID},
		{name: "placeholder", policy: PlaceholderOnUnknownID("<unk>"), ids: []int{7, 99, 0}, want: "hello<unk>h"},
		{name: "drop", policy: PlaceholderOnUnknownID(""), ids: []int{99, 7, 100}, want: "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := newQuiet(t, v, m, WithUnknownIDPolicy(tt.policy))
			got, err := tok.Decode(tt.ids)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				var terr *errorskg.TokenizeError
				if !errors.As(err, &terr) || terr.ID != tt.ids[len(tt.ids)-1] {
					t.Errorf("TokenizeError = %+v", terr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeUnknownCodepoint(t *testing.T) {
	v, err := vocab.FromMap(map[string]int{"a": 0, "日": 1})
	if err != nil {
		t.Fatal(err)
	}
	m, _ := vocab.NewMergeRanks(nil)
	tok := newQuiet(t, v, m)

	_, err = tok.Decode([]int{0, 1})
	if !errors.Is(err, errorskg.ErrUnknownCodepoint) {
		t.Fatalf("error = %v, want ErrUnknownCodepoint", err)
	}
}

func TestDecodePartialCharacter(t *testing.T) {
	v, m := byteTables(t)
	tok := newQuiet(t, v, m)

	ids, err := tok.Encode("é")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("Encode(é) = %v, want two byte tokens", ids)
	}
	got, err := tok.DecodeBytes(ids[:1])
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []byte{0xc3}) {
		t.Errorf("DecodeBytes = %x, want c3", got)
	}
}

func TestNewRequiresTables(t *testing.T) {
	v, m := helloTables(t)
	if _, err := New(nil, m); !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Errorf("nil vocab error = %v", err)
	}
	if _, err := New(v, nil); !errors.Is(err, errorskg.ErrInvalidInput) {
		t.Errorf("nil merges error = %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	v, m := helloTables(t)
	cfg := &config.TokenizerConfig{
		UnknownID:   config.UnknownIDPlaceholder,
		Placeholder: "?",
		CacheSize:   4,
	}
	opts := append(OptionsFromConfig(cfg), WithLogger(logging.Discard()))
	tok, err := New(v, m, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := tok.Decode([]int{42, 7})
	if err != nil || got != "?hello" {
		t.Errorf("Decode = %q, %v", got, err)
	}
	if _, err := tok.Encode("hello"); err != nil {
		t.Fatal(err)
	}
	if tok.merger.CacheLen() != 1 {
		t.Errorf("cache holds %d entries, want 1", tok.merger.CacheLen())
	}
}

func TestLoad(t *testing.T) {
	v, m := helloTables(t)
	src := source.Static{Vocab: v, Merges: m}
	tok, err := Load(context.Background(), src, src, WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok.Vocabulary() != v {
		t.Error("Load did not use the loaded vocabulary")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Load(ctx, src, src); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Load error = %v", err)
	}
}

// TestGPT2 runs against the published GPT-2 files when GPTBPE_VOCAB and
// GPTBPE_MERGES point at them (see `gptbpe fetch`).
func TestGPT2(t *testing.T) {
	vocabPath, mergesPath := os.Getenv("GPTBPE_VOCAB"), os.Getenv("GPTBPE_MERGES")
	if vocabPath == "" || mergesPath == "" {
		t.Skip("GPTBPE_VOCAB and GPTBPE_MERGES not set")
	}
	files := source.NewFiles(vocabPath, mergesPath)
	tok, err := Load(context.Background(), files, files, WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		text string
		want []int
	}{
		{text: "Hello world", want: []int{15496, 995}},
		{text: "hello", want: []int{31373}},
		{text: " the", want: []int{262}},
		{text: "\n", want: []int{198}},
	}
	for _, tt := range tests {
		got, err := tok.Encode(tt.text)
		if err != nil {
			t.Fatalf("Encode(%q): %v", tt.text, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Encode(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
