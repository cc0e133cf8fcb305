// Package bytelevel implements the GPT-2 byte to unicode bijection that lets
// arbitrary bytes travel through a pipeline built for printable strings.
package bytelevel

import (
	"strings"

	errorskg "github.com/sweetpotato0/gptbpe/errors"
)

// firstStandIn is the first codepoint handed to bytes that are not printable on their own.
const firstStandIn = 256

// Table is an immutable byte <-> codepoint bijection. The zero value is not usable; use Default.
type Table struct {
	encode [256]rune
	decode map[rune]byte
}

var defaultTable = newTable()

// Default returns the shared GPT-2 table. It is computed once and safe for concurrent use.
func Default() *Table {
	return defaultTable
}

// printable reports whether b keeps its own value as codepoint:
// '!'..'~', '¡'..'¬' and '®'..'ÿ'.
func printable(b int) bool {
	return (b >= 33 && b <= 126) || (b >= 161 && b <= 172) || (b >= 174 && b <= 255)
}

func newTable() *Table {
	t := &Table{decode: make(map[rune]byte, 256)}
	next := rune(firstStandIn)
	for b := 0; b < 256; b++ {
		r := rune(b)
		if !printable(b) {
			r = next
			next++
		}
		t.encode[b] = r
		t.decode[r] = byte(b)
	}
	return t
}

// ByteToChar maps a byte to its codepoint. It is total.
func (t *Table) ByteToChar(b byte) rune {
	return t.encode[b]
}

// CharToByte maps a codepoint back to its byte.
func (t *Table) CharToByte(r rune) (byte, error) {
	b, ok := t.decode[r]
	if !ok {
		return 0, errorskg.NewTokenizeError(errorskg.StageByteMapping, string(r), errorskg.ErrUnknownCodepoint)
	}
	return b, nil
}

// Encode remaps every byte of s, so the UTF-8 bytes of a multi-byte
// character become several codepoints.
func (t *Table) Encode(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) * 2)
	for i := 0; i < len(s); i++ {
		sb.WriteRune(t.encode[s[i]])
	}
	return sb.String()
}

// AppendDecoded appends the bytes that the codepoints of s stand for to dst.
func (t *Table) AppendDecoded(dst []byte, s string) ([]byte, error) {
	for _, r := range s {
		b, ok := t.decode[r]
		if !ok {
			return dst, errorskg.NewTokenizeError(errorskg.StageByteMapping, s, errorskg.ErrUnknownCodepoint)
		}
		dst = append(dst, b)
	}
	return dst, nil
}

// Decode is AppendDecoded into a fresh buffer.
func (t *Table) Decode(s string) ([]byte, error) {
	return t.AppendDecoded(make([]byte, 0, len(s)), s)
}
