package bytelevel

import (
	"errors"
	"testing"

	errorskg "github.com/sweetpotato0/gptbpe/errors"
)

func TestByteRoundTrip(t *testing.T) {
	tab := Default()
	for b := 0; b < 256; b++ {
		got, err := tab.CharToByte(tab.ByteToChar(byte(b)))
		if err != nil {
			t.Fatalf("byte 0x%02x: %v", b, err)
		}
		if got != byte(b) {
			t.Fatalf("byte 0x%02x: round trip gave 0x%02x", b, got)
		}
	}
}

func TestTableIsBijection(t *testing.T) {
	tab := Default()
	seen := make(map[rune]int, 256)
	for b := 0; b < 256; b++ {
		r := tab.ByteToChar(byte(b))
		if prev, ok := seen[r]; ok {
			t.Fatalf("codepoint %U used by bytes %d and %d", r, prev, b)
		}
		seen[r] = b
	}
	if len(tab.decode) != 256 {
		t.Errorf("decode table has %d entries, want 256", len(tab.decode))
	}
}

func TestKnownMappings(t *testing.T) {
	tests := []struct {
		name string
		b    byte
		want rune
	}{
		{name: "NUL", b: 0x00, want: 256},
		{name: "tab", b: '\t', want: 256 + 9},
		{name: "newline", b: '\n', want: 'Ċ'},
		{name: "space", b: ' ', want: 'Ġ'},
		{name: "bang", b: '!', want: '!'},
		{name: "tilde", b: '~', want: '~'},
		{name: "DEL", b: 0x7f, want: 256 + 33},
		{name: "NBSP", b: 0xa0, want: 256 + 66},
		{name: "inverted bang", b: 0xa1, want: '¡'},
		{name: "soft hyphen", b: 0xad, want: 323},
		{name: "y diaeresis", b: 0xff, want: 'ÿ'},
	}

	tab := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tab.ByteToChar(tt.b); got != tt.want {
				t.Errorf("ByteToChar(0x%02x) = %U, want %U", tt.b, got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeString(t *testing.T) {
	tab := Default()
	inputs := []string{"", "hello", " world", "tabs\tand\nnewlines", "naïve café", "日本語", "\x00\xff\x80"}
	for _, in := range inputs {
		enc := tab.Encode(in)
		out, err := tab.Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%q): %v", enc, err)
		}
		if string(out) != in {
			t.Errorf("round trip %q gave %q", in, out)
		}
	}

	if got := tab.Encode(" hi"); got != "Ġhi" {
		t.Errorf("Encode(\" hi\") = %q, want %q", got, "Ġhi")
	}
}

func TestCharToByteUnknown(t *testing.T) {
	tab := Default()
	for _, r := range []rune{' ', 0x7f, 0xad, 324, '日', 0xfffd} {
		_, err := tab.CharToByte(r)
		if !errors.Is(err, errorskg.ErrUnknownCodepoint) {
			t.Errorf("CharToByte(%U) error = %v, want ErrUnknownCodepoint", r, err)
		}
	}

	_, err := tab.Decode("ok日")
	var te *errorskg.TokenizeError
	if !errors.As(err, &te) || te.Stage != errorskg.StageByteMapping {
		t.Errorf("Decode error = %v, want byte-mapping TokenizeError", err)
	}
}
