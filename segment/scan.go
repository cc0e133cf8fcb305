package segment

import (
	"iter"
	"unicode"
	"unicode/utf8"
)

// Scanner produces the same chunks as GPT2Pattern by classifying characters
// instead of running a regex engine. It works on bytes, so every input byte
// (valid UTF-8 or not) ends up in exactly one chunk.
type Scanner struct{}

var _ Segmenter = Scanner{}

type class int

const (
	classSpace class = iota
	classLetter
	classNumber
	classOther
)

func classify(r rune) class {
	switch {
	case unicode.IsSpace(r):
		return classSpace
	case unicode.IsLetter(r):
		return classLetter
	case unicode.IsNumber(r):
		return classNumber
	default:
		return classOther
	}
}

var contractions = []string{"s", "t", "re", "ve", "m", "ll", "d"}

// contraction returns the length of a contraction starting at text[i], or 0.
func contraction(text string, i int) int {
	if text[i] != '\'' {
		return 0
	}
	rest := text[i+1:]
	for _, c := range contractions {
		if len(rest) >= len(c) && rest[:len(c)] == c {
			return 1 + len(c)
		}
	}
	return 0
}

// runEnd returns the end of the maximal run of class c starting at i.
func runEnd(text string, i int, c class) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if classify(r) != c {
			break
		}
		i += size
	}
	return i
}

// next returns the end of the chunk that starts at i.
func next(text string, i int) int {
	if n := contraction(text, i); n > 0 {
		return i + n
	}

	r, size := utf8.DecodeRuneInString(text[i:])
	c := classify(r)

	// An ASCII space glues onto a following letter, number or other run.
	if r == ' ' && i+size < len(text) {
		nr, _ := utf8.DecodeRuneInString(text[i+size:])
		if nc := classify(nr); nc != classSpace {
			return runEnd(text, i+size, nc)
		}
	}

	if c != classSpace {
		return runEnd(text, i, c)
	}

	end := runEnd(text, i, classSpace)
	if end == len(text) {
		return end
	}
	// Leave the last whitespace character for the run that follows it.
	_, lastSize := utf8.DecodeLastRuneInString(text[:end])
	if end-lastSize > i {
		return end - lastSize
	}
	return end
}

// Chunks implements Segmenter.
func (Scanner) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := 0; i < len(text); {
			end := next(text, i)
			if !yield(text[i:end]) {
				return
			}
			i = end
		}
	}
}
