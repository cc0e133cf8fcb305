package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownCodepoint indicates a decoded codepoint that is not part of the byte-level table
	ErrUnknownCodepoint = errors.New("unknown codepoint")

	// ErrUnknownToken indicates a merged sub-token that is missing from the vocabulary
	ErrUnknownToken = errors.New("unknown token")

	// ErrUnknownTokenID indicates a token id that is missing from the vocabulary
	ErrUnknownTokenID = errors.New("unknown token id")

	// ErrInvalidVocabulary indicates a vocabulary with duplicate or negative entries
	ErrInvalidVocabulary = errors.New("invalid vocabulary")

	// ErrInvalidMerges indicates a malformed or duplicated merge rule
	ErrInvalidMerges = errors.New("invalid merge rules")
)

// Stage names the part of the encode/decode pipeline that failed.
type Stage string

const (
	StageByteMapping      Stage = "byte-mapping"
	StageVocabularyLookup Stage = "vocabulary-lookup"
)

// TokenizeError reports which stage failed and on what input fragment.
// ID is only meaningful for id lookups and is -1 otherwise.
type TokenizeError struct {
	Stage    Stage
	Fragment string
	ID       int
	Err      error
}

func (e *TokenizeError) Error() string {
	if e.ID >= 0 {
		return fmt.Sprintf("%s failed for id %d: %v", e.Stage, e.ID, e.Err)
	}
	return fmt.Sprintf("%s failed on %q: %v", e.Stage, e.Fragment, e.Err)
}

func (e *TokenizeError) Unwrap() error {
	return e.Err
}

// NewTokenizeError builds a TokenizeError for a text fragment.
func NewTokenizeError(stage Stage, fragment string, err error) *TokenizeError {
	return &TokenizeError{Stage: stage, Fragment: fragment, ID: -1, Err: err}
}

// NewTokenIDError builds a TokenizeError for a token id.
func NewTokenIDError(id int, err error) *TokenizeError {
	return &TokenizeError{Stage: StageVocabularyLookup, ID: id, Err: err}
}
