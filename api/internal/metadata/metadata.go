// Package metadata turns the vision model's completion text into a record.
//
// The record is whatever JSON object the model produced. The keys below are
// the ones the extraction prompt asks for; none of them is guaranteed.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"comic-vault/api/internal/util"
)

const (
	KeyTitle           = "title"
	KeyIssueNumber     = "issue_number"
	KeyPublisher       = "publisher"
	KeyPublicationYear = "publication_year"
	KeyVariant         = "variant"
	KeyKeyCharacters   = "key_characters"
	KeyStoryArc        = "story_arc"
	KeyArtist          = "artist"
	KeyWriter          = "writer"
	KeyNotableMarkings = "notable_markings"
)

var (
	ErrNotObject    = errors.New("response is not a JSON object")
	ErrTrailingData = errors.New("unexpected data after JSON object")
)

// Record is a comic metadata record. Values are strings, lists or anything
// else the model emitted; numbers are json.Number.
type Record map[string]any

// String returns the value under key when it is a string.
func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// ParseError keeps the raw completion next to the decode failure.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("model returned invalid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result is either a decoded record or a failure carrying the raw text.
// Callers must check OK before touching Record.
type Result struct {
	Record Record
	Raw    string
	Err    *ParseError
}

func (r Result) OK() bool { return r.Err == nil }

// Parse decodes text as a JSON object without any cleanup. Markdown fences or
// surrounding prose make it fail. Numbers are kept as json.Number so integers
// of any length come back exactly as the model wrote them.
func Parse(text string) Result {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var rec Record
	if err := dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fail(text, err)
	}
	if rec == nil {
		return fail(text, ErrNotObject)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fail(text, ErrTrailingData)
	}
	return Result{Record: rec, Raw: text}
}

// ParseTolerant strips a surrounding code fence before Parse.
func ParseTolerant(text string) Result {
	res := Parse(util.StripCodeFences(text))
	res.Raw = text
	if res.Err != nil {
		res.Err.Raw = text
	}
	return res
}

func fail(text string, err error) Result {
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) {
		err = fmt.Errorf("%w (got %s)", ErrNotObject, ute.Value)
	}
	return Result{Raw: text, Err: &ParseError{Raw: text, Err: err}}
}

// Parser is the signature shared by Parse and ParseTolerant.
type Parser func(string) Result

// ParserFor maps a config mode ("strict" or "tolerant") to a Parser.
func ParserFor(mode string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "strict":
		return Parse, nil
	case "tolerant":
		return ParseTolerant, nil
	}
	return nil, fmt.Errorf("unknown parse mode %q; use strict or tolerant", mode)
}
