// Copyright © 2024 The rapidls authors

package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed is returned by Decode when the module output does not have
// the expected shape.
var ErrMalformed = errors.New("malformed parse result")

// Result is the parse result record produced by the external module.
type Result struct {
	Success bool    `json:"success"`
	Errors  []Error `json:"errors"`
}

// Error is a single problem reported by the module.
type Error struct {
	Message string `json:"message"`
	// Position is nil when the module could not locate the error.
	Position *Span `json:"error_position,omitempty"`
}

// Span is a [start, end] offset pair, serialized as a two-element array.
type Span struct {
	Start int
	End   int
}

// MarshalJSON implements json.Marshaler.
func (s Span) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{s.Start, s.End})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Span) UnmarshalJSON(b []byte) error {
	var pair []int
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("%w: error_position: %v", ErrMalformed, err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("%w: error_position has %d elements, want 2", ErrMalformed, len(pair))
	}
	if pair[0] < 0 || pair[1] < 0 {
		return fmt.Errorf("%w: negative error_position %v", ErrMalformed, pair)
	}
	s.Start, s.End = pair[0], pair[1]
	return nil
}

// wireResult distinguishes an absent success field from false.
type wireResult struct {
	Success *bool   `json:"success"`
	Errors  []Error `json:"errors"`
}

// Decode parses the JSON emitted by the external module. Any deviation from
// the expected shape, including trailing data, is an error wrapping
// ErrMalformed.
func Decode(raw string) (*Result, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	var w wireResult
	if err := dec.Decode(&w); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after result", ErrMalformed)
	}
	if w.Success == nil {
		return nil, fmt.Errorf("%w: missing success field", ErrMalformed)
	}
	return &Result{Success: *w.Success, Errors: w.Errors}, nil
}

// Encode renders r in the module's wire format. It is used by tools that
// stand in for the module.
func Encode(r *Result) (string, error) {
	errs := r.Errors
	if errs == nil {
		errs = []Error{}
	}
	b, err := json.Marshal(Result{Success: r.Success, Errors: errs})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
