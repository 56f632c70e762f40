// Copyright © 2024 The rapidls authors

// Package parser is the boundary to the external RAPID parsing module. The
// module is opaque: it receives document text and answers with a JSON parse
// result. This package defines that contract, its wire types, and the
// backends used to reach the module.
package parser

import "context"

// Parser analyses RAPID source text and returns the raw JSON parse result
// produced by the external module.
type Parser interface {
	Parse(ctx context.Context, text string) (string, error)
}

// Func adapts an ordinary function to the Parser interface.
type Func func(ctx context.Context, text string) (string, error)

// Parse calls f(ctx, text).
func (f Func) Parse(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}
