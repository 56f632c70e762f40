// Copyright © 2024 The rapidls authors

// Package rapidtest provides stand-ins for the external RAPID parsing
// module and other helpers for tests.
package rapidtest

import (
	"context"
	"sync"

	"github.com/rapidls/rapidls/parser"
)

// SuccessJSON is the module output for text that parsed cleanly.
const SuccessJSON = `{"success":true,"errors":[]}`

// Raw returns a parser that always answers with out.
func Raw(out string) parser.Parser {
	return parser.Func(func(context.Context, string) (string, error) {
		return out, nil
	})
}

// Success returns a parser that accepts every text.
func Success() parser.Parser {
	return Raw(SuccessJSON)
}

// Failure returns a parser that reports errs for every text.
func Failure(errs ...parser.Error) parser.Parser {
	out, err := parser.Encode(&parser.Result{Errors: errs})
	if err != nil {
		panic(err)
	}
	return Raw(out)
}

// Failing returns a parser whose invocation fails with err.
func Failing(err error) parser.Parser {
	return parser.Func(func(context.Context, string) (string, error) {
		return "", err
	})
}

// At builds a positioned parse error.
func At(message string, start, end int) parser.Error {
	return parser.Error{Message: message, Position: &parser.Span{Start: start, End: end}}
}

// Unlocated builds a parse error without a position.
func Unlocated(message string) parser.Error {
	return parser.Error{Message: message}
}

// Recording wraps a parser and records every text it is asked to parse.
type Recording struct {
	Parser parser.Parser

	mu    sync.Mutex
	texts []string
}

var _ parser.Parser = (*Recording)(nil)

// Parse implements parser.Parser.
func (r *Recording) Parse(ctx context.Context, text string) (string, error) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	p := r.Parser
	r.mu.Unlock()
	if p == nil {
		p = Success()
	}
	return p.Parse(ctx, text)
}

// Set replaces the wrapped parser.
func (r *Recording) Set(p parser.Parser) {
	r.mu.Lock()
	r.Parser = p
	r.mu.Unlock()
}

// Texts returns a copy of the texts parsed so far.
func (r *Recording) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

// Calls returns the number of Parse calls so far.
func (r *Recording) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}
