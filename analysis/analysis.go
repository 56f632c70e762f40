// Copyright © 2024 The rapidls authors

// Package analysis runs one analysis pass over a RAPID document: it hands the
// text to the external parser, decodes the result, and maps every reported
// error to a located diagnostic.
//
// Errors that carry an offset pair are anchored to that span. Errors without
// one cover the whole document so that every reported problem is visible.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/rapidls/rapidls/parser"
	"github.com/rapidls/rapidls/position"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSource names the producer of the diagnostics.
const DefaultSource = "rapid"

const tracerName = "github.com/rapidls/rapidls/analysis"

var (
	// ErrParse reports that the external parser could not be invoked or
	// failed while running.
	ErrParse = errors.New("parser invocation failed")
	// ErrDecode reports that the parser output could not be interpreted.
	ErrDecode = errors.New("cannot interpret parser output")
)

// Severity is the severity of a diagnostic. The parser only reports errors,
// but the type leaves room for the levels editors understand.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInformation
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Diagnostic is a parse error anchored to a range of the document.
type Diagnostic struct {
	Severity Severity       `json:"severity"`
	Source   string         `json:"source"`
	Message  string         `json:"message"`
	Range    position.Range `json:"range"`

	// StartOffset and EndOffset are the offsets the range was built from,
	// in the configured encoding.
	StartOffset int `json:"startOffset"`
	EndOffset   int `json:"endOffset"`

	// WholeDocument is set when the parser gave no position and the
	// diagnostic falls back to spanning the entire text.
	WholeDocument bool `json:"wholeDocument,omitempty"`
}

// Report is the outcome of one successful analysis pass.
type Report struct {
	URI         string
	Success     bool
	Diagnostics []Diagnostic
}

// Analyzer runs analysis passes against an external parser.
type Analyzer struct {
	Parser parser.Parser
	// Encoding is the unit of the offsets reported by the parser.
	Encoding position.Encoding
	// Source is stamped on every diagnostic. Empty means DefaultSource.
	Source string
	// Tracer records a span per pass. Nil uses the global provider.
	Tracer trace.Tracer
}

// Run analyses text, identified by uri. A non-nil error wraps ErrParse or
// ErrDecode and means no report is available; callers must leave earlier
// diagnostics in place.
func (a *Analyzer) Run(ctx context.Context, uri, text string) (*Report, error) {
	ctx, span := a.tracer().Start(ctx, "rapid.analyze", trace.WithAttributes(
		attribute.String("rapid.uri", uri),
		attribute.Int("rapid.text_length", len(text)),
	))
	defer span.End()

	report, err := a.run(ctx, uri, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("rapid.success", report.Success),
		attribute.Int("rapid.diagnostics", len(report.Diagnostics)),
	)
	return report, nil
}

func (a *Analyzer) run(ctx context.Context, uri, text string) (*Report, error) {
	if a.Parser == nil {
		return nil, fmt.Errorf("%w: no parser configured", ErrParse)
	}
	raw, err := a.Parser.Parse(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	res, err := parser.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	report := &Report{URI: uri, Success: res.Success}
	if !res.Success {
		report.Diagnostics = Diagnostics(text, res, a.Encoding, a.source())
	}
	return report, nil
}

func (a *Analyzer) tracer() trace.Tracer {
	if a.Tracer != nil {
		return a.Tracer
	}
	return otel.GetTracerProvider().Tracer(tracerName)
}

func (a *Analyzer) source() string {
	if a.Source == "" {
		return DefaultSource
	}
	return a.Source
}

// Diagnostics maps the errors of res onto text. A successful result yields
// no diagnostics. The returned slice is never nil.
func Diagnostics(text string, res *parser.Result, enc position.Encoding, source string) []Diagnostic {
	diags := []Diagnostic{}
	if res == nil || res.Success {
		return diags
	}
	m := position.NewMapper(text, enc)
	for _, e := range res.Errors {
		d := Diagnostic{
			Severity: SeverityError,
			Source:   source,
			Message:  e.Message,
		}
		if e.Position != nil {
			d.StartOffset, d.EndOffset = e.Position.Start, e.Position.End
			d.Range = m.Range(e.Position.Start, e.Position.End)
		} else {
			d.EndOffset = m.Len()
			d.Range = position.Range{Start: m.Position(0), End: m.End()}
			d.WholeDocument = true
		}
		diags = append(diags, d)
	}
	return diags
}
