// Copyright © 2024 The rapidls authors

// Package diagnostic renders RAPID diagnostics for the command line, either
// as annotated source snippets or as JSON. It does not depend on the
// language server so that CLI commands can share it.
package diagnostic

import (
	"encoding/json"
	"fmt"
	"io"
)

// Severity indicates the severity level of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityNote
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityNote:
		return "note"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	case "note":
		*s = SeverityNote
	default:
		return fmt.Errorf("unknown severity: %q", b)
	}
	return nil
}

// Span identifies a region of source code to highlight in the diagnostic.
type Span struct {
	File    string `json:"file"`              // path for reading source; display name if unreadable
	Line    int    `json:"line"`              // 1-based line number
	Col     int    `json:"col"`               // 1-based start column
	EndLine int    `json:"endLine,omitempty"` // 1-based end line (0 = same as Line)
	EndCol  int    `json:"endCol,omitempty"`  // 1-based inclusive end column (0 = auto-detect from source)
	Label   string `json:"label,omitempty"`   // text shown under the underline
}

// Diagnostic represents a single error, warning, or note with optional
// source annotations and trailing notes.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Source   string   `json:"source,omitempty"`
	Message  string   `json:"message"`
	Spans    []Span   `json:"spans,omitempty"`
	Notes    []string `json:"notes,omitempty"`
}

// FormatJSON writes diagnostics as an indented JSON array.
func FormatJSON(w io.Writer, diags []Diagnostic) error {
	if diags == nil {
		diags = []Diagnostic{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(diags)
}
