// Copyright © 2024 The rapidls authors

package diagnostic

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
)

// Renderer formats diagnostics as annotated source snippets:
//
//	error: Unexpected token 'ENDPROC'. Expected one of: ";"
//	  --> MainModule.mod:4:3
//	   |
//	 4 |    ENDPROC
//	   |    ^^^^^^^
//	   |
type Renderer struct {
	// Color controls ANSI color output. Default is ColorAuto.
	Color ColorMode

	// Width wraps messages and notes at this many columns. Zero disables
	// wrapping.
	Width int

	// SourceReader reads source file contents. If nil, os.ReadFile is used.
	SourceReader func(string) ([]byte, error)
}

// Render writes a single diagnostic to w.
func (r *Renderer) Render(w io.Writer, d Diagnostic) error {
	p := choosePalette(r.Color, fileFromWriter(w))
	bw := bufio.NewWriter(w)
	ew := &errWriter{w: bw}

	r.writeHeader(ew, d, p)
	for _, span := range d.Spans {
		r.writeSpan(ew, span, p)
	}
	for _, note := range d.Notes {
		ew.printf("   %s=%s note: %s\n", p.boldCyan, p.reset, r.wrap(note, 11))
	}

	if ew.err != nil {
		return ew.err
	}
	return bw.Flush()
}

// RenderAll writes all diagnostics to w separated by blank lines.
func (r *Renderer) RenderAll(w io.Writer, diags []Diagnostic) error {
	for i, d := range diags {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := r.Render(w, d); err != nil {
			return err
		}
	}
	return nil
}

// errWriter wraps a writer and captures the first error, short-circuiting
// subsequent writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, a ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, a...)
}

// wrap word-wraps s to the renderer width. Continuation lines are indented
// by hang columns so they line up after the label that precedes s.
func (r *Renderer) wrap(s string, hang int) string {
	if r.Width <= hang {
		return s
	}
	wrapped := wordwrap.String(s, r.Width-hang)
	first, rest, ok := strings.Cut(wrapped, "\n")
	if !ok {
		return wrapped
	}
	return first + "\n" + indent.String(rest, uint(hang))
}

func (r *Renderer) writeHeader(ew *errWriter, d Diagnostic, p palette) {
	var sevColor string
	switch d.Severity {
	case SeverityError:
		sevColor = p.boldRed
	case SeverityWarning:
		sevColor = p.yellow
	case SeverityNote:
		sevColor = p.boldCyan
	}
	label := d.Severity.String()
	if d.Source != "" {
		label += "[" + d.Source + "]"
	}
	ew.printf("%s%s%s%s: %s%s%s\n",
		sevColor, p.bold, label, p.reset,
		p.bold, r.wrap(d.Message, len(label)+2), p.reset)
}

// location formats the span as file:line:col, dropping the parts that are
// unknown.
func (s Span) location() string {
	switch {
	case s.Line <= 0:
		return s.File
	case s.Col <= 0:
		return fmt.Sprintf("%s:%d", s.File, s.Line)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Col)
}

// marks returns the 1-based first and last columns to underline on the
// first line of the span.
func (s Span) marks(source string) (first, last int) {
	first = max(s.Col, 1)
	switch {
	case s.EndLine > s.Line:
		last = utf8.RuneCountInString(source)
	case s.EndCol > 0:
		last = s.EndCol
	default:
		last = detectEndCol(source, first)
	}
	return first, max(last, first)
}

func (r *Renderer) writeSpan(ew *errWriter, span Span, p palette) {
	ew.printf("  %s-->%s %s\n", p.boldBlue, p.reset, span.location())

	source, ok := r.readSourceLine(span.File, span.Line)
	if !ok {
		ew.printf("   %s|%s\n", p.boldBlue, p.reset)
		return
	}

	num := strconv.Itoa(span.Line)
	gutter := func(label string) {
		ew.printf(" %s%*s |%s", p.boldBlue, len(num), label, p.reset)
	}

	gutter("")
	ew.printf("\n")
	gutter(num)
	ew.printf("  %s\n", strings.ReplaceAll(source, "\t", "    "))

	first, last := span.marks(source)
	gutter("")
	ew.printf("  %s%s%s%s",
		strings.Repeat(" ", displayWidth(runePrefix(source, first-1))),
		p.boldRed, strings.Repeat("^", last-first+1), p.reset)
	if span.Label != "" {
		ew.printf(" %s%s%s", p.boldRed, span.Label, p.reset)
	}
	ew.printf("\n")
	if span.EndLine > span.Line {
		gutter("")
		ew.printf("  %s...through line %d%s\n", p.boldRed, span.EndLine, p.reset)
	}
	gutter("")
	ew.printf("\n")
}

// readSourceLine returns the 1-based line of file, without its line
// terminator. The second result is false when the line is unavailable.
func (r *Renderer) readSourceLine(file string, line int) (string, bool) {
	if line <= 0 || file == "" {
		return "", false
	}
	reader := r.SourceReader
	if reader == nil {
		reader = func(name string) ([]byte, error) {
			return os.ReadFile(name) //nolint:gosec // reads user-specified source files for display
		}
	}
	data, err := reader(file)
	if err != nil {
		return "", false
	}
	lines := strings.Split(string(data), "\n")
	if line > len(lines) {
		return "", false
	}
	return strings.TrimSuffix(lines[line-1], "\r"), true
}

// detectEndCol scans from the 1-based col to the end of the RAPID token
// starting there and returns its 1-based inclusive end column.
func detectEndCol(source string, col int) int {
	runes := []rune(source)
	if col <= 0 || col > len(runes) {
		return col
	}
	end := col - 1
	for end < len(runes) && !isTokenBoundary(runes[end]) {
		end++
	}
	if end == col-1 {
		return col // single character
	}
	return end
}

func isTokenBoundary(ch rune) bool {
	switch ch {
	case ' ', '\t', ';', ',', ':', '(', ')', '[', ']', '{', '}', '\\':
		return true
	}
	return false
}

// runePrefix returns the first n runes of s, or all of s if it is shorter.
func runePrefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// displayWidth returns the display width of a string, expanding tabs to 4 spaces.
func displayWidth(s string) int {
	w := 0
	for _, ch := range s {
		if ch == '\t' {
			w += 4
		} else {
			w++
		}
	}
	return w
}

// fileFromWriter attempts to extract an *os.File from a writer for terminal
// detection. Returns nil if the writer is not backed by a file.
func fileFromWriter(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return nil
}
