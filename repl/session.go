// Copyright © 2024 The rapidls authors

package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rapidls/rapidls/analysis"
	"github.com/rapidls/rapidls/diagnostic"
)

// Session is the scratch module a shell user is typing. It is not safe for
// concurrent use.
type Session struct {
	analyzer *analysis.Analyzer
	out      io.Writer
	renderer *diagnostic.Renderer
	lines    []string
}

// NewSession returns an empty session that checks text with a and writes
// its responses to out.
func NewSession(a *analysis.Analyzer, out io.Writer, color diagnostic.ColorMode) *Session {
	s := &Session{analyzer: a, out: out}
	s.renderer = &diagnostic.Renderer{
		Color: color,
		SourceReader: func(name string) ([]byte, error) {
			if name == sessionName {
				return []byte(s.Text()), nil
			}
			return os.ReadFile(name) //nolint:gosec // files named by the user
		},
	}
	return s
}

// Len returns the number of lines in the buffer.
func (s *Session) Len() int {
	return len(s.lines)
}

// Text returns the buffer as a document.
func (s *Session) Text() string {
	if len(s.lines) == 0 {
		return ""
	}
	return strings.Join(s.lines, "\n") + "\n"
}

// Reset discards the buffer.
func (s *Session) Reset() {
	s.lines = nil
}

// Handle processes one input line and reports whether the user asked to
// quit.
func (s *Session) Handle(ctx context.Context, line string) bool {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, ":"):
		return s.command(ctx, trimmed)
	case trimmed == "":
		if len(s.lines) > 0 {
			s.Check(ctx)
		}
	default:
		s.lines = append(s.lines, line)
	}
	return false
}

func (s *Session) command(ctx context.Context, input string) bool {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case ":quit", ":q", ":exit":
		return true
	case ":check", ":c":
		s.Check(ctx)
	case ":show", ":s":
		s.show()
	case ":reset", ":r":
		s.Reset()
		s.printf("buffer cleared\n")
	case ":load", ":l":
		s.load(ctx, arg)
	case ":help", ":h", ":?":
		s.printf("%s", helpText)
	default:
		s.printf("unknown command %s (try :help)\n", name)
	}
	return false
}

// Check runs the parser over the buffer and prints the outcome.
func (s *Session) Check(ctx context.Context) {
	text := s.Text()
	report, err := s.analyzer.Run(ctx, sessionName, text)
	if err != nil {
		s.printf("Error parsing RAPID code: %v\n", err)
		return
	}
	if len(report.Diagnostics) == 0 {
		s.printf("ok\n")
		return
	}
	_ = s.renderer.RenderAll(s.out, diagnostic.FromAnalysis(sessionName, text, report.Diagnostics))
}

func (s *Session) show() {
	if len(s.lines) == 0 {
		s.printf("buffer is empty\n")
		return
	}
	width := len(fmt.Sprint(len(s.lines)))
	for i, l := range s.lines {
		s.printf("%*d | %s\n", width, i+1, l)
	}
}

func (s *Session) load(ctx context.Context, path string) {
	if path == "" {
		s.printf(":load needs a file name\n")
		return
	}
	b, err := os.ReadFile(path) //nolint:gosec // files named by the user
	if err != nil {
		s.printf("%v\n", err)
		return
	}
	text := strings.ReplaceAll(string(b), "\r\n", "\n")
	s.lines = strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	s.printf("loaded %d lines from %s\n", len(s.lines), path)
	s.Check(ctx)
}

func (s *Session) printf(format string, a ...any) {
	fmt.Fprintf(s.out, format, a...) //nolint:errcheck // best-effort shell output
}
