// Copyright © 2024 The rapidls authors

// Package repl implements an interactive shell for trying out RAPID code.
// Lines are collected into a scratch module; entering a blank line runs the
// parser over everything typed so far and prints its diagnostics.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"github.com/rapidls/rapidls/analysis"
	"github.com/rapidls/rapidls/diagnostic"
)

// sessionName labels diagnostics for the text typed into the shell.
const sessionName = "<repl>"

const helpText = `Type RAPID code line by line. A blank line checks everything typed so far.

Commands:
  :check        check the buffer now
  :show         print the buffer with line numbers
  :reset        discard the buffer
  :load FILE    replace the buffer with the contents of FILE
  :help         show this help
  :quit         leave the shell (Ctrl-D also works)
`

type config struct {
	stdin       io.ReadCloser
	stderr      io.Writer
	historyFile string
	color       diagnostic.ColorMode
}

func newConfig(opts ...Option) *config {
	config := &config{
		stderr:      os.Stderr,
		historyFile: historyPath(),
	}
	for _, opt := range opts {
		opt(config)
	}
	return config
}

type Option func(*config)

// WithStdin allows overriding the input to the shell.
func WithStdin(stdin io.ReadCloser) Option {
	return func(c *config) {
		c.stdin = stdin
	}
}

// WithStderr allows overriding the output of the shell.
func WithStderr(stderr io.Writer) Option {
	return func(c *config) {
		c.stderr = stderr
	}
}

// WithHistoryFile sets the file line history is kept in. An empty path
// keeps history in memory only.
func WithHistoryFile(path string) Option {
	return func(c *config) {
		c.historyFile = path
	}
}

// WithColor sets the color mode of rendered diagnostics.
func WithColor(mode diagnostic.ColorMode) Option {
	return func(c *config) {
		c.color = mode
	}
}

// Run reads lines with readline until the input ends or the user quits.
func Run(ctx context.Context, a *analysis.Analyzer, prompt string, opts ...Option) error {
	cfg := newConfig(opts...)
	cont := strings.Repeat(".", len(strings.TrimRight(prompt, " ")))
	if len(prompt) > len(cont) {
		cont += strings.Repeat(" ", len(prompt)-len(cont))
	}

	ensureHistoryFilePermissions(cfg.historyFile)
	rlCfg := &readline.Config{
		Stdout:            cfg.stderr,
		Stderr:            cfg.stderr,
		Prompt:            prompt,
		HistoryFile:       cfg.historyFile,
		HistorySearchFold: true,
		AutoComplete:      keywordCompleter{},
	}
	if cfg.stdin != nil {
		rlCfg.Stdin = cfg.stdin
	}
	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return fmt.Errorf("starting line editor: %w", err)
	}
	defer rl.Close() //nolint:errcheck // best-effort cleanup

	s := NewSession(a, cfg.stderr, cfg.color)
	for {
		if s.Len() == 0 {
			rl.SetPrompt(prompt)
		} else {
			rl.SetPrompt(cont)
		}
		line, err := rl.ReadLine()
		if errors.Is(err, readline.ErrInterrupt) {
			s.Reset()
			continue
		}
		if err != nil {
			// io.EOF ends the session.
			return nil
		}
		if s.Handle(ctx, line) {
			return nil
		}
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".rapidls_history")
}

// ensureHistoryFilePermissions creates the history file if needed and
// restricts it to the current user.
func ensureHistoryFilePermissions(path string) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600) //nolint:gosec // path is the user's own history file
	if err != nil {
		return
	}
	_ = f.Close()
	_ = os.Chmod(path, 0o600)
}
