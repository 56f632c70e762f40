// Copyright © 2024 The rapidls authors

package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single Command invocation when no timeout is set.
const DefaultTimeout = 10 * time.Second

// waitDelay bounds how long a killed process may keep its pipes open.
const waitDelay = 500 * time.Millisecond

// maxStderr is how much of the module's stderr is kept in error messages.
const maxStderr = 512

// Command runs the external module as a child process. The document text is
// written to the process stdin and the parse result is read from stdout.
type Command struct {
	// Path is the executable, resolved through PATH if it has no slash.
	Path string
	Args []string
	// Dir is the working directory of the process. Empty means the
	// current directory.
	Dir string
	// Env, when non-nil, replaces the environment of the process.
	Env []string
	// Timeout bounds one invocation. Zero means DefaultTimeout; a negative
	// value disables the bound.
	Timeout time.Duration
}

var _ Parser = (*Command)(nil)

// Parse implements Parser.
func (c *Command) Parse(ctx context.Context, text string) (string, error) {
	if c.Path == "" {
		return "", errors.New("parser command not configured")
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...) //nolint:gosec // the executable comes from user configuration
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s: %w", c.Path, ctxErr)
		}
		if msg := trimStderr(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %w: %s", c.Path, err, msg)
		}
		return "", fmt.Errorf("%s: %w", c.Path, err)
	}
	return stdout.String(), nil
}

func (c *Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

func trimStderr(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[:maxStderr] + "..."
	}
	return s
}
