// Copyright © 2024 The rapidls authors

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rapidls/rapidls/analysis"
	"github.com/rapidls/rapidls/diagnostic"
	"github.com/rapidls/rapidls/watch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Exit codes of the check command.
const (
	exitClean       = 0
	exitDiagnostics = 1
	exitInvocation  = 2
)

// stdinName labels diagnostics for text read from standard input.
const stdinName = "<stdin>"

// CheckCommand creates the "check" cobra command with optional embedder
// configuration.
func CheckCommand(opts ...Option) *cobra.Command {
	cfg := newCmdConfig(opts)

	var (
		jsonOut  bool
		watching bool
		excludes []string
	)

	cmd := &cobra.Command{
		Use:   "check [flags] [files...]",
		Short: "Report RAPID syntax errors on the command line",
		Long: `Run the RAPID parser on files and report the errors it finds.

This is the same analysis the language server performs on every change,
rendered as annotated source snippets. With no files, reads from stdin. A
directory argument ending in "/..." expands to every RAPID file below it
(.mod, .modx, .sys, .sysx, .prg).

Exit codes:
  0  No problems found
  1  One or more problems were reported
  2  Bad invocation, unreadable files, or the parser could not be run

Examples:
  rapidls check MainModule.mod                   # Check a single module
  rapidls check ./...                            # Check a whole project
  rapidls check --exclude=BACKUP ./...           # Skip controller backups
  rapidls check --json MainModule.mod            # Output diagnostics as JSON
  rapidls check --watch ./...                    # Re-check whenever a file changes
  cat MainModule.mod | rapidls check             # Check from stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cfg.newAnalyzer(viper.GetViper())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			c := &checker{
				analyzer: a,
				json:     jsonOut,
				stdin:    cmd.InOrStdin(),
				stdout:   cmd.OutOrStdout(),
				stderr:   cmd.ErrOrStderr(),
			}
			if watching {
				if len(args) == 0 {
					return errors.New("--watch needs files or directories to watch")
				}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
				defer stop()
				return c.watch(ctx, args, excludes, viper.GetDuration(keyWatchDebounce))
			}
			if code := c.run(ctx, args, excludes); code != exitClean {
				os.Exit(code)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false,
		"Output diagnostics as JSON.")
	cmd.Flags().BoolVar(&watching, "watch", false,
		"Keep running and check again whenever a RAPID file changes.")
	cmd.Flags().StringArrayVar(&excludes, "exclude", nil,
		"Glob pattern for files to exclude (may be repeated).")

	return cmd
}

// checker runs analysis passes over files and reports the diagnostics.
type checker struct {
	analyzer *analysis.Analyzer
	json     bool
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

// run checks the files named by args, or stdin when args is empty, and
// returns the exit code.
func (c *checker) run(ctx context.Context, args, excludes []string) int {
	sources := make(map[string]string)
	var names []string

	if len(args) == 0 {
		b, err := io.ReadAll(c.stdin)
		if err != nil {
			fmt.Fprintf(c.stderr, "rapidls check: reading stdin: %v\n", err)
			return exitInvocation
		}
		sources[stdinName] = string(b)
		names = append(names, stdinName)
	} else {
		expanded, err := expandArgs(args, excludes)
		if err != nil {
			fmt.Fprintf(c.stderr, "rapidls check: %v\n", err)
			return exitInvocation
		}
		for _, path := range expanded {
			b, err := os.ReadFile(path) //nolint:gosec // CLI tool reads user-specified files
			if err != nil {
				fmt.Fprintf(c.stderr, "rapidls check: %v\n", err)
				return exitInvocation
			}
			sources[path] = string(b)
			names = append(names, path)
		}
	}

	code := exitClean
	var diags []diagnostic.Diagnostic
	for _, name := range names {
		text := sources[name]
		report, err := c.analyzer.Run(ctx, name, text)
		if err != nil {
			log.Errorf("%s: %v", name, err)
			fmt.Fprintf(c.stderr, "rapidls check: %s: Error parsing RAPID code: %v\n", name, err)
			code = exitInvocation
			continue
		}
		diags = append(diags, diagnostic.FromAnalysis(name, text, report.Diagnostics)...)
	}
	if len(diags) > 0 && code == exitClean {
		code = exitDiagnostics
	}

	if c.json {
		if err := diagnostic.FormatJSON(c.stdout, diags); err != nil {
			fmt.Fprintf(c.stderr, "rapidls check: %v\n", err)
			return exitInvocation
		}
		return code
	}
	if len(diags) > 0 {
		if err := newRenderer(sources).RenderAll(c.stderr, diags); err != nil {
			fmt.Fprintf(c.stderr, "rapidls check: %v\n", err)
			return exitInvocation
		}
	}
	return code
}

// watch checks args once, then again whenever a RAPID file below them
// changes, until ctx is done.
func (c *checker) watch(ctx context.Context, args, excludes []string, debounce time.Duration) error {
	runs := make(chan struct{}, 1)
	w, err := watch.New(debounce, func(paths []string) {
		log.Infof("changed: %s", strings.Join(paths, ", "))
		select {
		case runs <- struct{}{}:
		default:
		}
	},
		watch.WithFilter(func(p string) bool { return isRapidFile(p) && !matchesAny(p, excludes) }),
		watch.WithSkipDir(func(p string) bool { return matchesAny(p, excludes) }),
	)
	if err != nil {
		return err
	}
	defer w.Close() //nolint:errcheck // best effort on exit
	if err := w.Watch(watchRoots(args)); err != nil {
		return fmt.Errorf("watching: %w", err)
	}

	c.report(ctx, args, excludes)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-runs:
			c.report(ctx, args, excludes)
		}
	}
}

// report runs one check and prints its outcome.
func (c *checker) report(ctx context.Context, args, excludes []string) {
	code := c.run(ctx, args, excludes)
	if code == exitClean {
		fmt.Fprintf(c.stderr, "rapidls check: no problems found (%s)\n", time.Now().Format(time.TimeOnly))
	}
	fmt.Fprintln(c.stderr, "rapidls check: watching for changes")
}

// watchRoots returns the paths to watch for check arguments.
func watchRoots(args []string) []string {
	roots := make([]string, 0, len(args))
	for _, arg := range args {
		if dir, ok := strings.CutSuffix(arg, "/..."); ok {
			if dir == "" {
				dir = "."
			}
			arg = dir
		}
		roots = append(roots, arg)
	}
	return roots
}

func init() {
	rootCmd.AddCommand(CheckCommand())
}
