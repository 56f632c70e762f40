// Copyright © 2024 The rapidls authors

package cmd

import (
	"context"

	"github.com/rapidls/rapidls/repl"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ReplCommand creates the "repl" cobra command with optional embedder
// configuration.
func ReplCommand(opts ...Option) *cobra.Command {
	cfg := newCmdConfig(opts)

	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive RAPID checking shell",
		Long: `Start an interactive shell for trying out RAPID code.

Lines are collected into a scratch module. Entering a blank line runs the
parser over everything typed so far and prints its diagnostics, so errors
can be fixed by typing the remaining lines. Line editing, keyword completion
and command history are supported via readline. Use Ctrl-D or :quit to exit
and Ctrl-C to discard the buffer.

Example session:
  rapid> MODULE Scratch
  ...... PROC main()
  ......   TPWrite "hello"
  ......
  error[rapid]: Unexpected token 'EOF'. Expected one of: ";"
  rapid> :load MainModule.mod
  loaded 42 lines from MainModule.mod
  ok`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := cfg.newAnalyzer(viper.GetViper())
			if err != nil {
				return err
			}
			mode, err := colorModeFrom(colorFlag)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return repl.Run(ctx, a, "rapid> ", repl.WithColor(mode))
		},
	}
}

func init() {
	rootCmd.AddCommand(ReplCommand())
}
