// Copyright © 2024 The rapidls authors

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rapidls/rapidls/lsp"
	"github.com/rapidls/rapidls/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// LSPCommand creates the "lsp" cobra command with optional embedder
// configuration. Embedders can pass WithParser to analyse documents with an
// in-process parser instead of the configured command.
func LSPCommand(opts ...Option) *cobra.Command {
	cfg := newCmdConfig(opts)

	var (
		stdio bool
		port  int
	)

	cmd := &cobra.Command{
		Use:   "lsp [flags]",
		Short: "Start the RAPID Language Server Protocol server",
		Long: `Start an LSP server for RAPID source files.

Whenever a RAPID document is opened, changed, or saved the server runs the
configured parser on its full text and publishes one diagnostic per error
the parser reports. Documents that parse cleanly have their diagnostics
cleared.

Transport modes:
  --stdio      Use stdin/stdout for LSP communication (default)
  --port N     Listen for an LSP client on TCP port N

Examples:
  rapidls lsp                           Start with stdio transport
  rapidls lsp --stdio                   Same as above (explicit)
  rapidls lsp --port 7998               Start with TCP on port 7998
  rapidls lsp --debounce 300ms          Wait for typing to pause before parsing
  rapidls lsp --metrics-addr :9464      Also serve Prometheus metrics on /metrics

Editor configuration (VS Code):
  Install a generic LSP client extension and configure it to run
  "rapidls lsp --stdio" for documents with language id "rapid".`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			serverOpts, err := cfg.serverOptions(viper.GetViper())
			if err != nil {
				return err
			}
			if addr := viper.GetString(keyMetricsAddr); addr != "" {
				m := metrics.New(nil)
				ms := metrics.NewServer(addr, m)
				if _, err := ms.Start(); err != nil {
					return fmt.Errorf("metrics server: %w", err)
				}
				defer stopMetrics(ms)
				serverOpts = append(serverOpts, lsp.WithMetrics(m))
			}
			srv := lsp.New(serverOpts...)

			if !stdio && port > 0 {
				addr := fmt.Sprintf("localhost:%d", port)
				log.Noticef("RAPID LSP server listening on %s", addr)
				if err := srv.RunTCP(addr); err != nil {
					return fmt.Errorf("lsp server error: %w", err)
				}
				return nil
			}
			if err := srv.RunStdio(); err != nil {
				return fmt.Errorf("lsp server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&stdio, "stdio", false,
		"Use stdin/stdout for LSP communication (default behavior)")
	cmd.Flags().IntVar(&port, "port", 0,
		"TCP port for LSP server (use instead of --stdio)")
	cmd.Flags().Duration("debounce", 0,
		"Delay analysis after a change until typing pauses (0 analyses every change)")
	cmd.Flags().StringSlice("language-id", nil,
		`Document language ids to analyse (default "rapid")`)
	cmd.Flags().String("metrics-addr", "",
		`Serve Prometheus metrics on this address, for example ":9464" (disabled when empty)`)
	_ = viper.BindPFlag(keyDebounce, cmd.Flags().Lookup("debounce"))
	_ = viper.BindPFlag(keyMetricsAddr, cmd.Flags().Lookup("metrics-addr"))
	_ = viper.BindPFlag(keyLanguageIDs, cmd.Flags().Lookup("language-id"))

	return cmd
}

// serverOptions translates the configuration into server options.
func (c *cmdConfig) serverOptions(v *viper.Viper) ([]lsp.Option, error) {
	a, err := c.newAnalyzer(v)
	if err != nil {
		return nil, err
	}
	opts := []lsp.Option{
		lsp.WithParser(a.Parser),
		lsp.WithEncoding(a.Encoding),
		lsp.WithDebounce(v.GetDuration(keyDebounce)),
	}
	if a.Source != "" {
		opts = append(opts, lsp.WithSource(a.Source))
	}
	if ids := v.GetStringSlice(keyLanguageIDs); len(ids) > 0 {
		opts = append(opts, lsp.WithLanguageIDs(ids...))
	}
	return opts, nil
}

func stopMetrics(ms *metrics.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ms.Stop(ctx); err != nil {
		log.Warningf("stopping metrics server: %v", err)
	}
}

func init() {
	rootCmd.AddCommand(LSPCommand())
}
