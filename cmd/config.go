// Copyright © 2024 The rapidls authors

package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ConfigCommand creates the "config" cobra command.
func ConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration rapidls would run with, after merging defaults,
the config file, RAPIDLS_ environment variables, and flags. The output is
valid YAML and can be saved as a starting point for .rapidls.yaml:

  rapidls config > ~/.rapidls.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeSettings(cmd.OutOrStdout(), viper.GetViper())
		},
	}
}

// writeSettings writes every setting of v as YAML.
func writeSettings(w io.Writer, v *viper.Viper) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(printable(v.AllSettings())); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	return enc.Close()
}

// printable renders durations the way they are written in the config file.
func printable(val any) any {
	switch t := val.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = printable(v)
		}
		return out
	case time.Duration:
		return t.String()
	default:
		return val
	}
}

func init() {
	rootCmd.AddCommand(ConfigCommand())
}
