// Copyright © 2024 The rapidls authors

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	colorFlag string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rapidls",
	Short: "Diagnostics for ABB RAPID robot programs",
	Long: `rapidls reports syntax errors in ABB RAPID modules. It runs an external
RAPID parser on each document and maps the errors it reports onto source
ranges, either inside an editor through the Language Server Protocol or on
the command line.

Getting started:
  rapidls lsp                    Run the language server on stdio
  rapidls check MainModule.mod   Check a single module
  rapidls check ./...            Check every RAPID file below the current directory

Configuration:
  Settings are read from $HOME/.rapidls.yaml or ./.rapidls.yaml, and from
  environment variables prefixed with RAPIDLS_ (for example
  RAPIDLS_PARSER_COMMAND). The parser command receives the document on stdin
  and must print a JSON result of the form

    {"success": false, "errors": [{"message": "...", "error_position": [3, 7]}]}

  where error_position holds the start and end offsets of the error.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if _, err := colorModeFrom(colorFlag); err != nil {
			return err
		}
		return configureLogging(viper.GetString(keyLogLevel), viper.GetString(keyLogFile))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInvocation)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	setDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.rapidls.yaml or ./.rapidls.yaml)")
	flags.StringVar(&colorFlag, "color", "auto",
		`Control colored output: "auto", "always", or "never".`)
	flags.String("log-level", "warning",
		`Log level: "none", "critical", "error", "warning", "notice", "info", or "debug".`)
	flags.String("log-file", "", "Write the log to this file instead of stderr.")
	flags.String("parser", "", "External RAPID parser command (overrides parser.command).")

	_ = viper.BindPFlag(keyLogLevel, flags.Lookup("log-level"))
	_ = viper.BindPFlag(keyLogFile, flags.Lookup("log-file"))
	_ = viper.BindPFlag(keyParserCommand, flags.Lookup("parser"))
}

// setDefaults registers the default value of every configuration key.
func setDefaults(v *viper.Viper) {
	v.SetDefault(keyParserCommand, "")
	v.SetDefault(keyParserArgs, []string{})
	v.SetDefault(keyParserTimeout, 10*time.Second)
	v.SetDefault(keyDebounce, time.Duration(0))
	v.SetDefault(keyLanguageIDs, []string{"rapid"})
	v.SetDefault(keyMetricsAddr, "")
	v.SetDefault(keyWatchDebounce, 200*time.Millisecond)
	v.SetDefault(keySource, "rapid")
	v.SetDefault(keyOffsetEncoding, "utf-8")
	v.SetDefault(keyLogLevel, "warning")
	v.SetDefault(keyLogFile, "")
}

// setEnv makes every key readable from a RAPIDLS_ environment variable.
func setEnv(v *viper.Viper) {
	v.SetEnvPrefix("RAPIDLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	v := viper.GetViper()
	if cfgFile != "" {
		// Use config file from the flag.
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".rapidls")
		v.SetConfigType("yaml")
	}

	setEnv(v)

	// Nothing is printed on stdout here: the lsp command owns stdout when it
	// runs on the stdio transport.
	if err := v.ReadInConfig(); err == nil {
		log.Infof("using config file: %s", v.ConfigFileUsed())
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "rapidls: reading config: %v\n", err)
		os.Exit(exitInvocation)
	}
}

