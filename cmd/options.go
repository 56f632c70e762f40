// Copyright © 2024 The rapidls authors

package cmd

import (
	"errors"
	"fmt"

	"github.com/rapidls/rapidls/analysis"
	"github.com/rapidls/rapidls/parser"
	"github.com/rapidls/rapidls/position"
	"github.com/spf13/viper"
)

// Configuration keys. Each can be set in .rapidls.yaml, through a
// RAPIDLS_ environment variable (dots and dashes become underscores), or
// by the flag bound to it.
const (
	keyParserCommand  = "parser.command"
	keyParserArgs     = "parser.args"
	keyParserTimeout  = "parser.timeout"
	keyDebounce       = "lsp.debounce"
	keyLanguageIDs    = "lsp.language-ids"
	keyMetricsAddr    = "lsp.metrics-addr"
	keyWatchDebounce  = "watch.debounce"
	keySource         = "diagnostics.source"
	keyOffsetEncoding = "diagnostics.offset-encoding"
	keyLogLevel       = "log.level"
	keyLogFile        = "log.file"
)

// errNoParser is returned when neither an embedder nor the configuration
// supplies a parser.
var errNoParser = errors.New("no parser configured (set parser.command or RAPIDLS_PARSER_COMMAND)")

// Option configures an exported command factory (LSPCommand, CheckCommand).
type Option func(*cmdConfig)

type cmdConfig struct {
	parser parser.Parser
}

// WithParser injects the parser used for analysis. It takes precedence
// over the parser.command setting, which lets a program embed the RAPID
// parser in-process instead of running it as a child process.
func WithParser(p parser.Parser) Option {
	return func(c *cmdConfig) { c.parser = p }
}

func newCmdConfig(opts []Option) *cmdConfig {
	cfg := &cmdConfig{}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// resolveParser returns the injected parser, falling back to a child
// process built from the configuration.
func (c *cmdConfig) resolveParser(v *viper.Viper) (parser.Parser, error) {
	if c.parser != nil {
		return c.parser, nil
	}
	path := v.GetString(keyParserCommand)
	if path == "" {
		return nil, errNoParser
	}
	return &parser.Command{
		Path:    path,
		Args:    v.GetStringSlice(keyParserArgs),
		Timeout: v.GetDuration(keyParserTimeout),
	}, nil
}

// newAnalyzer builds the analyzer shared by the lsp and check commands.
func (c *cmdConfig) newAnalyzer(v *viper.Viper) (*analysis.Analyzer, error) {
	p, err := c.resolveParser(v)
	if err != nil {
		return nil, err
	}
	enc, err := position.ParseEncoding(v.GetString(keyOffsetEncoding))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyOffsetEncoding, err)
	}
	return &analysis.Analyzer{
		Parser:   p,
		Encoding: enc,
		Source:   v.GetString(keySource),
	}, nil
}
