// Copyright © 2024 The rapidls authors

package cmd

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("rapidls")

// logVerbosity maps a level name to the commonlog verbosity whose maximum
// level it is.
var logVerbosity = map[string]int{
	"none":     -4,
	"critical": -3,
	"error":    -2,
	"warning":  -1,
	"notice":   0,
	"info":     1,
	"debug":    2,
}

func parseLogLevel(level string) (int, error) {
	if level == "" {
		return logVerbosity["warning"], nil
	}
	v, ok := logVerbosity[strings.ToLower(level)]
	if !ok {
		return 0, fmt.Errorf("unknown log level %q", level)
	}
	return v, nil
}

// configureLogging sets up the commonlog backend that both rapidls and the
// glsp transport log through. An empty file logs to stderr, which keeps
// stdout free for the stdio transport.
func configureLogging(level, file string) error {
	verbosity, err := parseLogLevel(level)
	if err != nil {
		return err
	}
	var path *string
	if file != "" {
		path = &file
	}
	commonlog.Configure(verbosity, path)
	return nil
}
