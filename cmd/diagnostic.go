// Copyright © 2024 The rapidls authors

package cmd

import (
	"os"

	"github.com/rapidls/rapidls/diagnostic"
)

func colorModeFrom(flag string) (diagnostic.ColorMode, error) {
	return diagnostic.ParseColorMode(flag)
}

// newRenderer returns a renderer that reads source lines from sources
// before falling back to the file system. Checked files are already in
// memory, and stdin cannot be read twice.
func newRenderer(sources map[string]string) *diagnostic.Renderer {
	mode, _ := colorModeFrom(colorFlag)
	return &diagnostic.Renderer{
		Color: mode,
		SourceReader: func(name string) ([]byte, error) {
			if s, ok := sources[name]; ok {
				return []byte(s), nil
			}
			return os.ReadFile(name) //nolint:gosec // CLI tool reads user-specified files
		},
	}
}
