// Copyright © 2024 The rapidls authors

package cmd

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// rapidExtensions are the file extensions of RAPID modules and programs.
var rapidExtensions = map[string]bool{
	".mod":  true,
	".modx": true,
	".sys":  true,
	".sysx": true,
	".prg":  true,
}

// isRapidFile reports whether path has a RAPID source extension. Controller
// backups often use upper case names, so the match ignores case.
func isRapidFile(path string) bool {
	return rapidExtensions[strings.ToLower(filepath.Ext(path))]
}

// expandArgs expands arguments, resolving patterns ending with "/..." to all
// RAPID files found recursively under the given directory. Non-pattern
// arguments pass through unchanged. Paths matching any exclude pattern are
// dropped from the result.
func expandArgs(args []string, excludes []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if dir, ok := strings.CutSuffix(arg, "/..."); ok {
			if dir == "" {
				dir = "."
			}
			files, err := findRapidFiles(dir, excludes)
			if err != nil {
				return nil, fmt.Errorf("expanding %s: %w", arg, err)
			}
			out = append(out, files...)
		} else {
			out = append(out, arg)
		}
	}
	return filterExcludes(out, excludes), nil
}

func findRapidFiles(root string, excludes []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && matchesAny(path, excludes) {
				return filepath.SkipDir
			}
			return nil
		}
		if isRapidFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// filterExcludes removes paths that match any of the exclude patterns.
func filterExcludes(paths []string, excludes []string) []string {
	if len(excludes) == 0 {
		return paths
	}
	var out []string
	for _, p := range paths {
		if !matchesAny(p, excludes) {
			out = append(out, p)
		}
	}
	return out
}

// matchesAny reports whether path matches one of the patterns. A pattern
// matches the full path, the base name, or any single path component.
func matchesAny(path string, patterns []string) bool {
	slashed := filepath.ToSlash(path)
	components := strings.Split(slashed, "/")
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, slashed); ok {
			return true
		}
		for _, c := range components {
			if ok, _ := filepath.Match(pat, c); ok {
				return true
			}
		}
	}
	return false
}
