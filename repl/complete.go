// Copyright © 2024 The rapidls authors

package repl

import (
	"sort"
	"strings"
)

// keywords are the RAPID reserved words offered for completion.
var keywords = []string{
	"ALIAS", "AND", "BACKWARD", "CASE", "CONNECT", "CONST", "DEFAULT",
	"DIV", "DO", "ELSE", "ELSEIF", "ENDFOR", "ENDFUNC", "ENDIF",
	"ENDMODULE", "ENDPROC", "ENDRECORD", "ENDTEST", "ENDTRAP", "ENDWHILE",
	"ERROR", "EXIT", "FALSE", "FOR", "FROM", "FUNC", "GOTO", "IF",
	"INOUT", "LOCAL", "MOD", "MODULE", "NOSTEPIN", "NOT", "NOVIEW", "OR",
	"PERS", "PROC", "RAISE", "READONLY", "RECORD", "RETRY", "RETURN",
	"STEP", "SYSMODULE", "TASK", "TEST", "THEN", "TO", "TRAP", "TRUE",
	"TRYNEXT", "UNDO", "VAR", "VIEWONLY", "WHILE", "WITH", "XOR",
}

// dataTypes are common built-in data types, conventionally lower case.
var dataTypes = []string{
	"bool", "byte", "clock", "confdata", "dnum", "errnum", "intnum",
	"jointtarget", "loaddata", "num", "orient", "pos", "pose",
	"robjoint", "robtarget", "speeddata", "string", "tooldata",
	"wobjdata", "zonedata",
}

// commands are the shell commands, completed at the start of a line.
var commands = []string{":check", ":help", ":load", ":quit", ":reset", ":show"}

// keywordCompleter implements readline.AutoCompleter over RAPID keywords,
// built-in data types, and shell commands.
type keywordCompleter struct{}

func (keywordCompleter) Do(line []rune, pos int) ([][]rune, int) {
	// Extract the word being typed (backwards from cursor to a separator).
	start := pos
	for start > 0 {
		ch := line[start-1]
		if ch == ' ' || ch == '\t' || ch == '(' || ch == ',' || ch == ';' || ch == '\n' {
			break
		}
		start--
	}
	prefix := string(line[start:pos])
	if prefix == "" {
		return nil, 0
	}

	candidates := collectWords(prefix, strings.TrimSpace(string(line[:start])) == "")
	if len(candidates) == 0 {
		return nil, 0
	}

	// Build completions: each entry is the suffix to append.
	result := make([][]rune, 0, len(candidates))
	for _, w := range candidates {
		result = append(result, []rune(w[len(prefix):]))
	}
	return result, len([]rune(prefix))
}

// collectWords returns the words completing prefix. RAPID is case
// insensitive, so keywords are matched regardless of case and returned in
// the case of the prefix.
func collectWords(prefix string, lineStart bool) []string {
	var result []string
	if strings.HasPrefix(prefix, ":") {
		if !lineStart {
			return nil
		}
		for _, c := range commands {
			if strings.HasPrefix(c, prefix) {
				result = append(result, c)
			}
		}
		return result
	}

	lower := strings.ToLower(prefix) == prefix
	upper := strings.ToUpper(prefix)
	for _, k := range keywords {
		if strings.HasPrefix(k, upper) {
			if lower {
				k = strings.ToLower(k)
			}
			result = append(result, prefix+k[len(prefix):])
		}
	}
	lowerPrefix := strings.ToLower(prefix)
	for _, t := range dataTypes {
		if strings.HasPrefix(t, lowerPrefix) {
			result = append(result, prefix+t[len(prefix):])
		}
	}
	sort.Strings(result)
	return result
}
