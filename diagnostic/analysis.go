// Copyright © 2024 The rapidls authors

package diagnostic

import (
	"strings"

	"github.com/rapidls/rapidls/analysis"
)

// wholeDocumentNote is attached to diagnostics whose error carried no
// position.
const wholeDocumentNote = "the parser reported no position; the whole document is marked"

// FromAnalysis converts the analysis diagnostics of file, whose content is
// text, into renderable diagnostics. Columns are 1-based and counted in
// runes.
func FromAnalysis(file, text string, diags []analysis.Diagnostic) []Diagnostic {
	if len(diags) == 0 {
		return nil
	}
	lines := strings.Split(text, "\n")
	out := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, fromAnalysis(file, lines, d))
	}
	return out
}

func fromAnalysis(file string, lines []string, d analysis.Diagnostic) Diagnostic {
	lineText := func(n int) string {
		if n < 0 || n >= len(lines) {
			return ""
		}
		return lines[n]
	}

	start, end := d.Range.Start, d.Range.End
	span := Span{
		File: file,
		Line: start.Line + 1,
		Col:  runeColumn(lineText(start.Line), start.Character) + 1,
	}
	switch {
	case end.Line > start.Line:
		span.EndLine = end.Line + 1
		span.EndCol = runeColumn(lineText(end.Line), end.Character)
	case end.Character > start.Character:
		// The range end is exclusive; the span end column is inclusive.
		span.EndCol = runeColumn(lineText(end.Line), end.Character)
	default:
		span.EndCol = span.Col
	}

	out := Diagnostic{
		Severity: severityOf(d.Severity),
		Source:   d.Source,
		Message:  d.Message,
		Spans:    []Span{span},
	}
	if d.WholeDocument {
		out.Notes = append(out.Notes, wholeDocumentNote)
	}
	return out
}

// runeColumn converts a UTF-16 character offset within line to a rune
// count.
func runeColumn(line string, character int) int {
	units, runes := 0, 0
	for _, r := range line {
		if units >= character {
			break
		}
		units++
		if r >= 0x10000 {
			units++
		}
		runes++
	}
	return runes
}

func severityOf(s analysis.Severity) Severity {
	switch s {
	case analysis.SeverityWarning:
		return SeverityWarning
	case analysis.SeverityInformation, analysis.SeverityHint:
		return SeverityNote
	default:
		return SeverityError
	}
}
