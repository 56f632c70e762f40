// Copyright © 2024 The rapidls authors

// Package position maps flat character offsets reported by the RAPID parser
// to line/character positions and back.
//
// Lines are split on '\n'. A '\r' preceding the newline stays at the end of
// its line. Output characters are counted in UTF-16 code units, which is the
// default position encoding of the Language Server Protocol.
package position

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Encoding is the unit in which input offsets are expressed.
type Encoding int

const (
	// UTF8 offsets count bytes. The RAPID parser reports byte offsets.
	UTF8 Encoding = iota
	// UTF16 offsets count UTF-16 code units, as editors built on
	// JavaScript strings do.
	UTF16
)

func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf-8"
	case UTF16:
		return "utf-16"
	default:
		return "unknown"
	}
}

// ParseEncoding parses an encoding name as accepted in configuration files.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-8", "utf8", "byte", "bytes":
		return UTF8, nil
	case "utf-16", "utf16":
		return UTF16, nil
	default:
		return UTF8, fmt.Errorf("unknown offset encoding: %q", s)
	}
}

// Position is a 0-based line and character. Character counts UTF-16 code
// units from the start of the line.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Before reports whether p sorts strictly before q.
func (p Position) Before(q Position) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Character < q.Character
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Mapper converts between offsets and positions for one text.
type Mapper struct {
	text string
	enc  Encoding

	// lineStarts[i] is the byte offset at which line i begins.
	lineStarts []int
	// unitStarts[i] is the UTF-16 offset of line i; only for UTF16.
	unitStarts []int
	length     int
}

// NewMapper scans text once and returns a mapper for offsets in enc units.
func NewMapper(text string, enc Encoding) *Mapper {
	m := &Mapper{
		text:       text,
		enc:        enc,
		lineStarts: []int{0},
	}
	units := 0
	if enc == UTF16 {
		m.unitStarts = []int{0}
	}
	for i, r := range text {
		if enc == UTF16 {
			units += runeUnits(r)
		}
		if r == '\n' {
			m.lineStarts = append(m.lineStarts, i+1)
			if enc == UTF16 {
				m.unitStarts = append(m.unitStarts, units)
			}
		}
	}
	if enc == UTF16 {
		m.length = units
	} else {
		m.length = len(text)
	}
	return m
}

// Len returns the length of the text in input units.
func (m *Mapper) Len() int {
	return m.length
}

// LineCount returns the number of lines, counting a trailing empty line.
func (m *Mapper) LineCount() int {
	return len(m.lineStarts)
}

// End returns the position just past the last character.
func (m *Mapper) End() Position {
	return m.Position(m.length)
}

// Position maps an offset to a position. Offsets are clamped to [0, Len()].
// An offset that falls inside a multi-unit character snaps back to the start
// of that character.
func (m *Mapper) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > m.length {
		offset = m.length
	}
	if m.enc == UTF16 {
		line := searchLine(m.unitStarts, offset)
		start := m.lineStarts[line]
		want := offset - m.unitStarts[line]
		char := 0
		for _, r := range m.text[start:lineEnd(m.text, start)] {
			n := runeUnits(r)
			if char+n > want {
				break
			}
			char += n
		}
		return Position{Line: line, Character: char}
	}
	for offset > 0 && offset < len(m.text) && !utf8.RuneStart(m.text[offset]) {
		offset--
	}
	line := searchLine(m.lineStarts, offset)
	return Position{
		Line:      line,
		Character: utf16Len(m.text[m.lineStarts[line]:offset]),
	}
}

// Offset maps a position back to an offset in input units. The line is
// clamped to the text and the character is clamped to the line length.
func (m *Mapper) Offset(p Position) int {
	line := p.Line
	if line < 0 {
		return 0
	}
	if line >= len(m.lineStarts) {
		return m.length
	}
	start := m.lineStarts[line]
	end := lineEnd(m.text, start)
	char := 0
	pos := start
	for pos < end && char < p.Character {
		r, size := utf8.DecodeRuneInString(m.text[pos:end])
		n := runeUnits(r)
		if char+n > p.Character {
			break
		}
		char += n
		pos += size
	}
	if m.enc == UTF16 {
		return m.unitStarts[line] + char
	}
	return pos
}

// Range maps an offset pair to a range. A reversed pair is swapped so the
// range start never follows its end.
func (m *Mapper) Range(start, end int) Range {
	if end < start {
		start, end = end, start
	}
	return Range{Start: m.Position(start), End: m.Position(end)}
}

// searchLine returns the index of the last line whose start is <= offset.
func searchLine(starts []int, offset int) int {
	return sort.Search(len(starts), func(i int) bool { return starts[i] > offset }) - 1
}

// lineEnd returns the byte offset of the newline ending the line that
// begins at start, or len(text) for the last line.
func lineEnd(text string, start int) int {
	if i := strings.IndexByte(text[start:], '\n'); i >= 0 {
		return start + i
	}
	return len(text)
}

func runeUnits(r rune) int {
	if r >= 0x10000 && r <= utf8.MaxRune {
		return 2
	}
	return 1
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}
