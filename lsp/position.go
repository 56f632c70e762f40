// Copyright © 2024 The rapidls authors

package lsp

import (
	"github.com/rapidls/rapidls/position"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// toLSPPosition converts a 0-based position to an LSP position.
func toLSPPosition(p position.Position) protocol.Position {
	return protocol.Position{
		Line:      safeUint(p.Line),
		Character: safeUint(p.Character),
	}
}

// toLSPRange converts a range to an LSP range.
func toLSPRange(r position.Range) protocol.Range {
	return protocol.Range{Start: toLSPPosition(r.Start), End: toLSPPosition(r.End)}
}

// safeUint converts a non-negative int to protocol.UInteger, clamping
// negative values to zero.
func safeUint(n int) protocol.UInteger {
	if n < 0 {
		return 0
	}
	return protocol.UInteger(n) // #nosec G115 -- positions never exceed the document size
}
