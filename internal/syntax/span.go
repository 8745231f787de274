package syntax

import sitter "github.com/smacker/go-tree-sitter"

// BytePos is a 1-based byte position. Zero is reserved for the dummy span
// carried by records that have no source location, such as synthetic
// imports.
type BytePos uint32

// Offset converts the position to a zero-based byte offset.
func (p BytePos) Offset() uint32 {
	if p == 0 {
		return 0
	}
	return uint32(p) - 1
}

// Span is an end-exclusive range of positions.
type Span struct {
	Lo BytePos
	Hi BytePos
}

// DummySpan is the span of records with no source location.
var DummySpan = Span{}

// SpanOf returns the span covering a node.
func SpanOf(n *sitter.Node) Span {
	return Span{
		Lo: BytePos(n.StartByte()) + 1,
		Hi: BytePos(n.EndByte()) + 1,
	}
}

// IsDummy reports whether the span has no source location.
func (s Span) IsDummy() bool {
	return s.Lo == 0 && s.Hi == 0
}
