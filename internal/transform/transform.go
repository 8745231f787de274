// Package transform finds macro imports and the call sites that invoke
// them, producing byte ranges for a later text-substitution step.
package transform

import (
	"github.com/jward/macroscan/internal/syntax"
)

// Filter decides whether an import without a type assertion is a macro.
// name is "default" for default imports, "*" for namespace imports and the
// imported name otherwise.
type Filter func(name, source string) bool

// Replace locates a macro call expression. Offsets are zero-based and
// end-exclusive.
type Replace struct {
	Lo         uint32 `json:"lo"`
	Hi         uint32 `json:"hi"`
	ImportSrc  string `json:"import_src"`
	ImportName string `json:"import_name"`
}

// Removal locates an import declaration to delete.
type Removal struct {
	Lo uint32 `json:"lo"`
	Hi uint32 `json:"hi"`
}

// Output is the result of analysing one module.
type Output struct {
	Replaces []Replace `json:"replaces"`
	Removals []Removal `json:"removals"`
}

// NewOutput returns an Output whose lists encode as empty arrays.
func NewOutput(replaces []Replace, removals []Removal) *Output {
	if replaces == nil {
		replaces = []Replace{}
	}
	if removals == nil {
		removals = []Removal{}
	}
	return &Output{Replaces: replaces, Removals: removals}
}

func removalOf(s syntax.Span) Removal {
	return Removal{Lo: s.Lo.Offset(), Hi: s.Hi.Offset()}
}
