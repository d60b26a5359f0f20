package core

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

const diffContext = 3

// Diff is the display payload of a finished job.
type Diff struct {
	Unified    string
	Refactored string
}

// Empty reports whether the tool changed nothing.
func (d Diff) Empty() bool { return d.Unified == "" }

// BuildDiff renders a unified diff between original and refactored text.
// Identical inputs give an empty diff, not an error.
func BuildDiff(original, refactored, filename string) (Diff, error) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(original),
		B:        difflib.SplitLines(refactored),
		FromFile: "a/" + filename,
		ToFile:   "b/" + filename + " (refactored)",
		Context:  diffContext,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return Diff{}, fmt.Errorf("diff %s: %w", filename, err)
	}
	return Diff{Unified: text, Refactored: refactored}, nil
}
