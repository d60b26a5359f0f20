package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDiff_When_Identical_ReturnsEmptyDiff(t *testing.T) {
	t.Parallel()

	code := "def f():\n    return 1\n"
	d, err := BuildDiff(code, code, "f.py")

	require.NoError(t, err)
	assert.True(t, d.Empty())
	assert.Equal(t, code, d.Refactored)
}

func TestBuildDiff_When_Changed_RendersUnifiedHunk(t *testing.T) {
	t.Parallel()

	original := "a = 1\nb = 2\nc = 3\n"
	refactored := "a = 1\nb = 20\nc = 3\n"
	d, err := BuildDiff(original, refactored, "vals.py")

	require.NoError(t, err)
	assert.False(t, d.Empty())
	assert.True(t, strings.HasPrefix(d.Unified, "--- a/vals.py\n+++ b/vals.py (refactored)\n"), d.Unified)
	assert.Contains(t, d.Unified, "@@")
	assert.Contains(t, d.Unified, "-b = 2\n")
	assert.Contains(t, d.Unified, "+b = 20\n")
	assert.Equal(t, refactored, d.Refactored)
}

func TestBuildDiff_When_OutputKeepsPromptResidue_DiffsRawText(t *testing.T) {
	t.Parallel()

	original := "x = 1\n"
	refactored := "Here is the refactored code:\nx = 1\n"
	d, err := BuildDiff(original, refactored, "x.py")

	require.NoError(t, err)
	assert.Contains(t, d.Unified, "+Here is the refactored code:\n")
}
