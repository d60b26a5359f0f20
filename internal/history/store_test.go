package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sota-6741/gemini-auto-refactor/internal/core"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, core.Outcome{
		SessionID: "task-a-1", Path: "/src/a.py", Filename: "a.py", Succeeded: true,
		Diff:        "--- a/a.py\n+++ b/a.py (refactored)\n@@ -1 +1 @@\n-a = 1\n+a = 2\n",
		ContentHash: "abc", CreatedAt: start, FinishedAt: start.Add(time.Second),
	}))
	require.NoError(t, s.Record(ctx, core.Outcome{
		SessionID: "task-b-2", Path: "/src/b.py", Filename: "b.py",
		Error: "refactor tool timed out after 2m0s", CreatedAt: start, FinishedAt: start.Add(2 * time.Second),
	}))

	jobs, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "b.py", jobs[0].Filename)
	assert.Equal(t, string(core.JobFailed), jobs[0].Status)
	assert.Equal(t, "refactor tool timed out after 2m0s", jobs[0].Error)

	assert.Equal(t, "a.py", jobs[1].Filename)
	assert.Equal(t, string(core.JobSucceeded), jobs[1].Status)
	assert.Equal(t, 2, jobs[1].DiffLines)
	assert.Equal(t, "abc", jobs[1].ContentHash)
	assert.True(t, start.Equal(jobs[1].CreatedAt))

	limited, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCountChangedLines(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, countChangedLines(""))
	assert.Equal(t, 3, countChangedLines("--- a/x\n+++ b/x\n@@ -1,2 +1,1 @@\n-a\n-b\n+c\n d\n"))
}

func TestStore_Close_NilSafe(t *testing.T) {
	t.Parallel()

	var s *Store
	assert.NoError(t, s.Close())
}
