//go:build unix

package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sota-6741/gemini-auto-refactor/internal/broadcast"
	"github.com/sota-6741/gemini-auto-refactor/internal/watch"
)

func TestPipeline_EndToEnd_SaveProducesDiffEvent(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	det, err := watch.New(root, watch.Options{
		Extensions: []string{".py"},
		Exclude:    []string{"agent_server.py"},
		IgnoreDirs: watch.DefaultIgnoreDirs(),
	}, quietLogger())
	require.NoError(t, err)
	defer det.Close()

	tool := shTool(t, stripPrompt+" | sed 's/x = 1/x = 2/'", 5*time.Second)
	events := newEventLog()
	p := NewPipeline(ctx, tool, events,
		WithLogger(quietLogger()),
		WithDebounce(50*time.Millisecond),
		WithToolName(tool.Name()))

	done := make(chan error, 1)
	go func() { done <- p.Consume(ctx, det.Changes(ctx)) }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "agent_server.py"), []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "x.py"), []byte("x = 1\n"), 0o644))

	terminal := events.waitTerminal(t, "x.py")
	assert.Equal(t, broadcast.KindDiff, terminal.Type)
	assert.Contains(t, terminal.Diff, "-x = 1")
	assert.Contains(t, terminal.Diff, "+x = 2")
	assert.Equal(t, "x = 2\n", terminal.RefactoredCode)

	started := events.forFile("x.py")[0]
	assert.Equal(t, broadcast.StageStarted, started.Stage)
	assert.Empty(t, events.forFile("agent_server.py"))

	cancel()
	require.NoError(t, <-done)
	p.Wait()
}
