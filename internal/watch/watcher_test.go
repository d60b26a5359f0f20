package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetector(t *testing.T, root string) *Detector {
	t.Helper()
	logger, _ := test.NewNullLogger()
	d, err := New(root, Options{
		Extensions: []string{"py"},
		Exclude:    []string{"agent_server.py"},
		IgnoreDirs: DefaultIgnoreDirs(),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// next waits for a change or fails after a timeout.
func next(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "change stream closed")
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
		return Change{}
	}
}

func TestDetector_When_ManagedFileWritten_ReportsChange(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	root := t.TempDir()
	d := newDetector(t, root)
	changes := d.Changes(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(root, "x.py"), []byte("x = 1\n"), 0o644))

	c := next(t, changes)
	assert.Equal(t, "x.py", c.Name())
	assert.Equal(t, filepath.Join(d.Root(), "x.py"), c.Path)
}

func TestDetector_When_IrrelevantFilesWritten_StaysQuiet(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	root := t.TempDir()
	d := newDetector(t, root)
	changes := d.Changes(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(root, "agent_server.py"), []byte("pass\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden.py"), []byte("pass\n"), 0o644))
	// a sentinel proves the earlier writes were processed and dropped
	require.NoError(t, os.WriteFile(filepath.Join(root, "sentinel.py"), []byte("pass\n"), 0o644))

	assert.Equal(t, "sentinel.py", next(t, changes).Name())
}

func TestDetector_When_SubdirectoryCreated_WatchesIt(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	root := t.TempDir()
	d := newDetector(t, root)
	changes := d.Changes(ctx)

	sub := filepath.Join(root, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// the new directory is registered asynchronously; rewrite until seen
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-changes:
			assert.Equal(t, filepath.Join(d.Root(), "pkg", "mod.py"), c.Path)
			return
		case <-tick.C:
			require.NoError(t, os.WriteFile(filepath.Join(sub, "mod.py"), []byte("pass\n"), 0o644))
		case <-deadline:
			t.Fatal("change in new subdirectory not reported")
		}
	}
}

func TestDetector_Changes_ClosesWhenContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	d := newDetector(t, t.TempDir())
	changes := d.Changes(ctx)
	cancel()

	select {
	case _, ok := <-changes:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed")
	}
}

func TestDetector_Relevant(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	d := newDetector(t, root)
	abs := d.Root()

	cases := map[string]bool{
		filepath.Join(abs, "x.py"):                       true,
		filepath.Join(abs, "pkg", "X.PY"):                true,
		filepath.Join(abs, "agent_server.py"):            false,
		filepath.Join(abs, "readme.md"):                  false,
		filepath.Join(abs, ".x.py"):                      false,
		filepath.Join(abs, "__pycache__", "x.py"):        false,
		filepath.Join(abs, "a", ".git", "hooks", "h.py"): false,
		filepath.Join(filepath.Dir(abs), "outside.py"):   false,
	}
	for path, want := range cases {
		assert.Equal(t, want, d.Relevant(path), path)
	}
}

func TestNew_When_RootMissing_ReturnsErrRootInaccessible(t *testing.T) {
	t.Parallel()

	_, err := New(filepath.Join(t.TempDir(), "missing"), Options{}, nil)
	require.ErrorIs(t, err, ErrRootInaccessible)

	file := filepath.Join(t.TempDir(), "file.py")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, Options{}, nil)
	require.ErrorIs(t, err, ErrRootInaccessible)
}
