// Package watch turns fsnotify events under a directory tree into change
// notifications for managed source files.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ErrRootInaccessible is fatal: the watch root cannot be used.
var ErrRootInaccessible = errors.New("watch root inaccessible")

// Change is one relevant modification of a managed file.
type Change struct {
	Path string
	Op   fsnotify.Op
}

// Name is the file's base name.
func (c Change) Name() string { return filepath.Base(c.Path) }

// Options filters what the detector reports.
type Options struct {
	// Extensions of managed files, e.g. ".py".
	Extensions []string
	// Exclude lists base names that never trigger; the agent's own source
	// file belongs here so its output cannot retrigger itself.
	Exclude []string
	// IgnoreDirs are directory names skipped anywhere in the tree.
	IgnoreDirs []string
}

// Detector watches a directory tree recursively.
type Detector struct {
	root       string
	fsw        *fsnotify.Watcher
	exts       map[string]struct{}
	exclude    map[string]struct{}
	ignoreDirs map[string]struct{}
	log        logrus.FieldLogger

	once sync.Once
	out  chan Change
}

// New validates root and registers every directory below it.
func New(root string, opts Options, log logrus.FieldLogger) (*Detector, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootInaccessible, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootInaccessible, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootInaccessible, abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	d := &Detector{
		root:       abs,
		fsw:        fsw,
		exts:       toSet(opts.Extensions, normalizeExt),
		exclude:    toSet(opts.Exclude, nil),
		ignoreDirs: toSet(opts.IgnoreDirs, nil),
		log:        log,
		out:        make(chan Change, 64),
	}
	if err := d.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("%w: %v", ErrRootInaccessible, err)
	}
	return d, nil
}

// Root is the absolute watch root.
func (d *Detector) Root() string { return d.root }

// Changes starts the watch loop on first call and returns its stream. The
// stream closes when ctx is done or the watcher is closed; it cannot be
// restarted.
func (d *Detector) Changes(ctx context.Context) <-chan Change {
	d.once.Do(func() { go d.loop(ctx) })
	return d.out
}

// Close stops the underlying fsnotify watcher.
func (d *Detector) Close() error {
	return d.fsw.Close()
}

func (d *Detector) loop(ctx context.Context) {
	defer close(d.out)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.fsw.Events:
			if !ok {
				return
			}
			d.handle(ctx, event)
		case err, ok := <-d.fsw.Errors:
			if !ok {
				return
			}
			d.log.WithError(err).Warn("watch error, continuing")
		}
	}
}

func (d *Detector) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := d.addTree(event.Name); err != nil {
				d.log.WithError(err).WithField("dir", event.Name).Warn("cannot watch new directory")
			}
			return
		}
	}
	if !d.Relevant(event.Name) {
		return
	}
	select {
	case d.out <- Change{Path: event.Name, Op: event.Op}:
	case <-ctx.Done():
	}
}

// Relevant reports whether a change to path should trigger a job.
func (d *Detector) Relevant(path string) bool {
	base := filepath.Base(path)
	if _, ok := d.exclude[base]; ok {
		return false
	}
	if strings.HasPrefix(base, ".") {
		return false
	}
	if len(d.exts) > 0 {
		if _, ok := d.exts[strings.ToLower(filepath.Ext(base))]; !ok {
			return false
		}
	}
	rel, err := filepath.Rel(d.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(filepath.Dir(rel), string(filepath.Separator)) {
		if _, ok := d.ignoreDirs[part]; ok {
			return false
		}
	}
	return true
}

func (d *Detector) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			d.log.WithError(err).WithField("path", path).Warn("skipping unreadable path")
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != d.root {
			if _, ok := d.ignoreDirs[entry.Name()]; ok {
				return filepath.SkipDir
			}
		}
		if err := d.fsw.Add(path); err != nil {
			if path == dir {
				return err
			}
			d.log.WithError(err).WithField("dir", path).Warn("cannot watch directory")
		}
		return nil
	})
}

// DefaultIgnoreDirs are directories never worth watching.
func DefaultIgnoreDirs() []string {
	return []string{
		".git",
		"node_modules",
		"vendor",
		"build",
		"dist",
		"__pycache__",
		".pytest_cache",
		".mypy_cache",
		".venv",
		"venv",
		".idea",
		".vscode",
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func toSet(items []string, norm func(string) string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if norm != nil {
			item = norm(item)
		}
		if item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}
