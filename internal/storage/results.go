package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ResultStorage keeps one file per finished job: the refactored code on
// success, the error detail on failure. Source files are never touched.
type ResultStorage struct {
	BaseDir string

	mu  sync.Mutex
	seq int
	now func() time.Time
}

// NewResultStorage creates a storage handler rooted at baseDir.
func NewResultStorage(baseDir string) *ResultStorage {
	return &ResultStorage{BaseDir: baseDir, now: time.Now}
}

// SaveResult writes body for one job and returns the file path.
func (rs *ResultStorage) SaveResult(sessionID, filename string, succeeded bool, body string) (string, error) {
	if err := os.MkdirAll(rs.BaseDir, 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure %s: %w", rs.BaseDir, err)
	}

	rs.mu.Lock()
	rs.seq++
	seq := rs.seq
	rs.mu.Unlock()

	ext := ".out"
	if !succeeded {
		ext = ".err"
	}
	timestamp := rs.now().Format("20060102_150405")
	name := fmt.Sprintf("%s_%s_%s_%03d%s", sanitize(sessionID), sanitize(filename), timestamp, seq, ext)
	path := filepath.Join(rs.BaseDir, name)

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", name, err)
	}
	return path, nil
}

// sanitize keeps result file names portable.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == '.':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
