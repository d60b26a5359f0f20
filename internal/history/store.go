// Package history keeps a queryable log of finished refactor jobs in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sota-6741/gemini-auto-refactor/internal/core"
)

const defaultLimit = 50

// Job is one row of the history table.
type Job struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Path        string    `json:"path"`
	Filename    string    `json:"filename"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	DiffLines   int       `json:"diff_lines"`
	CreatedAt   time.Time `json:"created_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Store is a SQLite-backed job history.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: ensure dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		path TEXT NOT NULL,
		filename TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		content_hash TEXT,
		diff_lines INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_session ON jobs(session_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_finished ON jobs(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record implements core.Recorder.
func (s *Store) Record(ctx context.Context, out core.Outcome) error {
	status := string(core.JobSucceeded)
	if !out.Succeeded {
		status = string(core.JobFailed)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (session_id, path, filename, status, error, content_hash, diff_lines, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(out.SessionID), out.Path, out.Filename, status, out.Error, out.ContentHash,
		countChangedLines(out.Diff),
		out.CreatedAt.UTC().Format(time.RFC3339Nano),
		out.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: insert job: %w", err)
	}
	return nil
}

// Recent returns the newest jobs first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, path, filename, status, COALESCE(error, ''), COALESCE(content_hash, ''),
		       diff_lines, created_at, finished_at
		FROM jobs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var created, finished string
		if err := rows.Scan(&j.ID, &j.SessionID, &j.Path, &j.Filename, &j.Status, &j.Error,
			&j.ContentHash, &j.DiffLines, &created, &finished); err != nil {
			return nil, fmt.Errorf("history: scan job: %w", err)
		}
		j.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		j.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// countChangedLines counts +/- lines of a unified diff, skipping headers.
func countChangedLines(diff string) int {
	n := 0
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			continue
		}
		if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") {
			n++
		}
	}
	return n
}
