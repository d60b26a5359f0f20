package core

import (
	"sync"
	"time"
)

// JobState is the lifecycle of a single refactor attempt.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Job represents one transformation attempt for a watched file.
type Job struct {
	Path       string
	Filename   string
	SessionID  SessionID
	Original   []byte
	State      JobState
	Refactored string
	Err        error
	CreatedAt  time.Time
}

func newJob(path, filename string, id SessionID, now time.Time) *Job {
	return &Job{
		Path:      path,
		Filename:  filename,
		SessionID: id,
		State:     JobQueued,
		CreatedAt: now,
	}
}

// Outcome is what a finished job hands to recorders (result files, the audit
// ledger, job history). It is built after the terminal event was published.
type Outcome struct {
	SessionID   SessionID
	Path        string
	Filename    string
	Succeeded   bool
	Error       string
	Refactored  string
	Diff        string
	ContentHash string
	CreatedAt   time.Time
	FinishedAt  time.Time
}

// WatchedFile tracks what the pipeline knows about a file path.
type WatchedFile struct {
	Path     string
	LastHash string
	Active   bool
	LastRun  time.Time
}

// fileRegistry holds WatchedFile records for the process lifetime.
type fileRegistry struct {
	mu    sync.RWMutex
	files map[string]*WatchedFile
}

func newFileRegistry() *fileRegistry {
	return &fileRegistry{files: make(map[string]*WatchedFile)}
}

func (r *fileRegistry) register(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[path]; !ok {
		r.files[path] = &WatchedFile{Path: path}
	}
}

func (r *fileRegistry) setActive(path string, active bool, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[path]
	if !ok {
		f = &WatchedFile{Path: path}
		r.files[path] = f
	}
	f.Active = active
	if active {
		f.LastRun = now
	}
}

func (r *fileRegistry) recordSuccess(path, hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.files[path]; ok {
		f.LastHash = hash
	}
}

func (r *fileRegistry) get(path string) (WatchedFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.files[path]
	if !ok {
		return WatchedFile{}, false
	}
	return *f, true
}
