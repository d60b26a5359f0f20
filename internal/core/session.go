package core

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// SessionID ties together all successive jobs for one watched file so the UI
// can update a single row in place.
type SessionID string

// SessionRegistry assigns one SessionID per path for the process lifetime.
// Ids are never expired or recycled.
type SessionRegistry struct {
	mu     sync.RWMutex
	byPath map[string]SessionID
	used   map[SessionID]struct{}
	newID  func(path string) SessionID
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byPath: make(map[string]SessionID),
		used:   make(map[SessionID]struct{}),
		newID:  newSessionID,
	}
}

// SessionFor returns the existing id for path, allocating one on first use.
func (r *SessionRegistry) SessionFor(path string) SessionID {
	r.mu.RLock()
	id, ok := r.byPath[path]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byPath[path]; ok {
		return id
	}
	// ids carry a short uuid suffix; same-named files in different
	// directories must still never share one
	for {
		id = r.newID(path)
		if _, taken := r.used[id]; !taken {
			break
		}
	}
	r.byPath[path] = id
	r.used[id] = struct{}{}
	return id
}

// Lookup reports the id for path without allocating.
func (r *SessionRegistry) Lookup(path string) (SessionID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPath[path]
	return id, ok
}

// Paths lists every path that has a session, sorted.
func (r *SessionRegistry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.byPath))
	for p := range r.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func newSessionID(path string) SessionID {
	return SessionID(fmt.Sprintf("task-%s-%s", filepath.Base(path), uuid.NewString()[:8]))
}
