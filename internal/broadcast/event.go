// Package broadcast fans job lifecycle events out to live observers.
package broadcast

import "encoding/json"

// Kind is the wire "type" of an event.
type Kind string

const (
	KindStatus Kind = "status"
	KindError  Kind = "error"
	KindDiff   Kind = "diff"
)

// Status stages. A job publishes started, then optionally running and
// diffing, then one terminal error or diff event.
const (
	StageStarted = "started"
	StageRunning = "running"
	StageDiffing = "diffing"
)

// Event describes one job lifecycle transition.
type Event struct {
	ID             string `json:"id"`
	Filename       string `json:"filename"`
	Type           Kind   `json:"type"`
	Message        string `json:"message,omitempty"`
	Stage          string `json:"stage,omitempty"`
	Error          string `json:"error,omitempty"`
	Diff           string `json:"diff,omitempty"`
	RefactoredCode string `json:"refactored_code,omitempty"`
}

func Status(id, filename, stage, message string) Event {
	return Event{ID: id, Filename: filename, Type: KindStatus, Stage: stage, Message: message}
}

func Failure(id, filename, errText string) Event {
	return Event{ID: id, Filename: filename, Type: KindError, Error: errText}
}

func DiffResult(id, filename, diff, refactored string) Event {
	return Event{ID: id, Filename: filename, Type: KindDiff, Diff: diff, RefactoredCode: refactored}
}

// Terminal reports whether the event ends a job.
func (e Event) Terminal() bool {
	return e.Type == KindError || e.Type == KindDiff
}

// MarshalJSON emits only the fields that belong to the event's kind. A diff
// event always carries diff and refactored_code, even when empty.
func (e Event) MarshalJSON() ([]byte, error) {
	payload := map[string]any{
		"id":       e.ID,
		"filename": e.Filename,
		"type":     e.Type,
	}
	switch e.Type {
	case KindStatus:
		payload["message"] = e.Message
		if e.Stage != "" {
			payload["stage"] = e.Stage
		}
	case KindError:
		payload["error"] = e.Error
	case KindDiff:
		payload["diff"] = e.Diff
		payload["refactored_code"] = e.RefactoredCode
	}
	return json.Marshal(payload)
}
