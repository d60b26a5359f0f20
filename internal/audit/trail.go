package audit

import (
	"context"

	"github.com/sota-6741/gemini-auto-refactor/internal/core"
	"github.com/sota-6741/gemini-auto-refactor/internal/storage"
	"github.com/sota-6741/gemini-auto-refactor/pkg/utils"
)

// Trail records each finished job as a result file plus a ledger block.
type Trail struct {
	Storage *storage.ResultStorage
	Ledger  *Ledger
}

func NewTrail(rs *storage.ResultStorage, ledger *Ledger) *Trail {
	return &Trail{Storage: rs, Ledger: ledger}
}

// Record implements core.Recorder.
func (t *Trail) Record(_ context.Context, out core.Outcome) error {
	entry := Entry{
		SessionID:  string(out.SessionID),
		File:       out.Filename,
		Outcome:    OutcomeRefactored,
		SourceHash: out.ContentHash,
	}
	body := out.Refactored
	if !out.Succeeded {
		entry.Outcome = OutcomeFailed
		body = out.Error
	}

	if t.Storage != nil {
		path, err := t.Storage.SaveResult(entry.SessionID, out.Filename, out.Succeeded, body)
		if err != nil {
			return err
		}
		entry.ResultPath = path
		// hash what actually landed on disk
		if h, err := utils.HashFile(path); err == nil {
			entry.ResultHash = h
		}
	} else {
		entry.ResultHash = utils.HashString(body)
	}

	if t.Ledger == nil {
		return nil
	}
	_, err := t.Ledger.Append(entry)
	return err
}
