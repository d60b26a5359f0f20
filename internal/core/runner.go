package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/sota-6741/gemini-auto-refactor/internal/broadcast"
	"github.com/sota-6741/gemini-auto-refactor/pkg/utils"
)

// process runs one job for path: snapshot, tool run, diff, broadcast, record.
// Every path out of here publishes exactly one terminal event.
func (p *Pipeline) process(ctx context.Context, path string) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
	}

	filename := filepath.Base(path)
	job := newJob(path, filename, p.sessions.SessionFor(path), p.clock())
	log := p.log.WithFields(logrus.Fields{"session": job.SessionID, "file": filename})

	p.files.setActive(path, true, job.CreatedAt)
	defer p.files.setActive(path, false, job.CreatedAt)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("job panicked: %v", r)
			if job.State != JobSucceeded && job.State != JobFailed {
				p.fail(ctx, job, log, fmt.Errorf("internal error: %v", r))
			}
		}
	}()

	p.publish(broadcast.Status(string(job.SessionID), filename, broadcast.StageStarted,
		fmt.Sprintf("Change detected: '%s'. Starting refactor...", filename)))

	content, err := os.ReadFile(path)
	if err != nil {
		p.fail(ctx, job, log, fmt.Errorf("read %s: %w", filename, err))
		return
	}
	job.Original = content
	job.State = JobRunning

	p.publish(broadcast.Status(string(job.SessionID), filename, broadcast.StageRunning,
		fmt.Sprintf("Requesting refactor from %s...", p.toolName)))

	refactored, err := p.runner.Run(ctx, path, content)
	if err != nil {
		p.fail(ctx, job, log, err)
		return
	}

	p.publish(broadcast.Status(string(job.SessionID), filename, broadcast.StageDiffing, "Generating diff..."))

	d, err := BuildDiff(string(content), refactored, filename)
	if err != nil {
		p.fail(ctx, job, log, fmt.Errorf("internal error: %w", err))
		return
	}
	job.State = JobSucceeded
	job.Refactored = refactored

	p.publish(broadcast.DiffResult(string(job.SessionID), filename, d.Unified, d.Refactored))
	hash := utils.HashBytes(content)
	p.files.recordSuccess(path, hash)

	if d.Empty() {
		log.Info("refactor finished with no changes")
	} else {
		log.Info("refactor diff published")
	}
	p.record(ctx, log, Outcome{
		SessionID:   job.SessionID,
		Path:        path,
		Filename:    filename,
		Succeeded:   true,
		Refactored:  refactored,
		Diff:        d.Unified,
		ContentHash: hash,
		CreatedAt:   job.CreatedAt,
		FinishedAt:  p.clock(),
	})
}

func (p *Pipeline) fail(ctx context.Context, job *Job, log logrus.FieldLogger, err error) {
	job.State = JobFailed
	job.Err = err
	p.publish(broadcast.Failure(string(job.SessionID), job.Filename, err.Error()))

	var runErr *RunError
	switch {
	case errors.As(err, &runErr) && runErr.TimedOut:
		log.WithError(err).Warn("refactor tool timed out")
	case errors.Is(err, context.Canceled):
		log.WithError(err).Info("refactor cancelled")
	default:
		log.WithError(err).Error("refactor failed")
	}

	out := Outcome{
		SessionID:  job.SessionID,
		Path:       job.Path,
		Filename:   job.Filename,
		Error:      err.Error(),
		CreatedAt:  job.CreatedAt,
		FinishedAt: p.clock(),
	}
	if job.Original != nil {
		out.ContentHash = utils.HashBytes(job.Original)
	}
	p.record(ctx, log, out)
}

func (p *Pipeline) publish(evt broadcast.Event) {
	if p.publisher != nil {
		p.publisher.Publish(evt)
	}
}

// record hands the outcome to every recorder. Recorder failures never affect
// the job; they are logged and the next recorder runs.
func (p *Pipeline) record(ctx context.Context, log logrus.FieldLogger, out Outcome) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	for _, r := range p.recorders {
		if err := r.Record(ctx, out); err != nil {
			log.WithError(err).Warn("cannot record job outcome")
		}
	}
}
