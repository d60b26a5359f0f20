package core

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/sota-6741/gemini-auto-refactor/internal/broadcast"
	"github.com/sota-6741/gemini-auto-refactor/internal/watch"
)

// RefactorRunner transforms one file snapshot.
type RefactorRunner interface {
	Run(ctx context.Context, path string, content []byte) (string, error)
}

// Publisher receives job lifecycle events.
type Publisher interface {
	Publish(evt broadcast.Event)
}

// Recorder persists finished jobs. Recorders are best effort: an error is
// logged and never fails the job.
type Recorder interface {
	Record(ctx context.Context, out Outcome) error
}

// Pipeline ties together Scheduler + RefactorRunner + DiffBuilder + Publisher.
type Pipeline struct {
	runner    RefactorRunner
	publisher Publisher
	recorders []Recorder
	sessions  *SessionRegistry
	files     *fileRegistry
	scheduler *Scheduler
	sem       *semaphore.Weighted
	log       logrus.FieldLogger
	toolName  string
	clock     func() time.Time
	window    time.Duration
	maxJobs   int64
}

// Option customizes pipeline construction.
type Option func(*Pipeline)

// WithLogger overrides the standard logrus logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithRecorders appends recorders that receive every finished job.
func WithRecorders(rs ...Recorder) Option {
	return func(p *Pipeline) {
		for _, r := range rs {
			if r != nil {
				p.recorders = append(p.recorders, r)
			}
		}
	}
}

// WithDebounce sets the quiet period before a queued job starts.
func WithDebounce(window time.Duration) Option {
	return func(p *Pipeline) {
		if window >= 0 {
			p.window = window
		}
	}
}

// WithMaxConcurrentJobs bounds tool invocations across all files. Zero
// leaves it unbounded.
func WithMaxConcurrentJobs(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxJobs = int64(n)
		}
	}
}

// WithToolName sets the name shown in "requesting refactor" messages.
func WithToolName(name string) Option {
	return func(p *Pipeline) {
		if name != "" {
			p.toolName = name
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewPipeline wires a pipeline. Jobs run until ctx is cancelled.
func NewPipeline(ctx context.Context, runner RefactorRunner, publisher Publisher, opts ...Option) *Pipeline {
	p := &Pipeline{
		runner:    runner,
		publisher: publisher,
		sessions:  NewSessionRegistry(),
		files:     newFileRegistry(),
		log:       logrus.StandardLogger(),
		toolName:  "refactor tool",
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.maxJobs > 0 {
		p.sem = semaphore.NewWeighted(p.maxJobs)
	}
	p.scheduler = NewScheduler(ctx, p.window, p.process)
	return p
}

// Notify schedules a job for path.
func (p *Pipeline) Notify(path string) {
	p.files.register(path)
	p.scheduler.Notify(path)
}

// Consume feeds detector notifications into the scheduler until the channel
// closes or ctx is done.
func (p *Pipeline) Consume(ctx context.Context, changes <-chan watch.Change) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ch, ok := <-changes:
			if !ok {
				return nil
			}
			p.log.WithField("file", ch.Name()).Info("change detected")
			p.Notify(ch.Path)
		}
	}
}

// Wait blocks until every running job has published its terminal event.
func (p *Pipeline) Wait() {
	p.scheduler.Wait()
}

// SessionFor exposes the session registry.
func (p *Pipeline) SessionFor(path string) SessionID {
	return p.sessions.SessionFor(path)
}

// SessionInfo is a read-only view of one watched file for the HTTP API.
type SessionInfo struct {
	ID       SessionID `json:"id"`
	Path     string    `json:"path"`
	State    string    `json:"state"`
	LastHash string    `json:"last_hash,omitempty"`
	LastRun  *time.Time `json:"last_run,omitempty"`
}

// Sessions lists every file that has had a job.
func (p *Pipeline) Sessions() []SessionInfo {
	paths := p.sessions.Paths()
	out := make([]SessionInfo, 0, len(paths))
	for _, path := range paths {
		id, _ := p.sessions.Lookup(path)
		info := SessionInfo{ID: id, Path: path, State: p.scheduler.State(path).String()}
		if f, ok := p.files.get(path); ok {
			info.LastHash = f.LastHash
			if !f.LastRun.IsZero() {
				last := f.LastRun
				info.LastRun = &last
			}
		}
		out = append(out, info)
	}
	return out
}
