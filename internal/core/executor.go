package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultToolTimeout = 2 * time.Minute
	// killGrace bounds how long Wait keeps reading pipes after the process
	// group was killed.
	killGrace = 2 * time.Second
)

var (
	// ErrEmptyContent is returned when a file snapshot has no bytes.
	ErrEmptyContent = errors.New("file is empty, nothing to refactor")
	// ErrEmptyOutput is the cause of a RunError when the tool exits 0 but
	// prints nothing.
	ErrEmptyOutput = errors.New("refactor tool returned empty output")
)

// RunError describes a failed tool invocation.
type RunError struct {
	Command  string
	ExitCode int
	Stderr   string
	TimedOut bool
	Timeout  time.Duration
	Cause    error
}

func (e *RunError) Error() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("refactor tool timed out after %s", e.Timeout)
	case strings.TrimSpace(e.Stderr) != "":
		return strings.TrimSpace(e.Stderr)
	case e.Cause != nil:
		return e.Cause.Error()
	default:
		return fmt.Sprintf("refactor tool exited with status %d", e.ExitCode)
	}
}

func (e *RunError) Unwrap() error { return e.Cause }

// Executor runs the external refactor tool, one process per call.
type Executor struct {
	Command    []string
	PromptPath string
	Timeout    time.Duration
	log        logrus.FieldLogger
}

// NewExecutor builds an executor for the given command line. An empty
// command falls back to the gemini CLI.
func NewExecutor(command []string, promptPath string, timeout time.Duration, log logrus.FieldLogger) *Executor {
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{
		Command:    ResolveCommand(command),
		PromptPath: promptPath,
		Timeout:    timeout,
		log:        log,
	}
}

// ResolveCommand prefers the system-wide gemini binary when the configured
// command is the bare default.
func ResolveCommand(command []string) []string {
	if len(command) == 0 {
		command = []string{"gemini"}
	}
	if len(command) == 1 && command[0] == "gemini" {
		if _, err := os.Stat("/usr/local/bin/gemini"); err == nil {
			return []string{"/usr/local/bin/gemini"}
		}
	}
	return command
}

// Name is the tool's display name for status messages.
func (e *Executor) Name() string {
	if len(e.Command) == 0 {
		return "refactor tool"
	}
	return filepath.Base(e.Command[0])
}

// Run feeds prompt+content to the tool on stdin and returns its stdout.
// The watched file is never modified. The tool runs in its own process group
// which is killed on timeout or when ctx is cancelled.
func (e *Executor) Run(ctx context.Context, path string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", ErrEmptyContent
	}
	prompt, err := LoadPrompt(e.PromptPath)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.Command[0], e.Command[1:]...)
	cmd.Stdin = strings.NewReader(BuildInput(prompt, string(content)))
	cmd.WaitDelay = killGrace
	configureProcess(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err = cmd.Run()
	e.log.WithFields(logrus.Fields{
		"file":     filepath.Base(path),
		"duration": time.Since(started).Round(time.Millisecond),
	}).Debug("refactor tool finished")

	if err != nil {
		return "", e.runError(ctx, runCtx, err, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) == "" {
		return "", &RunError{Command: e.Command[0], Stderr: stderr.String(), Cause: ErrEmptyOutput}
	}
	return stdout.String(), nil
}

func (e *Executor) runError(parent, runCtx context.Context, err error, stderr string) error {
	if parent.Err() != nil {
		return fmt.Errorf("refactor cancelled: %w", parent.Err())
	}
	re := &RunError{Command: e.Command[0], ExitCode: -1, Stderr: stderr, Cause: err}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		re.TimedOut = true
		re.Timeout = e.Timeout
		return re
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		re.ExitCode = exitErr.ExitCode()
		return re
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		re.Stderr = fmt.Sprintf("command '%s' not found", e.Command[0])
	}
	return re
}
