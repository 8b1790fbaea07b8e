package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"golang.org/x/sys/unix"

	"github.com/rhuss/hive/pkg/debug"
	"github.com/rhuss/hive/pkg/journal"
	"github.com/rhuss/hive/pkg/observability"
	"github.com/rhuss/hive/pkg/overlay"
)

// killGrace bounds how long Wait keeps draining output after the process
// group has been killed.
const killGrace = 2 * time.Second

// Job is one unit of remote work.
type Job struct {
	// Files maps relative paths to content written into the session.
	Files map[string]string

	// Args are passed to the entry point as JSON literals, in order.
	Args []json.RawMessage

	// Timeout is the wall-clock budget. Zero means no deadline.
	Timeout time.Duration

	// MemoryLimitMB caps the entry point address space. Zero means no cap.
	MemoryLimitMB int64

	// EntryPoint overrides the configured entry point.
	EntryPoint string
}

// Executor runs jobs in disposable session directories. Jobs run one at
// a time: concurrent Run calls queue behind the job in flight.
type Executor struct {
	cfg     Config
	journal journal.Store

	mu sync.Mutex
}

// New creates an Executor. The store can be nil to skip journaling.
func New(store journal.Store, cfg Config) (*Executor, error) {
	cfg.defaults()
	if cfg.RepoDir == "" {
		return nil, fmt.Errorf("sandbox: repository directory must be set")
	}
	switch cfg.Isolation {
	case IsolationOverlay, IsolationMirror:
	default:
		return nil, fmt.Errorf("sandbox: unknown isolation mode %q", cfg.Isolation)
	}
	return &Executor{cfg: cfg, journal: store}, nil
}

// Run executes job to completion and classifies the outcome. The returned
// error is non-nil only when no session directory could be created; every
// job-level failure is reported through the Result.
func (e *Executor) Run(ctx context.Context, job Job) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, err := newSession(e.cfg.SessionRoot)
	if err != nil {
		return nil, err
	}
	defer sess.remove()

	entry := job.EntryPoint
	if entry == "" {
		entry = e.cfg.EntryPoint
	}

	slog.Info("job started",
		"entry_point", entry,
		"files", len(job.Files),
		"args", len(job.Args),
		"timeout", job.Timeout,
		"memory_limit_mb", job.MemoryLimitMB,
	)

	started := time.Now()
	res := e.run(ctx, sess.dir, entry, job)

	observability.JobsTotal.WithLabelValues(res.metricLabel()).Inc()
	slog.Info("job finished",
		"outcome", res.metricLabel(),
		"duration_ms", res.Duration.Milliseconds(),
		"stdout_len", len(res.Stdout),
		"stdout", debug.Truncate(res.Stdout, 200),
		"stderr", debug.Truncate(res.Stderr, 200),
	)
	if res.Err != nil {
		debug.Log("sandbox", "job error", "error", res.Err)
	}
	debug.Trace("sandbox", "job stdout", "text", res.Stdout)
	debug.Trace("sandbox", "job stderr", "text", res.Stderr)

	e.record(ctx, entry, started, res)
	return res, nil
}

func (e *Executor) run(ctx context.Context, dir, entry string, job Job) *Result {
	files, err := e.withEntryPoint(entry, job.Files)
	if err != nil {
		return &Result{Outcome: OutcomeFailure, Err: err}
	}
	if err := e.prepare(dir, files); err != nil {
		return &Result{Outcome: OutcomeFailure, Err: err}
	}
	if len(e.cfg.Interpreter) == 0 {
		if err := os.Chmod(filepath.Join(dir, filepath.FromSlash(entry)), 0o755); err != nil {
			return &Result{Outcome: OutcomeFailure, Err: fmt.Errorf("marking entry point executable: %w", err)}
		}
	}
	return e.execute(ctx, dir, entry, job)
}

// withEntryPoint returns a copy of files that also contains the entry
// point, read from the repository when the caller did not supply it.
func (e *Executor) withEntryPoint(entry string, files map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(files)+1)
	maps.Copy(out, files)
	// Keys are compared in cleaned form so "./run.py" counts as supplying
	// "run.py". The keys themselves stay raw for the materializer to vet.
	want := path.Clean(filepath.ToSlash(entry))
	for rel := range out {
		if path.Clean(filepath.ToSlash(rel)) == want {
			return out, nil
		}
	}
	if !filepath.IsLocal(filepath.FromSlash(entry)) {
		return nil, &overlay.PathSecurityError{Path: entry, Reason: "entry point must stay inside the repository"}
	}
	data, err := os.ReadFile(filepath.Join(e.cfg.RepoDir, filepath.FromSlash(entry)))
	if err != nil {
		return nil, fmt.Errorf("reading entry point: %w", err)
	}
	out[entry] = string(data)
	return out, nil
}

// prepare populates the session tree according to the isolation mode.
func (e *Executor) prepare(dir string, files map[string]string) error {
	start := time.Now()
	var err error
	switch e.cfg.Isolation {
	case IsolationMirror:
		if err = overlay.Mirror(e.cfg.RepoDir, dir, e.cfg.Mirror); err == nil {
			err = overlay.Materialize(dir, files)
		}
	default:
		err = overlay.BuildWithOverrides(e.cfg.RepoDir, dir, files)
	}
	elapsed := time.Since(start)
	observability.OverlayBuildDuration.WithLabelValues(string(e.cfg.Isolation)).Observe(elapsed.Seconds())
	debug.Log("sandbox", "session tree ready", "mode", e.cfg.Isolation, "overrides", len(files), "elapsed", elapsed)
	return err
}

func (e *Executor) commandLine(dir, entry string, args []json.RawMessage) []string {
	argv := make([]string, 0, len(e.cfg.Interpreter)+1+len(args))
	argv = append(argv, e.cfg.Interpreter...)
	argv = append(argv, filepath.Join(dir, filepath.FromSlash(entry)))
	for _, a := range args {
		argv = append(argv, string(a))
	}
	return argv
}

func (e *Executor) execute(ctx context.Context, dir, entry string, job Job) *Result {
	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	argv := e.commandLine(dir, entry, job.Args)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	// The entry point leads its own process group so the whole tree dies
	// with it on cancellation.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = killGrace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	debug.Log("sandbox", "starting entry point", "cmd", shellquote.Join(argv...), "dir", dir)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &Result{Outcome: OutcomeFailure, Err: fmt.Errorf("starting entry point: %w", err)}
	}
	if job.MemoryLimitMB > 0 {
		if err := applyMemoryLimit(cmd.Process.Pid, job.MemoryLimitMB); err != nil {
			slog.Warn("applying memory limit", "pid", cmd.Process.Pid, "limit_mb", job.MemoryLimitMB, "error", err)
		}
	}
	waitErr := cmd.Wait()

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	observability.JobDuration.Observe(res.Duration.Seconds())

	switch {
	case ctx.Err() != nil:
		res.Outcome = OutcomeFailure
		res.Err = fmt.Errorf("job canceled: %w", ctx.Err())
		return res
	case waitErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Outcome = OutcomeFailure
		res.Err = &TimeoutError{Timeout: job.Timeout}
		return res
	case waitErr == nil:
		line := lastLine(res.Stdout)
		if line == "" {
			res.Outcome = OutcomeFailure
			res.Err = ErrNoOutput
			return res
		}
		res.Outcome = OutcomeSuccess
		res.Output = []byte(line)
		return res
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		res.Outcome = OutcomeFailure
		res.Err = fmt.Errorf("waiting for entry point: %w", waitErr)
		return res
	}

	execErr := &ExecutionError{ExitCode: exitErr.ExitCode(), Stderr: res.Stderr}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		execErr.Signal = ws.Signal()
	}
	if job.MemoryLimitMB > 0 {
		execErr.MemoryExceeded = looksLikeMemoryFailure(res.Stderr, execErr.Signal)
	}
	res.Err = execErr

	if cp, ok := e.readCheckpoint(dir); ok {
		res.Outcome = OutcomeCheckpoint
		res.Output = cp
		return res
	}
	res.Outcome = OutcomeFailure
	return res
}

// readCheckpoint returns the checkpoint file at the session root if it is
// a regular file holding valid JSON.
func (e *Executor) readCheckpoint(dir string) ([]byte, bool) {
	p := filepath.Join(dir, e.cfg.CheckpointFile)
	info, err := os.Lstat(p)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		debug.Log("sandbox", "ignoring malformed checkpoint", "path", p, "size", len(data))
		return nil, false
	}
	return data, true
}

// lastLine returns the final non-blank line of s.
func lastLine(s string) string {
	s = strings.TrimRight(s, " \t\r\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func (e *Executor) record(ctx context.Context, entry string, started time.Time, res *Result) {
	if e.journal == nil {
		return
	}
	rec := &journal.Record{
		ID:         journal.NewID(),
		WorkerID:   e.cfg.WorkerID,
		EntryPoint: entry,
		Outcome:    res.metricLabel(),
		Payload:    res.Payload(),
		Duration:   res.Duration,
		StartedAt:  started,
	}
	if err := e.journal.Save(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("journal write failed", "id", rec.ID, "error", err)
	}
}
