package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/rhuss/hive/pkg/debug"
	"github.com/rhuss/hive/pkg/observability"
)

// sessionPrefix names every session directory. The owner pid follows the
// prefix so the reaper can tell live sessions from orphans.
const sessionPrefix = "hive-session-"

// liveSessions holds the directories of sessions this process is still
// using. A directory that carries our pid but is missing here was left by
// an earlier process that had the same pid, such as pid 1 in a restarted
// container.
var liveSessions sync.Map

// session is the working directory of exactly one job.
type session struct {
	dir string
}

func newSession(root string) (*session, error) {
	if root == "" {
		root = os.TempDir()
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving session root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating session root: %w", err)
	}

	dir := filepath.Join(root, fmt.Sprintf("%s%d-%s", sessionPrefix, os.Getpid(), uuid.NewString()))
	// Registered before it exists so a concurrent sweep never sees it unowned.
	liveSessions.Store(dir, struct{}{})
	if err := os.Mkdir(dir, 0o700); err != nil {
		liveSessions.Delete(dir)
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	debug.Log("sandbox", "session created", "dir", dir)
	return &session{dir: dir}, nil
}

func (s *session) remove() {
	defer liveSessions.Delete(s.dir)
	if err := os.RemoveAll(s.dir); err != nil {
		slog.Warn("removing session directory", "dir", s.dir, "error", err)
		return
	}
	debug.Log("sandbox", "session removed", "dir", s.dir)
}

// sessionOwner extracts the owner pid from a session directory name.
func sessionOwner(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, sessionPrefix)
	if !ok {
		return 0, false
	}
	pidStr, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive reports whether pid exists. EPERM means it exists but
// belongs to someone else.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// Reap removes orphaned session directories under root: those whose owner
// process is gone, those left by an earlier process with our pid, and
// those older than maxAge regardless of owner. Sessions still in use by
// the calling process are never touched. A zero maxAge disables the age
// check. It returns the number of directories removed.
func Reap(root string, maxAge time.Duration) (int, error) {
	if root == "" {
		root = os.TempDir()
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return 0, fmt.Errorf("resolving session root: %w", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("listing session root: %w", err)
	}

	self := os.Getpid()
	now := time.Now()
	reaped := 0
	var errs []error

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, ok := sessionOwner(entry.Name())
		if !ok {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, live := liveSessions.Load(dir); live {
			continue
		}

		reason := ""
		if pid == self {
			reason = "left by earlier process with same pid"
		} else if !processAlive(pid) {
			reason = "owner exited"
		} else if maxAge > 0 {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) > maxAge {
				reason = "expired"
			}
		}
		if reason == "" {
			continue
		}

		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
			continue
		}
		reaped++
		observability.SessionsReapedTotal.Inc()
		slog.Info("reaped orphaned session", "dir", dir, "owner_pid", pid, "reason", reason)
	}

	return reaped, errors.Join(errs...)
}

// RunReaper calls Reap once immediately and then every interval until ctx
// is done. Errors are logged.
func RunReaper(ctx context.Context, root string, maxAge, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := Reap(root, maxAge); err != nil {
			slog.Warn("session reaper", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
