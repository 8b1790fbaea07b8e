package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewSession_NameCarriesOwner(t *testing.T) {
	root := t.TempDir()

	sess, err := newSession(root)
	if err != nil {
		t.Fatalf("newSession() error: %v", err)
	}
	name := filepath.Base(sess.dir)
	if !strings.HasPrefix(name, sessionPrefix) {
		t.Errorf("session name %q lacks prefix", name)
	}
	pid, ok := sessionOwner(name)
	if !ok || pid != os.Getpid() {
		t.Errorf("sessionOwner(%q) = %d, %v; want %d", name, pid, ok, os.Getpid())
	}

	sess.remove()
	if _, err := os.Stat(sess.dir); !os.IsNotExist(err) {
		t.Errorf("session directory still present: %v", err)
	}
}

func TestSessionOwner(t *testing.T) {
	tests := []struct {
		name string
		pid  int
		ok   bool
	}{
		{"hive-session-123-abc", 123, true},
		{"hive-session-abc-123", 0, false},
		{"hive-session-123", 0, false},
		{"hive-session--1-x", 0, false},
		{"other-123-abc", 0, false},
	}
	for _, tt := range tests {
		pid, ok := sessionOwner(tt.name)
		if pid != tt.pid || ok != tt.ok {
			t.Errorf("sessionOwner(%q) = %d, %v; want %d, %v", tt.name, pid, ok, tt.pid, tt.ok)
		}
	}
}

// deadPID returns the pid of a process that has already exited and been
// waited for.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	if err := cmd.Run(); err != nil {
		t.Skipf("cannot spawn /bin/sh: %v", err)
	}
	return cmd.Process.Pid
}

func TestReap(t *testing.T) {
	root := t.TempDir()
	mk := func(name string, age time.Duration) string {
		p := filepath.Join(root, name)
		if err := os.Mkdir(p, 0o755); err != nil {
			t.Fatal(err)
		}
		if age > 0 {
			old := time.Now().Add(-age)
			if err := os.Chtimes(p, old, old); err != nil {
				t.Fatal(err)
			}
		}
		return p
	}

	livePID := os.Getppid()
	orphan := mk(fmt.Sprintf("%s%d-a", sessionPrefix, deadPID(t)), 0)
	stale := mk(fmt.Sprintf("%s%d-b", sessionPrefix, livePID), 3*time.Hour)
	fresh := mk(fmt.Sprintf("%s%d-c", sessionPrefix, livePID), 0)
	// Same pid as ours but not a session of this process: a leftover from
	// before a restart.
	leftover := mk(fmt.Sprintf("%s%d-d", sessionPrefix, os.Getpid()), 48*time.Hour)
	leftoverFresh := mk(fmt.Sprintf("%s%d-e", sessionPrefix, os.Getpid()), 0)
	unrelated := mk("something-else", 3*time.Hour)

	live, err := newSession(root)
	if err != nil {
		t.Fatalf("newSession() error: %v", err)
	}
	defer live.remove()
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(live.dir, old, old); err != nil {
		t.Fatal(err)
	}
	own := live.dir

	n, err := Reap(root, time.Hour)
	if err != nil {
		t.Fatalf("Reap() error: %v", err)
	}
	if n != 4 {
		t.Errorf("Reap() removed %d, want 4", n)
	}

	for _, p := range []string{orphan, stale, leftover, leftoverFresh} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should have been reaped", filepath.Base(p))
		}
	}
	for _, p := range []string{fresh, own, unrelated} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should have been kept: %v", filepath.Base(p), err)
		}
	}
}

func TestReap_ZeroMaxAgeOnlyDeadOwners(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, fmt.Sprintf("%s%d-x", sessionPrefix, os.Getppid()))
	if err := os.Mkdir(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	os.Chtimes(stale, old, old)

	n, err := Reap(root, 0)
	if err != nil || n != 0 {
		t.Errorf("Reap() = %d, %v; want 0, nil", n, err)
	}
}

func TestReap_SessionReleasedAfterRemove(t *testing.T) {
	root := t.TempDir()
	sess, err := newSession(root)
	if err != nil {
		t.Fatalf("newSession() error: %v", err)
	}
	if n, _ := Reap(root, time.Hour); n != 0 {
		t.Fatalf("Reap() removed %d live sessions", n)
	}
	sess.remove()
	if _, live := liveSessions.Load(sess.dir); live {
		t.Error("removed session still registered as live")
	}
}

func TestReap_MissingRoot(t *testing.T) {
	n, err := Reap(filepath.Join(t.TempDir(), "absent"), time.Hour)
	if err != nil || n != 0 {
		t.Errorf("Reap() = %d, %v; want 0, nil", n, err)
	}
}

func TestRunReaper_StopsWithContext(t *testing.T) {
	root := t.TempDir()
	orphan := filepath.Join(root, fmt.Sprintf("%s%d-z", sessionPrefix, deadPID(t)))
	if err := os.Mkdir(orphan, 0o755); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunReaper(ctx, root, time.Hour, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(orphan); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("reaper did not run its initial sweep")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunReaper did not return after cancellation")
	}
}
