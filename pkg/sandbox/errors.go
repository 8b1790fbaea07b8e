package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rhuss/hive/pkg/overlay"
)

// ErrNoOutput is reported when the entry point exits zero without
// printing anything to stdout.
var ErrNoOutput = errors.New("entry point produced no output")

// ExecutionError reports an entry point that exited non-zero or was
// terminated by a signal. It is eligible for checkpoint recovery.
type ExecutionError struct {
	// ExitCode is the process exit status, or -1 when signaled.
	ExitCode int

	// Signal is set when the process was terminated by a signal.
	Signal syscall.Signal

	// Stderr is the captured standard error stream.
	Stderr string

	// MemoryExceeded is set when a memory ceiling was applied and the
	// failure looks like an allocation failure.
	MemoryExceeded bool
}

// Description renders the failure the way it is reported to the coordinator.
func (e *ExecutionError) Description() string {
	switch {
	case e.MemoryExceeded:
		return "Memory limit exceeded"
	case e.Signal != 0:
		return fmt.Sprintf("Terminated by signal %d (%s): %s", int(e.Signal), unix.SignalName(e.Signal), signalText(e.Signal))
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return "Error: " + msg
	}
	return fmt.Sprintf("Error: exit status %d", e.ExitCode)
}

// signalText renders the strsignal(3) description of sig, "Killed" rather
// than Go's lowercase "killed".
func signalText(sig syscall.Signal) string {
	text := sig.String()
	if text == "" {
		return text
	}
	return strings.ToUpper(text[:1]) + text[1:]
}

func (e *ExecutionError) Error() string {
	return "execution failed: " + e.Description()
}

// TimeoutError reports an entry point killed at its deadline. Timeouts are
// never recovered from a checkpoint.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution timed out after %v", e.Timeout)
}

// failureMessage maps a failure cause onto the coordinator-facing message.
func failureMessage(err error) string {
	var execErr *ExecutionError
	var timeoutErr *TimeoutError
	var pathErr *overlay.PathSecurityError
	switch {
	case errors.As(err, &execErr):
		return "Execution failed: " + execErr.Description()
	case errors.As(err, &timeoutErr):
		return "Execution failed: Timeout"
	case errors.As(err, &pathErr):
		return "Execution failed: Error: " + pathErr.Error()
	case errors.Is(err, ErrNoOutput):
		return "Execution failed: Error: " + ErrNoOutput.Error()
	}
	return "Internal server error"
}

// memoryMarkers are stderr fragments produced by interpreters that hit an
// address space ceiling.
var memoryMarkers = []string{"MemoryError", "Cannot allocate memory", "out of memory"}

func looksLikeMemoryFailure(stderr string, sig syscall.Signal) bool {
	if sig == syscall.SIGKILL || sig == syscall.SIGSEGV {
		return true
	}
	for _, m := range memoryMarkers {
		if strings.Contains(stderr, m) {
			return true
		}
	}
	return false
}
