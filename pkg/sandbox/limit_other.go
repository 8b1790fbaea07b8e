//go:build !linux

package sandbox

import "github.com/rhuss/hive/pkg/debug"

// applyMemoryLimit is a no-op where prlimit(2) is unavailable. The memory
// ceiling is then left to the surrounding execution environment.
func applyMemoryLimit(pid int, limitMB int64) error {
	debug.Log("sandbox", "memory limit not enforced on this platform", "pid", pid, "limit_mb", limitMB)
	return nil
}
