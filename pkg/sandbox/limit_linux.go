package sandbox

import "golang.org/x/sys/unix"

// applyMemoryLimit caps the address space of a started process. The limit
// is installed right after start, so the first instructions of the
// interpreter run unbounded.
func applyMemoryLimit(pid int, limitMB int64) error {
	bytes := uint64(limitMB) << 20
	return unix.Prlimit(pid, unix.RLIMIT_AS, &unix.Rlimit{Cur: bytes, Max: bytes}, nil)
}
