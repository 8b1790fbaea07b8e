package sandbox

import (
	"github.com/rhuss/hive/pkg/overlay"
)

// Isolation selects how a session tree is populated.
type Isolation string

const (
	// IsolationOverlay links everything except the override paths.
	IsolationOverlay Isolation = "overlay"

	// IsolationMirror copies the repository, linking only pattern matches.
	IsolationMirror Isolation = "mirror"
)

// Config holds executor settings.
type Config struct {
	// RepoDir is the read-only base repository.
	RepoDir string

	// SessionRoot is where session directories are created (default: os.TempDir()).
	SessionRoot string

	// Interpreter is prepended to the entry point command line. Empty
	// means the entry point is executed directly.
	Interpreter []string

	// EntryPoint is used when a job does not name one.
	EntryPoint string

	// CheckpointFile is looked up at the session root after a failed run.
	CheckpointFile string

	Isolation Isolation
	Mirror    overlay.MirrorOptions

	// WorkerID is stamped on journal records.
	WorkerID string
}

func (c *Config) defaults() {
	if c.EntryPoint == "" {
		c.EntryPoint = "evaluator.py"
	}
	if c.CheckpointFile == "" {
		c.CheckpointFile = "checkpoint.json"
	}
	if c.Isolation == "" {
		c.Isolation = IsolationOverlay
	}
}
