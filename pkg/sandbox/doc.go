// Package sandbox executes one job at a time inside a disposable session
// directory built on top of a read-only repository.
//
// A session is populated either with a partial overlay (links into the
// repository plus real files for every override) or with a whole-tree
// mirror, depending on the configured isolation mode. The entry point runs
// as a subprocess bounded by the job's deadline and optional memory ceiling,
// and its outcome is classified into a [Result]:
//
//   - success: exit status zero, the last line of stdout is the output
//   - checkpoint: non-zero exit, but the entry point left a checkpoint file
//   - failure: everything else, including timeouts
//
// Job failures are data. [Executor.Run] only returns an error when the
// session directory itself cannot be created.
package sandbox
