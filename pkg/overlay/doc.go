// Package overlay builds disposable working trees on top of a read-only
// base directory.
//
// Two construction modes are provided:
//   - [Build] produces a partial overlay: every entry that is not on the
//     ancestor chain of a target path is a symlink into the base tree, every
//     ancestor directory is a real directory, and every target path is left
//     absent so it can be filled in later.
//   - [Mirror] produces a whole-tree copy where only entries matching caller
//     supplied patterns are linked. It costs a full copy but is immune to later
//     mutation of the base tree.
//
// [Materialize] writes caller supplied content into either kind of tree
// without ever writing through a link into the base tree. [BuildWithOverrides]
// combines [Build] and [Materialize] and is the path used by the sandbox.
package overlay
