package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/rhuss/hive/pkg/debug"
)

// Materialize writes each entry of files as a real file under root. A
// symlink occupying the path is removed rather than followed, and missing
// parent directories are created.
//
// Every path is validated before anything is written; if any path is
// rejected the call returns a *PathSecurityError and root is left untouched.
func Materialize(root string, files map[string]string) error {
	resolved := make(map[string]string, len(files))
	for rel := range files {
		full, err := resolveOverride(root, rel)
		if err != nil {
			return err
		}
		resolved[rel] = full
	}

	// Deterministic order keeps failures reproducible.
	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	for _, rel := range rels {
		if err := writeOverride(resolved[rel], files[rel]); err != nil {
			return fmt.Errorf("materializing %s: %w", rel, err)
		}
	}

	debug.Log("overlay", "overrides materialized", "root", root, "files", len(files))
	return nil
}

// BuildWithOverrides builds the overlay of base at dest with the keys of
// files as targets, then materializes files into it.
func BuildWithOverrides(base, dest string, files map[string]string) error {
	targets := make([]string, 0, len(files))
	for rel := range files {
		targets = append(targets, rel)
	}
	if err := Build(base, dest, targets); err != nil {
		return err
	}
	return Materialize(dest, files)
}

// resolveOverride maps a relative override path to its absolute location
// under root, rejecting anything that is not strictly inside root.
func resolveOverride(root, rel string) (string, error) {
	if rel == "" {
		return "", &PathSecurityError{Path: rel, Reason: "empty path"}
	}
	slashed := filepath.ToSlash(rel)
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(rel) {
		return "", &PathSecurityError{Path: rel, Reason: "absolute path"}
	}
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", &PathSecurityError{Path: rel, Reason: "parent directory reference"}
		}
	}

	cleaned := filepath.Clean(filepath.FromSlash(slashed))
	if cleaned == "." || !filepath.IsLocal(cleaned) {
		return "", &PathSecurityError{Path: rel, Reason: "not contained in root"}
	}

	// A parent that is a symlink (for example a linked directory of the base
	// tree) would redirect the write outside root. SecureJoin resolves links
	// as if root were the filesystem root, so any difference from the lexical
	// join means a link sits on the path.
	parent := filepath.Dir(cleaned)
	if parent != "." {
		lexical := filepath.Join(root, parent)
		secure, err := securejoin.SecureJoin(root, parent)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", rel, err)
		}
		if secure != lexical {
			return "", &PathSecurityError{Path: rel, Reason: "parent directory is a symlink"}
		}
	}

	return filepath.Join(root, cleaned), nil
}

func writeOverride(full, content string) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}

	info, err := os.Lstat(full)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		if err := os.Remove(full); err != nil {
			return fmt.Errorf("removing link: %w", err)
		}
	case err == nil && info.IsDir():
		return fmt.Errorf("%s is a directory", full)
	case err != nil && !os.IsNotExist(err):
		return err
	}

	return os.WriteFile(full, []byte(content), 0o644)
}
