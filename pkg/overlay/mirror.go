package overlay

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rhuss/hive/pkg/debug"
)

// DefaultSkipNames are base names never mirrored: VCS metadata, bytecode
// and test caches, and OS metadata files.
var DefaultSkipNames = []string{
	".git",
	"__pycache__",
	".mypy_cache",
	".pytest_cache",
	".DS_Store",
}

// MirrorOptions controls [Mirror].
type MirrorOptions struct {
	// LinkPatterns are regular expressions matched against each entry's
	// slash-separated path relative to the source root. Matching entries
	// are symlinked instead of copied. Patterns are combined as an
	// alternation; an empty list links nothing.
	LinkPatterns []string

	// SkipNames extends DefaultSkipNames.
	SkipNames []string
}

type mirror struct {
	src   string
	links *regexp.Regexp
	skip  map[string]bool

	copied, linked int
}

// Mirror recursively reproduces src at dest. Entries whose relative path
// matches a link pattern, and symlinks found in src, become symlinks to the
// resolved source; everything else is deep copied. Sockets, FIFOs and
// devices are skipped. Existing entries at dest are replaced.
func Mirror(src, dest string, opts MirrorOptions) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("resolving source %s: %w", src, err)
	}
	if absSrc, err = filepath.EvalSymlinks(absSrc); err != nil {
		return fmt.Errorf("resolving source %s: %w", src, err)
	}
	absDest, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolving destination %s: %w", dest, err)
	}

	m := &mirror{src: absSrc, skip: make(map[string]bool)}
	for _, n := range DefaultSkipNames {
		m.skip[n] = true
	}
	for _, n := range opts.SkipNames {
		m.skip[n] = true
	}
	if len(opts.LinkPatterns) > 0 {
		parts := make([]string, len(opts.LinkPatterns))
		for i, p := range opts.LinkPatterns {
			parts[i] = "(?:" + p + ")"
		}
		if m.links, err = regexp.Compile(strings.Join(parts, "|")); err != nil {
			return fmt.Errorf("compiling link patterns: %w", err)
		}
	}

	if err := os.MkdirAll(absDest, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", absDest, err)
	}
	if err := m.children(absSrc, absDest); err != nil {
		return err
	}

	debug.Log("overlay", "tree mirrored", "src", absSrc, "dest", absDest, "copied", m.copied, "linked", m.linked)
	return nil
}

func (m *mirror) children(srcDir, destDir string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", srcDir, err)
	}
	for _, e := range entries {
		if err := m.node(filepath.Join(srcDir, e.Name()), filepath.Join(destDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (m *mirror) node(src, dst string) error {
	if m.skip[filepath.Base(src)] {
		return nil
	}

	rel, err := filepath.Rel(m.src, src)
	if err != nil {
		return err
	}
	if m.links != nil && m.links.MatchString(filepath.ToSlash(rel)) {
		return m.link(src, dst)
	}

	info, err := os.Lstat(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}

	switch mode := info.Mode(); {
	case mode&os.ModeSymlink != 0:
		target, err := resolveLink(src)
		if err != nil {
			return err
		}
		return m.link(target, dst)
	case mode.IsDir():
		if err := replaceWithDir(dst, mode.Perm()); err != nil {
			return err
		}
		return m.children(src, dst)
	case mode.IsRegular():
		return m.copy(src, dst, info)
	default:
		return nil
	}
}

func (m *mirror) link(target, dst string) error {
	if err := removeExisting(dst); err != nil {
		return err
	}
	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("linking %s: %w", dst, err)
	}
	m.linked++
	return nil
}

func (m *mirror) copy(src, dst string, info os.FileInfo) error {
	if err := removeExisting(dst); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	m.copied++
	return nil
}

// resolveLink returns the absolute target of the symlink at p. Dangling
// links resolve lexically against their directory.
func resolveLink(p string) (string, error) {
	if target, err := filepath.EvalSymlinks(p); err == nil {
		return target, nil
	}
	target, err := os.Readlink(p)
	if err != nil {
		return "", fmt.Errorf("reading link %s: %w", p, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(p), target)
	}
	return target, nil
}

// removeExisting removes whatever occupies p. A link is removed, never followed.
func removeExisting(p string) error {
	info, err := os.Lstat(p)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(p)
	}
	return os.Remove(p)
}

// replaceWithDir ensures p is a real directory, removing a link or file
// that occupies it.
func replaceWithDir(p string, perm os.FileMode) error {
	info, err := os.Lstat(p)
	if err == nil && info.IsDir() {
		return nil
	}
	if err := removeExisting(p); err != nil {
		return err
	}
	return os.Mkdir(p, perm|0o700)
}
