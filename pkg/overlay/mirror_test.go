package overlay

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMirror_CopiesByDefault(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, sampleBase)
	dest := filepath.Join(t.TempDir(), "mirror")

	if err := Mirror(src, dest, MirrorOptions{}); err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	for rel, want := range sampleBase {
		p := filepath.Join(dest, rel)
		if isSymlink(t, p) {
			t.Errorf("%s should be copied", rel)
		}
		if got := readFile(t, p); got != want {
			t.Errorf("%s = %q, want %q", rel, got, want)
		}
	}

	// The copy is independent of later base mutation.
	writeTree(t, src, map[string]string{"README.md": "changed"})
	if got := readFile(t, filepath.Join(dest, "README.md")); got != "readme" {
		t.Errorf("mirror followed base mutation: %q", got)
	}
}

func TestMirror_LinksMatchingPatterns(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, sampleBase)
	dest := filepath.Join(t.TempDir(), "mirror")

	opts := MirrorOptions{LinkPatterns: []string{`^docs$`, `\.json$`}}
	if err := Mirror(src, dest, opts); err != nil {
		t.Fatalf("Mirror: %v", err)
	}

	for _, rel := range []string{"docs", "src/app/data/a.json"} {
		if !isSymlink(t, filepath.Join(dest, rel)) {
			t.Errorf("%s should be linked", rel)
		}
	}
	for _, rel := range []string{"src", "src/app", "src/app/data"} {
		if isSymlink(t, filepath.Join(dest, rel)) {
			t.Errorf("%s should be a real directory", rel)
		}
	}
	if isSymlink(t, filepath.Join(dest, "src/app/main.py")) {
		t.Error("src/app/main.py should be copied")
	}
}

func TestMirror_SkipsTransientNames(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"keep.py":                   "k",
		".git/HEAD":                 "ref",
		"pkg/__pycache__/m.pyc":     "bytecode",
		"pkg/.pytest_cache/v":       "cache",
		"pkg/mod.py":                "m",
		"pkg/node_modules/dep/i.js": "dep",
	})
	dest := filepath.Join(t.TempDir(), "mirror")

	if err := Mirror(src, dest, MirrorOptions{SkipNames: []string{"node_modules"}}); err != nil {
		t.Fatalf("Mirror: %v", err)
	}

	for _, rel := range []string{".git", "pkg/__pycache__", "pkg/.pytest_cache", "pkg/node_modules"} {
		if exists(filepath.Join(dest, rel)) {
			t.Errorf("%s should be skipped", rel)
		}
	}
	for _, rel := range []string{"keep.py", "pkg/mod.py"} {
		if !exists(filepath.Join(dest, rel)) {
			t.Errorf("%s should be mirrored", rel)
		}
	}
}

func TestMirror_PreservesSourceSymlinks(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"real/file.txt": "payload"})
	if err := os.Symlink("real", filepath.Join(src, "alias")); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "mirror")

	if err := Mirror(src, dest, MirrorOptions{}); err != nil {
		t.Fatalf("Mirror: %v", err)
	}

	alias := filepath.Join(dest, "alias")
	if !isSymlink(t, alias) {
		t.Fatal("alias should stay a symlink")
	}
	target, err := os.Readlink(alias)
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(target) {
		t.Errorf("link target %q should be the resolved absolute path", target)
	}
	if got := readFile(t, filepath.Join(alias, "file.txt")); got != "payload" {
		t.Errorf("content through alias = %q", got)
	}
}

func TestMirror_ReplacesExistingEntries(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"lib/a.py": "a", "cfg/x.txt": "x"})
	dest := t.TempDir()
	// A real directory where a link will go, and a link where a directory will go.
	writeTree(t, dest, map[string]string{"lib/stale.py": "stale"})
	if err := os.Symlink(src, filepath.Join(dest, "cfg")); err != nil {
		t.Fatal(err)
	}

	if err := Mirror(src, dest, MirrorOptions{LinkPatterns: []string{`^lib$`}}); err != nil {
		t.Fatalf("Mirror: %v", err)
	}

	if !isSymlink(t, filepath.Join(dest, "lib")) {
		t.Error("lib should now be a link")
	}
	if isSymlink(t, filepath.Join(dest, "cfg")) || !isRealDir(t, filepath.Join(dest, "cfg")) {
		t.Error("cfg should now be a real directory")
	}
	if got := readFile(t, filepath.Join(dest, "cfg/x.txt")); got != "x" {
		t.Errorf("cfg/x.txt = %q", got)
	}
	if exists(filepath.Join(src, "x.txt")) {
		t.Error("mirror wrote through a pre-existing link into the source")
	}
}

func TestMirror_InvalidPattern(t *testing.T) {
	src := t.TempDir()
	if err := Mirror(src, t.TempDir(), MirrorOptions{LinkPatterns: []string{"("}}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
