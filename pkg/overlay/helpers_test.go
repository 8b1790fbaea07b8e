package overlay

import (
	"os"
	"path/filepath"
	"testing"
)

// writeTree creates files (relative path -> content) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return string(data)
}

func isSymlink(t *testing.T, p string) bool {
	t.Helper()
	info, err := os.Lstat(p)
	if err != nil {
		t.Fatalf("lstat %s: %v", p, err)
	}
	return info.Mode()&os.ModeSymlink != 0
}

func isRealDir(t *testing.T, p string) bool {
	t.Helper()
	info, err := os.Lstat(p)
	if err != nil {
		t.Fatalf("lstat %s: %v", p, err)
	}
	return info.IsDir()
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// sampleBase is a small repository layout used across tests.
var sampleBase = map[string]string{
	"README.md":            "readme",
	"evaluator.py":         "print('eval')",
	"src/app/main.py":      "main",
	"src/app/util.py":      "util",
	"src/app/data/a.json":  `{"a":1}`,
	"src/lib/helpers.py":   "helpers",
	"src/lib/deep/x/y.txt": "y",
	"docs/guide.md":        "guide",
}
