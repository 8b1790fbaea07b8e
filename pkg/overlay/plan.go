package overlay

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// NodeKind distinguishes the two node types an overlay is composed of.
type NodeKind int

const (
	// NodeLink is a symlink to the corresponding base entry.
	NodeLink NodeKind = iota

	// NodeRealDir is a real directory on the ancestor chain of at least
	// one target path. Only RealDir nodes have children.
	NodeRealDir
)

// String returns the lowercase name of the kind.
func (k NodeKind) String() string {
	switch k {
	case NodeLink:
		return "link"
	case NodeRealDir:
		return "dir"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// Node is one entry of an overlay plan.
type Node struct {
	Name string
	Kind NodeKind

	// Source is the absolute path of the base entry this node mirrors.
	Source string

	// Children holds the entries of a RealDir in directory order.
	Children []*Node
}

// targetTrie indexes target paths by their remaining components so that
// targets sharing a prefix collapse onto a single branch.
type targetTrie struct {
	children map[string]*targetTrie
	terminal bool
}

func newTargetTrie(targets []string) *targetTrie {
	root := &targetTrie{}
	for _, t := range targets {
		parts := splitTarget(t)
		if parts == nil {
			continue
		}
		node := root
		for _, p := range parts {
			if node.children == nil {
				node.children = make(map[string]*targetTrie)
			}
			next, ok := node.children[p]
			if !ok {
				next = &targetTrie{}
				node.children[p] = next
			}
			node = next
		}
		node.terminal = true
	}
	return root
}

// splitTarget returns the slash-separated components of a relative target,
// or nil when the target is empty, absolute, or climbs out of the root.
// Such targets can never match a base entry; the materializer rejects them.
func splitTarget(target string) []string {
	cleaned := path.Clean(filepath.ToSlash(target))
	if cleaned == "." || strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return nil
	}
	return strings.Split(cleaned, "/")
}

// Plan computes the overlay of base for the given target paths without
// touching the filesystem beyond reading base. The returned root node is
// always a RealDir.
//
// Only directories on a target's ancestor chain are listed, so the cost of
// planning is bounded by the size of those directories rather than by the
// size of the base tree.
func Plan(base string, targets []string) (*Node, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolving base %s: %w", base, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("reading base: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("base %s is not a directory", abs)
	}

	root := &Node{Kind: NodeRealDir, Source: abs}
	if err := planLevel(root, newTargetTrie(targets)); err != nil {
		return nil, err
	}
	return root, nil
}

func planLevel(dir *Node, trie *targetTrie) error {
	entries, err := os.ReadDir(dir.Source)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir.Source, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		source := filepath.Join(dir.Source, name)

		sub, onPath := trie.children[name]
		if !onPath {
			dir.Children = append(dir.Children, &Node{Name: name, Kind: NodeLink, Source: source})
			continue
		}

		// Exact targets stay absent until materialized. A name that is both
		// a target and an ancestor of another target is kept as a directory.
		if len(sub.children) == 0 {
			continue
		}

		info, err := os.Stat(source)
		if err != nil {
			return fmt.Errorf("reading %s: %w", source, err)
		}
		if !info.IsDir() {
			// A file cannot be an ancestor; the deeper targets under it are
			// unreachable and the file itself is dropped as the hole.
			continue
		}

		child := &Node{Name: name, Kind: NodeRealDir, Source: source}
		if err := planLevel(child, sub); err != nil {
			return err
		}
		dir.Children = append(dir.Children, child)
	}
	return nil
}
