package overlay

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rhuss/hive/pkg/debug"
)

// Build mirrors base into dest so that dest reads like base while every
// target path is left absent and every directory above a target is a real,
// writable directory. Anything already at dest is removed first.
func Build(base, dest string, targets []string) error {
	plan, err := Plan(base, targets)
	if err != nil {
		return err
	}
	return Apply(plan, dest)
}

// Apply realizes a plan at dest, replacing whatever dest held before.
func Apply(plan *Node, dest string) error {
	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("clearing %s: %w", dest, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}

	var links, dirs int
	var walk func(n *Node, at string) error
	walk = func(n *Node, at string) error {
		for _, c := range n.Children {
			target := filepath.Join(at, c.Name)
			switch c.Kind {
			case NodeLink:
				if err := os.Symlink(c.Source, target); err != nil {
					return fmt.Errorf("linking %s: %w", target, err)
				}
				links++
			case NodeRealDir:
				if err := os.Mkdir(target, 0o755); err != nil {
					return fmt.Errorf("creating %s: %w", target, err)
				}
				dirs++
				if err := walk(c, target); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(plan, dest); err != nil {
		return err
	}

	debug.Log("overlay", "overlay built", "base", plan.Source, "dest", dest, "links", links, "dirs", dirs)
	return nil
}
