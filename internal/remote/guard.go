package remote

import (
	"fmt"
	"path"
	"strings"
)

// Guard confines mutations to the subtree below Root.
type Guard struct {
	Root string
}

// NewGuard returns a Guard for root, which must be an absolute slash path.
func NewGuard(root string) (Guard, error) {
	clean := path.Clean(root)
	if !path.IsAbs(clean) || clean == "/" {
		return Guard{}, fmt.Errorf("%w: destination root %q must be an absolute path below /", ErrOutsideRoot, root)
	}

	return Guard{Root: clean}, nil
}

// Check returns ErrOutsideRoot unless p is a strict descendant of Root.
// The path is cleaned first, so "root/a/../../etc" is rejected.
func (g Guard) Check(p string) error {
	clean := path.Clean(p)
	if clean != p && clean+"/" != p {
		return fmt.Errorf("%w: %q is not a clean path", ErrOutsideRoot, p)
	}

	if g.Root == "" || !strings.HasPrefix(clean, g.Root+"/") {
		return fmt.Errorf("%w: %q not below %q", ErrOutsideRoot, p, g.Root)
	}

	return nil
}
