package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Scratch hands out entry-scoped temporary directories below one root and
// refuses to remove anything outside it.
type Scratch struct {
	root string
}

// NewScratch creates root if needed.
func NewScratch(root string) (*Scratch, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("archive: resolving scratch root %s: %w", root, err)
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("archive: creating scratch root %s: %w", abs, err)
	}

	return &Scratch{root: abs}, nil
}

// Root returns the scratch root.
func (s *Scratch) Root() string {
	return s.root
}

// Dir creates a fresh, empty directory for one entry.
func (s *Scratch) Dir() (string, error) {
	dir, err := os.MkdirTemp(s.root, "entry-")
	if err != nil {
		return "", fmt.Errorf("archive: creating scratch dir: %w", err)
	}

	return dir, nil
}

// Remove deletes dir, which must be strictly inside the scratch root.
func (s *Scratch) Remove(dir string) error {
	clean := filepath.Clean(dir)
	if !strings.HasPrefix(clean, s.root+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s (root %s)", ErrOutsideScratch, dir, s.root)
	}

	return os.RemoveAll(clean)
}
