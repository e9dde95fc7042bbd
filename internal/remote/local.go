package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yuichietsu/retroarch-sync/internal/catalog"
)

// dirPermissions and filePermissions are used for created destination paths.
const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// LocalTree is a destination tree on the local filesystem. It offers the
// same contract as Device, for mounted targets and for tests.
type LocalTree struct {
	guard  Guard
	logger *slog.Logger
}

// NewLocalTree returns a LocalTree rooted at root.
func NewLocalTree(root string, logger *slog.Logger) (*LocalTree, error) {
	g, err := NewGuard(filepath.ToSlash(root))
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &LocalTree{guard: g, logger: logger}, nil
}

// Root returns the destination root.
func (l *LocalTree) Root() string {
	return l.guard.Root
}

// Scan lists every file below dir.
func (l *LocalTree) Scan(ctx context.Context, dir string, mode catalog.Mode) (*catalog.Catalog, error) {
	return catalog.ScanLocal(ctx, dir, catalog.ScanOptions{Mode: mode, Logger: l.logger})
}

// Dirs returns the names of the immediate subdirectories of dir.
func (l *LocalTree) Dirs(_ context.Context, dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("remote: reading %s: %w", dir, err)
	}

	var names []string

	for _, e := range ents {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}

	return names, nil
}

// Mkdir creates dir and its parents.
func (l *LocalTree) Mkdir(_ context.Context, dir string) error {
	if err := l.guard.Check(dir); err != nil {
		return err
	}

	return os.MkdirAll(dir, dirPermissions)
}

// Remove deletes p recursively.
func (l *LocalTree) Remove(_ context.Context, p string) error {
	if err := l.guard.Check(p); err != nil {
		return err
	}

	return os.RemoveAll(p)
}

// Push copies local to remotePath, creating parent directories.
func (l *LocalTree) Push(_ context.Context, local, remotePath string) error {
	if err := l.guard.Check(remotePath); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(remotePath), dirPermissions); err != nil {
		return fmt.Errorf("remote: creating parent of %s: %w", remotePath, err)
	}

	src, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("remote: opening %s: %w", local, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(remotePath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("remote: creating %s: %w", remotePath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()

		return fmt.Errorf("remote: copying to %s: %w", remotePath, err)
	}

	return dst.Close()
}

// Fingerprint returns the MD5 of p.
func (l *LocalTree) Fingerprint(_ context.Context, p string) (string, error) {
	return catalog.HashFile(p)
}

// ReadFile returns the contents of p.
func (l *LocalTree) ReadFile(_ context.Context, p string) ([]byte, error) {
	return os.ReadFile(p)
}

// Exists reports whether p exists.
func (l *LocalTree) Exists(_ context.Context, p string) (bool, error) {
	_, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return err == nil, err
}
