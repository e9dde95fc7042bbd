package remote

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/yuichietsu/retroarch-sync/internal/catalog"
	"github.com/yuichietsu/retroarch-sync/internal/shell"
)

// Channel is the round-trip command channel a Device needs. *ADB implements it.
type Channel interface {
	Shell(ctx context.Context, words ...string) ([]string, error)
	ShellLine(ctx context.Context, line string) ([]string, error)
	Push(ctx context.Context, local, remotePath string) error
}

// Device is the destination tree on an adb-reachable device.
type Device struct {
	ch     Channel
	guard  Guard
	logger *slog.Logger
}

// NewDevice returns a Device whose mutations are confined below root.
func NewDevice(ch Channel, root string, logger *slog.Logger) (*Device, error) {
	g, err := NewGuard(root)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Device{ch: ch, guard: g, logger: logger}, nil
}

// Root returns the destination root.
func (d *Device) Root() string {
	return d.guard.Root
}

// Scan lists every file below dir into a catalog keyed by first segment.
func (d *Device) Scan(ctx context.Context, dir string, mode catalog.Mode) (*catalog.Catalog, error) {
	words := []string{"find", dir, "-type", "f"}

	switch mode {
	case catalog.ModeHash:
		words = append(words, "-exec", "md5sum", "{}", ";")
	case catalog.ModeDate:
		words = append(words, "-exec", "stat", "-c", "%Y %n", "{}", ";")
	}

	lines, err := d.ch.Shell(ctx, words...)
	if err != nil {
		return nil, fmt.Errorf("remote: listing %s: %w", dir, err)
	}

	return catalog.FromListing(dir, mode, catalog.DefaultDepth, lines)
}

// Dirs returns the names of the immediate subdirectories of dir.
func (d *Device) Dirs(ctx context.Context, dir string) ([]string, error) {
	lines, err := d.ch.Shell(ctx, "find", dir, "-mindepth", "1", "-maxdepth", "1", "-type", "d")
	if err != nil {
		return nil, fmt.Errorf("remote: listing directories of %s: %w", dir, err)
	}

	prefix := strings.TrimSuffix(dir, "/") + "/"

	var names []string

	for _, l := range lines {
		if name := strings.TrimPrefix(l, prefix); name != l && name != "" {
			names = append(names, name)
		}
	}

	return names, nil
}

// Mkdir creates dir and its parents.
func (d *Device) Mkdir(ctx context.Context, dir string) error {
	if err := d.guard.Check(dir); err != nil {
		return err
	}

	if _, err := d.ch.Shell(ctx, "mkdir", "-p", dir); err != nil {
		return fmt.Errorf("remote: mkdir %s: %w", dir, err)
	}

	return nil
}

// Remove deletes p recursively.
func (d *Device) Remove(ctx context.Context, p string) error {
	if err := d.guard.Check(p); err != nil {
		return err
	}

	if _, err := d.ch.Shell(ctx, "rm", "-rf", p); err != nil {
		return fmt.Errorf("remote: removing %s: %w", p, err)
	}

	return nil
}

// Push copies a local file to remotePath.
func (d *Device) Push(ctx context.Context, local, remotePath string) error {
	if err := d.guard.Check(remotePath); err != nil {
		return err
	}

	if err := d.ch.Push(ctx, local, remotePath); err != nil {
		return fmt.Errorf("remote: pushing %s: %w", path.Base(remotePath), err)
	}

	return nil
}

// Fingerprint returns the MD5 of a remote file.
func (d *Device) Fingerprint(ctx context.Context, p string) (string, error) {
	lines, err := d.ch.Shell(ctx, "md5sum", "-b", p)
	if err != nil {
		return "", fmt.Errorf("remote: hashing %s: %w", p, err)
	}

	for _, l := range lines {
		if fields := strings.Fields(l); len(fields) > 0 {
			return strings.TrimPrefix(fields[0], "\\"), nil
		}
	}

	return "", fmt.Errorf("remote: hashing %s: empty md5sum output", p)
}

// ReadFile returns the contents of a remote text file.
func (d *Device) ReadFile(ctx context.Context, p string) ([]byte, error) {
	lines, err := d.ch.Shell(ctx, "cat", p)
	if err != nil {
		return nil, fmt.Errorf("remote: reading %s: %w", p, err)
	}

	return []byte(strings.Join(lines, "\n")), nil
}

// Exists reports whether p exists on the device.
func (d *Device) Exists(ctx context.Context, p string) (bool, error) {
	lines, err := d.ch.ShellLine(ctx, "test -e "+shell.Quote(p)+" && echo yes || echo no")
	if err != nil {
		return false, fmt.Errorf("remote: checking %s: %w", p, err)
	}

	for _, l := range lines {
		if strings.TrimSpace(l) == "yes" {
			return true, nil
		}
	}

	return false, nil
}
