package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yuichietsu/retroarch-sync/internal/archive"
	"github.com/yuichietsu/retroarch-sync/internal/catalog"
	"github.com/yuichietsu/retroarch-sync/internal/remote"
)

// testLogger returns a debug-level logger that writes through t.Log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// writeFile creates p (and its parents) with content.
func writeFile(t *testing.T, p, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, p string) string {
	t.Helper()

	b, err := os.ReadFile(p)
	require.NoError(t, err)

	return string(b)
}

// recordingDest is a LocalTree that records every mutation relative to its
// root, in order.
type recordingDest struct {
	*remote.LocalTree
	ops []string
}

func newRecordingDest(t *testing.T, root string) *recordingDest {
	t.Helper()

	tree, err := remote.NewLocalTree(root, testLogger(t))
	require.NoError(t, err)

	return &recordingDest{LocalTree: tree}
}

func (d *recordingDest) rel(p string) string {
	return strings.TrimPrefix(strings.TrimPrefix(p, d.Root()), "/")
}

func (d *recordingDest) Mkdir(ctx context.Context, dir string) error {
	d.ops = append(d.ops, "mkdir "+d.rel(dir))
	return d.LocalTree.Mkdir(ctx, dir)
}

func (d *recordingDest) Remove(ctx context.Context, p string) error {
	d.ops = append(d.ops, "remove "+d.rel(p))
	return d.LocalTree.Remove(ctx, p)
}

func (d *recordingDest) Push(ctx context.Context, local, remotePath string) error {
	d.ops = append(d.ops, "push "+d.rel(remotePath))
	return d.LocalTree.Push(ctx, local, remotePath)
}

// mutations returns the recorded operations other than mkdir.
func (d *recordingDest) mutations() []string {
	var out []string

	for _, op := range d.ops {
		if !strings.HasPrefix(op, "mkdir ") {
			out = append(out, op)
		}
	}

	return out
}

func (d *recordingDest) reset() {
	d.ops = nil
}

// fakeArchiver stands in for the external archive tools. Extract writes the
// configured members of an archive (by base name); an archive without
// configuration unpacks to one "game.bin" holding the archive's bytes.
// Create writes the listed members' names into the new file.
type fakeArchiver struct {
	members map[string]map[string]string
	created []string
}

func (f *fakeArchiver) contents(archivePath string) (map[string]string, error) {
	if m, ok := f.members[path.Base(filepath.ToSlash(archivePath))]; ok {
		return m, nil
	}

	b, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, err
	}

	return map[string]string{"game.bin": string(b)}, nil
}

func (f *fakeArchiver) Extract(_ context.Context, archivePath, dir string) ([]string, error) {
	m, err := f.contents(archivePath)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m))

	for name, content := range m {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, err
		}

		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return nil, err
		}

		names = append(names, name)
	}

	sort.Strings(names)

	return names, nil
}

func (f *fakeArchiver) Create(_ context.Context, format archive.Format, dir, name string, members []string) error {
	f.created = append(f.created, fmt.Sprintf("%s:%s", format, name))

	return os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(members, ",")), 0o644)
}

func (f *fakeArchiver) MemberCount(_ context.Context, archivePath string) (int, error) {
	m, err := f.contents(archivePath)
	if err != nil {
		return 0, err
	}

	return len(m), nil
}

// scanSource lists a local source directory with content hashes.
func scanSource(t *testing.T, dir string) *catalog.Catalog {
	t.Helper()

	c, err := catalog.ScanLocal(context.Background(), dir, catalog.ScanOptions{Mode: catalog.ModeHash})
	require.NoError(t, err)

	return c
}

func newTestScratch(t *testing.T) *archive.Scratch {
	t.Helper()

	s, err := archive.NewScratch(filepath.Join(t.TempDir(), "scratch"))
	require.NoError(t, err)

	return s
}
