package sync

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuichietsu/retroarch-sync/internal/config"
	"github.com/yuichietsu/retroarch-sync/internal/locks"
	"github.com/yuichietsu/retroarch-sync/internal/selection"
)

// runnerFixture holds a source tree and a recorded destination tree.
type runnerFixture struct {
	src  string
	root string
	dst   *recordingDest
	cat   *config.Catalog
	locks *locks.Lazy
	sizer selection.UnpackedSizer
}

func newRunnerFixture(t *testing.T, targets map[string]string) *runnerFixture {
	t.Helper()

	base := t.TempDir()
	src := filepath.Join(base, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))

	dst := newRecordingDest(t, filepath.Join(base, "dst"))

	return &runnerFixture{
		src:  src,
		root: filepath.FromSlash(dst.Root()),
		dst:  dst,
		cat: &config.Catalog{
			Name:        "roms",
			Source:      src,
			Destination: dst.Root(),
			Targets:     targets,
			Data:        map[string]string{},
		},
	}
}

func (f *runnerFixture) runner(t *testing.T) *Runner {
	t.Helper()

	return NewRunner(RunnerConfig{
		Catalog:     f.cat,
		Destination: f.dst,
		Engine: NewEngine(EngineConfig{
			Destination: f.dst,
			Archiver:    &fakeArchiver{},
			Scratch:     newTestScratch(t),
			Logger:      testLogger(t),
		}),
		Locks:  f.locks,
		Sizer:  f.sizer,
		Logger: testLogger(t),
	})
}

// withStates loads save-state locks from <root>/states.
func (f *runnerFixture) withStates(t *testing.T) string {
	t.Helper()

	states := path.Join(f.dst.Root(), "states")
	f.locks = locks.NewLazy(locks.NewProvider(f.dst, locks.Config{
		Root:        f.dst.Root(),
		StatesPaths: []string{states},
		Retention:   locks.DefaultRetention,
	}, testLogger(t)))

	return filepath.FromSlash(states)
}

func TestRunner_SyncsConfiguredTargetsOnly(t *testing.T) {
	f := newRunnerFixture(t, map[string]string{
		"gb":  "full",
		"nes": "sometimes:10",
	})
	writeFile(t, filepath.Join(f.src, "gb", "A.zip"), "a")
	writeFile(t, filepath.Join(f.src, "nes", "B.zip"), "b")
	writeFile(t, filepath.Join(f.src, "snes", "C.zip"), "c")
	writeFile(t, filepath.Join(f.src, "stray.txt"), "x")

	reports, err := f.runner(t).Run(context.Background(), RunOpts{})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	rep := reports[0]
	assert.Equal(t, "roms", rep.Catalog)
	assert.Equal(t, "gb", rep.Dir)
	assert.Equal(t, path.Join(f.dst.Root(), "gb"), rep.Dest)
	assert.Equal(t, 1, rep.Selected)
	assert.Equal(t, Counts{New: 1}, rep.Counts)

	assert.FileExists(t, filepath.Join(f.root, "gb", "A.zip"))
	assert.NoDirExists(t, filepath.Join(f.root, "nes"), "an unusable policy skips the directory")
	assert.NoDirExists(t, filepath.Join(f.root, "snes"))
}

func TestRunner_Rename(t *testing.T) {
	f := newRunnerFixture(t, map[string]string{"gb": "full:rename(GameBoy)"})
	writeFile(t, filepath.Join(f.src, "gb", "A.zip"), "a")

	reports, err := f.runner(t).Run(context.Background(), RunOpts{})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	assert.Equal(t, path.Join(f.dst.Root(), "GameBoy"), reports[0].Dest)
	assert.FileExists(t, filepath.Join(f.root, "GameBoy", "A.zip"))
	assert.NoDirExists(t, filepath.Join(f.root, "gb"))
}

func TestRunner_DirPolicyOverride(t *testing.T) {
	f := newRunnerFixture(t, map[string]string{"gb": "full", "gba": "full"})
	writeFile(t, filepath.Join(f.src, "gb", "A.zip"), "a")
	writeFile(t, filepath.Join(f.src, "gba", "B.zip"), "b")

	reports, err := f.runner(t).Run(context.Background(), RunOpts{Dir: "gb", Policy: "full:rename(Other)"})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	assert.Equal(t, "full:rename(Other)", reports[0].Policy)
	assert.FileExists(t, filepath.Join(f.root, "Other", "A.zip"))
	assert.NoDirExists(t, filepath.Join(f.root, "gba"))
}

func TestRunner_IndexPrunesStaleBuckets(t *testing.T) {
	f := newRunnerFixture(t, map[string]string{"gb": "full:index"})
	writeFile(t, filepath.Join(f.src, "gb", "Alpha.zip"), "a")
	writeFile(t, filepath.Join(f.src, "gb", "1942.zip"), "n")
	writeFile(t, filepath.Join(f.root, "gb", "Z", "Zelda.zip"), "z")

	reports, err := f.runner(t).Run(context.Background(), RunOpts{})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	rep := reports[0]
	assert.Equal(t, 2, rep.New)
	assert.Equal(t, 1, rep.Deleted)
	assert.Contains(t, rep.Actions, Action{Kind: ActionNew, Key: "Alpha.zip", DestKey: "A/Alpha.zip"})
	assert.Contains(t, rep.Actions, Action{Kind: ActionDelete, Key: "Zelda.zip", DestKey: "Z/Zelda.zip"})
	assert.Contains(t, rep.Actions, Action{Kind: ActionPrune, Key: "Z", DestKey: "Z"})

	assert.FileExists(t, filepath.Join(f.root, "gb", "A", "Alpha.zip"))
	assert.FileExists(t, filepath.Join(f.root, "gb", BucketDigits, "1942.zip"))
	assert.NoDirExists(t, filepath.Join(f.root, "gb", "Z"))
}

func TestRunner_IndexKeepsLockedEntriesInStaleBucket(t *testing.T) {
	f := newRunnerFixture(t, map[string]string{"gb": "full:index,lock"})
	states := f.withStates(t)

	writeFile(t, filepath.Join(f.src, "gb", "Alpha.zip"), "a")
	writeFile(t, filepath.Join(f.root, "gb", "G", "GameB.zip"), "b")
	writeFile(t, filepath.Join(f.root, "gb", "G", "Gone.zip"), "g")
	writeFile(t, filepath.Join(states, "gb", "GameB.state"), "s")

	reports, err := f.runner(t).Run(context.Background(), RunOpts{})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	rep := reports[0]
	assert.Equal(t, 1, rep.New)
	assert.Equal(t, 1, rep.Deleted)
	assert.Equal(t, 1, rep.Locked)
	assert.Contains(t, rep.Actions, Action{Kind: ActionDelete, Key: "Gone.zip", DestKey: "G/Gone.zip"})
	assert.NotContains(t, rep.Actions, Action{Kind: ActionPrune, Key: "G", DestKey: "G"})

	assert.FileExists(t, filepath.Join(f.root, "gb", "A", "Alpha.zip"))
	assert.FileExists(t, filepath.Join(f.root, "gb", "G", "GameB.zip"))
	assert.NoFileExists(t, filepath.Join(f.root, "gb", "G", "Gone.zip"))
}

func TestRunner_IndexDryRunReportsStaleBucket(t *testing.T) {
	f := newRunnerFixture(t, map[string]string{"gb": "full:index"})
	writeFile(t, filepath.Join(f.src, "gb", "Alpha.zip"), "a")
	writeFile(t, filepath.Join(f.root, "gb", "Z", "Zelda.zip"), "z")

	reports, err := f.runner(t).Run(context.Background(), RunOpts{DryRun: true})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	assert.Equal(t, Counts{New: 1, Deleted: 1}, reports[0].Counts)
	assert.Contains(t, reports[0].Actions, Action{Kind: ActionPrune, Key: "Z", DestKey: "Z"})
	assert.Empty(t, f.dst.mutations())
	assert.FileExists(t, filepath.Join(f.root, "gb", "Z", "Zelda.zip"))
}

// listedSizes reports uncompressed sizes from a fixed table.
type listedSizes map[string]int64

func (l listedSizes) UncompressedSize(_ context.Context, p string) (int64, error) {
	n, ok := l[p]
	if !ok {
		return 0, fmt.Errorf("no listing for %s", p)
	}

	return n, nil
}

func TestRunner_BudgetUsesUnpackedSizeForRepackedEntries(t *testing.T) {
	f := newRunnerFixture(t, map[string]string{"gb": "random:1k,zip"})
	writeFile(t, filepath.Join(f.src, "gb", "Big.7z"), "7")
	writeFile(t, filepath.Join(f.src, "gb", "Small.zip"), "z")
	f.sizer = listedSizes{
		filepath.Join(f.src, "gb", "Big.7z"):    1 << 20,
		filepath.Join(f.src, "gb", "Small.zip"): 1 << 20,
	}

	reports, err := f.runner(t).Run(context.Background(), RunOpts{})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	rep := reports[0]
	assert.Equal(t, 1, rep.Selected)
	assert.Equal(t, int64(1), rep.Bytes)
	assert.Equal(t, []Action{{Kind: ActionNew, Key: "Small.zip", DestKey: "Small.zip"}}, rep.Actions)
}

func TestRunner_DryRunLeavesDestinationUntouched(t *testing.T) {
	f := newRunnerFixture(t, map[string]string{"gb": "full:index"})
	writeFile(t, filepath.Join(f.src, "gb", "Alpha.zip"), "a")

	reports, err := f.runner(t).Run(context.Background(), RunOpts{DryRun: true})
	require.NoError(t, err)
	require.Len(t, reports, 1)

	assert.True(t, reports[0].DryRun)
	assert.Equal(t, Counts{New: 1}, reports[0].Counts)
	assert.Equal(t, []Action{{Kind: ActionNew, Key: "Alpha.zip", DestKey: "A/Alpha.zip"}}, reports[0].Actions)
	assert.Empty(t, f.dst.ops)
	assert.NoDirExists(t, filepath.Join(f.root, "gb"))
}

func TestRunner_BrokenCatalogDataIsIgnored(t *testing.T) {
	f := newRunnerFixture(t, map[string]string{"gb": "full:clones"})
	writeFile(t, filepath.Join(f.src, "gb", "A.zip"), "a")

	dataPath := filepath.Join(t.TempDir(), "gb.yaml")
	writeFile(t, dataPath, "clones: [not, a, map")
	f.cat.Data["gb"] = dataPath

	reports, err := f.runner(t).Run(context.Background(), RunOpts{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, Counts{New: 1}, reports[0].Counts)
}

func TestRunner_MissingSource(t *testing.T) {
	f := newRunnerFixture(t, map[string]string{"gb": "full"})
	f.cat.Source = filepath.Join(f.src, "missing")

	_, err := f.runner(t).Run(context.Background(), RunOpts{})
	require.Error(t, err)
}
