package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuichietsu/retroarch-sync/internal/sync"
)

func TestSyncCmd_CopiesAndReports(t *testing.T) {
	e := newCLIEnv(t, "full")
	e.addSource(t, "gb/Tetris (World).zip", "tetris")
	e.addSource(t, "gb/Zelda (USA).zip", "zelda")

	out, err := e.run(t, "sync")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(e.dst, "gb", "Tetris (World).zip"))
	assert.FileExists(t, filepath.Join(e.dst, "gb", "Zelda (USA).zip"))
	assert.Contains(t, out, "CATALOG")
	assert.Contains(t, out, "2 new, 0 updated, 0 same, 0 deleted, 0 locked")

	// Second pass finds nothing to do.
	out, err = e.run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "0 new, 0 updated, 2 same, 0 deleted")
}

func TestSyncCmd_DryRunChangesNothing(t *testing.T) {
	e := newCLIEnv(t, "full")
	e.addSource(t, "gb/Tetris (World).zip", "tetris")

	out, err := e.run(t, "sync", "--dry-run", "--actions")
	require.NoError(t, err)

	assert.Contains(t, out, "Dry run")
	assert.Contains(t, out, "roms/gb:")
	assert.Contains(t, out, "Tetris (World).zip")
	assert.NoDirExists(t, filepath.Join(e.dst, "gb"))
}

func TestPlanCmd_ListsActions(t *testing.T) {
	e := newCLIEnv(t, "full")
	e.addSource(t, "gb/Tetris (World).zip", "tetris")
	require.NoError(t, os.MkdirAll(filepath.Join(e.dst, "gb"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.dst, "gb", "Old.zip"), []byte("old"), 0o644))

	out, err := e.run(t, "plan")
	require.NoError(t, err)

	assert.Contains(t, out, "new      Tetris (World).zip")
	assert.Contains(t, out, "delete   Old.zip")
	assert.FileExists(t, filepath.Join(e.dst, "gb", "Old.zip"))
	assert.NoFileExists(t, filepath.Join(e.dst, "gb", "Tetris (World).zip"))
}

func TestSyncCmd_PolicyRequiresDir(t *testing.T) {
	e := newCLIEnv(t, "full")

	_, err := e.run(t, "sync", "--policy", "full")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--policy requires --dir")
}

func TestSyncCmd_UnknownCatalog(t *testing.T) {
	e := newCLIEnv(t, "full")

	_, err := e.run(t, "sync", "--catalog", "rom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "roms"`)
}

func TestSyncCmd_HeldLockRefusesSecondRun(t *testing.T) {
	e := newCLIEnv(t, "full")
	e.addSource(t, "gb/Tetris (World).zip", "tetris")

	release, err := acquireRunLock(pidPath())
	require.NoError(t, err)
	defer release()

	_, err = e.run(t, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	// A dry run does not need the lock.
	_, err = e.run(t, "sync", "--dry-run")
	require.NoError(t, err)
}

func TestSyncCmd_RecordsHistory(t *testing.T) {
	e := newCLIEnv(t, "full")
	e.addSource(t, "gb/Tetris (World).zip", "tetris")

	_, err := e.run(t, "sync")
	require.NoError(t, err)

	out, err := e.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, sync.StatusOK)
	assert.Contains(t, out, "1/0/0")
}

func TestPrintRunReport(t *testing.T) {
	rep := &sync.RunReport{
		DryRun: true,
		Dirs: []sync.DirReport{
			{
				Catalog: "roms", Dir: "gb", Policy: "full",
				Counts:  sync.Counts{New: 1, Deleted: 1},
				Bytes:   2048,
				Actions: []sync.Action{
					{Kind: sync.ActionNew, Key: "A.zip", DestKey: "A.zip"},
					{Kind: sync.ActionDelete, Key: "B.zip"},
				},
			},
			{Catalog: "roms", Dir: "nes", Policy: "full:rename(fc)", Counts: sync.Counts{Same: 3}},
		},
	}

	var buf bytes.Buffer
	printRunReport(&buf, rep, true)
	out := buf.String()

	assert.Contains(t, out, "Dry run: no changes were made.")
	assert.Contains(t, out, "full:rename(fc)")
	assert.Contains(t, out, "1 new, 0 updated, 3 same, 1 deleted, 0 locked (2.0 KB selected)")
	assert.Contains(t, out, "roms/gb:")
	assert.Contains(t, out, "new      A.zip\n")
	assert.Contains(t, out, "delete   B.zip\n")
	assert.NotContains(t, out, "roms/nes:")
}

func TestPrintActions_ShowsRenamedDestination(t *testing.T) {
	var buf bytes.Buffer

	printActions(&buf, []sync.DirReport{{
		Catalog: "roms", Dir: "gb",
		Actions: []sync.Action{{Kind: sync.ActionNew, Key: "A.7z", DestKey: "A.zip"}},
	}})

	assert.Contains(t, buf.String(), "A.7z -> A.zip")
}
