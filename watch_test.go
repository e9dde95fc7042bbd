package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchCmd_SyncsAtStartAndStopsOnCancel(t *testing.T) {
	e := newCLIEnv(t, "full")
	e.addSource(t, "gb/Tetris (World).zip", "tetris")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", e.cfgPath, "--quiet", "watch"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return fileExists(filepath.Join(e.dst, "gb", "Tetris (World).zip"))
	}, 10*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}

	assert.NoFileExists(t, pidPath(), "lock released on exit")
}

func TestWatchCmd_UnknownCatalog(t *testing.T) {
	e := newCLIEnv(t, "full")

	_, err := e.run(t, "watch", "--catalog", "hacks")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown catalog "hacks"`)
}
