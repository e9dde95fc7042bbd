package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	cfg := validConfig()
	cfg.Locks.StatesPaths = []string{"/sdcard/RetroArch/states"}
	cfg.Catalogs[0].Data = map[string]string{"MAME": "/srv/mame.yaml"}

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "/etc/rs.toml", &buf))

	out := buf.String()
	assert.Contains(t, out, "file: /etc/rs.toml")
	assert.Contains(t, out, `log_level  = "info"`)
	assert.Contains(t, out, `states_paths    = ["/sdcard/RetroArch/states"]`)
	assert.Contains(t, out, "[[catalog]]")
	assert.Contains(t, out, `"MAME" = "full"`)
	assert.Contains(t, out, `"MAME" = "/srv/mame.yaml"`)
	assert.NotContains(t, out, "favorites_paths")
}

type failWriter struct{ calls int }

func (f *failWriter) Write([]byte) (int, error) {
	f.calls++
	return 0, errors.New("disk full")
}

func TestRenderEffective_StopsAfterWriteError(t *testing.T) {
	w := &failWriter{}

	err := RenderEffective(DefaultConfig(), "x", w)
	require.Error(t, err)
	assert.Equal(t, 1, w.calls)
}
