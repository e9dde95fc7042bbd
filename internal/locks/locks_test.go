package locks

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuichietsu/retroarch-sync/internal/catalog"
	"github.com/yuichietsu/retroarch-sync/internal/remote"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testLogWriter struct{ t *testing.T }

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeSource serves canned listings and documents.
type fakeSource struct {
	listings map[string][]string
	scanErr  map[string]error
	docs     map[string]string
	loads    int
}

func (f *fakeSource) Scan(_ context.Context, dir string, mode catalog.Mode) (*catalog.Catalog, error) {
	f.loads++

	if err := f.scanErr[dir]; err != nil {
		return nil, err
	}

	return catalog.FromListing(dir, mode, catalog.DefaultDepth, f.listings[dir])
}

func (f *fakeSource) Exists(_ context.Context, p string) (bool, error) {
	_, ok := f.docs[p]

	return ok, nil
}

func (f *fakeSource) ReadFile(_ context.Context, p string) ([]byte, error) {
	return []byte(f.docs[p]), nil
}

func newTestProvider(t *testing.T, src Source, cfg Config) *Provider {
	t.Helper()

	p := NewProvider(src, cfg, testLogger(t))
	p.nowFunc = func() time.Time { return fixedNow }

	return p
}

// age renders the unix time d before fixedNow.
func age(d time.Duration) string {
	return strconv.FormatInt(fixedNow.Add(-d).Unix(), 10)
}

func TestProvider_States(t *testing.T) {
	src := &fakeSource{listings: map[string][]string{
		"/states": {
			age(time.Hour) + " /states/nes/Super Mario (USA).state",
			age(2*time.Hour) + " /states/NES/Zelda (USA).state3",
			age(3*time.Hour) + " /states/snes/Mana (Japan).state.auto",
			age(30*24*time.Hour) + " /states/nes/Old Game.state",
			age(time.Hour) + " /states/nes/Super Mario (USA).srm",
			age(time.Hour) + " /states/Loose.state",
		},
	}}

	set, err := newTestProvider(t, src, Config{StatesPaths: []string{"/states"}}).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Loose", "Mana (Japan)", "Super Mario (USA)", "Zelda (USA)"}, set.Sorted("*"))
	assert.Equal(t, []string{"Super Mario (USA)", "Zelda (USA)"}, set.Sorted("nes"))
	assert.Equal(t, []string{"Mana (Japan)"}, set.Sorted("SNES"))
	assert.Equal(t, []string{"*", "nes", "snes"}, set.Groups())
}

func TestProvider_StatesRetentionBoundary(t *testing.T) {
	src := &fakeSource{listings: map[string][]string{
		"/states": {
			age(time.Hour*24) + " /states/nes/Edge.state",
			age(time.Hour*24+time.Second) + " /states/nes/Expired.state",
		},
	}}

	p := newTestProvider(t, src, Config{StatesPaths: []string{"/states"}, Retention: 24 * time.Hour})
	set, err := p.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Edge"}, set.Sorted("nes"))
}

func TestProvider_MissingStatesDirIsSkipped(t *testing.T) {
	src := &fakeSource{scanErr: map[string]error{
		"/missing": &remote.CommandError{Err: remote.ErrFatalOutput},
	}}

	set, err := newTestProvider(t, src, Config{StatesPaths: []string{"/missing"}}).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, set.Groups())
}

func TestProvider_TransportErrorFails(t *testing.T) {
	src := &fakeSource{scanErr: map[string]error{"/states": remote.ErrTransport}}

	_, err := newTestProvider(t, src, Config{StatesPaths: []string{"/states"}}).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrTransport))
}

func TestProvider_Favorites(t *testing.T) {
	src := &fakeSource{docs: map[string]string{
		"/fav.lpl": `{"version": "1.5", "items": [
			{"path": "/sd/ROM/NES/Super Mario (USA).zip", "label": "SMB"},
			{"path": "/sd/ROM/psx/Final Quest (Japan)/Final Quest (Japan).m3u"},
			{"path": "/sd/ROM/loose.zip"},
			{"path": "/elsewhere/nes/Other.zip"}
		]}`,
		"/broken.lpl": `not json`,
	}}

	cfg := Config{Root: "/sd/ROM/", FavoritesPaths: []string{"/fav.lpl", "/broken.lpl", "/absent.lpl"}}
	set, err := newTestProvider(t, src, cfg).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Final Quest (Japan)", "Super Mario (USA)"}, set.Sorted("*"))
	assert.Equal(t, []string{"Super Mario (USA)"}, set.Sorted("nes"))
	assert.Equal(t, []string{"Final Quest (Japan)"}, set.Sorted("psx"))
}

func TestProvider_FavoritesInIndexedDirectory(t *testing.T) {
	src := &fakeSource{docs: map[string]string{
		"/fav.lpl": `{"version": "1.5", "items": [
			{"path": "/sd/ROM/gb/G/GameB.zip"},
			{"path": "/sd/ROM/gb/0-9/1942 (Japan)/1942 (Japan).m3u"},
			{"path": "/sd/ROM/nes/G/GameN.zip"}
		]}`,
	}}

	cfg := Config{
		Root:           "/sd/ROM",
		FavoritesPaths: []string{"/fav.lpl"},
		Indexed:        map[string]bool{"gb": true},
	}
	set, err := newTestProvider(t, src, cfg).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1942 (Japan)", "GameB"}, set.Sorted("gb"))
	assert.Equal(t, []string{"G"}, set.Sorted("nes"))
	assert.True(t, set.Group("gb").Has("GameB.zip"))
}

func TestFavoriteKey(t *testing.T) {
	tests := []struct {
		path      string
		dir, game string
		ok        bool
	}{
		{"/r/nes/Game.zip", "nes", "Game", true},
		{"/r/nes/Game (USA)/disc.cue", "nes", "Game (USA)", true},
		{"/r/nes/Game", "nes", "Game", true},
		{"/r/nes/", "", "", false},
		{"/r/Game.zip", "", "", false},
		{"/r", "", "", false},
		{"/other/nes/Game.zip", "", "", false},
		{"/r/gb/G/GameB.zip", "gb", "GameB", true},
		{"/r/GB/G/GameB.zip", "GB", "GameB", true},
		{"/r/gb/0-9/1942 (Japan)/disc.cue", "gb", "1942 (Japan)", true},
		{"/r/gb/G", "", "", false},
		{"/r/gb/G/", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			dir, game, ok := favoriteKey("/r/", tt.path, map[string]bool{"gb": true})
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.dir, dir)
			assert.Equal(t, tt.game, game)
		})
	}
}

func TestKeys_HasIgnoresArchiveExtension(t *testing.T) {
	set := NewSet()
	set.Add("nes", "Game (USA)")

	keys := set.Group("nes")
	assert.True(t, keys.Has("Game (USA)"))
	assert.True(t, keys.Has("Game (USA).zip"))
	assert.True(t, keys.Has("Game (USA).7z"))
	assert.False(t, keys.Has("Game (USA).nes"))
	assert.False(t, set.Group("snes").Has("Game (USA)"))
	assert.True(t, set.Group("*").Has("Game (USA).chd"))
}

func TestLazy_LoadsOnce(t *testing.T) {
	src := &fakeSource{listings: map[string][]string{
		"/states": {age(time.Minute) + " /states/nes/A.state"},
	}}

	lazy := NewLazy(newTestProvider(t, src, Config{StatesPaths: []string{"/states"}}))

	first, err := lazy.Get(context.Background())
	require.NoError(t, err)

	second, err := lazy.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, src.loads)
}

func TestLazy_FailureIsNotCached(t *testing.T) {
	src := &fakeSource{scanErr: map[string]error{"/states": remote.ErrTransport}}
	lazy := NewLazy(newTestProvider(t, src, Config{StatesPaths: []string{"/states"}}))

	_, err := lazy.Get(context.Background())
	require.Error(t, err)

	delete(src.scanErr, "/states")

	set, err := lazy.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, set.Groups())
	assert.Equal(t, 2, src.loads)
}

func TestLazy_NilProvider(t *testing.T) {
	set, err := NewLazy(nil).Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, set.Group("*"))
}

func TestProvider_LocalTree(t *testing.T) {
	root := t.TempDir()
	states := filepath.Join(root, "states", "nes")
	require.NoError(t, os.MkdirAll(states, 0o755))

	fresh := filepath.Join(states, "Fresh.state")
	stale := filepath.Join(states, "Stale.state1")
	require.NoError(t, os.WriteFile(fresh, nil, 0o644))
	require.NoError(t, os.WriteFile(stale, nil, 0o644))
	require.NoError(t, os.Chtimes(fresh, fixedNow, fixedNow.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(stale, fixedNow, fixedNow.Add(-60*24*time.Hour)))

	tree, err := remote.NewLocalTree(root, testLogger(t))
	require.NoError(t, err)

	cfg := Config{Root: root, StatesPaths: []string{filepath.Join(root, "states")}}
	set, err := newTestProvider(t, tree, cfg).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Fresh"}, set.Sorted("nes"))
}
