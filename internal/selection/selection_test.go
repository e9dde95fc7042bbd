package selection

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuichietsu/retroarch-sync/internal/catalog"
	"github.com/yuichietsu/retroarch-sync/internal/locks"
	"github.com/yuichietsu/retroarch-sync/internal/policy"
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

type sized struct {
	key  string
	size int64
}

func sizedCatalog(items ...sized) *catalog.Catalog {
	c := catalog.New("/src/nes", catalog.ModeNone)
	for _, it := range items {
		c.Put(&catalog.Entry{Key: it.key, Files: []catalog.FileRecord{{
			SourcePath:   "/src/nes/" + it.key,
			RelativeName: it.key,
			Size:         it.size,
		}}})
	}

	return c
}

func keysOf(items ...string) *catalog.Catalog {
	out := make([]sized, 0, len(items))
	for _, k := range items {
		out = append(out, sized{key: k, size: 1})
	}

	return sizedCatalog(out...)
}

func parse(t *testing.T, s string) *policy.Options {
	t.Helper()

	opts, err := policy.Parse(s)
	require.NoError(t, err)

	return opts
}

func newSelector(t *testing.T, seed uint64) *Selector {
	t.Helper()

	return New(FileSizer{}, rand.New(rand.NewPCG(seed, seed+1)), nil, testLogger(t))
}

func lockKeys(keys ...string) locks.Keys {
	set := locks.NewSet()
	for _, k := range keys {
		set.Add("nes", k)
	}

	return set.Group("nes")
}

func TestSelect_FullAppliesFilters(t *testing.T) {
	src := keysOf(
		"Bomber (Unl).zip",
		"Mario (Japan).zip",
		"Mario (USA).zip",
		"Tetris (Pirate).zip",
		"Zelda (USA) [b1].zip",
		"Zelda (USA).zip",
	)

	res, err := newSelector(t, 1).Select(context.Background(), src, Request{
		Options: parse(t, "full:official,excl([b1]),1g1r(usa)"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Mario (USA).zip", "Zelda (USA).zip"}, res.Catalog.Keys())
}

func TestSelect_FilterModeMatchesNormalizedKey(t *testing.T) {
	src := keysOf("Final Fight (USA).zip", "Fire Emblem (Japan).zip", "Mario (USA).zip")

	res, err := newSelector(t, 1).Select(context.Background(), src, Request{
		Options: parse(t, "filter:list(^final fight|emblem)"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Final Fight (USA).zip", "Fire Emblem (Japan).zip"}, res.Catalog.Keys())
}

func TestSelect_NoBudget(t *testing.T) {
	_, err := newSelector(t, 1).Select(context.Background(), keysOf("a.zip"), Request{
		Options: parse(t, "random:lock"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoBudget))
}

func TestSelect_CountForcedAlwaysPresent(t *testing.T) {
	src := keysOf("a.zip", "b.zip", "c.zip", "d.zip", "e.zip", "f.zip", "Zelda.zip")
	req := Request{Options: parse(t, "random:3,lock,incl(^zel)"), Locks: lockKeys("c")}

	for seed := range uint64(20) {
		res, err := newSelector(t, seed).Select(context.Background(), src, req)
		require.NoError(t, err)

		assert.Equal(t, 3, res.Catalog.Len())
		assert.True(t, res.Catalog.Has("c.zip"), "locked entry must be selected")
		assert.True(t, res.Catalog.Has("Zelda.zip"), "included entry must be selected")
		assert.Equal(t, []string{"c.zip", "Zelda.zip"}, res.Forced)
	}
}

func TestSelect_CountLocksIgnoredWithoutLockOption(t *testing.T) {
	src := keysOf("a.zip", "b.zip", "c.zip")

	res, err := newSelector(t, 3).Select(context.Background(), src, Request{
		Options: parse(t, "random:1"),
		Locks:   lockKeys("a", "b", "c"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Catalog.Len())
	assert.Empty(t, res.Forced)
}

func TestSelect_CountForcedExceedsBudget(t *testing.T) {
	src := keysOf("a.zip", "b.zip", "c.zip", "d.zip")

	res, err := newSelector(t, 1).Select(context.Background(), src, Request{
		Options: parse(t, "random:1,incl(a|b|c)"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.zip", "b.zip", "c.zip"}, res.Catalog.Keys())
}

func TestSelect_CountIsDeterministicForSeed(t *testing.T) {
	src := keysOf("a", "b", "c", "d", "e", "f", "g", "h", "i", "j")
	req := Request{Options: parse(t, "random:4")}

	first, err := newSelector(t, 42).Select(context.Background(), src, req)
	require.NoError(t, err)

	second, err := newSelector(t, 42).Select(context.Background(), src, req)
	require.NoError(t, err)

	assert.Equal(t, first.Catalog.Keys(), second.Catalog.Keys())
}

func TestSelect_DependenciesResolveAgainstOriginalCatalog(t *testing.T) {
	src := keysOf("kof98.zip", "mslug.zip", "neogeo.zip")

	res, err := newSelector(t, 1).Select(context.Background(), src, Request{
		Options: parse(t, "random:1,incl(kof98),excl(neogeo)"),
		Deps:    map[string][]string{"kof98": {"neogeo", "missing"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"kof98.zip", "neogeo.zip"}, res.Catalog.Keys())
	assert.Equal(t, []string{"neogeo.zip"}, res.Dependencies)
}

func TestSelect_DependenciesReachFixedPoint(t *testing.T) {
	src := keysOf("a.zip", "b.zip", "c.zip", "d.zip")
	deps := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}

	res, err := newSelector(t, 1).Select(context.Background(), src, Request{
		Options: parse(t, "random:1,incl(a)"),
		Deps:    deps,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.zip", "b.zip", "c.zip"}, res.Catalog.Keys())
	assert.Equal(t, []string{"b.zip", "c.zip"}, res.Dependencies)
}

func TestSelect_SizeRespectsBudget(t *testing.T) {
	src := sizedCatalog(
		sized{"a", 300}, sized{"b", 450}, sized{"c", 120}, sized{"d", 610},
		sized{"e", 90}, sized{"f", 330}, sized{"g", 250}, sized{"h", 75},
	)
	opts := parse(t, "random:1k")

	for seed := range uint64(50) {
		res, err := newSelector(t, seed).Select(context.Background(), src, Request{Options: opts})
		require.NoError(t, err)

		var sum int64
		for _, e := range res.Catalog.Entries() {
			sum += e.Size()
		}

		assert.LessOrEqual(t, sum, int64(1024))
		assert.Equal(t, sum, res.Bytes)
		assert.Positive(t, res.Catalog.Len())
	}
}

func TestSelect_SizeForcedOverBudget(t *testing.T) {
	src := sizedCatalog(
		sized{"big.zip", 900_000},
		sized{"c1.zip", 200_000},
		sized{"c2.zip", 200_000},
		sized{"c3.zip", 200_000},
	)

	for seed := range uint64(10) {
		res, err := newSelector(t, seed).Select(context.Background(), src, Request{
			Options: &policy.Options{Mode: policy.ModeRandom, Bytes: 1_000_000, Include: []string{"big"}},
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"big.zip"}, res.Catalog.Keys())
		assert.Equal(t, int64(900_000), res.Bytes)
	}
}

func TestSelect_SizeSkipsRandomPassWhenForcedExceeds(t *testing.T) {
	src := sizedCatalog(sized{"big.zip", 2000}, sized{"small.zip", 1})

	res, err := newSelector(t, 1).Select(context.Background(), src, Request{
		Options: parse(t, "random:1k,incl(big)"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"big.zip"}, res.Catalog.Keys())
}

func TestSelect_SizeAdmitsSiblingDiscs(t *testing.T) {
	src := sizedCatalog(
		sized{"Quest (Disc 1).chd", 900},
		sized{"Quest (Disc 2).chd", 900},
		sized{"Quest (Disc 3).chd", 900},
		sized{"Solo.chd", 5000},
	)

	res, err := newSelector(t, 7).Select(context.Background(), src, Request{
		Options: parse(t, "random:1k,disks,incl(disc 1)"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Quest (Disc 1).chd", "Quest (Disc 2).chd", "Quest (Disc 3).chd"}, res.Catalog.Keys())

	res, err = newSelector(t, 7).Select(context.Background(), src, Request{
		Options: parse(t, "random:1k,incl(disc 1)"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Quest (Disc 1).chd"}, res.Catalog.Keys(), "without disks the set is not forced")
}

func TestSelect_SizeDependenciesIgnoreBudget(t *testing.T) {
	src := sizedCatalog(sized{"bios.zip", 5000}, sized{"game.zip", 100})

	res, err := newSelector(t, 1).Select(context.Background(), src, Request{
		Options: parse(t, "random:1k,incl(game)"),
		Deps:    map[string][]string{"game": {"bios"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"bios.zip", "game.zip"}, res.Catalog.Keys())
	assert.Equal(t, int64(5100), res.Bytes)
	assert.Equal(t, int64(5000), res.DependencyBytes)
}

func TestSelect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSelector(t, 1).Select(ctx, sizedCatalog(sized{"a", 1}), Request{Options: parse(t, "random:1k")})
	require.ErrorIs(t, err, context.Canceled)
}

type fakeUnpacked struct{ sizes map[string]int64 }

func (f fakeUnpacked) UncompressedSize(_ context.Context, p string) (int64, error) {
	n, ok := f.sizes[p]
	if !ok {
		return 0, errors.New("no listing")
	}

	return n, nil
}

func TestFileSizer(t *testing.T) {
	tool := fakeUnpacked{sizes: map[string]int64{"/src/nes/a.7z": 4096}}
	e := &catalog.Entry{Key: "a.7z", Files: []catalog.FileRecord{{SourcePath: "/src/nes/a.7z", RelativeName: "a.7z", Size: 1000}}}
	always := func(*catalog.Entry) bool { return true }

	n, err := FileSizer{Tool: tool}.Size(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)

	n, err = FileSizer{Tool: tool, Unpacked: func(*catalog.Entry) bool { return false }}.Size(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)

	n, err = FileSizer{Tool: tool, Unpacked: always}.Size(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), n)

	multi := &catalog.Entry{Key: "g", Files: []catalog.FileRecord{
		{SourcePath: "/src/nes/g/1.bin", RelativeName: "g/1.bin", Size: 10},
		{SourcePath: "/src/nes/g/2.bin", RelativeName: "g/2.bin", Size: 20},
	}}

	n, err = FileSizer{Tool: tool, Unpacked: always}.Size(context.Background(), multi)
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)
}

func TestFileSizer_UnpackedIsAskedPerEntry(t *testing.T) {
	tool := fakeUnpacked{sizes: map[string]int64{"/src/psx/a.7z": 4096, "/src/psx/b.zip": 2048}}
	a := &catalog.Entry{Key: "a.7z", Files: []catalog.FileRecord{{SourcePath: "/src/psx/a.7z", RelativeName: "a.7z", Size: 1000}}}
	b := &catalog.Entry{Key: "b.zip", Files: []catalog.FileRecord{{SourcePath: "/src/psx/b.zip", RelativeName: "b.zip", Size: 500}}}

	var asked []string

	sizer := FileSizer{Tool: tool, Unpacked: func(e *catalog.Entry) bool {
		asked = append(asked, e.Key)
		return e.Key == "a.7z"
	}}

	n, err := sizer.Size(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), n)

	n, err = sizer.Size(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, int64(500), n)

	assert.Equal(t, []string{"a.7z", "b.zip"}, asked)
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern, key string
		want         bool
	}{
		{"mario", "Super Mario (USA).zip", true},
		{"MARIO", "super mario.zip", true},
		{"^super", "Super Mario.zip", true},
		{"^mario", "Super Mario.zip", false},
		{"*(usa)*", "Super Mario (USA).zip", true},
		{"*.7z", "Super Mario (USA).zip", false},
		{"[b1]", "Zelda [b1].zip", true},
		{"zelda", "Mario.zip", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.pattern, tt.key))
		})
	}
}
