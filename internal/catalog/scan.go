package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// ScanOptions controls local enumeration.
type ScanOptions struct {
	Mode  Mode
	Depth int

	// Workers bounds concurrent hashing. Values below one mean one.
	Workers int

	// IgnoreMarker names a gitignore-style file at the scan root whose
	// patterns exclude paths from the catalog. Empty disables it.
	IgnoreMarker string

	Logger *slog.Logger
}

type scanItem struct {
	rel  string
	path string
	size int64
	fp   string
}

// ScanLocal enumerates the regular files below dir into a catalog.
// Relative names are NFC-normalized. A missing dir yields an empty catalog.
func ScanLocal(ctx context.Context, dir string, opts ScanOptions) (*Catalog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir = filepath.Clean(dir)

	items, err := walkLocal(dir, loadIgnore(dir, opts.IgnoreMarker, logger), opts.IgnoreMarker)
	if err != nil {
		return nil, err
	}

	if opts.Mode != ModeNone {
		if err := fingerprintAll(ctx, items, LocalFingerprinter{Mode: opts.Mode}, opts.Workers); err != nil {
			return nil, err
		}
	}

	b := NewBuilder(filepath.ToSlash(dir), opts.Mode, opts.Depth)
	for _, it := range items {
		if err := b.AddRelative(it.rel, it.path, it.fp, it.size); err != nil {
			return nil, err
		}
	}

	logger.Debug("scanned local catalog",
		slog.String("dir", dir),
		slog.String("mode", opts.Mode.String()),
		slog.Int("files", len(items)),
		slog.Int("entries", b.Catalog().Len()),
	)

	return b.Catalog(), nil
}

func loadIgnore(dir, marker string, logger *slog.Logger) *ignore.GitIgnore {
	if marker == "" {
		return nil
	}

	gi, err := ignore.CompileIgnoreFile(filepath.Join(dir, marker))
	if err != nil {
		return nil
	}

	logger.Debug("loaded ignore file", slog.String("path", filepath.Join(dir, marker)))

	return gi
}

func walkLocal(dir string, gi *ignore.GitIgnore, marker string) ([]scanItem, error) {
	var items []scanItem

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}

			return err
		}

		if p == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)

		if gi != nil {
			// go-gitignore matches directories by their trailing slash.
			match := rel
			if d.IsDir() {
				match += "/"
			}

			if gi.MatchesPath(match) {
				if d.IsDir() {
					return fs.SkipDir
				}

				return nil
			}
		}

		if d.IsDir() || !d.Type().IsRegular() || rel == marker {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		items = append(items, scanItem{
			rel:  norm.NFC.String(rel),
			path: p,
			size: info.Size(),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: walking %s: %w", dir, err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].rel < items[j].rel })

	return items, nil
}

func fingerprintAll(ctx context.Context, items []scanItem, fp Fingerprinter, workers int) error {
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range items {
		g.Go(func() error {
			v, err := fp.Fingerprint(gctx, items[i].path)
			if err != nil {
				return err
			}

			items[i].fp = v

			return nil
		})
	}

	return g.Wait()
}
