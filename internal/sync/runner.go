package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/yuichietsu/retroarch-sync/internal/catalog"
	"github.com/yuichietsu/retroarch-sync/internal/config"
	"github.com/yuichietsu/retroarch-sync/internal/locks"
	"github.com/yuichietsu/retroarch-sync/internal/policy"
	"github.com/yuichietsu/retroarch-sync/internal/remote"
	"github.com/yuichietsu/retroarch-sync/internal/selection"
)

// RunOpts holds per-run options.
type RunOpts struct {
	DryRun  bool
	Catalog string // only this catalog; empty runs all
	Dir     string // only this source directory; empty runs all
	Policy  string // replaces the target policy of Dir
	Seed    uint64 // seeds the random selection; zero picks a random seed
}

// RunnerConfig holds the inputs for NewRunner.
type RunnerConfig struct {
	Catalog     *config.Catalog
	Destination Destination
	Engine      *Engine
	Locks       *locks.Lazy
	Sizer       selection.UnpackedSizer // *archive.Tool
	Rand        *rand.Rand
	Multipart   *regexp.Regexp
	Regions     []string
	Scan        catalog.ScanOptions // Workers and IgnoreMarker are used
	Logger      *slog.Logger
}

// Runner reconciles every target directory of one catalog.
type Runner struct {
	cfg    RunnerConfig
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Locks == nil {
		cfg.Locks = locks.NewLazy(nil)
	}

	return &Runner{cfg: cfg, logger: logger.With(slog.String("catalog", cfg.Catalog.Name))}
}

// Run visits the source directories in name order and reconciles those
// with a target policy. Directories without a target and directories whose
// policy cannot be used are skipped. The first fatal error stops the run;
// the reports gathered so far are returned with it.
func (r *Runner) Run(ctx context.Context, opts RunOpts) ([]DirReport, error) {
	cat := r.cfg.Catalog

	ents, err := os.ReadDir(cat.Source)
	if err != nil {
		return nil, fmt.Errorf("sync: listing source %s: %w", cat.Source, err)
	}

	var reports []DirReport

	for _, ent := range ents {
		if !ent.IsDir() {
			continue
		}

		name := ent.Name()
		if opts.Dir != "" && name != opts.Dir {
			continue
		}

		raw, ok := cat.Targets[name]
		if opts.Dir != "" && opts.Policy != "" {
			raw, ok = opts.Policy, true
		}

		if !ok {
			r.logger.Debug("no target, skipping", slog.String("dir", name))
			continue
		}

		if err := ctx.Err(); err != nil {
			return reports, err
		}

		rep, err := r.syncTarget(ctx, name, raw, opts.DryRun)
		if rep != nil {
			reports = append(reports, *rep)
		}

		if err != nil {
			return reports, err
		}
	}

	return reports, nil
}

// syncTarget reconciles one source directory. It returns a nil report when
// the directory is skipped.
func (r *Runner) syncTarget(ctx context.Context, name, raw string, dryRun bool) (*DirReport, error) {
	logger := r.logger.With(slog.String("dir", name))

	opts, err := policy.Parse(raw)
	if err != nil {
		logger.Warn("unusable policy, skipping", slog.String("policy", raw), slog.String("error", err.Error()))
		return nil, nil
	}

	logger.Info("scanning", slog.String("policy", raw))

	data := r.loadData(name, logger)

	mode := catalog.ModeNone
	if opts.Mode == policy.ModeFull {
		mode = catalog.ModeHash
	}

	scan := r.cfg.Scan
	scan.Mode = mode
	scan.Depth = catalog.DefaultDepth
	scan.Logger = logger

	src, err := catalog.ScanLocal(ctx, filepath.Join(r.cfg.Catalog.Source, name), scan)
	if err != nil {
		return nil, err
	}

	var keys locks.Keys

	if opts.Lock {
		set, err := r.cfg.Locks.Get(ctx)
		if err != nil {
			return nil, err
		}

		keys = set.Group(opts.LockGroup)
	}

	res, err := r.selector(opts).Select(ctx, src, selection.Request{Options: opts, Locks: keys, Deps: data.Deps})
	if errors.Is(err, selection.ErrNoBudget) {
		logger.Warn("unusable policy, skipping", slog.String("policy", raw), slog.String("error", err.Error()))
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	destDir := name
	if opts.Rename != "" {
		destDir = opts.Rename
	}

	rep := &DirReport{
		Catalog:         r.cfg.Catalog.Name,
		Dir:             name,
		Dest:            path.Join(r.cfg.Destination.Root(), destDir),
		Policy:          raw,
		DryRun:          dryRun,
		Selected:        res.Catalog.Len(),
		Bytes:           res.Bytes,
		DependencyBytes: res.DependencyBytes,
	}

	t := &Target{Dir: rep.Dest, Options: opts, Data: data, Locks: keys}

	if opts.Index > 0 {
		err = r.syncIndexed(ctx, t, res.Catalog, rep, logger)
	} else {
		err = r.syncDir(ctx, t, res.Catalog, rep, "")
	}

	logger.Info("directory reconciled",
		slog.Int("new", rep.New),
		slog.Int("updated", rep.Updated),
		slog.Int("same", rep.Same),
		slog.Int("deleted", rep.Deleted),
		slog.Int("locked", rep.Locked),
		slog.Bool("dry_run", dryRun),
	)

	return rep, err
}

func (r *Runner) selector(opts *policy.Options) *selection.Selector {
	sizer := selection.FileSizer{
		Tool:     r.cfg.Sizer,
		Unpacked: func(e *catalog.Entry) bool {
			return Classify(e, opts).Kind() != PassThrough
		},
	}

	s := selection.New(sizer, r.cfg.Rand, r.cfg.Multipart, r.logger)
	if len(r.cfg.Regions) > 0 {
		s = s.WithRegions(r.cfg.Regions)
	}

	return s
}

// loadData reads the directory's catalog data file. A missing or broken
// file is logged and treated as empty.
func (r *Runner) loadData(name string, logger *slog.Logger) *config.CatalogData {
	p, ok := r.cfg.Catalog.Data[name]
	if !ok {
		return &config.CatalogData{}
	}

	data, err := config.LoadData(p)
	if err != nil {
		logger.Warn("catalog data unusable, continuing without it", slog.String("error", err.Error()))
		return &config.CatalogData{}
	}

	return data
}

// syncDir reconciles src into t.Dir and folds the result into rep. prefix
// is prepended to the destination keys of recorded actions.
func (r *Runner) syncDir(ctx context.Context, t *Target, src *catalog.Catalog, rep *DirReport, prefix string) error {
	dst := r.cfg.Destination

	if !rep.DryRun {
		if err := dst.Mkdir(ctx, t.Dir); err != nil {
			return err
		}
	}

	listing, err := scanDest(ctx, dst, t.Dir, r.logger)
	if err != nil {
		return err
	}

	plan, err := r.cfg.Engine.Plan(ctx, t, src, listing)
	if err != nil {
		return err
	}

	var (
		counts  Counts
		actions []Action
	)

	if rep.DryRun {
		counts, actions = plan.Counts(), plan.Actions()
		for _, a := range actions {
			r.logger.Info("would "+string(a.Kind), slog.String("key", a.Key), slog.String("dest_key", a.DestKey))
		}
	} else {
		counts, actions, err = r.cfg.Engine.Apply(ctx, plan)
	}

	rep.Counts.Add(counts)

	for _, a := range actions {
		if prefix != "" {
			a.DestKey = path.Join(prefix, a.DestKey)
		}

		rep.Actions = append(rep.Actions, a)
	}

	return err
}

// syncIndexed reconciles each index bucket into its own subdirectory, then
// empties subdirectories that no longer correspond to a bucket and removes
// those left without locked entries.
func (r *Runner) syncIndexed(
	ctx context.Context, t *Target, src *catalog.Catalog, rep *DirReport, logger *slog.Logger,
) error {
	dst := r.cfg.Destination
	root := t.Dir

	if !rep.DryRun {
		if err := dst.Mkdir(ctx, root); err != nil {
			return err
		}
	}

	names, parts := Partition(src, t.Options.Index)

	for _, b := range names {
		logger.Info("index bucket", slog.String("bucket", b), slog.Int("entries", parts[b].Len()))

		bt := *t
		bt.Dir = path.Join(root, b)

		if err := r.syncDir(ctx, &bt, parts[b], rep, b); err != nil {
			return err
		}
	}

	children, err := dst.Dirs(ctx, root)
	if err != nil && !errors.Is(err, remote.ErrFatalOutput) {
		return err
	}

	for _, child := range children {
		if _, ok := parts[child]; ok {
			continue
		}

		// Stale buckets are planned against an empty source: unlocked
		// entries are deleted and locked ones kept.
		bt := *t
		bt.Dir = path.Join(root, child)
		locked := rep.Locked

		if err := r.syncDir(ctx, &bt, catalog.New(path.Join(src.Base, child), src.Mode), rep, child); err != nil {
			return err
		}

		if n := rep.Locked - locked; n > 0 {
			logger.Info("keeping stale bucket with locked entries",
				slog.String("bucket", child), slog.Int("locked", n))

			continue
		}

		logger.Info("removing stale bucket", slog.String("bucket", child))

		if !rep.DryRun {
			if err := dst.Remove(ctx, bt.Dir); err != nil {
				return err
			}
		}

		rep.Actions = append(rep.Actions, Action{Kind: ActionPrune, Key: child, DestKey: child})
	}

	return nil
}
