package sync

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yuichietsu/retroarch-sync/internal/archive"
	"github.com/yuichietsu/retroarch-sync/internal/catalog"
	"github.com/yuichietsu/retroarch-sync/internal/config"
	"github.com/yuichietsu/retroarch-sync/internal/locks"
	"github.com/yuichietsu/retroarch-sync/internal/policy"
	"github.com/yuichietsu/retroarch-sync/internal/remote"
	"github.com/yuichietsu/retroarch-sync/internal/shell"
	"github.com/yuichietsu/retroarch-sync/internal/suggest"
)

// lockedDestination is a destination the lock provider can also read.
// *remote.Device and *remote.LocalTree satisfy it.
type lockedDestination interface {
	Destination
	locks.Source
}

// destinationFactory opens the destination of one catalog. The real
// implementation talks to the device; tests inject in-memory trees.
type destinationFactory func(ctx context.Context, cat *config.Catalog) (lockedDestination, error)

// OrchestratorConfig holds the inputs for creating an Orchestrator.
type OrchestratorConfig struct {
	Config  *config.Config
	Shell   shell.Runner // runs adb and the archive tools
	Journal *Journal     // optional run journal
	Logger  *slog.Logger
}

// Orchestrator runs every configured catalog in turn. Catalogs share one
// device connection, one scratch root, and one lock set per destination
// root for the duration of a run.
type Orchestrator struct {
	cfg            *OrchestratorConfig
	newDestination destinationFactory
	adb            *remote.ADB
	nowFunc        func() time.Time
	logger         *slog.Logger
}

// NewOrchestrator creates an Orchestrator backed by adb.
func NewOrchestrator(cfg *OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{cfg: cfg, nowFunc: time.Now, logger: logger}
	o.newDestination = o.openDestination

	return o
}

// openDestination returns a LocalTree for local catalogs and a Device for
// the rest. The adb connection is established once, on first use.
func (o *Orchestrator) openDestination(ctx context.Context, cat *config.Catalog) (lockedDestination, error) {
	if cat.Local {
		tree, err := remote.NewLocalTree(cat.Destination, o.logger)
		if err != nil {
			return nil, err
		}

		return tree, nil
	}

	if o.adb == nil {
		r := o.cfg.Config.Remote

		adb := remote.NewADB(remote.ADBConfig{
			Path:          r.ADBPath,
			Serial:        r.Serial,
			RetryCount:    r.RetryCount,
			RetryInterval: r.RetryIntervalDuration(),
			FatalOutput:   r.FatalSubstring,
		}, o.cfg.Shell, o.logger)

		if err := adb.Connect(ctx); err != nil {
			return nil, err
		}

		o.adb = adb
	}

	dev, err := remote.NewDevice(o.adb, cat.Destination, o.logger)
	if err != nil {
		return nil, err
	}

	return dev, nil
}

// RunOnce runs the selected catalogs once and records the run in the
// journal when one is configured. Journal failures are logged, never
// returned.
func (o *Orchestrator) RunOnce(ctx context.Context, opts RunOpts) (*RunReport, error) {
	rep := &RunReport{ID: uuid.NewString(), Started: o.nowFunc(), DryRun: opts.DryRun}
	j := o.cfg.Journal

	if j != nil {
		if err := j.Begin(ctx, rep); err != nil {
			o.logger.Warn("journal: recording run start failed", slog.String("error", err.Error()))
		}
	}

	o.logger.Info("run starting", slog.String("run_id", rep.ID), slog.Bool("dry_run", opts.DryRun))

	err := o.run(ctx, opts, rep)
	rep.Duration = o.nowFunc().Sub(rep.Started)

	if j != nil {
		if jErr := j.Finish(context.WithoutCancel(ctx), rep, err); jErr != nil {
			o.logger.Warn("journal: recording run result failed", slog.String("error", jErr.Error()))
		}
	}

	totals := rep.Totals()
	o.logger.Info("run finished",
		slog.String("run_id", rep.ID),
		slog.Int("dirs", len(rep.Dirs)),
		slog.Int("new", totals.New),
		slog.Int("updated", totals.Updated),
		slog.Int("same", totals.Same),
		slog.Int("deleted", totals.Deleted),
		slog.Duration("duration", rep.Duration),
	)

	return rep, err
}

func (o *Orchestrator) run(ctx context.Context, opts RunOpts, rep *RunReport) error {
	cfg := o.cfg.Config

	cats, err := o.catalogs(opts.Catalog)
	if err != nil {
		return err
	}

	scratch, err := archive.NewScratch(cfg.Tools.ScratchRoot())
	if err != nil {
		return err
	}

	multipart, err := regexp.Compile(cfg.Tools.MultipartPattern)
	if err != nil {
		return fmt.Errorf("sync: multipart pattern: %w", err)
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // selection, not security
	}

	o.logger.Debug("selection seed", slog.Uint64("seed", seed))

	rnd := rand.New(rand.NewPCG(seed, seed)) //nolint:gosec // selection, not security
	tool := archive.NewTool(o.cfg.Shell, o.logger)
	lockSets := make(map[string]*locks.Lazy)

	for _, cat := range cats {
		dst, err := o.newDestination(ctx, cat)
		if err != nil {
			return err
		}

		lazy := o.lockSet(lockSets, dst)

		runner := NewRunner(RunnerConfig{
			Catalog:     cat,
			Destination: dst,
			Engine: NewEngine(EngineConfig{
				Destination: dst,
				Archiver:    tool,
				Scratch:     scratch,
				Multipart:   multipart,
				Logger:      o.logger,
			}),
			Locks:     lazy,
			Sizer:     tool,
			Rand:      rnd,
			Multipart: multipart,
			Regions:   cfg.Tools.Regions,
			Scan: catalog.ScanOptions{
				Workers:      cfg.Tools.HashWorkers,
				IgnoreMarker: cfg.Tools.IgnoreMarker,
			},
			Logger: o.logger,
		})

		dirs, err := runner.Run(ctx, opts)
		rep.Dirs = append(rep.Dirs, dirs...)

		if err != nil {
			return fmt.Errorf("sync: catalog %s: %w", cat.Name, err)
		}
	}

	return nil
}

// lockSet returns the memoized lock set of dst's root, creating it on first
// use.
func (o *Orchestrator) lockSet(sets map[string]*locks.Lazy, dst lockedDestination) *locks.Lazy {
	if lazy, ok := sets[dst.Root()]; ok {
		return lazy
	}

	l := o.cfg.Config.Locks
	lazy := locks.NewLazy(locks.NewProvider(dst, locks.Config{
		Root:           dst.Root(),
		StatesPaths:    l.StatesPaths,
		FavoritesPaths: l.FavoritesPaths,
		Retention:      l.RetentionDuration(),
		Indexed:        indexedDirs(o.cfg.Config.Catalogs),
	}, o.logger))
	sets[dst.Root()] = lazy

	return lazy
}

// indexedDirs returns the lower-cased destination directories whose policy
// splits them into index buckets. Unparsable policies are left out.
func indexedDirs(cats []config.Catalog) map[string]bool {
	out := make(map[string]bool)

	for i := range cats {
		for dir, raw := range cats[i].Targets {
			opts, err := policy.Parse(raw)
			if err != nil || opts.Index == 0 {
				continue
			}

			if opts.Rename != "" {
				dir = opts.Rename
			}

			out[strings.ToLower(dir)] = true
		}
	}

	return out
}

// CatalogLocks is the lock set seen from one catalog's destination.
type CatalogLocks struct {
	Catalog string
	Root    string
	Set     *locks.Set
}

// Locks loads the lock set of every selected catalog. Catalogs sharing a
// destination root share one load.
func (o *Orchestrator) Locks(ctx context.Context, name string) ([]CatalogLocks, error) {
	cats, err := o.catalogs(name)
	if err != nil {
		return nil, err
	}

	sets := make(map[string]*locks.Lazy)
	out := make([]CatalogLocks, 0, len(cats))

	for _, cat := range cats {
		dst, err := o.newDestination(ctx, cat)
		if err != nil {
			return nil, err
		}

		set, err := o.lockSet(sets, dst).Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("sync: loading locks for %s: %w", cat.Name, err)
		}

		out = append(out, CatalogLocks{Catalog: cat.Name, Root: dst.Root(), Set: set})
	}

	return out, nil
}

// catalogs returns the catalogs a run covers.
func (o *Orchestrator) catalogs(name string) ([]*config.Catalog, error) {
	cfg := o.cfg.Config

	if name == "" {
		out := make([]*config.Catalog, len(cfg.Catalogs))
		for i := range cfg.Catalogs {
			out[i] = &cfg.Catalogs[i]
		}

		return out, nil
	}

	cat, ok := cfg.FindCatalog(name)
	if ok {
		return []*config.Catalog{cat}, nil
	}

	names := make([]string, len(cfg.Catalogs))
	for i := range cfg.Catalogs {
		names[i] = cfg.Catalogs[i].Name
	}

	if s := suggest.Closest(name, names); s != "" {
		return nil, fmt.Errorf("sync: unknown catalog %q (did you mean %q?)", name, s)
	}

	return nil, fmt.Errorf("sync: unknown catalog %q", name)
}
