package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yuichietsu/retroarch-sync/internal/config"
)

// Watcher error backoff.
const (
	watchErrInitBackoff = 1 * time.Second
	watchErrMaxBackoff  = 30 * time.Second
	watchErrBackoffMult = 2
)

// FsWatcher is the subset of fsnotify.Watcher used by SourceWatcher.
// Tests substitute a channel-backed fake.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWatcher{w: w}, nil
}

func (f *fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

// RunFunc performs one reconciliation run.
type RunFunc func(ctx context.Context) error

// SourceWatcher triggers a run once the watched source trees have been quiet
// for the debounce period after a change. Watches are not recursive: the
// source root catches new target directories and each target directory
// catches entries being added, removed, or replaced.
type SourceWatcher struct {
	roots    []string
	debounce time.Duration
	run      RunFunc
	logger   *slog.Logger

	watcherFactory func() (FsWatcher, error)
	sleepFunc      func(ctx context.Context, d time.Duration) error
}

// NewSourceWatcher creates a watcher over every catalog source in cfg.
func NewSourceWatcher(cfg *config.Config, run RunFunc, logger *slog.Logger) *SourceWatcher {
	if logger == nil {
		logger = slog.Default()
	}

	roots := make([]string, 0, len(cfg.Catalogs))
	for i := range cfg.Catalogs {
		roots = append(roots, cfg.Catalogs[i].Source)
	}

	return &SourceWatcher{
		roots:          roots,
		debounce:       cfg.Watch.DebounceDuration(),
		run:            run,
		logger:         logger,
		watcherFactory: newFsnotifyWatcher,
		sleepFunc:      timeSleep,
	}
}

// Watch runs once immediately, then again after each settled burst of
// changes. It returns nil when ctx is cancelled. Run failures are logged and
// watching continues.
func (w *SourceWatcher) Watch(ctx context.Context) error {
	watcher, err := w.watcherFactory()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	defer watcher.Close()

	added := 0

	for _, root := range w.roots {
		for _, p := range watchPaths(root) {
			if addErr := watcher.Add(p); addErr != nil {
				w.logger.Warn("failed to watch directory",
					slog.String("path", p), slog.String("error", addErr.Error()))

				continue
			}

			added++
		}
	}

	if added == 0 {
		return fmt.Errorf("no source directories could be watched")
	}

	w.logger.Info("watching sources",
		slog.Int("directories", added),
		slog.Duration("debounce", w.debounce),
	)

	w.runOnce(ctx)

	return w.watchLoop(ctx, watcher)
}

// watchPaths returns root followed by its immediate subdirectories, sorted.
func watchPaths(root string) []string {
	paths := []string{root}

	entries, err := os.ReadDir(root)
	if err != nil {
		return paths
	}

	var dirs []string

	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}

	sort.Strings(dirs)

	return append(paths, dirs...)
}

func (w *SourceWatcher) watchLoop(ctx context.Context, watcher FsWatcher) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			errBackoff = watchErrInitBackoff

			if !w.relevant(ev, watcher) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case watchErr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if sleepErr := w.sleepFunc(ctx, errBackoff); sleepErr != nil {
				return nil
			}

			errBackoff *= watchErrBackoffMult
			if errBackoff > watchErrMaxBackoff {
				errBackoff = watchErrMaxBackoff
			}

		case <-fire:
			timer, fire = nil, nil

			w.logger.Info("source changes settled, starting run")
			w.runOnce(ctx)
		}
	}
}

// relevant reports whether ev should schedule a run. New directories directly
// under a source root are added to the watch set.
func (w *SourceWatcher) relevant(ev fsnotify.Event, watcher FsWatcher) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}

	w.logger.Debug("source change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))

	if !ev.Has(fsnotify.Create) || !w.isRoot(filepath.Dir(ev.Name)) {
		return true
	}

	info, err := os.Stat(ev.Name)
	if err != nil || !info.IsDir() {
		return true
	}

	if addErr := watcher.Add(ev.Name); addErr != nil {
		w.logger.Warn("failed to watch new directory",
			slog.String("path", ev.Name), slog.String("error", addErr.Error()))
	}

	return true
}

func (w *SourceWatcher) isRoot(dir string) bool {
	for _, r := range w.roots {
		if filepath.Clean(r) == filepath.Clean(dir) {
			return true
		}
	}

	return false
}

func (w *SourceWatcher) runOnce(ctx context.Context) {
	if err := w.run(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("run failed", slog.String("error", err.Error()))
	}
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
