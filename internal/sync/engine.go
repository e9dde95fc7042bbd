package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/yuichietsu/retroarch-sync/internal/archive"
	"github.com/yuichietsu/retroarch-sync/internal/catalog"
	"github.com/yuichietsu/retroarch-sync/internal/config"
	"github.com/yuichietsu/retroarch-sync/internal/locks"
	"github.com/yuichietsu/retroarch-sync/internal/policy"
	"github.com/yuichietsu/retroarch-sync/internal/selection"
)

// EngineConfig holds the collaborators for NewEngine.
type EngineConfig struct {
	Destination Destination
	Archiver    Archiver         // satisfied by *archive.Tool
	Scratch     *archive.Scratch // entry-scoped temporary directories
	Multipart   *regexp.Regexp   // nil uses selection.DefaultMultipartPattern
	Logger      *slog.Logger
}

// Engine reconciles one destination directory at a time. It is sequential:
// one destination or tool operation is in flight at any moment.
type Engine struct {
	dst       Destination
	archiver  Archiver
	scratch   *archive.Scratch
	local     catalog.Fingerprinter
	multipart *regexp.Regexp
	logger    *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	multipart := cfg.Multipart
	if multipart == nil {
		multipart = regexp.MustCompile(selection.DefaultMultipartPattern)
	}

	return &Engine{
		dst:       cfg.Destination,
		archiver:  cfg.Archiver,
		scratch:   cfg.Scratch,
		local:     catalog.LocalFingerprinter{Mode: catalog.ModeHash},
		multipart: multipart,
		logger:    logger,
	}
}

// Target is one destination directory pass.
type Target struct {
	Dir     string // absolute destination directory
	Options *policy.Options
	Data    *config.CatalogData // may be nil
	Locks   locks.Keys          // protected destination keys; nil protects nothing
}

// Decision is the classification of one selected source entry.
type Decision struct {
	Key       string
	DestKey   string
	Class     Classification
	Transform Transform
	Entry     *catalog.Entry
}

// Plan is the outcome of comparing a selected source catalog with a
// destination listing. Building it issues no mutations.
type Plan struct {
	Target    *Target
	Decisions []Decision // source catalog order

	Deletes []string // destination keys to remove
	Locked  []string // destination-only keys kept because they are locked

	Stubs     []string // clone placeholder files to create
	Playlists []string // multi-disc playlists expected to exist afterwards
}

// Counts returns the counts the plan would produce. Playlists are not
// counted because whether one changes is only known after the entries
// have been applied.
func (p *Plan) Counts() Counts {
	c := Counts{Deleted: len(p.Deletes), Locked: len(p.Locked), Stubs: len(p.Stubs)}

	for _, d := range p.Decisions {
		switch d.Class {
		case ClassNew:
			c.New++
		case ClassUpdated:
			c.Updated++
		case ClassSame:
			c.Same++
		}
	}

	return c
}

// Actions lists the mutations the plan calls for, in application order.
func (p *Plan) Actions() []Action {
	var out []Action

	for _, d := range p.Decisions {
		switch d.Class {
		case ClassNew:
			out = append(out, Action{Kind: ActionNew, Key: d.Key, DestKey: d.DestKey})
		case ClassUpdated:
			out = append(out, Action{Kind: ActionUpdate, Key: d.Key, DestKey: d.DestKey})
		}
	}

	for _, s := range p.Stubs {
		out = append(out, Action{Kind: ActionStub, Key: s, DestKey: s})
	}

	for _, k := range p.Deletes {
		out = append(out, Action{Kind: ActionDelete, Key: k, DestKey: k})
	}

	for _, k := range p.Locked {
		out = append(out, Action{Kind: ActionLocked, Key: k, DestKey: k})
	}

	return out
}

func (e *Engine) env(t *Target) *transformEnv {
	return &transformEnv{
		dst:      e.dst,
		archiver: e.archiver,
		scratch:  e.scratch,
		local:    e.local,
		opts:     t.Options,
		data:     t.Data,
		logger:   e.logger.With(slog.String("dir", t.Dir)),
	}
}

// Plan classifies every entry of src against dst. It may fingerprint files
// on either side but never changes the destination.
func (e *Engine) Plan(ctx context.Context, t *Target, src, dst *catalog.Catalog) (*Plan, error) {
	env := e.env(t)
	p := &Plan{Target: t}

	remaining := make(map[string]bool, dst.Len())
	for _, k := range dst.Keys() {
		remaining[k] = true
	}

	for _, entry := range src.Entries() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tr := Classify(entry, t.Options)
		d := Decision{Key: entry.Key, DestKey: tr.DestKey(entry.Key), Class: ClassNew, Transform: tr, Entry: entry}

		if de, ok := dst.Get(d.DestKey); ok {
			same, err := tr.same(ctx, env, entry, de)
			if err != nil {
				return nil, fmt.Errorf("sync: comparing %s: %w", entry.Key, err)
			}

			d.Class = ClassUpdated
			if same {
				d.Class = ClassSame
			}
		}

		delete(remaining, d.DestKey)
		p.Decisions = append(p.Decisions, d)
	}

	if t.Options.Clones {
		p.Stubs = e.planStubs(t, src, remaining)
	}

	for _, k := range dst.Keys() {
		if !remaining[k] {
			continue
		}

		if t.Locks.Has(k) {
			p.Locked = append(p.Locked, k)
		} else {
			p.Deletes = append(p.Deletes, k)
		}
	}

	if t.Options.Disks {
		p.Playlists = e.planPlaylists(p)
		p.Deletes = without(p.Deletes, p.Playlists)
		p.Locked = without(p.Locked, p.Playlists)
	}

	return p, nil
}

// Apply executes p: entries in plan order (an updated entry is removed
// before it is re-created), then companion artifacts, then deletions.
// Locked keys are logged and left alone.
func (e *Engine) Apply(ctx context.Context, p *Plan) (Counts, []Action, error) {
	t := p.Target
	env := e.env(t)

	var (
		c       Counts
		actions []Action
	)

	for _, d := range p.Decisions {
		if err := ctx.Err(); err != nil {
			return c, actions, err
		}

		switch d.Class {
		case ClassSame:
			env.logger.Debug("same", slog.String("key", d.Key), slog.String("dest_key", d.DestKey))
			c.Same++

			continue
		case ClassUpdated:
			env.logger.Info("update", slog.String("key", d.Key), slog.String("dest_key", d.DestKey),
				slog.String("transform", d.Transform.Kind().String()))

			if err := e.dst.Remove(ctx, path.Join(t.Dir, d.DestKey)); err != nil {
				return c, actions, err
			}
		case ClassNew:
			env.logger.Info("new", slog.String("key", d.Key), slog.String("dest_key", d.DestKey),
				slog.String("transform", d.Transform.Kind().String()))
		}

		if err := d.Transform.apply(ctx, env, t.Dir, d.Entry); err != nil {
			return c, actions, fmt.Errorf("sync: %s %s: %w", d.Transform.Kind(), d.Key, err)
		}

		if d.Class == ClassNew {
			c.New++
			actions = append(actions, Action{Kind: ActionNew, Key: d.Key, DestKey: d.DestKey})
		} else {
			c.Updated++
			actions = append(actions, Action{Kind: ActionUpdate, Key: d.Key, DestKey: d.DestKey})
		}
	}

	if len(p.Stubs) > 0 {
		if err := e.writeStubs(ctx, env, p); err != nil {
			return c, actions, err
		}

		c.Stubs = len(p.Stubs)
		for _, s := range p.Stubs {
			actions = append(actions, Action{Kind: ActionStub, Key: s, DestKey: s})
		}
	}

	if t.Options.Disks {
		written, removed, err := e.writePlaylists(ctx, env, p)
		if err != nil {
			return c, actions, err
		}

		c.Playlists = len(written)
		c.Deleted += len(removed)

		for _, name := range written {
			actions = append(actions, Action{Kind: ActionPlaylist, Key: name, DestKey: name})
		}

		for _, name := range removed {
			actions = append(actions, Action{Kind: ActionDelete, Key: name, DestKey: name})
		}
	}

	for _, k := range p.Deletes {
		if err := ctx.Err(); err != nil {
			return c, actions, err
		}

		env.logger.Info("delete", slog.String("dest_key", k))

		if err := e.dst.Remove(ctx, path.Join(t.Dir, k)); err != nil {
			return c, actions, err
		}

		c.Deleted++
		actions = append(actions, Action{Kind: ActionDelete, Key: k, DestKey: k})
	}

	for _, k := range p.Locked {
		env.logger.Info("locked, keeping", slog.String("dest_key", k))
		c.Locked++
		actions = append(actions, Action{Kind: ActionLocked, Key: k, DestKey: k})
	}

	return c, actions, nil
}

// survivors returns the destination keys that exist after p is applied,
// ignoring companions.
func (p *Plan) survivors() map[string]bool {
	keys := make(map[string]bool, len(p.Decisions)+len(p.Locked))
	for _, d := range p.Decisions {
		keys[d.DestKey] = true
	}

	for _, k := range p.Locked {
		keys[k] = true
	}

	return keys
}

// without returns items minus the members of drop, keeping order.
func without(items, drop []string) []string {
	if len(drop) == 0 {
		return items
	}

	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}

	var out []string

	for _, it := range items {
		if !skip[it] {
			out = append(out, it)
		}
	}

	return out
}

// setName returns the multi-disc set name of key, trimmed, or "".
func (e *Engine) setName(key string) string {
	m := e.multipart.FindStringSubmatch(key)
	if m == nil {
		return ""
	}

	return strings.TrimSpace(m[1])
}
