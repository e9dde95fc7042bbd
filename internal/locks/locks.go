// Package locks computes the entries a run must protect: titles with a
// recent save state on the device and titles in a favorites playlist.
// Locked entries are never deleted and bypass selection budgets.
package locks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yuichietsu/retroarch-sync/internal/archive"
	"github.com/yuichietsu/retroarch-sync/internal/catalog"
	"github.com/yuichietsu/retroarch-sync/internal/policy"
	"github.com/yuichietsu/retroarch-sync/internal/remote"
)

// DefaultRetention is how long a save state keeps its title locked.
const DefaultRetention = 14 * 24 * time.Hour

var reState = regexp.MustCompile(`^(.+)\.state(\d*|\.auto)$`)

// Source is the view of the device the provider reads from. *remote.Device
// and *remote.LocalTree implement it.
type Source interface {
	Scan(ctx context.Context, dir string, mode catalog.Mode) (*catalog.Catalog, error)
	Exists(ctx context.Context, p string) (bool, error)
	ReadFile(ctx context.Context, p string) ([]byte, error)
}

// Config names the auxiliary data sources.
type Config struct {
	// Root is the destination root favorites entries must live under.
	Root           string
	StatesPaths    []string
	FavoritesPaths []string
	Retention      time.Duration

	// Indexed holds the lower-cased destination directories split into
	// index buckets. Their favorites carry one extra path segment.
	Indexed map[string]bool
}

// Keys is the lock set of one group.
type Keys map[string]struct{}

// Has reports whether key is locked, with or without its archive extension.
func (k Keys) Has(key string) bool {
	if _, ok := k[key]; ok {
		return true
	}

	_, ok := k[archive.TrimExt(key)]

	return ok
}

// Set holds lock keys per group. The wildcard group "*" is the union of all
// groups.
type Set struct {
	groups map[string]Keys
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{groups: make(map[string]Keys)}
}

// Add locks key in group and in the wildcard group.
func (s *Set) Add(group, key string) {
	s.add(policy.WildcardGroup, key)

	if group != "" && group != policy.WildcardGroup {
		s.add(strings.ToLower(group), key)
	}
}

func (s *Set) add(group, key string) {
	keys, ok := s.groups[group]
	if !ok {
		keys = make(Keys)
		s.groups[group] = keys
	}

	keys[key] = struct{}{}
}

// Group returns the keys locked in name. A missing group is empty.
func (s *Set) Group(name string) Keys {
	if s == nil {
		return nil
	}

	return s.groups[strings.ToLower(name)]
}

// Groups returns the group names in sorted order.
func (s *Set) Groups() []string {
	names := make([]string, 0, len(s.groups))
	for g := range s.groups {
		names = append(names, g)
	}

	sort.Strings(names)

	return names
}

// Sorted returns the keys of group in sorted order.
func (s *Set) Sorted(group string) []string {
	keys := s.Group(group)

	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// Provider builds lock sets from the device.
type Provider struct {
	src    Source
	cfg    Config
	logger *slog.Logger

	// nowFunc returns the current time. Tests override it.
	nowFunc func() time.Time
}

// NewProvider returns a provider reading from src.
func NewProvider(src Source, cfg Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	return &Provider{src: src, cfg: cfg, logger: logger, nowFunc: time.Now}
}

// Load scans every configured source. Unreadable favorites documents and
// missing state directories are logged and skipped; transport failures
// are returned.
func (p *Provider) Load(ctx context.Context) (*Set, error) {
	set := NewSet()

	for _, dir := range p.cfg.StatesPaths {
		if err := p.loadStates(ctx, dir, set); err != nil {
			return nil, err
		}
	}

	for _, doc := range p.cfg.FavoritesPaths {
		if err := p.loadFavorites(ctx, doc, set); err != nil {
			return nil, err
		}
	}

	p.logger.Info("loaded locks",
		slog.Int("states_paths", len(p.cfg.StatesPaths)),
		slog.Int("favorites_paths", len(p.cfg.FavoritesPaths)),
		slog.Int("locked", len(set.Group(policy.WildcardGroup))),
	)

	return set, nil
}

func (p *Provider) loadStates(ctx context.Context, dir string, set *Set) error {
	c, err := p.src.Scan(ctx, dir, catalog.ModeDate)
	if errors.Is(err, remote.ErrFatalOutput) {
		p.logger.Warn("skipping missing states directory", slog.String("path", dir))
		return nil
	}

	if err != nil {
		return fmt.Errorf("locks: scanning states %s: %w", dir, err)
	}

	threshold := p.nowFunc().Add(-p.cfg.Retention).Unix()

	for _, e := range c.Entries() {
		for _, f := range e.Files {
			p.addState(f, threshold, set)
		}
	}

	return nil
}

func (p *Provider) addState(f catalog.FileRecord, threshold int64, set *Set) {
	mtime, err := strconv.ParseInt(f.Fingerprint, 10, 64)
	if err != nil {
		p.logger.Debug("state without timestamp", slog.String("file", f.RelativeName))
		return
	}

	if mtime < threshold {
		p.logger.Debug("state too old",
			slog.String("file", f.RelativeName),
			slog.Int64("mtime", mtime),
			slog.Int64("threshold", threshold),
		)

		return
	}

	m := reState.FindStringSubmatch(path.Base(f.RelativeName))
	if m == nil {
		return
	}

	group := ""
	if parent := path.Dir(f.RelativeName); parent != "." {
		group = strings.SplitN(parent, "/", 2)[0]
	}

	set.Add(group, m[1])
}

type favorites struct {
	Items []struct {
		Path string `json:"path"`
	} `json:"items"`
}

func (p *Provider) loadFavorites(ctx context.Context, doc string, set *Set) error {
	ok, err := p.src.Exists(ctx, doc)
	if err != nil {
		return fmt.Errorf("locks: checking %s: %w", doc, err)
	}

	if !ok {
		p.logger.Debug("favorites document not found", slog.String("path", doc))
		return nil
	}

	data, err := p.src.ReadFile(ctx, doc)
	if err != nil {
		return fmt.Errorf("locks: reading %s: %w", doc, err)
	}

	var fav favorites
	if err := json.Unmarshal(data, &fav); err != nil {
		p.logger.Warn("skipping unparsable favorites document",
			slog.String("path", doc), slog.String("error", err.Error()))

		return nil
	}

	prefix := strings.TrimSuffix(p.cfg.Root, "/") + "/"

	for _, it := range fav.Items {
		dir, game, ok := favoriteKey(prefix, it.Path, p.cfg.Indexed)
		if !ok {
			p.logger.Debug("favorite outside destination", slog.String("path", it.Path))
			continue
		}

		set.Add(dir, game)
	}

	return nil
}

// favoriteKey splits "<root>/<dir>/<rest>" and truncates rest at its first
// "." or "/". When dir is indexed, the bucket segment leading rest is
// dropped first.
func favoriteKey(prefix, p string, indexed map[string]bool) (dir, game string, ok bool) {
	rest, found := strings.CutPrefix(p, prefix)
	if !found {
		return "", "", false
	}

	dir, rest, found = strings.Cut(rest, "/")
	if !found || dir == "" || rest == "" {
		return "", "", false
	}

	if indexed[strings.ToLower(dir)] {
		_, rest, found = strings.Cut(rest, "/")
		if !found || rest == "" {
			return "", "", false
		}
	}

	if i := strings.IndexAny(rest, "./"); i > 0 {
		rest = rest[:i]
	}

	return dir, rest, true
}

// Lazy loads a Set on first use and keeps it for the rest of the run.
type Lazy struct {
	load func(ctx context.Context) (*Set, error)

	mu  sync.Mutex
	set *Set
}

// NewLazy wraps p. A nil provider yields an empty set.
func NewLazy(p *Provider) *Lazy {
	if p == nil {
		return &Lazy{load: func(context.Context) (*Set, error) { return NewSet(), nil }}
	}

	return &Lazy{load: p.Load}
}

// Get returns the memoized set, loading it if needed. A failed load is not
// cached.
func (l *Lazy) Get(ctx context.Context) (*Set, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.set != nil {
		return l.set, nil
	}

	set, err := l.load(ctx)
	if err != nil {
		return nil, err
	}

	l.set = set

	return set, nil
}
