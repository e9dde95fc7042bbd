// Package selection narrows a source catalog to the entries a directory
// pass will reconcile. Filters and variant collapse always run first; the
// random modes then draw from what is left, honouring forced inclusion,
// multi-disc sets, and the dependency map.
package selection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/yuichietsu/retroarch-sync/internal/archive"
	"github.com/yuichietsu/retroarch-sync/internal/catalog"
	"github.com/yuichietsu/retroarch-sync/internal/locks"
	"github.com/yuichietsu/retroarch-sync/internal/policy"
	"github.com/yuichietsu/retroarch-sync/internal/variant"
)

// ErrNoBudget is returned when a random mode has neither a count nor a
// size budget.
var ErrNoBudget = errors.New("selection: random mode needs a count or size budget")

// DefaultMultipartPattern matches multi-disc set members; group 1 is the
// set name shared by all discs.
const DefaultMultipartPattern = `^(.+?)\(Dis[kc] *(\d+|[A-Z])( of \d+)?\)`

var reUnofficial = regexp.MustCompile(`(?i)\((unl|pirate)\)`)

// Sizer reports the byte cost of placing an entry on the destination.
type Sizer interface {
	Size(ctx context.Context, e *catalog.Entry) (int64, error)
}

// Request carries the per-directory inputs of one selection.
type Request struct {
	Options *policy.Options
	Locks   locks.Keys

	// Deps maps an entry name (archive extension trimmed) to the names it
	// requires.
	Deps map[string][]string
}

// Result is the selected catalog and how it was assembled.
type Result struct {
	Catalog *catalog.Catalog

	// Bytes is the selected size; only random-by-size computes it.
	Bytes           int64
	DependencyBytes int64

	Forced       []string
	Dependencies []string
}

// Selector applies selection policies.
type Selector struct {
	sizer     Sizer
	rnd       *rand.Rand
	multipart *regexp.Regexp
	norm      *variant.Normalizer
	logger    *slog.Logger
}

// New returns a Selector. rnd drives the random modes; multipart may be
// nil to use DefaultMultipartPattern.
func New(sizer Sizer, rnd *rand.Rand, multipart *regexp.Regexp, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}

	if multipart == nil {
		multipart = regexp.MustCompile(DefaultMultipartPattern)
	}

	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // selection, not security
	}

	return &Selector{sizer: sizer, rnd: rnd, multipart: multipart, norm: variant.NewNormalizer(nil), logger: logger}
}

// WithRegions replaces the region vocabulary used to normalize titles.
func (s *Selector) WithRegions(regions []string) *Selector {
	s.norm = variant.NewNormalizer(regions)

	return s
}

// Select returns the subset of src that req's policy admits.
func (s *Selector) Select(ctx context.Context, src *catalog.Catalog, req Request) (*Result, error) {
	opts := req.Options
	list := s.prefilter(src, opts)

	if opts.Variants {
		list = variant.NewResolver(opts.Preferences, s.norm, s.logger).Resolve(list)
	}

	switch opts.Mode {
	case policy.ModeFull, policy.ModeFilter:
		return &Result{Catalog: list}, nil
	}

	switch {
	case opts.Count > 0:
		return s.byCount(src, list, req), nil
	case opts.Bytes > 0:
		return s.bySize(ctx, src, list, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoBudget, opts.Raw)
	}
}

func (s *Selector) prefilter(src *catalog.Catalog, opts *policy.Options) *catalog.Catalog {
	list := src

	if opts.Official {
		list = list.Filter(func(e *catalog.Entry) bool { return !reUnofficial.MatchString(e.Key) })
	}

	if len(opts.Filter) > 0 {
		list = list.Filter(func(e *catalog.Entry) bool {
			norm := s.norm.Normalize(e.Key)
			for _, term := range opts.Filter {
				if Match(term, e.Key) || Match(term, norm) {
					s.logger.Debug("listed", slog.String("key", e.Key), slog.String("term", term))
					return true
				}
			}

			return false
		})
	}

	if len(opts.Exclude) > 0 {
		list = list.Filter(func(e *catalog.Entry) bool {
			if term, ok := MatchAny(opts.Exclude, e.Key); ok {
				s.logger.Debug("excluded", slog.String("key", e.Key), slog.String("term", term))
				return false
			}

			return true
		})
	}

	return list
}

// forced returns the keys of list that are locked or match an include
// pattern, in catalog order.
func (s *Selector) forced(list *catalog.Catalog, req Request) []string {
	var out []string

	for _, k := range list.Keys() {
		if req.Options.Lock && req.Locks.Has(k) {
			s.logger.Info("locked entry included", slog.String("key", k))
			out = append(out, k)

			continue
		}

		if term, ok := MatchAny(req.Options.Include, k); ok {
			s.logger.Debug("included", slog.String("key", k), slog.String("term", term))
			out = append(out, k)
		}
	}

	return out
}

func (s *Selector) byCount(src, list *catalog.Catalog, req Request) *Result {
	forced := s.forced(list, req)
	selected := make(map[string]bool, req.Options.Count)

	for _, k := range forced {
		selected[k] = true
	}

	var left []string

	for _, k := range list.Keys() {
		if !selected[k] {
			left = append(left, k)
		}
	}

	n := min(len(left), req.Options.Count-len(forced))
	if n > 0 {
		s.rnd.Shuffle(len(left), func(i, j int) { left[i], left[j] = left[j], left[i] })

		for _, k := range left[:n] {
			selected[k] = true
		}
	}

	deps := s.dependencies(src, selected, req.Deps)
	for _, k := range deps {
		selected[k] = true
	}

	if len(deps) > 0 {
		s.logger.Info("added dependencies", slog.Int("entries", len(deps)))
	}

	s.logger.Info("random selection", slog.Int("entries", len(selected)), slog.Int("budget", req.Options.Count))

	return &Result{
		Catalog:      src.Subset(selected),
		Forced:       forced,
		Dependencies: deps,
	}
}

// sizeState is the running total of one random-by-size selection.
type sizeState struct {
	selected map[string]bool
	sum      int64

	// sets records admitted multi-disc sets; nil when disc tracking is off.
	sets map[string]bool
}

func (s *Selector) bySize(ctx context.Context, src, list *catalog.Catalog, req Request) (*Result, error) {
	st := &sizeState{selected: make(map[string]bool)}
	if req.Options.Disks {
		st.sets = make(map[string]bool)
	}

	forced := s.forced(list, req)
	if err := s.admit(ctx, src, st, forced, math.MaxInt64); err != nil {
		return nil, err
	}

	budget := req.Options.Bytes
	if st.sum <= budget {
		keys := list.Keys()
		s.rnd.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

		if err := s.admit(ctx, src, st, keys, budget); err != nil {
			return nil, err
		}
	}

	deps := s.dependencies(src, st.selected, req.Deps)

	before := st.sum
	if err := s.admit(ctx, src, st, deps, math.MaxInt64); err != nil {
		return nil, err
	}

	if len(deps) > 0 {
		s.logger.Info("added dependencies",
			slog.Int("entries", len(deps)), slog.Int64("bytes", st.sum-before))
	}

	s.logger.Info("random selection",
		slog.Int("entries", len(st.selected)),
		slog.Int64("bytes", st.sum),
		slog.Int64("budget", budget),
	)

	return &Result{
		Catalog:         src.Subset(st.selected),
		Bytes:           st.sum,
		DependencyBytes: st.sum - before,
		Forced:          forced,
		Dependencies:    deps,
	}, nil
}

// admit adds keys in order while the running sum stays within limit. A
// disc whose set already has an admitted member bypasses the limit.
func (s *Selector) admit(ctx context.Context, src *catalog.Catalog, st *sizeState, keys []string, limit int64) error {
	for _, k := range keys {
		if st.selected[k] {
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		e, ok := src.Get(k)
		if !ok {
			continue
		}

		size, err := s.sizer.Size(ctx, e)
		if err != nil {
			return fmt.Errorf("selection: sizing %s: %w", k, err)
		}

		set := ""
		if st.sets != nil {
			if m := s.multipart.FindStringSubmatch(k); m != nil {
				set = m[1]
			}
		}

		force := set != "" && st.sets[set]
		if !force && st.sum+size > limit {
			continue
		}

		st.selected[k] = true
		st.sum += size

		if set != "" {
			st.sets[set] = true
		}

		if force {
			s.logger.Debug("admitted disc of selected set", slog.String("key", k), slog.String("set", set))
		}
	}

	return nil
}

// dependencies returns the entries of src required by selected, following
// the map until no new entries appear. Each dependency name resolves to the
// first entry of src whose key, archive extension trimmed, equals it.
func (s *Selector) dependencies(src *catalog.Catalog, selected map[string]bool, deps map[string][]string) []string {
	if len(deps) == 0 {
		return nil
	}

	byName := make(map[string]string, src.Len())
	for _, k := range src.Keys() {
		name := archive.TrimExt(k)
		if _, ok := byName[name]; !ok {
			byName[name] = k
		}
	}

	seen := make(map[string]bool, len(selected))

	var frontier []string

	for _, k := range src.Keys() {
		if selected[k] {
			seen[k] = true
			frontier = append(frontier, k)
		}
	}

	var added []string

	for len(frontier) > 0 {
		var next []string

		for _, k := range frontier {
			for _, name := range deps[archive.TrimExt(k)] {
				dep, ok := byName[name]
				if !ok {
					s.logger.Warn("dependency not found", slog.String("key", k), slog.String("dependency", name))
					continue
				}

				if seen[dep] {
					continue
				}

				s.logger.Info("dependency", slog.String("key", k), slog.String("dependency", dep))
				seen[dep] = true
				added = append(added, dep)
				next = append(next, dep)
			}
		}

		frontier = next
	}

	return added
}

// Match reports whether key matches pattern, ignoring case. A leading "^"
// anchors a prefix match, a pattern holding "*" or "?" is a glob, anything
// else matches as a substring.
func Match(pattern, key string) bool {
	p, k := strings.ToLower(pattern), strings.ToLower(key)

	if rest, ok := strings.CutPrefix(p, "^"); ok {
		return strings.HasPrefix(k, rest)
	}

	if strings.ContainsAny(p, "*?") {
		ok, err := doublestar.Match(p, k)
		return err == nil && ok
	}

	return strings.Contains(k, p)
}

// MatchAny returns the first pattern matching key.
func MatchAny(patterns []string, key string) (string, bool) {
	for _, p := range patterns {
		if Match(p, key) {
			return p, true
		}
	}

	return "", false
}
