// Package policy parses the per-directory policy language used in catalog
// targets. A policy has the form "mode[:opt,opt,...]" where mode is one of
// full, random (alias rand) or filter, and each option is either a bare word,
// a size or count literal, or name(arg|arg...).
package policy

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/yuichietsu/retroarch-sync/internal/suggest"
)

// Mode selects how entries are chosen from a source catalog.
type Mode string

// Selection modes.
const (
	ModeFull   Mode = "full"
	ModeRandom Mode = "random"
	ModeFilter Mode = "filter"
)

// Sentinel errors returned by Parse.
var (
	ErrInvalidMode   = errors.New("policy: invalid mode")
	ErrUnknownOption = errors.New("policy: unknown option")
	ErrInvalidOption = errors.New("policy: invalid option")
)

// WildcardGroup is the lock group that collects every locked entry.
const WildcardGroup = "*"

// DefaultPreferences is the region preference order used by a bare "1g1r".
var DefaultPreferences = []string{"japan", "jp", "world", "usa", "us", "europe", "eu", "asia", "as"}

// Size literal multipliers (binary units).
const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// Options is the parsed form of one policy string.
type Options struct {
	Raw  string
	Mode Mode

	// Count and Bytes are the random-mode budgets; zero means unset.
	Count int
	Bytes int64

	// Lock enables forced inclusion of locked entries from LockGroup.
	Lock      bool
	LockGroup string

	Include []string
	Exclude []string
	Filter  []string

	// Variants enables best-variant collapse ranked by Preferences.
	Variants    bool
	Preferences []string

	Official bool
	Disks    bool
	Clones   bool

	// Transform flags.
	Extract    bool
	RepackZip  bool
	RepackCSO  bool
	RepackCHD  bool
	OneFileExt string // "1f1z": re-pack single-member archives as this type

	// ListFile is "m3u" or "cmd" when extraction should add a list file.
	ListFile    string
	ListCommand string

	Rename string
	Index  int
}

var (
	reCount = regexp.MustCompile(`^\d+$`)
	reSize  = regexp.MustCompile(`(?i)^(\d+)([kmg])$`)
	reCall  = regexp.MustCompile(`(?i)^([0-9a-z]+)(?:\((.*)\))?$`)
)

// knownOptions lists every option name accepted after the mode, sorted for
// deterministic suggestions.
var knownOptions = func() []string {
	names := []string{
		"1f1z", "1g1r", "chd", "clones", "cmd", "cso", "disks", "excl", "ext",
		"incl", "index", "list", "lock", "m3u", "official", "rename", "zip",
	}
	sort.Strings(names)

	return names
}()

var modeAliases = map[string]Mode{
	"full":   ModeFull,
	"random": ModeRandom,
	"rand":   ModeRandom,
	"filter": ModeFilter,
}

// Parse converts a policy string into Options. Unknown option names are
// rejected rather than silently ignored.
func Parse(s string) (*Options, error) {
	raw := strings.TrimSpace(s)
	modeStr, rest, _ := strings.Cut(raw, ":")

	mode, ok := modeAliases[strings.ToLower(strings.TrimSpace(modeStr))]
	if !ok {
		return nil, fmt.Errorf("%w %q in %q (want full, random or filter)", ErrInvalidMode, modeStr, raw)
	}

	opts := &Options{Raw: raw, Mode: mode}

	var errs []error

	for _, tok := range splitOptions(rest) {
		if err := opts.apply(tok); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if opts.Mode == ModeFilter && len(opts.Filter) == 0 {
		return nil, fmt.Errorf("%w: filter mode needs list(...) terms in %q", ErrInvalidOption, raw)
	}

	return opts, nil
}

// splitOptions splits on commas outside parentheses and drops empty tokens.
func splitOptions(s string) []string {
	var (
		out   []string
		depth int
		start int
	)

	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				out = appendToken(out, s[start:i])
				start = i + 1
			}
		}
	}

	return appendToken(out, s[start:])
}

func appendToken(out []string, tok string) []string {
	if tok = strings.TrimSpace(tok); tok != "" {
		out = append(out, tok)
	}

	return out
}

func (o *Options) apply(tok string) error {
	if reCount.MatchString(tok) {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return fmt.Errorf("%w: count %q: %w", ErrInvalidOption, tok, err)
		}

		o.Count = n

		return nil
	}

	if m := reSize.FindStringSubmatch(tok); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: size %q: %w", ErrInvalidOption, tok, err)
		}

		o.Bytes = n * sizeUnit(m[2])

		return nil
	}

	m := reCall.FindStringSubmatch(tok)
	if m == nil {
		return unknownOption(tok)
	}

	name, hasArgs, args := strings.ToLower(m[1]), strings.Contains(tok, "("), splitArgs(m[2])

	switch name {
	case "lock":
		o.Lock = true
		o.LockGroup = WildcardGroup

		if g := strings.ToLower(strings.TrimSpace(m[2])); g != "" {
			o.LockGroup = g
		}
	case "incl":
		o.Include = append(o.Include, args...)
	case "excl":
		o.Exclude = append(o.Exclude, args...)
	case "list":
		o.Filter = append(o.Filter, args...)
	case "1g1r":
		o.Variants = true
		o.Preferences = DefaultPreferences

		if len(args) > 0 {
			o.Preferences = lowerAll(args)
		}
	case "index":
		o.Index = 1

		if hasArgs {
			n, err := strconv.Atoi(strings.TrimSpace(m[2]))
			if err != nil || n < 1 {
				return fmt.Errorf("%w: index(%s) needs a positive integer", ErrInvalidOption, m[2])
			}

			o.Index = n
		}
	case "1f1z":
		o.OneFileExt = "zip"

		if ext := strings.ToLower(strings.TrimSpace(m[2])); ext != "" {
			o.OneFileExt = ext
		}
	case "rename":
		if len(args) != 1 || strings.ContainsAny(args[0], "/\\") {
			return fmt.Errorf("%w: rename(...) needs a single directory name, got %q", ErrInvalidOption, tok)
		}

		o.Rename = args[0]
	case "cmd":
		if len(args) != 1 {
			return fmt.Errorf("%w: cmd(...) needs an executable name, got %q", ErrInvalidOption, tok)
		}

		o.ListFile = "cmd"
		o.ListCommand = args[0]
	case "m3u":
		o.ListFile = "m3u"
	case "ext":
		o.Extract = true
	case "zip":
		o.RepackZip = true
	case "cso":
		o.RepackCSO = true
	case "chd":
		o.RepackCHD = true
	case "official":
		o.Official = true
	case "disks":
		o.Disks = true
	case "clones":
		o.Clones = true
	default:
		return unknownOption(name)
	}

	return nil
}

func unknownOption(name string) error {
	if s := suggest.Closest(name, knownOptions); s != "" {
		return fmt.Errorf("%w %q (did you mean %q?)", ErrUnknownOption, name, s)
	}

	return fmt.Errorf("%w %q", ErrUnknownOption, name)
}

func splitArgs(s string) []string {
	var out []string

	for _, a := range strings.Split(s, "|") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}

	return out
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}

	return out
}

func sizeUnit(u string) int64 {
	switch strings.ToLower(u) {
	case "g":
		return gib
	case "m":
		return mib
	default:
		return kib
	}
}

// Transforms reports whether any transform flag is set, i.e. whether the
// destination copy of an entry may differ in shape from the source.
func (o *Options) Transforms() bool {
	return o.Extract || o.RepackZip || o.RepackCSO || o.RepackCHD
}

// HasBudget reports whether a random-mode budget was supplied.
func (o *Options) HasBudget() bool {
	return o.Count > 0 || o.Bytes > 0
}
