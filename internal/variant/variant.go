// Package variant collapses release variants of the same title (regional
// releases, revisions, alternates, betas) down to one preferred entry per
// title, the "one game one ROM" rule.
package variant

import (
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/yuichietsu/retroarch-sync/internal/catalog"
)

// Regions is the region/language vocabulary stripped during normalization.
var Regions = []string{
	"usa", "europe", "spain", "france", "germany", "brazil", "china", "korea",
	"japan", "asia", "world", "us", "eu", "jp", "kr", "ko", "zh", "cn", "as",
}

// tagScore weighs dump-status tags found in bracket annotations.
var tagScore = map[string]int{
	"cr": 100, // crack
	"b":  -1,  // bootleg
	"a":  -2,  // alternative
	"p":  -3,  // prototype
	"h":  -4,  // hack
	"m":  -4,  // modification
	"tr": -5,  // translation or trainer
	"t":  -5,  // translation or trainer
}

// Score weights.
const (
	revisionWeight        = 1_000
	virtualConsolePenalty = 10_000
	englishPenalty        = 20_000
	altPenalty            = 30_000
	preferenceWeight      = 100_000
	betaPenalty           = 10_000_000
	demoPenalty           = 20_000_000
)

var (
	reArchive  = regexp.MustCompile(`(?i)\.(zip|7z)$`)
	reBrackets = regexp.MustCompile(`\s*\[.*?\]\s*`)
	reRevision = regexp.MustCompile(`(?i)\s*\(rev (\d{1,2}(?:\.\d+)?|[a-z])\)\s*`)
	reAlt      = regexp.MustCompile(`(?i)\s*\(alt( \d+)?\)\s*`)
	reBeta     = regexp.MustCompile(`(?i)\s*\(beta( \d+)?\)\s*`)
	reDemo     = regexp.MustCompile(`(?i)\s*\((demo|proto|sample)\)\s*`)
	reVC       = regexp.MustCompile(`(?i)\s*\([^()]*virtual console\)\s*`)
	reEnglish  = regexp.MustCompile(`(?i)\s*\(en\)\s*`)
	reDated    = regexp.MustCompile(`\s*\((19|20)\d{2}-\d{2}-\d{2}\)\s*`)
	reVersion  = regexp.MustCompile(`(?i)\s*\(v\d+(\.\d+)?\)\s*`)
	reTags     = regexp.MustCompile(`\[(h|cr|tr|m|a|b|p|t)[ \d\]]`)
)

var defaultNormalizer = NewNormalizer(nil)

func regionPattern(regions []string) *regexp.Regexp {
	quoted := make([]string, len(regions))
	for i, r := range regions {
		quoted[i] = regexp.QuoteMeta(r)
	}

	return regexp.MustCompile(`(?i)\s*\((` + strings.Join(quoted, "|") + `)([,\-][^)]+)?\)\s*`)
}

// Normalizer strips release annotations using a region vocabulary.
type Normalizer struct {
	steps []*regexp.Regexp
}

// NewNormalizer returns a Normalizer for regions; empty means Regions.
func NewNormalizer(regions []string) *Normalizer {
	if len(regions) == 0 {
		regions = Regions
	}

	return &Normalizer{steps: []*regexp.Regexp{
		reBrackets, regionPattern(regions), reRevision, reAlt, reBeta, reDemo, reVC, reEnglish, reDated, reVersion,
	}}
}

// Normalize reduces key to its title by stripping the archive extension,
// bracket annotations and the known parenthetical release annotations.
func (n *Normalizer) Normalize(key string) string {
	s := reArchive.ReplaceAllString(key, "")
	for _, re := range n.steps {
		s = re.ReplaceAllString(s, "")
	}

	return s
}

// Normalize normalizes key with the default region vocabulary.
func Normalize(key string) string {
	return defaultNormalizer.Normalize(key)
}

// Preferences is a compiled region preference list, most preferred first.
type Preferences struct {
	terms []*regexp.Regexp
}

// NewPreferences compiles terms into region matchers.
func NewPreferences(terms []string) Preferences {
	p := Preferences{terms: make([]*regexp.Regexp, len(terms))}
	for i, t := range terms {
		p.terms[i] = regexp.MustCompile(`(?i)\(` + regexp.QuoteMeta(t) + `([,\-][^)]+)?\)`)
	}

	return p
}

// Score ranks one variant; higher is better.
func (p Preferences) Score(key string) int {
	score := 0

	for _, m := range reTags.FindAllStringSubmatch(key, -1) {
		score += tagScore[m[1]]
	}

	if m := reRevision.FindStringSubmatch(key); m != nil {
		score += int(math.Round(revisionValue(m[1]) * revisionWeight))
	}

	if reVC.MatchString(key) {
		score -= virtualConsolePenalty
	}

	if reEnglish.MatchString(key) {
		score -= englishPenalty
	}

	if reAlt.MatchString(key) {
		score -= altPenalty
	}

	for i, re := range p.terms {
		if re.MatchString(key) {
			score += (len(p.terms) - i) * preferenceWeight
			break
		}
	}

	if reBeta.MatchString(key) {
		score -= betaPenalty
	}

	if reDemo.MatchString(key) {
		score -= demoPenalty
	}

	return score
}

// revisionValue converts a revision label to a number. Single characters
// count from '0', so letter revisions rank above digit revisions
// (A=17, B=18, ...).
func revisionValue(rev string) float64 {
	rev = strings.ToUpper(rev)
	if len(rev) == 1 {
		return float64(rev[0]) - '0'
	}

	v, err := strconv.ParseFloat(rev, 64)
	if err != nil {
		return 0
	}

	return v
}

// Better reports whether a ranks strictly above b. Score decides first,
// then the shorter key, then the lexicographically smaller key, so two
// distinct keys never tie.
func (p Preferences) Better(a, b string) bool {
	sa, sb := p.Score(a), p.Score(b)
	if sa != sb {
		return sa > sb
	}

	if len(a) != len(b) {
		return len(a) < len(b)
	}

	return a < b
}

// Resolver keeps the best variant per title.
type Resolver struct {
	prefs  Preferences
	norm   *Normalizer
	logger *slog.Logger
}

// NewResolver returns a Resolver ranking regions by prefs. A nil norm uses
// the default vocabulary.
func NewResolver(prefs []string, norm *Normalizer, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	if norm == nil {
		norm = defaultNormalizer
	}

	return &Resolver{prefs: NewPreferences(prefs), norm: norm, logger: logger}
}

// Resolve returns a catalog with one entry per normalized title, keeping
// catalog order among the survivors.
func (r *Resolver) Resolve(c *catalog.Catalog) *catalog.Catalog {
	groups := make(map[string][]string)

	var titles []string

	for _, k := range c.Keys() {
		n := r.norm.Normalize(k)
		if _, ok := groups[n]; !ok {
			titles = append(titles, n)
		}

		groups[n] = append(groups[n], k)
	}

	keep := make(map[string]bool, len(titles))

	for _, title := range titles {
		members := groups[title]
		sort.SliceStable(members, func(i, j int) bool { return r.prefs.Better(members[i], members[j]) })

		keep[members[0]] = true

		if len(members) > 1 {
			r.logger.Info("collapsed variants",
				slog.String("kept", members[0]),
				slog.String("dropped", strings.Join(members[1:], ", ")),
				slog.Int("score", r.prefs.Score(members[0])),
			)
		}
	}

	out := c.Subset(keep)

	r.logger.Debug("variant collapse",
		slog.Int("before", c.Len()),
		slog.Int("after", out.Len()),
	)

	return out
}
