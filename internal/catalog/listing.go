package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrMalformedLine is returned for enumeration output that does not match
// the listing mode.
var ErrMalformedLine = errors.New("catalog: malformed listing line")

var (
	// md5sum prints "<hash>  <path>" or "<hash> *<path>" in binary mode.
	reHashLine = regexp.MustCompile(`^([0-9a-f]{32})\s[ *]?(.+)$`)
	reDateLine = regexp.MustCompile(`^(\d+)\s(.+)$`)
)

// ParseLine splits one enumeration line into a path and its fingerprint.
// Only the single separator after the leading token is consumed, so paths
// containing spaces survive intact.
func ParseLine(mode Mode, line string) (path, fingerprint string, err error) {
	line = strings.TrimRight(line, "\r\n")

	switch mode {
	case ModeHash:
		m := reHashLine.FindStringSubmatch(line)
		if m == nil {
			return "", "", fmt.Errorf("%w (%s): %q", ErrMalformedLine, mode, line)
		}

		return m[2], m[1], nil
	case ModeDate:
		m := reDateLine.FindStringSubmatch(line)
		if m == nil {
			return "", "", fmt.Errorf("%w (%s): %q", ErrMalformedLine, mode, line)
		}

		return m[2], m[1], nil
	default:
		if line == "" {
			return "", "", fmt.Errorf("%w (%s): empty line", ErrMalformedLine, mode)
		}

		return line, "", nil
	}
}

// FromListing builds a catalog from enumeration output rooted at base.
// Blank lines are ignored. Lines are sorted by path first, so the resulting
// order does not depend on the order the enumerator produced.
func FromListing(base string, mode Mode, depth int, lines []string) (*Catalog, error) {
	type item struct{ path, fp string }

	items := make([]item, 0, len(lines))

	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}

		p, fp, err := ParseLine(mode, l)
		if err != nil {
			return nil, err
		}

		items = append(items, item{p, fp})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].path < items[j].path })

	b := NewBuilder(base, mode, depth)
	for _, it := range items {
		if err := b.Add(it.path, it.fp, 0); err != nil {
			return nil, err
		}
	}

	return b.Catalog(), nil
}
