package sync

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/yuichietsu/retroarch-sync/internal/catalog"
)

// Bucket names for keys that do not start with a letter or kana.
const (
	BucketDigits = "0-9"
	BucketOther  = "_"
)

// Katakana that have a hiragana counterpart 0x60 code points lower.
const (
	katakanaFirst = 'ァ'
	katakanaLast  = 'ヶ'
	kanaOffset    = 'ァ' - 'ぁ'
)

// Combining voiced and semi-voiced sound marks left by NFD.
const (
	combiningVoiced     = '゙'
	combiningSemiVoiced = '゚'
)

func bucketPattern(n int) *regexp.Regexp {
	if n < 1 {
		n = 1
	}

	return regexp.MustCompile(fmt.Sprintf(`^[0-9A-Z\p{Hiragana}]{1,%d}`, n))
}

// Bucket returns the index directory for key: its first n letters or kana
// after folding full-width and half-width forms, converting katakana to
// hiragana, and upper-casing. Keys starting with a digit share BucketDigits;
// keys starting with anything else share BucketOther. Voiced kana fall into
// the bucket of their unvoiced form.
func Bucket(key string, n int) string {
	return bucketOf(bucketPattern(n), key)
}

func bucketOf(re *regexp.Regexp, key string) string {
	folded := strings.ToUpper(toHiragana(width.Fold.String(key)))

	lead := re.FindString(folded)
	switch {
	case lead == "":
		return BucketOther
	case lead[0] >= '0' && lead[0] <= '9':
		return BucketDigits
	default:
		return unvoice(lead)
	}
}

func toHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= katakanaFirst && r <= katakanaLast {
			return r - kanaOffset
		}

		return r
	}, s)
}

// unvoice drops voiced and semi-voiced marks, so が becomes か and ゔ
// becomes う.
func unvoice(s string) string {
	decomposed := norm.NFD.String(s)

	stripped := strings.Map(func(r rune) rune {
		if r == combiningVoiced || r == combiningSemiVoiced {
			return -1
		}

		return r
	}, decomposed)

	return norm.NFC.String(stripped)
}

// Partition splits c into index buckets of width n. The returned names are
// sorted; each catalog keeps c's order.
func Partition(c *catalog.Catalog, n int) ([]string, map[string]*catalog.Catalog) {
	re := bucketPattern(n)
	parts := make(map[string]*catalog.Catalog)

	for _, e := range c.Entries() {
		b := bucketOf(re, e.Key)

		p, ok := parts[b]
		if !ok {
			p = catalog.New(c.Base, c.Mode)
			parts[b] = p
		}

		p.Put(e)
	}

	names := make([]string, 0, len(parts))
	for b := range parts {
		names = append(names, b)
	}

	sort.Strings(names)

	return names, parts
}
