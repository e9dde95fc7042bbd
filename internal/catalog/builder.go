package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Builder errors.
var (
	ErrNoEntry       = errors.New("catalog: path has no entry below the base")
	ErrOutsideBase   = errors.New("catalog: path outside catalog base")
	ErrDuplicateFile = errors.New("catalog: duplicate file in entry")
)

// DefaultDepth is the number of leading path segments that form a key.
const DefaultDepth = 1

// Builder groups enumerated file paths into entries.
type Builder struct {
	cat   *Catalog
	depth int
}

// NewBuilder returns a Builder for base. A depth below one means DefaultDepth.
func NewBuilder(base string, mode Mode, depth int) *Builder {
	if depth < 1 {
		depth = DefaultDepth
	}

	return &Builder{cat: New(base, mode), depth: depth}
}

// Add records one file given its full path. Files of the same key merge
// into one entry; the first file of a key fixes its position in the order.
func (b *Builder) Add(fullPath, fingerprint string, size int64) error {
	rel, err := b.relative(fullPath)
	if err != nil {
		return err
	}

	return b.AddRelative(rel, fullPath, fingerprint, size)
}

// AddRelative records one file whose relative name is already known. The
// relative name may differ from the tail of sourcePath, for example after
// Unicode normalization.
func (b *Builder) AddRelative(rel, sourcePath, fingerprint string, size int64) error {
	rel = strings.Trim(rel, "/")
	if rel == "" || rel == "." {
		return fmt.Errorf("%w: %s", ErrNoEntry, sourcePath)
	}

	key := keyOf(rel, b.depth)

	e, ok := b.cat.Get(key)
	if !ok {
		e = &Entry{Key: key}
		b.cat.Put(e)
	}

	for _, f := range e.Files {
		if f.RelativeName == rel {
			return fmt.Errorf("%w: %s", ErrDuplicateFile, rel)
		}
	}

	e.Files = append(e.Files, FileRecord{
		SourcePath:   sourcePath,
		RelativeName: rel,
		Fingerprint:  fingerprint,
		Size:         size,
	})

	return nil
}

// Catalog returns the built catalog.
func (b *Builder) Catalog() *Catalog {
	return b.cat
}

func (b *Builder) relative(fullPath string) (string, error) {
	base := b.cat.Base
	if base != "" {
		if fullPath == base {
			return "", fmt.Errorf("%w: %s", ErrNoEntry, fullPath)
		}

		if !strings.HasPrefix(fullPath, base+"/") {
			return "", fmt.Errorf("%w: %s not under %s", ErrOutsideBase, fullPath, base)
		}
	}

	rel := strings.Trim(strings.TrimPrefix(fullPath, base), "/")
	if rel == "" || rel == "." {
		return "", fmt.Errorf("%w: %s", ErrNoEntry, fullPath)
	}

	return rel, nil
}

// keyOf takes the first depth segments of rel.
func keyOf(rel string, depth int) string {
	parts := strings.SplitN(rel, "/", depth+1)
	if len(parts) > depth {
		parts = parts[:depth]
	}

	return strings.Join(parts, "/")
}
