// Package catalog models a hierarchical collection of logical entries. Each
// entry groups the files found under one key (by default the first path
// segment below the catalog base), so a game stored as a single archive and
// a game stored as a directory of tracks are both one entry.
package catalog

import (
	"path"
	"strings"
)

// Mode selects what a listing records per file.
type Mode int

// Listing modes.
const (
	ModeNone Mode = iota // existence only
	ModeHash             // MD5 content hash
	ModeDate             // modification time in unix seconds
)

func (m Mode) String() string {
	switch m {
	case ModeHash:
		return "hash"
	case ModeDate:
		return "date"
	default:
		return "none"
	}
}

// FileRecord is one physical file belonging to an entry.
type FileRecord struct {
	SourcePath   string // absolute path on the side the catalog was built from
	RelativeName string // path relative to the catalog base
	Fingerprint  string // empty when not yet computed
	Size         int64  // zero when the listing carries no sizes
}

// Name returns the file's path relative to its entry key.
func (f FileRecord) Name(key string) string {
	return strings.TrimPrefix(strings.TrimPrefix(f.RelativeName, key), "/")
}

// Base returns the last element of the relative name.
func (f FileRecord) Base() string {
	return path.Base(f.RelativeName)
}

// Entry is the unit of reconciliation.
type Entry struct {
	Key   string
	Files []FileRecord
}

// Single reports whether the entry is exactly one file stored directly
// under its key, such as "Game (USA).zip".
func (e *Entry) Single() bool {
	return len(e.Files) == 1 && e.Files[0].RelativeName == e.Key
}

// Size sums the recorded file sizes.
func (e *Entry) Size() int64 {
	var n int64
	for _, f := range e.Files {
		n += f.Size
	}

	return n
}

// Catalog maps entry keys to entries and remembers insertion order.
type Catalog struct {
	Base    string
	Mode    Mode
	keys    []string
	entries map[string]*Entry
}

// New returns an empty catalog rooted at base.
func New(base string, mode Mode) *Catalog {
	return &Catalog{
		Base:    strings.TrimSuffix(base, "/"),
		Mode:    mode,
		entries: make(map[string]*Entry),
	}
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.keys)
}

// Keys returns the entry keys in catalog order. The slice is a copy.
func (c *Catalog) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Get returns the entry for key.
func (c *Catalog) Get(key string) (*Entry, bool) {
	e, ok := c.entries[key]

	return e, ok
}

// Has reports whether key is present.
func (c *Catalog) Has(key string) bool {
	_, ok := c.entries[key]

	return ok
}

// Put appends e, or replaces the entry with the same key in place.
func (c *Catalog) Put(e *Entry) {
	if _, ok := c.entries[e.Key]; !ok {
		c.keys = append(c.keys, e.Key)
	}

	c.entries[e.Key] = e
}

// Delete removes key, keeping the order of the remaining entries.
func (c *Catalog) Delete(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}

	delete(c.entries, key)

	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
}

// Filter returns a new catalog holding the entries for which keep returns
// true, in catalog order. Entries are shared, not copied.
func (c *Catalog) Filter(keep func(e *Entry) bool) *Catalog {
	out := New(c.Base, c.Mode)

	for _, k := range c.keys {
		if e := c.entries[k]; keep(e) {
			out.Put(e)
		}
	}

	return out
}

// Subset returns the entries named in keys, in catalog order.
func (c *Catalog) Subset(keys map[string]bool) *Catalog {
	return c.Filter(func(e *Entry) bool { return keys[e.Key] })
}

// Entries returns the entries in catalog order.
func (c *Catalog) Entries() []*Entry {
	out := make([]*Entry, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.entries[k])
	}

	return out
}
