// Package sync implements one-directional catalog reconciliation for
// retroarch-sync: transform dispatch, the plan/apply engine, companion
// artifacts (playlists, clone stubs), index bucketing, per-catalog run
// orchestration, the run journal, and the source watcher.
package sync

import "time"

// Classification is the outcome of comparing one source entry with the
// destination.
type Classification int

// Entry classifications.
const (
	ClassNew     Classification = iota // no destination entry under the destination key
	ClassUpdated                       // destination entry exists but differs
	ClassSame                          // destination entry matches
)

func (c Classification) String() string {
	switch c {
	case ClassNew:
		return "new"
	case ClassUpdated:
		return "updated"
	case ClassSame:
		return "same"
	default:
		return "unknown"
	}
}

// ActionKind names a mutation recorded in a directory report.
type ActionKind string

// Action kinds as stored in the journal's kind column.
const (
	ActionNew      ActionKind = "new"
	ActionUpdate   ActionKind = "update"
	ActionDelete   ActionKind = "delete"
	ActionLocked   ActionKind = "locked"
	ActionStub     ActionKind = "stub"
	ActionPlaylist ActionKind = "playlist"
	ActionPrune    ActionKind = "prune" // stale index bucket
)

// Action is one applied (or, in a dry run, planned) mutation.
type Action struct {
	Kind    ActionKind
	Key     string // source key, or destination key for deletes
	DestKey string
}

// Counts summarizes one directory pass.
type Counts struct {
	New       int
	Updated   int
	Same      int
	Deleted   int
	Locked    int
	Stubs     int
	Playlists int
}

// Add accumulates o into c.
func (c *Counts) Add(o Counts) {
	c.New += o.New
	c.Updated += o.Updated
	c.Same += o.Same
	c.Deleted += o.Deleted
	c.Locked += o.Locked
	c.Stubs += o.Stubs
	c.Playlists += o.Playlists
}

// DirReport is the result of reconciling one source directory.
type DirReport struct {
	Catalog string
	Dir     string // source directory name
	Dest    string // absolute destination directory
	Policy  string
	DryRun  bool

	Counts
	Selected        int
	Bytes           int64
	DependencyBytes int64
	Actions         []Action
}

// RunReport is the result of one run over one or more catalogs.
type RunReport struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	DryRun   bool
	Dirs     []DirReport
}

// Totals sums the counts of every directory.
func (r *RunReport) Totals() Counts {
	var c Counts
	for i := range r.Dirs {
		c.Add(r.Dirs[i].Counts)
	}

	return c
}
