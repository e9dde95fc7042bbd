package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Run statuses as stored in the runs.status column.
const (
	StatusRunning   = "running"
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// SQL statements for the journal.
const (
	sqlInsertRun = `INSERT INTO runs (id, started_at, dry_run, status) VALUES (?, ?, ?, 'running')`

	sqlFinishRun = `UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`

	sqlInsertDirReport = `INSERT INTO dir_reports
		(run_id, catalog, dir, dest, policy, selected, new, updated, same, deleted,
		 locked, stubs, playlists, bytes, dependency_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, catalog, dir) DO NOTHING`

	sqlInsertAction = `INSERT INTO actions (run_id, seq, catalog, dir, kind, key, dest_key, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecentRuns = `SELECT id, started_at, finished_at, dry_run, status, error
		FROM runs ORDER BY started_at DESC, id LIMIT ?`

	sqlRunDirs = `SELECT catalog, dir, dest, policy, selected, new, updated, same, deleted,
		locked, stubs, playlists, bytes, dependency_bytes
		FROM dir_reports WHERE run_id = ? ORDER BY catalog, dir`

	sqlRunActions = `SELECT catalog, dir, kind, key, dest_key
		FROM actions WHERE run_id = ? ORDER BY seq`
)

// Journal records runs in a SQLite database. It is an audit trail only:
// reconciliation never reads it.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// OpenJournal opens (creating if needed) the journal database at dbPath and
// applies pending migrations. The database uses WAL mode.
func OpenJournal(ctx context.Context, dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("sync: creating journal directory: %w", err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sync: opening journal %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("db_path", dbPath))

	return &Journal{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Begin records the start of r.
func (j *Journal) Begin(ctx context.Context, r *RunReport) error {
	if _, err := j.db.ExecContext(ctx, sqlInsertRun, r.ID, r.Started.UnixNano(), r.DryRun); err != nil {
		return fmt.Errorf("sync: recording run %s: %w", r.ID, err)
	}

	return nil
}

// Finish records the outcome of r, its directory reports, and their
// actions in one transaction.
func (j *Journal) Finish(ctx context.Context, r *RunReport, runErr error) (err error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: beginning journal transaction: %w", err)
	}

	defer func() {
		if err != nil {
			tx.Rollback() //nolint:errcheck // the original error wins
		}
	}()

	status, msg := runStatus(runErr)
	now := j.nowFunc().UnixNano()

	if _, err = tx.ExecContext(ctx, sqlFinishRun, now, status, msg, r.ID); err != nil {
		return fmt.Errorf("sync: finishing run %s: %w", r.ID, err)
	}

	seq := 0

	for i := range r.Dirs {
		d := &r.Dirs[i]

		if _, err = tx.ExecContext(ctx, sqlInsertDirReport,
			r.ID, d.Catalog, d.Dir, d.Dest, d.Policy, d.Selected,
			d.New, d.Updated, d.Same, d.Deleted, d.Locked, d.Stubs, d.Playlists,
			d.Bytes, d.DependencyBytes,
		); err != nil {
			return fmt.Errorf("sync: recording report %s/%s: %w", d.Catalog, d.Dir, err)
		}

		for _, a := range d.Actions {
			seq++

			if _, err = tx.ExecContext(ctx, sqlInsertAction,
				r.ID, seq, d.Catalog, d.Dir, string(a.Kind), a.Key, a.DestKey, now,
			); err != nil {
				return fmt.Errorf("sync: recording action %s: %w", a.Key, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sync: committing journal: %w", err)
	}

	return nil
}

func runStatus(err error) (string, sql.NullString) {
	switch {
	case err == nil:
		return StatusOK, sql.NullString{}
	case errors.Is(err, context.Canceled):
		return StatusCancelled, sql.NullString{String: err.Error(), Valid: true}
	default:
		return StatusFailed, sql.NullString{String: err.Error(), Valid: true}
	}
}

// RunRecord is one journaled run.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or after a crash
	DryRun     bool
	Status     string
	Error      string
	Dirs       []DirReport // Actions are filled only by Run
}

// Recent returns the n most recent runs, newest first, with their
// directory reports.
func (j *Journal) Recent(ctx context.Context, n int) ([]RunRecord, error) {
	rows, err := j.db.QueryContext(ctx, sqlRecentRuns, n)
	if err != nil {
		return nil, fmt.Errorf("sync: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord

	for rows.Next() {
		var (
			rec        RunRecord
			started    int64
			finished   sql.NullInt64
			errMessage sql.NullString
		)

		if err := rows.Scan(&rec.ID, &started, &finished, &rec.DryRun, &rec.Status, &errMessage); err != nil {
			return nil, fmt.Errorf("sync: scanning run: %w", err)
		}

		rec.StartedAt = time.Unix(0, started)
		if finished.Valid {
			rec.FinishedAt = time.Unix(0, finished.Int64)
		}

		rec.Error = errMessage.String
		runs = append(runs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync: iterating runs: %w", err)
	}

	// The journal holds a single connection; release it before the
	// per-run queries.
	rows.Close()

	for i := range runs {
		if runs[i].Dirs, err = j.dirs(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

// Run returns one run with its directory reports and actions.
func (j *Journal) Run(ctx context.Context, id string) (*RunRecord, error) {
	runs, err := j.Recent(ctx, -1)
	if err != nil {
		return nil, err
	}

	for i := range runs {
		if runs[i].ID != id {
			continue
		}

		rec := &runs[i]
		if err := j.actions(ctx, rec); err != nil {
			return nil, err
		}

		return rec, nil
	}

	return nil, fmt.Errorf("sync: no run %q in journal", id)
}

func (j *Journal) dirs(ctx context.Context, id string) ([]DirReport, error) {
	rows, err := j.db.QueryContext(ctx, sqlRunDirs, id)
	if err != nil {
		return nil, fmt.Errorf("sync: listing reports of %s: %w", id, err)
	}
	defer rows.Close()

	var out []DirReport

	for rows.Next() {
		var d DirReport

		if err := rows.Scan(&d.Catalog, &d.Dir, &d.Dest, &d.Policy, &d.Selected,
			&d.New, &d.Updated, &d.Same, &d.Deleted, &d.Locked, &d.Stubs, &d.Playlists,
			&d.Bytes, &d.DependencyBytes,
		); err != nil {
			return nil, fmt.Errorf("sync: scanning report: %w", err)
		}

		out = append(out, d)
	}

	return out, rows.Err()
}

func (j *Journal) actions(ctx context.Context, rec *RunRecord) error {
	rows, err := j.db.QueryContext(ctx, sqlRunActions, rec.ID)
	if err != nil {
		return fmt.Errorf("sync: listing actions of %s: %w", rec.ID, err)
	}
	defer rows.Close()

	index := make(map[string]*DirReport, len(rec.Dirs))
	for i := range rec.Dirs {
		index[rec.Dirs[i].Catalog+"\x00"+rec.Dirs[i].Dir] = &rec.Dirs[i]
	}

	for rows.Next() {
		var (
			cat, dir, kind string
			a              Action
		)

		if err := rows.Scan(&cat, &dir, &kind, &a.Key, &a.DestKey); err != nil {
			return fmt.Errorf("sync: scanning action: %w", err)
		}

		a.Kind = ActionKind(kind)

		if d, ok := index[cat+"\x00"+dir]; ok {
			d.Actions = append(d.Actions, a)
		}
	}

	return rows.Err()
}
