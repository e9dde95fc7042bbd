package main

import (
	"context"
	"log/slog"

	"github.com/yuichietsu/retroarch-sync/internal/config"
	"github.com/yuichietsu/retroarch-sync/internal/shell"
	"github.com/yuichietsu/retroarch-sync/internal/sync"
)

// journalPath is the run journal location. Tests point it at a temp dir.
var journalPath = config.JournalPath

// newOrchestrator builds an Orchestrator for cfg. When the journal is
// enabled it is opened too; a journal that cannot be opened is reported and
// the run proceeds without one. The returned close function is never nil.
func newOrchestrator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sync.Orchestrator, func()) {
	ocfg := &sync.OrchestratorConfig{
		Config: cfg,
		Shell:  shell.ExecRunner{},
		Logger: logger,
	}

	closeFn := func() {}

	if cfg.Journal {
		j, err := sync.OpenJournal(ctx, journalPath(), logger)
		if err != nil {
			logger.Warn("run journal unavailable, continuing without it",
				slog.String("path", journalPath()),
				slog.String("error", err.Error()),
			)
		} else {
			ocfg.Journal = j
			closeFn = func() {
				if err := j.Close(); err != nil {
					logger.Warn("closing run journal", slog.String("error", err.Error()))
				}
			}
		}
	}

	return sync.NewOrchestrator(ocfg), closeFn
}
