package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yuichietsu/retroarch-sync/internal/sync"
)

func newWatchCmd() *cobra.Command {
	var catalogName string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync on every change to the source directories",
		Long: `Run one sync, then watch the catalog sources and sync again once the
changes settle. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			cfg := cc.Cfg
			if catalogName != "" {
				cat, ok := cfg.FindCatalog(catalogName)
				if !ok {
					return fmt.Errorf("unknown catalog %q", catalogName)
				}

				filtered := *cfg
				filtered.Catalogs = append(filtered.Catalogs[:0:0], *cat)
				cfg = &filtered
			}

			release, err := acquireRunLock(pidPath())
			if err != nil {
				return err
			}
			defer release()

			ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
			defer stop()

			orch, closeJournal := newOrchestrator(ctx, cfg, cc.Logger)
			defer closeJournal()

			w := cmd.OutOrStdout()

			run := func(ctx context.Context) error {
				rep, err := orch.RunOnce(ctx, sync.RunOpts{})
				if rep != nil && len(rep.Dirs) > 0 {
					printRunReport(w, rep, false)
				}

				return err
			}

			cc.Statusf("Watching %d catalog(s). Press Ctrl-C to stop.\n", len(cfg.Catalogs))

			return sync.NewSourceWatcher(cfg, run, cc.Logger).Watch(ctx)
		},
	}

	cmd.Flags().StringVar(&catalogName, "catalog", "", "only watch this catalog")

	return cmd
}
