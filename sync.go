package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yuichietsu/retroarch-sync/internal/config"
	"github.com/yuichietsu/retroarch-sync/internal/sync"
)

// pidPath is the single-instance lock location. Tests point it at a temp dir.
var pidPath = config.PIDPath

// syncFlags are the per-run selectors shared by sync and plan.
type syncFlags struct {
	catalog string
	dir     string
	policy  string
	dryRun  bool
	seed    uint64
	actions bool
}

func (f *syncFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.catalog, "catalog", "", "only sync this catalog")
	cmd.Flags().StringVar(&f.dir, "dir", "", "only sync this source directory")
	cmd.Flags().StringVar(&f.policy, "policy", "", "policy for --dir, replacing the configured one")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "seed for random selection (0 picks one)")
}

func (f *syncFlags) opts() sync.RunOpts {
	return sync.RunOpts{
		DryRun:  f.dryRun,
		Catalog: f.catalog,
		Dir:     f.dir,
		Policy:  f.policy,
		Seed:    f.seed,
	}
}

func newSyncCmd() *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the configured catalogs to the device",
		Long: `Run one reconciliation pass over every configured catalog.

Each source directory with a target policy is selected, transformed, and
copied to the device. Entries no longer selected are deleted unless a save
state or favorite locks them. Use --dry-run to preview without changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd, &flags)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "preview actions without changing the device")
	cmd.Flags().BoolVar(&flags.actions, "actions", false, "list every action after the summary")

	return cmd
}

func newPlanCmd() *cobra.Command {
	var flags syncFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what sync would do without changing the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.dryRun = true
			flags.actions = true

			return runSync(cmd, &flags)
		},
	}

	flags.register(cmd)

	return cmd
}

func runSync(cmd *cobra.Command, flags *syncFlags) error {
	if flags.policy != "" && flags.dir == "" {
		return fmt.Errorf("--policy requires --dir")
	}

	cc := mustCLIContext(cmd.Context())

	// A dry run never writes, so it may run next to a live sync.
	if !flags.dryRun {
		release, err := acquireRunLock(pidPath())
		if err != nil {
			return err
		}
		defer release()
	}

	ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
	defer stop()

	orch, closeJournal := newOrchestrator(ctx, cc.Cfg, cc.Logger)
	defer closeJournal()

	rep, err := orch.RunOnce(ctx, flags.opts())
	if rep != nil && len(rep.Dirs) > 0 {
		printRunReport(cmd.OutOrStdout(), rep, flags.actions)
	}

	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	if len(rep.Dirs) == 0 {
		cc.Statusf("Nothing to sync: no source directory has a target policy.\n")
	}

	return nil
}
