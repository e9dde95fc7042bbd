package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/yuichietsu/retroarch-sync/internal/sync"
)

const defaultHistoryRuns = 10

func newHistoryCmd() *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "Show recent runs from the run journal",
		Long: `List the most recent runs with their totals. With a run ID, show that
run's directory reports and every action it recorded.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())
			if !cc.Cfg.Journal {
				return fmt.Errorf("the run journal is disabled (set journal = true in %s)", cc.CfgPath)
			}

			j, err := sync.OpenJournal(cmd.Context(), journalPath(), cc.Logger)
			if err != nil {
				return err
			}
			defer j.Close()

			w := cmd.OutOrStdout()

			if len(args) == 1 {
				rec, err := j.Run(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				printRunRecord(w, rec)

				return nil
			}

			runs, err := j.Recent(cmd.Context(), n)
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				cc.Statusf("No runs recorded.\n")
				return nil
			}

			printRunList(w, runs, time.Now())

			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "runs", "n", defaultHistoryRuns, "number of runs to list")

	return cmd
}

func printRunList(w io.Writer, runs []sync.RunRecord, now time.Time) {
	rows := make([][]string, 0, len(runs))

	for i := range runs {
		r := &runs[i]

		var totals sync.Counts
		for j := range r.Dirs {
			totals.Add(r.Dirs[j].Counts)
		}

		mode := "sync"
		if r.DryRun {
			mode = "dry-run"
		}

		rows = append(rows, []string{
			r.ID, formatTime(r.StartedAt, now), mode, r.Status,
			fmt.Sprintf("%d/%d/%d", totals.New, totals.Updated, totals.Deleted),
		})
	}

	printTable(w, []string{"ID", "STARTED", "MODE", "STATUS", "NEW/UPD/DEL"}, rows)
}

func printRunRecord(w io.Writer, rec *sync.RunRecord) {
	fmt.Fprintf(w, "Run %s (%s)\n", rec.ID, rec.Status)
	fmt.Fprintf(w, "Started:  %s\n", rec.StartedAt.Format(time.RFC3339))

	if !rec.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Finished: %s\n", rec.FinishedAt.Format(time.RFC3339))
	}

	if rec.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", rec.Error)
	}

	fmt.Fprintln(w)
	printRunReport(w, &sync.RunReport{ID: rec.ID, DryRun: rec.DryRun, Dirs: rec.Dirs}, true)
}
