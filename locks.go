package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuichietsu/retroarch-sync/internal/policy"
)

func newLocksCmd() *cobra.Command {
	var catalogName, group string

	cmd := &cobra.Command{
		Use:   "locks",
		Short: "List entries protected from deletion",
		Long: `Read the save states and favorites on the device and list the game
keys they lock, per lock group. Group "*" is the union of all groups.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			orch, closeJournal := newOrchestrator(cmd.Context(), cc.Cfg, cc.Logger)
			defer closeJournal()

			sets, err := orch.Locks(cmd.Context(), catalogName)
			if err != nil {
				return err
			}

			var rows [][]string

			for _, cl := range sets {
				groups := cl.Set.Groups()
				if group != "" {
					groups = []string{strings.ToLower(group)}
				}

				for _, g := range groups {
					if group == "" && g == policy.WildcardGroup {
						continue
					}

					for _, key := range cl.Set.Sorted(g) {
						rows = append(rows, []string{cl.Catalog, g, key})
					}
				}
			}

			if len(rows) == 0 {
				cc.Statusf("No locked entries.\n")
				return nil
			}

			printTable(cmd.OutOrStdout(), []string{"CATALOG", "GROUP", "KEY"}, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d locked\n", len(rows))

			return nil
		},
	}

	cmd.Flags().StringVar(&catalogName, "catalog", "", "only this catalog")
	cmd.Flags().StringVar(&group, "group", "", `only this lock group ("*" for all)`)

	return cmd
}
