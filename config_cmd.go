package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yuichietsu/retroarch-sync/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigCheckCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return config.RenderEffective(cc.Cfg, cc.CfgPath, cmd.OutOrStdout())
		},
	}
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Parse every policy and load every catalog data file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := config.Check(cc.Cfg); err != nil {
				return fmt.Errorf("config check: %w", err)
			}

			targets := 0
			for i := range cc.Cfg.Catalogs {
				targets += len(cc.Cfg.Catalogs[i].Targets)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d catalog(s), %d target(s) OK\n",
				cc.CfgPath, len(cc.Cfg.Catalogs), targets)

			return nil
		},
	}
}
