package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/signalnine/srebench/internal/scenario"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [scenario-id...]",
		Short: "Load scenarios and report fixture errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := scenario.NewStore(cfg.Scenarios.Dir, 0, nil)
			if err != nil {
				return err
			}
			ids := args
			if len(ids) == 0 {
				if ids, err = store.List(); err != nil {
					return err
				}
			}
			bad := 0
			for _, id := range ids {
				sc, err := store.Load(cmd.Context(), id)
				if err != nil {
					bad++
					color.Red("  %s  %v", id, err)
					continue
				}
				color.Green("  %s  ok (%d logs, %d events, %d truth nodes)",
					id, len(sc.State.Logs), len(sc.State.Events), len(sc.GroundTruth.CausalGraph.Nodes))
			}
			if bad > 0 {
				return fmt.Errorf("%d of %d scenarios failed to load", bad, len(ids))
			}
			return nil
		},
	}
}
