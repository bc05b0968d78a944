package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalnine/srebench/internal/result"
)

func newEvaluateCmd() *cobra.Command {
	var dir, agentName, format string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a scenario directory outside the scenario store",
		Long:  "Load a scenario from --dir, evaluate it with one agent and persist it as a one-scenario run with a custom- run id.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := newPipeline(ctx, cfg, agentName)
			if err != nil {
				return err
			}
			defer p.Close(ctx)

			sc, err := p.store.LoadDir(ctx, dir)
			if err != nil {
				return err
			}
			s, runErr := p.runner.RunScenario(ctx, sc, p.agent.Name)
			if s == nil {
				return runErr
			}
			fmt.Printf("Run directory: %s\n", result.RunDir(cfg.Results.Dir, s.RunID))
			if err := p.printReport(s, format); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "scenario directory to evaluate")
	cmd.Flags().StringVar(&agentName, "agent", "", "agent to evaluate (default: first configured agent)")
	cmd.Flags().StringVar(&format, "format", "table", "report format (table, markdown, json)")
	cmd.MarkFlagRequired("dir")
	return cmd
}
