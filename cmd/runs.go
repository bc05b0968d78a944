package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalnine/srebench/internal/result"
)

func newRunsCmd() *cobra.Command {
	var rebuild bool
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			idx, err := result.OpenIndex(ctx, result.IndexPath(cfg.Results.Dir))
			if err != nil {
				return err
			}
			defer idx.Close()

			if rebuild {
				n, err := idx.Rebuild(ctx, cfg.Results.Dir)
				if err != nil {
					return err
				}
				fmt.Printf("Indexed %d runs\n\n", n)
			}
			runs, err := idx.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tAGENT\tSTARTED\tSCENARIOS\tFAILED\tEFFICIENCY\tSTATUS")
			fmt.Fprintln(tw, strings.Repeat("-", 90))
			for _, r := range runs {
				status := "complete"
				if !r.Complete {
					status = "incomplete"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.3f\t%s\n",
					r.RunID, r.AgentName, r.StartedAt.Format("2006-01-02 15:04:05"),
					r.ScenarioCount, r.FailedCount, r.AverageEfficiencyScore, status)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "rebuild the index from run directories first")
	return cmd
}
