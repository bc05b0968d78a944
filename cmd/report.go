package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/srebench/internal/agent"
	"github.com/signalnine/srebench/internal/config"
	"github.com/signalnine/srebench/internal/pricing"
	"github.com/signalnine/srebench/internal/report"
	"github.com/signalnine/srebench/internal/result"
)

func newReportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Generate summary from stored results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			runDir, err := resolveRunDir(cfg.Results.Dir, args)
			if err != nil {
				return err
			}
			s, err := result.ReadRun(runDir)
			if err != nil {
				return err
			}
			ac, _ := cfg.Agent(s.AgentName)
			return report.Write(report.Build(s, reportOptions(cfg, ac)), format, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format (table, markdown, json)")
	return cmd
}

// resolveRunDir maps an optional run id to its directory, defaulting to the
// latest run.
func resolveRunDir(resultsDir string, args []string) (string, error) {
	runDir := filepath.Join(resultsDir, "latest")
	if len(args) > 0 {
		runDir = result.RunDir(resultsDir, args[0])
	}
	resolved, err := filepath.EvalSymlinks(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	return resolved, nil
}

func reportOptions(cfg *config.Config, ac agent.Config) report.Options {
	opts := report.Options{Composite: cfg.Scoring.Composite, Provider: ac.Provider, Model: ac.Model}
	if opts.Provider == "" && ac.Adapter == agent.AdapterLLM {
		opts.Provider = agent.ProviderGoogleAI
	}
	if cfg.Pricing.Path != "" {
		table, err := pricing.Load(cfg.Pricing.Path)
		if err != nil {
			slog.Warn("pricing unavailable", "path", cfg.Pricing.Path, "error", err)
		} else {
			opts.Pricing = table
		}
	}
	return opts
}
