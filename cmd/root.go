package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalnine/srebench/internal/config"
	"github.com/signalnine/srebench/internal/telemetry"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile       string
	flagLogLevel  string
	flagLogFormat string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "srebench",
		Short:        "Benchmark harness for SRE incident-diagnosis agents",
		Version:      Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "srebench.yaml", "config file path")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format (text, json); overrides the config")
	root.AddCommand(newRunCmd())
	root.AddCommand(newEvaluateCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newRunsCmd())
	root.AddCommand(newRescoreCmd())
	return root
}

// loadConfig loads the config file and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Log.Format = flagLogFormat
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}

func newLogger(l config.Log) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", l.Format)
	}
}

func startTelemetry(ctx context.Context, cfg *config.Config) (telemetry.Shutdown, error) {
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName, Version, cfg.Telemetry.Insecure)
	if err != nil {
		return nil, fmt.Errorf("starting telemetry: %w", err)
	}
	return shutdown, nil
}
