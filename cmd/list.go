package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalnine/srebench/internal/agent"
	"github.com/signalnine/srebench/internal/scenario"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available scenarios and agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Println("Agents:")
			for _, a := range cfg.Agents {
				fmt.Printf("  - %s (%s)\n", a.Name, describeAgent(a))
			}
			store, err := scenario.NewStore(cfg.Scenarios.Dir, 0, nil)
			if err != nil {
				return err
			}
			ids, err := store.List()
			if err != nil {
				return err
			}
			fmt.Printf("\nScenarios (%s):\n", cfg.Scenarios.Dir)
			for _, id := range ids {
				fmt.Printf("  - %s\n", id)
			}
			return nil
		},
	}
}

func describeAgent(a agent.Config) string {
	switch a.Adapter {
	case agent.AdapterContainer:
		return "container: " + a.Image
	case agent.AdapterReplay:
		return "replay: " + a.Dir
	default:
		provider := a.Provider
		if provider == "" {
			provider = agent.ProviderGoogleAI
		}
		if a.Model == "" {
			return "llm: " + provider
		}
		return "llm: " + provider + "/" + a.Model
	}
}
