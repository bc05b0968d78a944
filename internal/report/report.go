package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/srebench/internal/compare"
	"github.com/signalnine/srebench/internal/pricing"
	"github.com/signalnine/srebench/internal/result"
)

// Options control how a run is summarized.
type Options struct {
	// Composite weights blend the comparison scores into one number.
	Composite map[string]float64
	Pricing   *pricing.Table
	Provider  string
	Model     string
}

type ScenarioRow struct {
	ScenarioID   string  `json:"scenario_id"`
	RootCause    float64 `json:"root_cause_score"`
	CausalChain  float64 `json:"causal_chain_score"`
	Resolution   float64 `json:"resolution_score"`
	Composite    float64 `json:"composite_score"`
	Efficiency   float64 `json:"efficiency_score"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Attempts     int     `json:"attempts"`
	Error        string  `json:"error,omitempty"`
}

type RunReport struct {
	RunID          string             `json:"run_id"`
	AgentName      string             `json:"agent_name"`
	Complete       bool               `json:"complete"`
	ScenarioCount  int                `json:"scenario_count"`
	FailedCount    int                `json:"failed_count"`
	AverageScores  map[string]float64 `json:"average_scores"`
	MeanComposite  float64            `json:"mean_composite_score"`
	MeanEfficiency float64            `json:"mean_efficiency_score"`
	InputTokens    int                `json:"input_tokens"`
	OutputTokens   int                `json:"output_tokens"`
	CostUSD        *float64           `json:"cost_usd,omitempty"`
	Scenarios      []ScenarioRow      `json:"scenarios"`
}

// Generate reads the run in runDir and writes its report.
func Generate(runDir, format string, w io.Writer, opts Options) error {
	s, err := result.ReadRun(runDir)
	if err != nil {
		return err
	}
	return Write(Build(s, opts), format, w)
}

// Build summarizes s. Failed scenarios are listed but excluded from means.
func Build(s *result.RunSummary, opts Options) RunReport {
	r := RunReport{
		RunID:          s.RunID,
		AgentName:      s.AgentName,
		Complete:       s.Complete,
		ScenarioCount:  s.ScenarioCount,
		FailedCount:    s.FailedCount,
		AverageScores:  s.AverageScores,
		MeanEfficiency: s.AverageEfficiencyScore,
		Scenarios:      []ScenarioRow{},
	}
	var ok int
	var compositeSum float64
	for _, id := range s.IDs() {
		res := s.ScenarioResults[id]
		row := ScenarioRow{
			ScenarioID:   id,
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
			Attempts:     res.Attempts,
		}
		if res.Failed() {
			row.Error = string(res.Error.Kind)
		} else {
			row.RootCause = res.ComparisonScores[compare.RootCauseScore]
			row.CausalChain = res.ComparisonScores[compare.CausalChainScore]
			row.Resolution = res.ComparisonScores[compare.ResolutionScore]
			row.Composite = compare.Composite(res.ComparisonScores, opts.Composite)
			row.Efficiency = res.EfficiencyScore
			compositeSum += row.Composite
			ok++
		}
		r.Scenarios = append(r.Scenarios, row)
	}
	if ok > 0 {
		r.MeanComposite = compositeSum / float64(ok)
	}
	u := s.Usage()
	r.InputTokens, r.OutputTokens = u.InputTokens, u.OutputTokens
	if cost, known := opts.Pricing.Estimate(opts.Provider, opts.Model, u); known {
		r.CostUSD = &cost
	}
	return r
}

// Write renders r as table, markdown or json.
func Write(r RunReport, format string, w io.Writer) error {
	switch format {
	case "markdown":
		return writeMarkdown(r, w)
	case "json":
		return writeJSON(r, w)
	case "table", "":
		return writeTable(r, w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func status(r RunReport) string {
	if r.Complete {
		return "complete"
	}
	return "incomplete"
}

func cost(r RunReport) string {
	if r.CostUSD == nil {
		return "n/a"
	}
	return fmt.Sprintf("$%.4f", *r.CostUSD)
}

func writeTable(r RunReport, w io.Writer) error {
	fmt.Fprintf(w, "Run %s  agent %s  (%s)\n", r.RunID, r.AgentName, status(r))
	fmt.Fprintf(w, "Scenarios: %d  failed: %d  tokens: %d in / %d out  cost: %s\n\n",
		r.ScenarioCount, r.FailedCount, r.InputTokens, r.OutputTokens, cost(r))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tROOT CAUSE\tCAUSAL CHAIN\tRESOLUTION\tCOMPOSITE\tEFFICIENCY\tTOKENS\tERROR")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, s := range r.Scenarios {
		if s.Error != "" {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t%d\t%s\n", s.ScenarioID, s.InputTokens+s.OutputTokens, s.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%d\t\n",
			s.ScenarioID, s.RootCause, s.CausalChain, s.Resolution, s.Composite, s.Efficiency, s.InputTokens+s.OutputTokens)
	}
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	fmt.Fprintf(tw, "MEAN\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t\t\n",
		r.AverageScores[compare.RootCauseScore], r.AverageScores[compare.CausalChainScore],
		r.AverageScores[compare.ResolutionScore], r.MeanComposite, r.MeanEfficiency)
	return tw.Flush()
}

func writeMarkdown(r RunReport, w io.Writer) error {
	fmt.Fprintf(w, "## Run `%s`\n\n", r.RunID)
	fmt.Fprintf(w, "Agent **%s**, %s. %d scenarios, %d failed. Tokens: %d in / %d out. Cost: %s.\n\n",
		r.AgentName, status(r), r.ScenarioCount, r.FailedCount, r.InputTokens, r.OutputTokens, cost(r))
	fmt.Fprintln(w, "| Scenario | Root Cause | Causal Chain | Resolution | Composite | Efficiency | Error |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, s := range r.Scenarios {
		if s.Error != "" {
			fmt.Fprintf(w, "| %s | - | - | - | - | - | %s |\n", s.ScenarioID, s.Error)
			continue
		}
		fmt.Fprintf(w, "| %s | %.3f | %.3f | %.3f | %.3f | %.3f | |\n",
			s.ScenarioID, s.RootCause, s.CausalChain, s.Resolution, s.Composite, s.Efficiency)
	}
	fmt.Fprintf(w, "| **mean** | %.3f | %.3f | %.3f | %.3f | %.3f | |\n",
		r.AverageScores[compare.RootCauseScore], r.AverageScores[compare.CausalChainScore],
		r.AverageScores[compare.ResolutionScore], r.MeanComposite, r.MeanEfficiency)
	return nil
}

func writeJSON(r RunReport, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
