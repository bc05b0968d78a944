package compare

import (
	"errors"
	"fmt"
)

// Weights holds the tier scores, thresholds and blend weights used by
// Compare, plus the optional composite weights used by reports.
type Weights struct {
	// NameMatch is the root cause and resolution score when only the
	// component name matches.
	NameMatch float64 `yaml:"name_match" json:"name_match"`
	// TextCap bounds the lexical fallback score.
	TextCap float64 `yaml:"text_cap" json:"text_cap"`
	// CandidateOverlap is the minimum description overlap for two nodes
	// with different components to be alignment candidates.
	CandidateOverlap float64 `yaml:"candidate_overlap" json:"candidate_overlap"`
	AlignComponent   float64 `yaml:"align_component" json:"align_component"`
	AlignText        float64 `yaml:"align_text" json:"align_text"`
	NodeRecall       float64 `yaml:"node_recall" json:"node_recall"`
	EdgeRecall       float64 `yaml:"edge_recall" json:"edge_recall"`

	Composite map[string]float64 `yaml:"composite" json:"composite,omitempty"`
}

// DefaultWeights returns the standard scoring configuration.
func DefaultWeights() Weights {
	return Weights{
		NameMatch:        0.5,
		TextCap:          0.4,
		CandidateOverlap: 0.3,
		AlignComponent:   0.6,
		AlignText:        0.4,
		NodeRecall:       0.4,
		EdgeRecall:       0.6,
		Composite: map[string]float64{
			RootCauseScore:   0.4,
			CausalChainScore: 0.4,
			ResolutionScore:  0.2,
		},
	}
}

// Validate checks that every weight lies in [0,1] and that the blend pairs
// sum to 1.
func (w Weights) Validate() error {
	var errs []error
	for name, v := range map[string]float64{
		"name_match":        w.NameMatch,
		"text_cap":          w.TextCap,
		"candidate_overlap": w.CandidateOverlap,
		"align_component":   w.AlignComponent,
		"align_text":        w.AlignText,
		"node_recall":       w.NodeRecall,
		"edge_recall":       w.EdgeRecall,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 1, got %g", name, v))
		}
	}
	if !approx(w.AlignComponent+w.AlignText, 1) {
		errs = append(errs, fmt.Errorf("align_component + align_text must be 1, got %g", w.AlignComponent+w.AlignText))
	}
	if !approx(w.NodeRecall+w.EdgeRecall, 1) {
		errs = append(errs, fmt.Errorf("node_recall + edge_recall must be 1, got %g", w.NodeRecall+w.EdgeRecall))
	}
	for name, v := range w.Composite {
		if v < 0 {
			errs = append(errs, fmt.Errorf("composite weight %s must not be negative", name))
		}
	}
	return errors.Join(errs...)
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

// Composite returns the weighted mean of the named scores. Scores missing
// from weights are ignored; it returns 0 when no weight applies.
func Composite(scores, weights map[string]float64) float64 {
	var sum, total float64
	for name, w := range weights {
		v, ok := scores[name]
		if !ok || w <= 0 {
			continue
		}
		sum += v * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}
