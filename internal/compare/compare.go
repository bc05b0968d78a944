// Package compare scores an agent's diagnosis against ground truth by
// matching components and aligning causal graphs.
package compare

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/signalnine/srebench/internal/model"
)

// Score names reported by Compare.
const (
	RootCauseScore   = "root_cause_score"
	CausalChainScore = "causal_chain_score"
	ResolutionScore  = "resolution_score"
	NodeRecall       = "node_recall"
	EdgeRecall       = "edge_recall"
)

// Match tiers for component comparisons.
const (
	TierComponent = "component"
	TierName      = "name"
	TierText      = "text"
)

// Comparison is the result of scoring one prediction.
type Comparison struct {
	Scores      map[string]float64 `json:"scores"`
	Diagnostics Diagnostics        `json:"diagnostics"`
}

// Diagnostics explains how the scores were reached.
type Diagnostics struct {
	RootCauseTier  string         `json:"root_cause_tier"`
	ResolutionTier string         `json:"resolution_tier"`
	Alignment      []AlignedPair  `json:"alignment"`
	UnmatchedTruth []string       `json:"unmatched_truth,omitempty"`
	Edges          []EdgeRecovery `json:"edges"`
}

// AlignedPair is one ground truth node matched to a predicted node.
type AlignedPair struct {
	TruthID        string  `json:"truth_id"`
	PredictedID    string  `json:"predicted_id"`
	Score          float64 `json:"score"`
	ComponentMatch bool    `json:"component_match"`
	Overlap        float64 `json:"overlap"`
}

// EdgeRecovery records whether a ground truth edge was found in the
// prediction. Relations are informational only.
type EdgeRecovery struct {
	Source            string `json:"source"`
	Target            string `json:"target"`
	Relation          string `json:"relation,omitempty"`
	PredictedRelation string `json:"predicted_relation,omitempty"`
	Recovered         bool   `json:"recovered"`
}

// Comparator scores predictions with a fixed set of weights. It holds no
// mutable state and is safe for concurrent use.
type Comparator struct {
	w Weights
}

// New returns a Comparator using w.
func New(w Weights) *Comparator {
	return &Comparator{w: w}
}

// Compare scores predicted against truth using the default weights.
func Compare(predicted *model.AgentOutput, truth model.GroundTruth) Comparison {
	return New(DefaultWeights()).Compare(predicted, truth)
}

// Compare scores predicted against truth. A nil prediction scores zero
// everywhere except recalls over empty ground truth.
func (c *Comparator) Compare(predicted *model.AgentOutput, truth model.GroundTruth) Comparison {
	if predicted == nil {
		predicted = &model.AgentOutput{}
	}
	var d Diagnostics
	rc, rcTier := c.tier(predicted.RootCause.Component, truth.RootCause.Component, true,
		predicted.RootCause.Text(), truth.RootCause.Text())
	res, resTier := c.tier(predicted.Resolution.TargetComponent, truth.Resolution.TargetComponent,
		fold(predicted.Resolution.ActionType, truth.Resolution.ActionType),
		predicted.Resolution.Text(), truth.Resolution.Text())
	d.RootCauseTier, d.ResolutionTier = rcTier, resTier

	nr, er := c.chain(predicted.CausalGraph, truth.CausalGraph, &d)
	return Comparison{
		Scores: map[string]float64{
			RootCauseScore:   rc,
			CausalChainScore: c.w.NodeRecall*nr + c.w.EdgeRecall*er,
			ResolutionScore:  res,
			NodeRecall:       nr,
			EdgeRecall:       er,
		},
		Diagnostics: d,
	}
}

// tier applies the three-tier component comparison. exact gates the top
// tier on anything beyond the component itself.
func (c *Comparator) tier(pred, truth model.Component, exact bool, predText, truthText string) (float64, string) {
	if exact && pred.Matches(truth) {
		return 1, TierComponent
	}
	if pred.NameMatches(truth) {
		return c.w.NameMatch, TierName
	}
	return min(Jaccard(predText, truthText), c.w.TextCap), TierText
}

type candidate struct {
	ti, pi    int
	score     float64
	overlap   float64
	compMatch bool
}

// chain greedily aligns predicted nodes to truth nodes and returns node and
// edge recall.
func (c *Comparator) chain(pred, truth model.CausalGraph, d *Diagnostics) (float64, float64) {
	var cands []candidate
	truthTokens := make([]map[string]struct{}, len(truth.Nodes))
	for i, n := range truth.Nodes {
		truthTokens[i] = tokenSet(n.Text())
	}
	for pi, pn := range pred.Nodes {
		pt := tokenSet(pn.Text())
		for ti, tn := range truth.Nodes {
			if !fold(pn.Type, tn.Type) {
				continue
			}
			cm := componentMatch(pn, tn)
			ov := jaccardSets(pt, truthTokens[ti])
			if !cm && ov < c.w.CandidateOverlap {
				continue
			}
			s := c.w.AlignText * ov
			if cm {
				s += c.w.AlignComponent
			}
			cands = append(cands, candidate{ti: ti, pi: pi, score: s, overlap: ov, compMatch: cm})
		}
	}
	slices.SortFunc(cands, func(a, b candidate) int {
		if r := cmp.Compare(b.score, a.score); r != 0 {
			return r
		}
		if r := cmp.Compare(a.ti, b.ti); r != 0 {
			return r
		}
		return cmp.Compare(a.pi, b.pi)
	})

	truthToPred := make(map[int]int, len(truth.Nodes))
	usedPred := make(map[int]bool, len(pred.Nodes))
	for _, cd := range cands {
		if _, ok := truthToPred[cd.ti]; ok || usedPred[cd.pi] {
			continue
		}
		truthToPred[cd.ti] = cd.pi
		usedPred[cd.pi] = true
		d.Alignment = append(d.Alignment, AlignedPair{
			TruthID:        truth.Nodes[cd.ti].ID,
			PredictedID:    pred.Nodes[cd.pi].ID,
			Score:          cd.score,
			ComponentMatch: cd.compMatch,
			Overlap:        cd.overlap,
		})
	}
	for i, n := range truth.Nodes {
		if _, ok := truthToPred[i]; !ok {
			d.UnmatchedTruth = append(d.UnmatchedTruth, n.ID)
		}
	}

	nodeRecall := 1.0
	if len(truth.Nodes) > 0 {
		nodeRecall = float64(len(truthToPred)) / float64(len(truth.Nodes))
	}

	// Truth ids map to the aligned predicted id; predicted edges are keyed
	// by id so edges with unknown endpoints never match.
	aligned := make(map[string]string, len(truthToPred))
	for ti, pi := range truthToPred {
		if _, dup := aligned[truth.Nodes[ti].ID]; !dup {
			aligned[truth.Nodes[ti].ID] = pred.Nodes[pi].ID
		}
	}
	predEdges := make(map[[2]string]string, len(pred.Edges))
	for _, e := range pred.Edges {
		k := [2]string{e.Source, e.Target}
		if _, ok := predEdges[k]; !ok {
			predEdges[k] = e.Relation
		}
	}

	recovered := 0
	for _, e := range truth.Edges {
		er := EdgeRecovery{Source: e.Source, Target: e.Target, Relation: e.Relation}
		ps, okS := aligned[e.Source]
		pt, okT := aligned[e.Target]
		if okS && okT {
			if rel, ok := predEdges[[2]string{ps, pt}]; ok {
				er.Recovered = true
				er.PredictedRelation = rel
				recovered++
			}
		}
		d.Edges = append(d.Edges, er)
	}
	edgeRecall := 1.0
	if len(truth.Edges) > 0 {
		edgeRecall = float64(recovered) / float64(len(truth.Edges))
	}
	return nodeRecall, edgeRecall
}

// componentMatch reports whether two nodes name the same component, or
// neither names one.
func componentMatch(pred, truth model.Node) bool {
	ph, th := pred.HasComponent(), truth.HasComponent()
	if !ph && !th {
		return true
	}
	if ph != th {
		return false
	}
	return pred.Component.Matches(*truth.Component)
}

func fold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Jaccard returns the token Jaccard similarity of a and b. Two texts
// without tokens have similarity 0.
func Jaccard(a, b string) float64 {
	return jaccardSets(tokenSet(a), tokenSet(b))
}

func jaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

// tokenSet lowercases s and splits it on anything that is not a letter or
// digit.
func tokenSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
