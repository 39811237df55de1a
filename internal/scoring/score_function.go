package scoring

import (
	"fmt"
	"strings"
)

// WeightedScorer pairs a Scorer with its aggregation weight.
type WeightedScorer struct {
	Weight float64
	Scorer Scorer
}

// ScoreFunction aggregates a list of weighted scorers into a single value
// in [0,1], per §4.8.
type ScoreFunction struct {
	Scorers []WeightedScorer
}

// NewScoreFunction filters out zero-weight entries at construction.
func NewScoreFunction(scorers []WeightedScorer) *ScoreFunction {
	kept := make([]WeightedScorer, 0, len(scorers))
	for _, s := range scorers {
		if s.Weight != 0 {
			kept = append(kept, s)
		}
	}
	return &ScoreFunction{Scorers: kept}
}

// Evaluate runs every scorer against ctx and returns the weighted average
// value plus a newline-joined human trace. If total weight is zero,
// Evaluate returns (0, "no scorers configured").
func (f *ScoreFunction) Evaluate(ctx ScoringContext) (float64, string) {
	value, trace, _ := f.EvaluateWithBreakdown(ctx)
	return value, trace
}

// Breakdown is one scorer's contribution to an EvaluateWithBreakdown call.
type Breakdown struct {
	Name   string
	Value  float64
	Reason string
}

// EvaluateWithBreakdown is Evaluate plus the per-scorer values and reasons
// that produced the aggregate, for callers (e.g. the result sink) that
// report more than the final number.
func (f *ScoreFunction) EvaluateWithBreakdown(ctx ScoringContext) (float64, string, []Breakdown) {
	if len(f.Scorers) == 0 {
		return 0, "no scorers configured", nil
	}

	var weightedSum, totalWeight float64
	var lines []string
	breakdown := make([]Breakdown, 0, len(f.Scorers))
	for _, ws := range f.Scorers {
		score := ws.Scorer.Score(ctx)
		weightedSum += ws.Weight * score.Value
		totalWeight += ws.Weight
		lines = append(lines, fmt.Sprintf("%s: %.3f (weight %.2f) — %s", ws.Scorer.DisplayName(), score.Value, ws.Weight, score.Reason))
		breakdown = append(breakdown, Breakdown{Name: ws.Scorer.DisplayName(), Value: score.Value, Reason: score.Reason})
	}

	if totalWeight == 0 {
		return 0, strings.Join(lines, "\n"), breakdown
	}
	value := weightedSum / totalWeight
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return value, strings.Join(lines, "\n"), breakdown
}
