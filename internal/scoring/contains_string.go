package scoring

import (
	"fmt"
	"strings"
)

// ContainsStringScorer checks whether Target appears as a substring of the
// candidate answer.
type ContainsStringScorer struct {
	Target        string
	CaseSensitive bool
}

func NewContainsStringScorer(target string, caseSensitive bool) *ContainsStringScorer {
	return &ContainsStringScorer{Target: target, CaseSensitive: caseSensitive}
}

func (s *ContainsStringScorer) DisplayName() string { return "contains_string" }

func (s *ContainsStringScorer) Score(ctx ScoringContext) Score {
	answer, target := ctx.Answer, s.Target
	if !s.CaseSensitive {
		answer = strings.ToLower(answer)
		target = strings.ToLower(target)
	}
	if strings.Contains(answer, target) {
		return Score{Value: 1, Reason: fmt.Sprintf("answer contains %q", s.Target)}
	}
	return Score{Value: 0, Reason: fmt.Sprintf("answer does not contain %q", s.Target)}
}
