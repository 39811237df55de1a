// Package scoring implements the Scorer/ScoreFunction pipeline of §4.8: a
// polymorphic battery of scorers composed into a single weighted value.
package scoring

import "github.com/mcpeval/harness/internal/transcript"

// Score is the result of one Scorer evaluating one ScoringContext.
type Score struct {
	Value  float64
	Reason string
}

// ScoringContext is the input every Scorer receives.
type ScoringContext struct {
	Transcript *transcript.ChatTranscript
	Answer     string
	ToolCalls  []transcript.ToolInvocationRecord
	Expected   any
}

// Scorer maps a ScoringContext to a bounded Score.
type Scorer interface {
	DisplayName() string
	Score(ctx ScoringContext) Score
}
