package scoring

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mcpeval/harness/internal/prompt"
)

const numericTolerance = 1e-3

// LLMExtractValueScorer asks a judge to extract the scalar final answer
// from the transcript, then compares it against an expected value.
type LLMExtractValueScorer struct {
	Judge    Judge
	Expected any
}

func NewLLMExtractValueScorer(judge Judge, expected any) *LLMExtractValueScorer {
	return &LLMExtractValueScorer{Judge: judge, Expected: expected}
}

func (s *LLMExtractValueScorer) DisplayName() string { return "llm_extract_value" }

func (s *LLMExtractValueScorer) Score(ctx ScoringContext) Score {
	expected := s.Expected
	if expected == nil {
		expected = ctx.Expected
	}
	if expected == nil {
		return Score{Value: 0, Reason: "No expected value provided"}
	}

	trace := ctx.Transcript.RenderTrace(200)
	rendered, err := promptLoader.Render(prompt.ExtractValue, map[string]string{"Trace": trace})
	if err != nil {
		return Score{Value: 0, Reason: fmt.Sprintf("render extract-value prompt: %v", err)}
	}

	extracted, err := s.Judge.Ask(context.Background(), rendered)
	if err != nil {
		return Score{Value: 0, Reason: fmt.Sprintf("judge call failed: %v", err)}
	}
	extracted = strings.TrimSpace(extracted)

	expectedNum, expectedIsNum := toFloat(expected)
	extractedNum, extractedIsNum := toFloat(extracted)
	if expectedIsNum && extractedIsNum {
		if math.Abs(expectedNum-extractedNum) < numericTolerance {
			return Score{Value: 1, Reason: fmt.Sprintf("extracted %v matches expected %v within tolerance", extractedNum, expectedNum)}
		}
		return Score{Value: 0, Reason: fmt.Sprintf("extracted %v does not match expected %v", extractedNum, expectedNum)}
	}

	expectedStr := fmt.Sprintf("%v", expected)
	if strings.EqualFold(strings.TrimSpace(expectedStr), extracted) {
		return Score{Value: 1, Reason: fmt.Sprintf("extracted %q matches expected %q", extracted, expectedStr)}
	}
	return Score{Value: 0, Reason: fmt.Sprintf("extracted %q does not match expected %q", extracted, expectedStr)}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
