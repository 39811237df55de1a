package scoring

import (
	"encoding/json"
	"fmt"
	"math"
)

// ToolCallOutputScorer performs a deep structural comparison of a tool's
// recorded result against an expected fragment.
type ToolCallOutputScorer struct {
	Results    map[string]any
	Tolerance  float64
	IgnoreExtra bool
}

func NewToolCallOutputScorer(results map[string]any, tolerance float64, ignoreExtra bool) *ToolCallOutputScorer {
	if tolerance == 0 {
		tolerance = 1e-6
	}
	return &ToolCallOutputScorer{Results: results, Tolerance: tolerance, IgnoreExtra: ignoreExtra}
}

func (s *ToolCallOutputScorer) DisplayName() string { return "tool_call_output" }

func (s *ToolCallOutputScorer) Score(ctx ScoringContext) Score {
	for toolName, expected := range s.Results {
		var actualRaw json.RawMessage
		found := false
		for _, c := range ctx.ToolCalls {
			if c.ToolName == toolName {
				actualRaw = c.Result
				found = true
				break
			}
		}
		if !found {
			return Score{Value: 0, Reason: fmt.Sprintf("%s: tool was never invoked", toolName)}
		}

		var actual any
		if err := json.Unmarshal(actualRaw, &actual); err != nil {
			return Score{Value: 0, Reason: fmt.Sprintf("%s: result not valid JSON: %v", toolName, err)}
		}

		if ok, reason := deepMatch(expected, actual, s.Tolerance, s.IgnoreExtra); !ok {
			return Score{Value: 0, Reason: fmt.Sprintf("%s: %s", toolName, reason)}
		}
	}
	return Score{Value: 1, Reason: "all tool call output fragments matched"}
}

func deepMatch(expected, actual any, tolerance float64, ignoreExtra bool) (bool, string) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false, fmt.Sprintf("expected object, got %T", actual)
		}
		for k, expVal := range exp {
			actVal, present := act[k]
			if !present {
				return false, fmt.Sprintf("missing key %q", k)
			}
			if ok, reason := deepMatch(expVal, actVal, tolerance, ignoreExtra); !ok {
				return false, fmt.Sprintf("key %q: %s", k, reason)
			}
		}
		if !ignoreExtra && len(act) != len(exp) {
			return false, "actual object has extra keys"
		}
		return true, ""
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return false, fmt.Sprintf("expected array, got %T", actual)
		}
		if len(act) != len(exp) {
			return false, fmt.Sprintf("array length %d, want %d", len(act), len(exp))
		}
		for i := range exp {
			if ok, reason := deepMatch(exp[i], act[i], tolerance, ignoreExtra); !ok {
				return false, fmt.Sprintf("index %d: %s", i, reason)
			}
		}
		return true, ""
	case float64:
		act, ok := actual.(float64)
		if !ok {
			return false, fmt.Sprintf("expected number, got %T", actual)
		}
		if math.Abs(act-exp) > tolerance {
			return false, fmt.Sprintf("value %v not within tolerance of %v", act, exp)
		}
		return true, ""
	default:
		if expected != actual {
			return false, fmt.Sprintf("value %v != %v", actual, expected)
		}
		return true, ""
	}
}
