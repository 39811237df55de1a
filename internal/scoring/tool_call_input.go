package scoring

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// InputConstraintMode selects how a field value is compared.
type InputConstraintMode string

const (
	InputExact    InputConstraintMode = "exact"
	InputContains InputConstraintMode = "contains"
	InputRegex    InputConstraintMode = "regex"
)

// InputConstraint checks one field of a tool call's recorded arguments.
type InputConstraint struct {
	Field string
	Value string
	Mode  InputConstraintMode
}

// ToolCallInputScorer verifies that the first invocation of each named tool
// carried arguments matching the given constraints.
type ToolCallInputScorer struct {
	Inputs map[string][]InputConstraint
}

func NewToolCallInputScorer(inputs map[string][]InputConstraint) *ToolCallInputScorer {
	return &ToolCallInputScorer{Inputs: inputs}
}

func (s *ToolCallInputScorer) DisplayName() string { return "tool_call_input" }

func (s *ToolCallInputScorer) Score(ctx ScoringContext) Score {
	var failures []string
	for toolName, constraints := range s.Inputs {
		var args map[string]json.RawMessage
		found := false
		for _, c := range ctx.ToolCalls {
			if c.ToolName != toolName {
				continue
			}
			if err := json.Unmarshal(c.Arguments, &args); err != nil {
				failures = append(failures, fmt.Sprintf("%s: arguments not a JSON object: %v", toolName, err))
				found = true
				break
			}
			found = true
			break
		}
		if !found {
			failures = append(failures, fmt.Sprintf("%s: tool was never invoked", toolName))
			continue
		}

		for _, c := range constraints {
			raw, ok := args[c.Field]
			if !ok {
				failures = append(failures, fmt.Sprintf("%s.%s: field missing from recorded arguments", toolName, c.Field))
				continue
			}
			actual := stringifyJSON(raw)
			if !matchConstraint(actual, c.Value, c.Mode) {
				failures = append(failures, fmt.Sprintf("%s.%s: %q did not satisfy %s %q", toolName, c.Field, actual, c.Mode, c.Value))
			}
		}
	}

	if len(failures) > 0 {
		return Score{Value: 0, Reason: strings.Join(failures, "; ")}
	}
	return Score{Value: 1, Reason: "all tool call input constraints satisfied"}
}

func stringifyJSON(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func matchConstraint(actual, expected string, mode InputConstraintMode) bool {
	switch mode {
	case InputContains:
		return strings.Contains(actual, expected)
	case InputRegex:
		re, err := regexp.Compile(expected)
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	default:
		return actual == expected
	}
}
