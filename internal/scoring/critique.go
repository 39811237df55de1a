package scoring

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcpeval/harness/internal/prompt"
	"github.com/mcpeval/harness/internal/transcript"
	"github.com/mcpeval/harness/internal/util"
)

const traceTokenCap = 4000

// LLMCritiqueScorer asks a judge model to grade the whole interaction
// against the user's original question, per §4.8.
type LLMCritiqueScorer struct {
	Judge    Judge
	Question string
}

func NewLLMCritiqueScorer(judge Judge, question string) *LLMCritiqueScorer {
	return &LLMCritiqueScorer{Judge: judge, Question: question}
}

func (s *LLMCritiqueScorer) DisplayName() string { return "llm_critique" }

func (s *LLMCritiqueScorer) Score(ctx ScoringContext) Score {
	trace := ctx.Transcript.RenderTrace(200)
	toolCallsText := summarizeToolCalls(ctx.ToolCalls, traceTokenCap)

	rendered, err := promptLoader.Render(prompt.Critique, map[string]string{
		"Question":  s.Question,
		"Trace":     trace,
		"ToolCalls": toolCallsText,
	})
	if err != nil {
		return Score{Value: 0, Reason: fmt.Sprintf("render critique prompt: %v", err)}
	}

	if len(rendered) > traceTokenCap {
		rendered = s.compress(rendered)
	}

	text, err := s.Judge.Ask(context.Background(), rendered)
	if err != nil {
		return Score{Value: 0, Reason: fmt.Sprintf("judge call failed: %v", err)}
	}
	if text == "" {
		return Score{Value: 0, Reason: "judge returned empty response"}
	}

	var parsed struct {
		Answered      bool    `json:"answered"`
		ScoreValue    float64 `json:"score"`
		Justification string  `json:"justification"`
	}
	if err := json.Unmarshal([]byte(util.TrimCodeFences(text)), &parsed); err != nil {
		if fallback, fallbackErr := parseScore(text); fallbackErr == nil {
			return Score{Value: fallback, Reason: "judge response was not strict JSON; extracted a bare numeric score"}
		}
		return Score{Value: 0, Reason: fmt.Sprintf("judge response not parseable JSON: %v", err)}
	}

	value := parsed.ScoreValue
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return Score{Value: value, Reason: parsed.Justification}
}

// compress asks the judge model to shrink an over-cap prompt down to its
// essential content, one extra LLM round-trip, falling back to the
// original prompt on any failure or empty response.
func (s *LLMCritiqueScorer) compress(rendered string) string {
	compressPrompt, err := promptLoader.Render(prompt.Compress, map[string]string{"Prompt": rendered})
	if err != nil {
		return rendered
	}
	compressed, err := s.Judge.Ask(context.Background(), compressPrompt)
	if err != nil || compressed == "" {
		return rendered
	}
	return compressed
}

// summarizeToolCalls serializes the invocation trace under maxChars with a
// four-stage budget: full JSON if it fits, then every result payload
// dropped (server, tool and arguments kept), then tool names only, finally
// a bare count summary, per §4.8. Result payloads are dropped whole, not
// pruned by size.
func summarizeToolCalls(calls []transcript.ToolInvocationRecord, maxChars int) string {
	if len(calls) == 0 {
		return "(no tool calls)"
	}

	type entry struct {
		Server string          `json:"server"`
		Tool   string          `json:"tool"`
		Args   json.RawMessage `json:"arguments,omitempty"`
		Result json.RawMessage `json:"result,omitempty"`
	}
	full := make([]entry, len(calls))
	for i, c := range calls {
		full[i] = entry{Server: c.ServerName, Tool: c.ToolName, Args: c.Arguments, Result: c.Result}
	}
	if data, err := json.Marshal(full); err == nil && len(data) <= maxChars {
		return string(data)
	}

	pruned := make([]entry, len(calls))
	for i, c := range calls {
		pruned[i] = entry{Server: c.ServerName, Tool: c.ToolName, Args: c.Arguments}
	}
	if data, err := json.Marshal(pruned); err == nil && len(data) <= maxChars {
		return string(data)
	}

	type nameOnly struct {
		Tool string `json:"tool"`
	}
	names := make([]nameOnly, len(calls))
	for i, c := range calls {
		names[i] = nameOnly{Tool: c.ToolName}
	}
	if data, err := json.Marshal(names); err == nil && len(data) <= maxChars {
		return string(data)
	}

	return fmt.Sprintf("(%d tool calls, trace too large to inline)", len(calls))
}
