package scoring

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mcpeval/harness/internal/agent"
	"github.com/mcpeval/harness/internal/prompt"
	"github.com/mcpeval/harness/internal/transcript"
)

// Judge is the narrow interface LLM-backed scorers depend on: ask a
// rendered prompt, get raw text back. Satisfied by AgentJudge.
type Judge interface {
	Ask(ctx context.Context, text string) (string, error)
}

// AgentJudge adapts a dedicated ToolAgent (never the agent under
// evaluation) into a Judge, resetting its transcript before every call so
// judgments never leak context between evals.
type AgentJudge struct {
	Agent *agent.ToolAgent
}

// NewAgentJudge constructs an AgentJudge.
func NewAgentJudge(a *agent.ToolAgent) *AgentJudge {
	return &AgentJudge{Agent: a}
}

func (j *AgentJudge) Ask(ctx context.Context, text string) (string, error) {
	j.Agent.Reset()
	resp, err := j.Agent.Propose(ctx, text, transcript.RoleUser)
	if err != nil {
		return "", fmt.Errorf("judge: %w", err)
	}
	return resp.Content, nil
}

var scorePattern = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*(%)?`)

// parseScore extracts the first numeric token from text and normalizes it
// to [0,1], treating a trailing "%" as a percentage and any value already
// in [0,1] as a direct fraction. Grounded on haasonsaas-nexus's
// rag/eval/judge.go parseScore.
func parseScore(text string) (float64, error) {
	match := scorePattern.FindStringSubmatch(text)
	if match == nil {
		return 0, fmt.Errorf("no numeric score found in %q", truncate(text, 120))
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing numeric score %q: %w", match[1], err)
	}
	if match[2] == "%" || value > 1 {
		value /= 100
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	return value, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var promptLoader = prompt.NewLoader("")
