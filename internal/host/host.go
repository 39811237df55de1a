package host

import (
	"context"
	"fmt"

	"github.com/mcpeval/harness/internal/agent"
	"github.com/mcpeval/harness/internal/core"
	"github.com/mcpeval/harness/internal/model"
	"github.com/mcpeval/harness/internal/transcript"
)

const defaultMaxSteps = 10

// Host is the single-case orchestrator of §4.5.
type Host struct {
	Agent    *agent.ToolAgent
	MaxSteps int
}

// New constructs a Host bound to the given agent. maxSteps <= 0 falls back
// to defaultMaxSteps.
func New(a *agent.ToolAgent, maxSteps int) *Host {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	return &Host{Agent: a, MaxSteps: maxSteps}
}

// Step runs the bounded propose→execute-tools→reprompt loop for one prompt,
// returning the resulting Turn. All errors escaping the agent/registry are
// caught and surfaced as Turn.FatalError, per §4.5's boundary guarantee.
func (h *Host) Step(ctx context.Context, prompt string, role transcript.Role) Turn {
	state := &hostState{
		needsPrompt: true,
		prompt:      prompt,
		role:        role,
		maxSteps:    h.MaxSteps,
	}

	modelNode := core.NewNode[hostState, modelTurnInput, model.Response](&modelTurnNode{agent: h.Agent}, 0)
	toolNode := core.NewNode[hostState, toolCallWork, toolExecResult](&toolExecNode{agent: h.Agent}, 0)

	modelNode.AddSuccessor(toolNode, core.ActionTool)
	toolNode.AddSuccessor(modelNode, core.ActionContinue)

	flow := core.NewFlow[hostState](modelNode)
	action := flow.Run(ctx, state)

	if state.turn.FatalError == "" && state.turn.Content == "" && action == core.ActionFailure {
		return Turn{FatalError: fmt.Sprintf("host: flow aborted with action %s and no recorded turn", action)}
	}
	return state.turn
}
