package host

import (
	"context"

	"github.com/mcpeval/harness/internal/agent"
	"github.com/mcpeval/harness/internal/core"
	"github.com/mcpeval/harness/internal/model"
	"github.com/mcpeval/harness/internal/transcript"
)

// modelTurnInput is the Prep-phase output consumed by modelTurnNode.Exec.
type modelTurnInput struct {
	needsPrompt bool
	prompt      string
	role        transcript.Role
}

// modelTurnNode implements core.BaseNode for the "propose/continue" half of
// the Host loop: it calls the agent's model, either with a fresh prompt
// (first iteration) or as a continuation over tool responses already
// appended to the transcript.
type modelTurnNode struct {
	agent *agent.ToolAgent
}

func (n *modelTurnNode) Prep(state *hostState) []modelTurnInput {
	return []modelTurnInput{{
		needsPrompt: state.needsPrompt,
		prompt:      state.prompt,
		role:        state.role,
	}}
}

func (n *modelTurnNode) Exec(ctx context.Context, in modelTurnInput) (model.Response, error) {
	if in.needsPrompt {
		return n.agent.Propose(ctx, in.prompt, in.role)
	}
	return n.agent.Continue(ctx)
}

func (n *modelTurnNode) ExecFallback(err error) model.Response {
	return model.Response{FinishReason: errMarker, Content: err.Error()}
}

func (n *modelTurnNode) Post(state *hostState, prepRes []modelTurnInput, execResults ...model.Response) core.Action {
	state.needsPrompt = false
	if len(execResults) == 0 {
		state.turn = Turn{FatalError: "model turn produced no result"}
		return core.ActionFailure
	}
	resp := execResults[0]

	if resp.FinishReason == errMarker {
		state.turn = Turn{FatalError: resp.Content, ToolErrors: state.toolErrors}
		return core.ActionFailure
	}

	if !resp.HasToolCalls() {
		if resp.Content == "" {
			state.turn = Turn{FatalError: "model returned empty content with no tool calls", HadTools: state.steps > 0, ToolErrors: state.toolErrors}
			return core.ActionFailure
		}
		n.agent.Transcript.AppendAssistant(resp.Content)
		state.turn = Turn{
			Content:    resp.Content,
			HadTools:   state.steps > 0,
			ToolErrors: state.toolErrors,
		}
		return core.ActionAnswer
	}

	calls := make([]transcript.ToolCallRef, len(resp.ToolCalls))
	for i, c := range resp.ToolCalls {
		calls[i] = transcript.ToolCallRef{ID: c.ID, Name: c.Name, Arguments: c.Arguments}
	}
	state.pendingCalls = calls
	return core.ActionTool
}
