package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/mcpeval/harness/internal/agent"
	"github.com/mcpeval/harness/internal/core"
	"github.com/mcpeval/harness/internal/mcp"
	"github.com/mcpeval/harness/internal/transcript"
)

// toolCallWork is one dispatch unit for toolExecNode.
type toolCallWork struct {
	call transcript.ToolCallRef
}

// toolExecResult pairs a dispatched call with its outcome so Post can log
// and append without re-deriving the originating server/tool name.
type toolExecResult struct {
	server string
	result mcp.NormalizedResult
	err    error
}

// toolExecNode implements core.BaseNode for the "execute pending tool
// calls" half of the Host loop.
type toolExecNode struct {
	agent *agent.ToolAgent
}

func (n *toolExecNode) Prep(state *hostState) []toolCallWork {
	work := make([]toolCallWork, len(state.pendingCalls))
	for i, c := range state.pendingCalls {
		work[i] = toolCallWork{call: c}
	}
	return work
}

func (n *toolExecNode) Exec(ctx context.Context, in toolCallWork) (toolExecResult, error) {
	var args map[string]any
	if len(in.call.Arguments) > 0 {
		if err := json.Unmarshal(in.call.Arguments, &args); err != nil {
			return toolExecResult{result: mcp.NormalizedResult{
				Success: false,
				Error:   fmt.Sprintf("malformed arguments: %v", err),
			}}, nil
		}
	}

	server, ok := n.agent.Registry.FindServerOfTool(in.call.Name)
	if !ok {
		return toolExecResult{result: mcp.NormalizedResult{
			Success: false,
			Error:   fmt.Sprintf("tool %q not found in registry", in.call.Name),
		}}, nil
	}

	result, err := n.agent.Registry.Dispatch(ctx, in.call.Name, args)
	if err != nil {
		log.Printf("[Host] tool dispatch infrastructure error for %q: %v", in.call.Name, err)
		return toolExecResult{server: server, err: err}, nil
	}
	return toolExecResult{server: server, result: result}, nil
}

func (n *toolExecNode) ExecFallback(err error) toolExecResult {
	return toolExecResult{result: mcp.NormalizedResult{Success: false, Error: err.Error()}}
}

func (n *toolExecNode) Post(state *hostState, prepRes []toolCallWork, execResults ...toolExecResult) core.Action {
	calls := make([]transcript.ToolCallRef, len(state.pendingCalls))
	for i, call := range state.pendingCalls {
		call.ServerName = execResults[i].server
		calls[i] = call
	}
	n.agent.Transcript.AppendAssistantToolCall("", calls)

	for i, call := range state.pendingCalls {
		res := execResults[i]
		norm := res.result
		if res.err != nil {
			norm = mcp.NormalizedResult{Success: false, Error: res.err.Error()}
		}

		payload := mcp.MarshalResult(norm)
		n.agent.Transcript.AppendToolResponse(call.ID, payload)

		resultJSON := norm.Result
		switch {
		case !norm.Success:
			resultJSON, _ = json.Marshal(map[string]string{"error": norm.Error})
		case len(resultJSON) == 0:
			resultJSON, _ = json.Marshal(norm.Content)
		}
		n.agent.Transcript.RecordInvocation(res.server, call.Name, call.Arguments, resultJSON)

		if !norm.Success {
			state.toolErrors = append(state.toolErrors, ToolError{
				ID:      call.ID,
				Server:  res.server,
				Name:    call.Name,
				Message: norm.Error,
			})
		}
	}

	state.pendingCalls = nil
	state.steps++
	if state.steps >= state.maxSteps {
		state.turn = Turn{
			FatalError: "Max steps reached with pending tool calls",
			HadTools:   true,
			ToolErrors: state.toolErrors,
		}
		return core.ActionFailure
	}
	return core.ActionContinue
}
