// Package host implements the Host of §4.5: the orchestrator that drives a
// bounded propose→execute-tools→reprompt loop for one question, built atop
// the teacher's generic core.Node/core.Flow engine.
package host

import "github.com/mcpeval/harness/internal/transcript"

// ToolError is the Result-level record of one failed tool invocation within
// a Turn, per §3.1.
type ToolError struct {
	ID      string
	Server  string
	Name    string
	Message string
}

// Turn is Host.step's return value. FatalError, when non-empty, means the
// loop aborted before producing any candidate content.
type Turn struct {
	Content    string
	HadTools   bool
	ToolErrors []ToolError
	FatalError string
}

const errMarker = "__host_internal_error__"

// hostState is the shared State threaded through the core.Flow for one
// Host.Step call.
type hostState struct {
	needsPrompt  bool
	prompt       string
	role         transcript.Role
	pendingCalls []transcript.ToolCallRef
	toolErrors   []ToolError
	steps        int
	maxSteps     int
	turn         Turn
}
