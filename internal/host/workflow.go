package host

import (
	"context"
	"fmt"
	"log"

	"github.com/mcpeval/harness/internal/transcript"
)

const defaultWorkflowMaxSteps = 8

const synthesisInstruction = "Synthesize the final answer using the tool results."
const defaultFollowup = "Clarify and answer precisely."

// Workflow composes a Host and an Introspector into the ask(question) →
// answer operation of §4.7.
type Workflow struct {
	Host         *Host
	Introspector *Introspector
	MaxSteps     int
}

// NewWorkflow constructs a Workflow. maxSteps <= 0 falls back to
// defaultWorkflowMaxSteps.
func NewWorkflow(h *Host, in *Introspector, maxSteps int) *Workflow {
	if maxSteps <= 0 {
		maxSteps = defaultWorkflowMaxSteps
	}
	return &Workflow{Host: h, Introspector: in, MaxSteps: maxSteps}
}

// Ask drives the outer loop of §4.7 to completion and returns the final
// answer string.
func (w *Workflow) Ask(ctx context.Context, question string) string {
	w.Host.Agent.Reset()

	role := transcript.RoleUser
	prompt := question
	done := false

	for i := 0; i < w.MaxSteps; i++ {
		turn := w.Host.Step(ctx, prompt, role)

		if turn.FatalError != "" {
			log.Printf("[Workflow] fatal error on iteration %d: %s", i, turn.FatalError)
			return fmt.Sprintf("ERROR: %s", turn.FatalError)
		}

		if !turn.HadTools {
			if done {
				return turn.Content
			}
			trace := w.Host.Agent.Transcript.RenderTrace(0)
			verdict := w.Introspector.Validate(ctx, trace, turn.Content)
			if verdict.Valid {
				return turn.Content
			}
			role = transcript.RoleDeveloper
			prompt = verdict.Followup
			if prompt == "" {
				prompt = defaultFollowup
			}
			continue
		}

		trace := w.Host.Agent.Transcript.RenderTrace(0)
		verdict := w.Introspector.Plan(ctx, trace)
		if verdict.Continue && verdict.NextPrompt != "" {
			role = transcript.RoleDeveloper
			prompt = verdict.NextPrompt
			continue
		}
		role = transcript.RoleDeveloper
		prompt = synthesisInstruction
		done = true
	}

	if text, ok := w.Host.Agent.Transcript.LastAssistantText(); ok {
		return text
	}
	return "No final answer."
}
