package host

import (
	"context"
	"encoding/json"
	"log"

	"github.com/mcpeval/harness/internal/agent"
	"github.com/mcpeval/harness/internal/prompt"
	"github.com/mcpeval/harness/internal/transcript"
	"github.com/mcpeval/harness/internal/util"
)

// ValidationVerdict is the Introspector's validate-mode output.
type ValidationVerdict struct {
	Valid    bool
	Reason   string
	Followup string
}

// PlanVerdict is the Introspector's plan-mode output.
type PlanVerdict struct {
	Continue   bool
	Reason     string
	NextPrompt string
}

// Introspector is the second agent of §4.6: a thin wrapper over a ToolAgent
// used purely to observe a transcript and recommend continuing, stopping,
// or retrying at a semantic level.
type Introspector struct {
	agent   *agent.ToolAgent
	prompts *prompt.Loader
}

// NewIntrospector constructs an Introspector bound to its own agent (which
// must not be shared with the primary agent) and a prompt loader.
func NewIntrospector(a *agent.ToolAgent, prompts *prompt.Loader) *Introspector {
	if prompts == nil {
		prompts = prompt.NewLoader("")
	}
	return &Introspector{agent: a, prompts: prompts}
}

// Validate asks whether candidateAnswer fully addresses the conversation.
// Parse failures fail open (valid=true) to avoid stalling the Workflow.
func (in *Introspector) Validate(ctx context.Context, trace, candidateAnswer string) ValidationVerdict {
	in.agent.Reset()
	rendered, err := in.prompts.Render(prompt.AnswerValidation, map[string]string{
		"Trace":  trace,
		"Answer": candidateAnswer,
	})
	if err != nil {
		log.Printf("[Introspector] render validation template: %v", err)
		return ValidationVerdict{Valid: true}
	}

	resp, err := in.agent.Propose(ctx, rendered, transcript.RoleUser)
	if err != nil {
		log.Printf("[Introspector] validate call failed: %v", err)
		return ValidationVerdict{Valid: true}
	}

	var parsed struct {
		Valid            bool   `json:"valid"`
		Reason           string `json:"reason"`
		FollowupQuestion string `json:"followup_question"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		log.Printf("[Introspector] validate response not parseable JSON, failing open: %v", err)
		return ValidationVerdict{Valid: true}
	}
	return ValidationVerdict{Valid: parsed.Valid, Reason: parsed.Reason, Followup: parsed.FollowupQuestion}
}

// Plan asks whether the conversation should continue, and if so, what
// developer-role nudge to inject next. Parse failures fail closed
// (continue=false) so the Workflow moves to synthesis rather than looping.
func (in *Introspector) Plan(ctx context.Context, trace string) PlanVerdict {
	in.agent.Reset()
	rendered, err := in.prompts.Render(prompt.Introspective, map[string]string{"Trace": trace})
	if err != nil {
		log.Printf("[Introspector] render plan template: %v", err)
		return PlanVerdict{Continue: false}
	}

	resp, err := in.agent.Propose(ctx, rendered, transcript.RoleUser)
	if err != nil {
		log.Printf("[Introspector] plan call failed: %v", err)
		return PlanVerdict{Continue: false}
	}

	var parsed struct {
		Continue   bool   `json:"continue"`
		Reason     string `json:"reason"`
		NextPrompt string `json:"next_prompt"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		log.Printf("[Introspector] plan response not parseable JSON, failing closed: %v", err)
		return PlanVerdict{Continue: false}
	}
	return PlanVerdict{Continue: parsed.Continue, Reason: parsed.Reason, NextPrompt: parsed.NextPrompt}
}

// extractJSON trims common chat-model wrapping (markdown code fences) around
// a JSON payload before parsing. Models asked for "strict JSON" frequently
// wrap it in ```json fences regardless of instruction.
func extractJSON(s string) string {
	return util.TrimCodeFences(s)
}
