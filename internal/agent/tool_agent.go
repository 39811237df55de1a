// Package agent implements the ToolAgent of §4.4: the stateful binding of a
// model client, a system prompt, and a tool registry around one
// ChatTranscript.
package agent

import (
	"context"
	"fmt"
	"log"

	"github.com/mcpeval/harness/internal/mcp"
	"github.com/mcpeval/harness/internal/model"
	"github.com/mcpeval/harness/internal/transcript"
)

// ToolAgent owns one ChatTranscript and the model/registry pair used to
// advance it. Not safe for concurrent use — see §5's single-logical-thread
// scheduling model.
type ToolAgent struct {
	Name         string
	Model        model.Client
	SystemPrompt string
	Registry     mcp.ToolRegistry
	Transcript   *transcript.ChatTranscript
}

// New constructs a ToolAgent and seeds its transcript with the system
// prompt, if any.
func New(name string, client model.Client, systemPrompt string, registry mcp.ToolRegistry) *ToolAgent {
	a := &ToolAgent{
		Name:         name,
		Model:        client,
		SystemPrompt: systemPrompt,
		Registry:     registry,
		Transcript:   transcript.New(),
	}
	if systemPrompt != "" {
		a.Transcript.AppendSystem(systemPrompt)
	}
	return a
}

// Propose appends a message with the given role and content, serializes the
// transcript, and invokes the model. It does not mutate the transcript
// further — the caller (Host) decides whether and how to record the
// response, per §4.4's rationale about supporting multi-iteration steps.
func (a *ToolAgent) Propose(ctx context.Context, prompt string, role transcript.Role) (model.Response, error) {
	a.appendByRole(role, prompt)

	var tools []model.ToolDef
	if a.Registry != nil {
		for _, spec := range a.Registry.GatherSpecs() {
			tools = append(tools, model.ToolDef{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			})
		}
	}

	messages := toModelMessages(a.Transcript.ToModelMessages(true, true))
	resp, err := a.Model.ChatComplete(ctx, messages, tools)
	if err != nil {
		return model.Response{}, fmt.Errorf("agent %s: propose: %w", a.Name, err)
	}
	return resp, nil
}

// Continue re-invokes the model against the transcript as it stands, without
// appending a new prompt message. Used by Host's inner loop after tool
// responses have been appended — the tool results are the next stimulus.
func (a *ToolAgent) Continue(ctx context.Context) (model.Response, error) {
	var tools []model.ToolDef
	if a.Registry != nil {
		for _, spec := range a.Registry.GatherSpecs() {
			tools = append(tools, model.ToolDef{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			})
		}
	}
	messages := toModelMessages(a.Transcript.ToModelMessages(true, true))
	resp, err := a.Model.ChatComplete(ctx, messages, tools)
	if err != nil {
		return model.Response{}, fmt.Errorf("agent %s: continue: %w", a.Name, err)
	}
	return resp, nil
}

func (a *ToolAgent) appendByRole(role transcript.Role, content string) {
	switch role {
	case transcript.RoleUser:
		a.Transcript.AppendUser(content)
	case transcript.RoleDeveloper:
		a.Transcript.AppendDeveloper(content)
	case transcript.RoleAssistant:
		a.Transcript.AppendAssistant(content)
	default:
		log.Printf("[Agent] %s: propose called with unusual role %q, treating as user", a.Name, role)
		a.Transcript.AppendUser(content)
	}
}

// Reset clears the transcript and re-seeds the system message.
func (a *ToolAgent) Reset() {
	a.Transcript.Reset()
	if a.SystemPrompt != "" {
		a.Transcript.AppendSystem(a.SystemPrompt)
	}
}

// Initialize eagerly connects every tool client reachable through the
// registry that is not already connected.
func (a *ToolAgent) Initialize(ctx context.Context) error {
	if a.Registry == nil {
		return nil
	}
	for _, c := range a.Registry.AllClients() {
		if c.IsConnected() {
			continue
		}
		if err := c.Connect(ctx); err != nil {
			return fmt.Errorf("agent %s: initialize: %w", a.Name, err)
		}
	}
	return nil
}

// Cleanup disconnects every tool client owned by the registry.
func (a *ToolAgent) Cleanup() error {
	if a.Registry == nil {
		return nil
	}
	return a.Registry.CloseAll()
}

func toModelMessages(msgs []transcript.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		mm := model.Message{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			mm.ToolCalls = append(mm.ToolCalls, model.ToolCallRef{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: tc.Arguments,
			})
		}
		out = append(out, mm)
	}
	return out
}
