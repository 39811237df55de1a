package runner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mcpeval/harness/internal/agent"
	"github.com/mcpeval/harness/internal/eval"
	"github.com/mcpeval/harness/internal/host"
	"github.com/mcpeval/harness/internal/mcp"
	"github.com/mcpeval/harness/internal/model"
	"github.com/mcpeval/harness/internal/scoring"
	"github.com/mcpeval/harness/internal/transcript"
)

// scriptedModel returns its configured responses in order, repeating the
// last one once exhausted.
type scriptedModel struct {
	name      string
	responses []model.Response
	i         int
}

func (m *scriptedModel) Name() string          { return m.name }
func (m *scriptedModel) DefaultModel() string   { return "scripted" }
func (m *scriptedModel) SupportsTools() bool    { return true }
func (m *scriptedModel) ChatComplete(ctx context.Context, messages []model.Message, tools []model.ToolDef) (model.Response, error) {
	r := m.responses[m.i]
	if m.i < len(m.responses)-1 {
		m.i++
	}
	return r, nil
}

// fakeRegistry is an in-memory ToolRegistry double; no subprocess involved.
type fakeRegistry struct {
	specs   []mcp.ToolSpec
	owner   map[string]string
	results map[string]mcp.NormalizedResult
}

func (f *fakeRegistry) GatherSpecs() []mcp.ToolSpec { return f.specs }
func (f *fakeRegistry) FindServerOfTool(name string) (string, bool) {
	s, ok := f.owner[name]
	return s, ok
}
func (f *fakeRegistry) Dispatch(ctx context.Context, toolName string, args map[string]any) (mcp.NormalizedResult, error) {
	return f.results[toolName], nil
}
func (f *fakeRegistry) AllClients() []*mcp.Client { return nil }
func (f *fakeRegistry) CloseAll() error           { return nil }

func jsonResp(text string) model.Response {
	return model.Response{Content: text, FinishReason: "stop"}
}

func toolCallResp(id, name, args string) model.Response {
	return model.Response{
		FinishReason: "tool_calls",
		ToolCalls: []model.ToolCallRef{
			{ID: id, Name: name, Arguments: json.RawMessage(args)},
		},
	}
}

func newScenarioAgents(solverResponses []model.Response, registry mcp.ToolRegistry, judgeResponses []model.Response) (*agent.ToolAgent, *agent.ToolAgent) {
	solver := agent.New("solver", &scriptedModel{name: "solver", responses: solverResponses}, "solve it", registry)
	judge := agent.New("judge", &scriptedModel{name: "judge", responses: judgeResponses}, "judge it", nil)
	return solver, judge
}

func validatingJudgeResponses() []model.Response {
	return []model.Response{jsonResp(`{"valid": true, "reason": "complete"}`)}
}

// S1: trivial answer, no tool calls, validated immediately.
func TestScenario_S1_TrivialAnswer(t *testing.T) {
	solver, judge := newScenarioAgents(
		[]model.Response{jsonResp("Paris is the capital of France.")},
		nil,
		validatingJudgeResponses(),
	)
	h := host.New(solver, 5)
	wf := host.NewWorkflow(h, host.NewIntrospector(judge, nil), 3)

	answer := wf.Ask(context.Background(), "what is the capital of France?")
	if answer != "Paris is the capital of France." {
		t.Fatalf("unexpected answer: %q", answer)
	}

	e := eval.Eval{ID: "s1", Question: "what is the capital of France?", Scoring: []eval.ScorerConfig{
		{Type: "contains_string", Parameters: map[string]any{"target": "Paris"}},
	}}
	ctx := scoringContextFor(solver, answer)
	r := &Runner{}
	score, _, _, err := r.score(nil, e, ctx)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != 1 {
		t.Fatalf("expected score 1, got %v", score)
	}
}

// S2: single tool call, then synthesis.
func TestScenario_S2_SingleToolCall(t *testing.T) {
	registry := &fakeRegistry{
		specs: []mcp.ToolSpec{{Name: "search", Description: "search the web"}},
		owner: map[string]string{"search": "search-server"},
		results: map[string]mcp.NormalizedResult{
			"search": {Success: true, Result: json.RawMessage(`{"answer":"sunny"}`)},
		},
	}
	solver, judge := newScenarioAgents(
		[]model.Response{
			toolCallResp("call-1", "search", `{"query":"weather"}`),
			jsonResp("It is sunny."),
		},
		registry,
		[]model.Response{
			jsonResp(`{"continue": false, "next_prompt": ""}`),
			jsonResp(`{"valid": true}`),
		},
	)
	h := host.New(solver, 5)
	wf := host.NewWorkflow(h, host.NewIntrospector(judge, nil), 3)

	answer := wf.Ask(context.Background(), "what is the weather?")
	if answer == "" {
		t.Fatal("expected non-empty answer")
	}

	invocations := solver.Transcript.Invocations()
	if len(invocations) != 1 || invocations[0].ToolName != "search" {
		t.Fatalf("expected exactly one recorded search invocation, got %+v", invocations)
	}

	e := eval.Eval{ID: "s2", Execution: eval.ExecutionSpec{MCPs: []string{"search-server"}}}
	valid, reason := validateMcpUsage(e, invocations)
	if !valid {
		t.Fatalf("expected valid mcp usage, got reason %q", reason)
	}
}

// S3: the only tool call fails, the planner declines a retry, and Ask still
// returns a non-empty (degraded) answer with the failed call recorded.
func TestScenario_S3_ToolFailureWithRecovery(t *testing.T) {
	registry := &fakeRegistry{
		specs: []mcp.ToolSpec{{Name: "search", Description: "search"}},
		owner: map[string]string{"search": "search-server"},
		results: map[string]mcp.NormalizedResult{
			"search": {Success: false, Error: "timeout"},
		},
	}
	solver, judge := newScenarioAgents(
		[]model.Response{
			toolCallResp("call-1", "search", `{"query":"weather"}`),
			jsonResp("I could not retrieve the weather."),
		},
		registry,
		[]model.Response{jsonResp(`{"continue": false}`), jsonResp(`{"valid": true}`)},
	)
	h := host.New(solver, 5)
	wf := host.NewWorkflow(h, host.NewIntrospector(judge, nil), 3)

	answer := wf.Ask(context.Background(), "what is the weather?")
	if answer == "" {
		t.Fatal("expected a degraded but present answer")
	}
	invocations := solver.Transcript.Invocations()
	if len(invocations) != 1 {
		t.Fatalf("expected one invocation recorded even on failure, got %d", len(invocations))
	}
}

// S4: step budget exhausted without the model ever stopping tool calls.
func TestScenario_S4_StepBudgetExhausted(t *testing.T) {
	registry := &fakeRegistry{
		specs:   []mcp.ToolSpec{{Name: "loop", Description: "loops forever"}},
		owner:   map[string]string{"loop": "loop-server"},
		results: map[string]mcp.NormalizedResult{"loop": {Success: true, Result: json.RawMessage(`{}`)}},
	}
	solver, judge := newScenarioAgents(
		[]model.Response{toolCallResp("call-1", "loop", `{}`)},
		registry,
		nil,
	)
	h := host.New(solver, 2)
	turn := h.Step(context.Background(), "go", transcript.RoleUser)
	if turn.FatalError == "" {
		t.Fatal("expected fatal error when max steps reached with pending tool calls")
	}
	_ = judge
}

// S5: extract-value scorer against a numeric expectation.
func TestScenario_S5_ExtractValueScorer(t *testing.T) {
	solver, _ := newScenarioAgents([]model.Response{jsonResp("The total is 42.")}, nil, nil)
	judge := &fakeJudge{text: "42"}
	e := eval.Eval{ID: "s5", Scoring: []eval.ScorerConfig{
		{Type: "llm_extract_value", Parameters: map[string]any{"expected": 42.0}},
	}}
	ctx := scoringContextFor(solver, "The total is 42.")
	r := &Runner{}
	score, _, _, err := r.score(judge, e, ctx)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != 1 {
		t.Fatalf("expected score 1 for matching extracted value, got %v", score)
	}
}

// S6: disallowed tool usage halves the score and prefixes the reason.
func TestScenario_S6_DisallowedToolUsagePenalty(t *testing.T) {
	invocations := []transcript.ToolInvocationRecord{
		{ServerName: "unlisted-server", ToolName: "search"},
	}
	e := eval.Eval{ID: "s6", Execution: eval.ExecutionSpec{MCPs: []string{"search-server"}}}
	valid, reason := validateMcpUsage(e, invocations)
	if valid {
		t.Fatal("expected invalid mcp usage for an unlisted server")
	}
	if reason == "" {
		t.Fatal("expected a non-empty diagnostic reason")
	}
}

// An unknown scorer type is a configuration bug, not a per-eval failure:
// score must return an error rather than silently dropping the scorer.
func TestScore_UnknownScorerTypeIsConfigurationError(t *testing.T) {
	solver, _ := newScenarioAgents([]model.Response{jsonResp("answer")}, nil, nil)
	e := eval.Eval{ID: "bad", Scoring: []eval.ScorerConfig{{Type: "not_a_real_scorer"}}}
	ctx := scoringContextFor(solver, "answer")
	r := &Runner{}
	if _, _, _, err := r.score(nil, e, ctx); err == nil {
		t.Fatal("expected an error for an unknown scorer type")
	}
}

type fakeJudge struct{ text string }

func (j *fakeJudge) Ask(ctx context.Context, text string) (string, error) { return j.text, nil }

func scoringContextFor(a *agent.ToolAgent, answer string) scoring.ScoringContext {
	return scoring.ScoringContext{
		Transcript: a.Transcript,
		Answer:     answer,
		ToolCalls:  a.Transcript.Invocations(),
	}
}
